package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"facilitator-agent/internal/domain"
)

const (
	pkPrefixDecision  = "DECISION#"
	skPrefixOperation = "OP#"
	ttlDuration       = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client writes decision audit records to a DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func decisionPK(decisionID string) string {
	return pkPrefixDecision + decisionID
}

func operationSK(operation string) string {
	return skPrefixOperation + operation
}

// RecordDecision stores one decision under its decision id. Writing the same
// decision id twice fails the condition check.
func (c *Client) RecordDecision(ctx context.Context, rec domain.DecisionRecord) error {
	if strings.TrimSpace(rec.DecisionID) == "" || strings.TrimSpace(rec.Operation) == "" {
		return errors.New("repository: RecordDecision: decision id and operation are required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.now()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                decisionItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordDecision: %w", err)
	}
	return nil
}

func decisionItem(rec domain.DecisionRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: decisionPK(rec.DecisionID)},
		"SK":              &types.AttributeValueMemberS{Value: operationSK(rec.Operation)},
		"decisionId":      &types.AttributeValueMemberS{Value: rec.DecisionID},
		"operation":       &types.AttributeValueMemberS{Value: rec.Operation},
		"engine":          &types.AttributeValueMemberS{Value: rec.Engine},
		"shouldIntervene": &types.AttributeValueMemberBOOL{Value: rec.ShouldIntervene},
		"participants":    &types.AttributeValueMemberSS{Value: uniqueNonEmpty(rec.ParticipantIDs[:])},
		"turns":           &types.AttributeValueMemberN{Value: strconv.Itoa(rec.TurnCount)},
		"createdAt":       &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":             &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.CreatedAt.Add(ttlDuration).Unix(), 10)},
	}
	if rec.RequestID != "" {
		item["requestId"] = &types.AttributeValueMemberS{Value: rec.RequestID}
	}
	if rec.Rule != "" {
		item["rule"] = &types.AttributeValueMemberS{Value: rec.Rule}
	}
	if rec.Urgency != "" {
		item["urgency"] = &types.AttributeValueMemberS{Value: string(rec.Urgency)}
	}
	if rec.TargetID != "" {
		item["targetId"] = &types.AttributeValueMemberS{Value: rec.TargetID}
	}
	return item
}

// uniqueNonEmpty keeps string-set values valid: DynamoDB rejects empty and
// duplicate members.
func uniqueNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		out = append(out, "unknown")
	}
	return out
}
