package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"facilitator-agent/internal/domain"
	"facilitator-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	serviceName         = "ai-facilitator"

	pathInitiate   = "/initiate-conversation"
	pathFacilitate = "/facilitate-conversation"
	pathHealth     = "/health"

	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codePayloadTooLarge  = "PAYLOAD_TOO_LARGE"

	defaultMaxBodyBytes = 2 << 20
)

type FacilitatorUseCase interface {
	Initiate(ctx context.Context, in usecase.InitiateInput) (usecase.InitiateOutput, error)
	Facilitate(ctx context.Context, in usecase.FacilitateInput) (usecase.FacilitateOutput, error)
}

type Handler struct {
	uc           FacilitatorUseCase
	logger       *slog.Logger
	maxBodyBytes int
	now          func() time.Time
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxBodyBytes caps the raw request body. Larger bodies get 413.
func WithMaxBodyBytes(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func NewHandler(uc FacilitatorUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:           uc,
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type initiateRequest struct {
	UsersInfo string `json:"users_info"`
}

type facilitateRequest struct {
	UsersInfo    string `json:"users_info"`
	Conversation string `json:"conversation"`
}

type initiateData struct {
	AIMessages []domain.OutboundMessage `json:"ai_messages"`
}

type facilitateData struct {
	ShouldIntervene bool                    `json:"should_intervene"`
	Urgency         domain.Urgency          `json:"urgency"`
	AIMessage       *domain.OutboundMessage `json:"ai_message"`
}

type dataResponse[T any] struct {
	Data T `json:"data"`
}

type healthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	TS      string `json:"ts"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Reason  string            `json:"reason,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
	Path    string            `json:"path,omitempty"`
}

// Handle serves one API Gateway proxy request. Routes match on path suffix so
// the API can be mounted under a stage or /api prefix.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)
	path := routePath(req.Path)
	logger := h.logger.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", path)

	if req.HTTPMethod == http.MethodOptions {
		return preflight(correlationID), nil
	}

	switch {
	case strings.HasSuffix(path, pathInitiate):
		if req.HTTPMethod != http.MethodPost {
			return methodNotAllowed(http.MethodPost, correlationID), nil
		}
		return h.initiate(ctx, req, correlationID, logger), nil
	case strings.HasSuffix(path, pathFacilitate):
		if req.HTTPMethod != http.MethodPost {
			return methodNotAllowed(http.MethodPost, correlationID), nil
		}
		return h.facilitate(ctx, req, correlationID, logger), nil
	case strings.HasSuffix(path, pathHealth):
		if req.HTTPMethod != http.MethodGet && req.HTTPMethod != http.MethodHead {
			return methodNotAllowed(http.MethodGet, correlationID), nil
		}
		return jsonResponse(http.StatusOK, healthResponse{
			OK:      true,
			Service: serviceName,
			TS:      h.now().UTC().Format(time.RFC3339Nano),
		}, correlationID), nil
	}

	logger.Info("route not found")
	return jsonResponse(http.StatusNotFound, errorResponse{Error: codeNotFound, Path: req.Path}, correlationID), nil
}

func (h *Handler) initiate(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	var body initiateRequest
	if resp, ok := h.decodeBody(req, &body, correlationID); !ok {
		return resp
	}

	out, err := h.uc.Initiate(ctx, usecase.InitiateInput{UsersInfo: body.UsersInfo, RequestID: correlationID})
	if err != nil {
		return errorToResponse(err, correlationID, logger)
	}
	return jsonResponse(http.StatusOK, dataResponse[initiateData]{Data: initiateData{
		AIMessages: out.Kickoff.Messages[:],
	}}, correlationID)
}

func (h *Handler) facilitate(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	var body facilitateRequest
	if resp, ok := h.decodeBody(req, &body, correlationID); !ok {
		return resp
	}

	out, err := h.uc.Facilitate(ctx, usecase.FacilitateInput{
		UsersInfo:    body.UsersInfo,
		Conversation: body.Conversation,
		RequestID:    correlationID,
	})
	if err != nil {
		return errorToResponse(err, correlationID, logger)
	}

	v := out.Verdict
	data := facilitateData{ShouldIntervene: v.ShouldIntervene, Urgency: v.Urgency}
	if v.ShouldIntervene && v.Target != nil {
		data.AIMessage = &domain.OutboundMessage{Message: v.Message, Target: v.Target.ID}
	}
	return jsonResponse(http.StatusOK, dataResponse[facilitateData]{Data: data}, correlationID)
}

// decodeBody parses a single JSON object. Unknown keys are ignored; wrong
// types, trailing data and oversized bodies are rejected.
func (h *Handler) decodeBody(req events.APIGatewayProxyRequest, dst any, correlationID string) (events.APIGatewayProxyResponse, bool) {
	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return invalidBody("invalid_base64_body", nil, correlationID), false
		}
		raw = decoded
	}
	if len(raw) > h.maxBodyBytes {
		return jsonResponse(http.StatusRequestEntityTooLarge, errorResponse{
			Error:  codePayloadTooLarge,
			Reason: "body_too_large",
			Details: map[string]any{
				"limit": h.maxBodyBytes,
			},
		}, correlationID), false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return invalidBody("invalid_request_body", map[string]string{
				typeErr.Field: fmt.Sprintf("%s must be a string", typeErr.Field),
			}, correlationID), false
		}
		return invalidBody("invalid_json", nil, correlationID), false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidBody("invalid_json", nil, correlationID), false
	}
	return events.APIGatewayProxyResponse{}, true
}

func invalidBody(reason string, fields map[string]string, correlationID string) events.APIGatewayProxyResponse {
	return jsonResponse(http.StatusBadRequest, errorResponse{
		Error:  string(usecase.ErrorInvalidInput),
		Reason: reason,
		Fields: fields,
	}, correlationID)
}

func errorToResponse(err error, correlationID string, logger *slog.Logger) events.APIGatewayProxyResponse {
	var uerr *usecase.Error
	if !errors.As(err, &uerr) {
		logger.Error("unexpected error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}, correlationID)
	}

	status := statusFor(uerr.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", uerr.Code, "reason", uerr.Reason, "err", uerr.Err)
	} else {
		logger.Info("request rejected", "code", uerr.Code, "reason", uerr.Reason)
	}
	return jsonResponse(status, errorResponse{
		Error:   string(uerr.Code),
		Reason:  uerr.Reason,
		Fields:  uerr.Fields,
		Details: uerr.Detail,
	}, correlationID)
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream, usecase.ErrorShapeMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(allow, correlationID string) events.APIGatewayProxyResponse {
	resp := jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: codeMethodNotAllowed}, correlationID)
	resp.Headers["Allow"] = allow + ", OPTIONS"
	return resp
}

func preflight(correlationID string) events.APIGatewayProxyResponse {
	headers := baseHeaders(correlationID)
	headers["Access-Control-Allow-Methods"] = "GET, POST, OPTIONS"
	headers["Access-Control-Allow-Headers"] = "Content-Type, X-Correlation-Id"
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: headers}
}

func jsonResponse(status int, body any, correlationID string) events.APIGatewayProxyResponse {
	headers := baseHeaders(correlationID)
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    headers,
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers, Body: string(payload)}
}

func baseHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":                  "application/json",
		"X-Content-Type-Options":        "nosniff",
		"Access-Control-Allow-Origin":   "*",
		"Access-Control-Expose-Headers": headerCorrelationID,
		headerCorrelationID:             correlationID,
	}
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, headerCorrelationID) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func routePath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
