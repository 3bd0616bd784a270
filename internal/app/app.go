// Package app builds the handler and its dependencies from a Config. Both
// the Lambda entry and the local dev server start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"facilitator-agent/handler"
	"facilitator-agent/internal/config"
	"facilitator-agent/internal/facilitator"
	"facilitator-agent/internal/integrations/natsbus"
	"facilitator-agent/internal/integrations/openai"
	"facilitator-agent/internal/integrations/paramstore"
	"facilitator-agent/internal/repository"
	"facilitator-agent/internal/usecase"
)

type App struct {
	Handler *handler.Handler
	Engine  string

	closers []func() error
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Engine: cfg.DecisionEngine}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("app: load AWS config: %w", err)
		}
		awsCfg = &c
		return c, nil
	}

	decider, err := buildDecider(cfg, loadAWS)
	if err != nil {
		return nil, err
	}

	opts := []usecase.ServiceOption{usecase.WithMaxInputBytes(cfg.MaxInputBytes)}

	if cfg.AuditTable != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		recorder, err := repository.New(awsdynamodb.NewFromConfig(c), cfg.AuditTable)
		if err != nil {
			return nil, fmt.Errorf("app: audit repository: %w", err)
		}
		opts = append(opts, usecase.WithRecorder(recorder))
		logger.Info("decision audit enabled", "table", cfg.AuditTable)
	}

	if cfg.NatsURL != "" {
		publisher, err := natsbus.Connect(cfg.NatsURL, cfg.NatsToken, cfg.NatsSubject, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, usecase.WithPublisher(publisher))
		logger.Info("intervention events enabled", "url", cfg.NatsURL, "subject", cfg.NatsSubject)
	}

	svc, err := usecase.NewFacilitatorService(decider, logger, opts...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: facilitator service: %w", err)
	}

	h, err := handler.NewHandler(svc,
		handler.WithLogger(logger),
		handler.WithMaxBodyBytes(2*cfg.MaxInputBytes),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: handler: %w", err)
	}
	a.Handler = h

	logger.Info("facilitator ready", "engine", decider.Name())
	return a, nil
}

func buildDecider(cfg config.Config, loadAWS func() (aws.Config, error)) (usecase.Decider, error) {
	if cfg.DecisionEngine != config.EngineLLM {
		return facilitator.NewEngine(), nil
	}

	c, err := loadAWS()
	if err != nil {
		return nil, err
	}
	params, err := paramstore.New(awsssm.NewFromConfig(c))
	if err != nil {
		return nil, fmt.Errorf("app: paramstore: %w", err)
	}
	client, err := openai.NewClient(params, cfg.ParamPrefix,
		openai.WithBaseURL(cfg.OpenAIBaseURL),
		openai.WithTimeout(cfg.LLMTimeout),
		openai.WithTemperature(cfg.LLMTemperature),
	)
	if err != nil {
		return nil, fmt.Errorf("app: openai client: %w", err)
	}
	d, err := usecase.NewLLMDecider(client, cfg.OpenAIModel)
	if err != nil {
		return nil, fmt.Errorf("app: llm decider: %w", err)
	}
	return d, nil
}
