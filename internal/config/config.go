// Package config loads process configuration from the environment. It is the
// only package that reads environment variables; everything else receives a
// Config value.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EngineRules = "rules"
	EngineLLM   = "llm"
)

type Config struct {
	DecisionEngine string
	ParamPrefix    string
	OpenAIModel    string
	OpenAIBaseURL  string
	LLMTimeout     time.Duration
	LLMTemperature float64
	AuditTable     string
	NatsURL        string
	NatsToken      string
	NatsSubject    string
	MaxInputBytes  int
	LogLevel       string
	Port           int
}

func Load() Config {
	return Config{
		DecisionEngine: strings.ToLower(envStr("DECISION_ENGINE", EngineRules)),
		ParamPrefix:    strings.TrimRight(envStr("PARAM_PREFIX", ""), "/"),
		OpenAIModel:    envStr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  envStr("OPENAI_BASE_URL", ""),
		LLMTimeout:     time.Duration(envInt("LLM_TIMEOUT_SECONDS", 20)) * time.Second,
		LLMTemperature: envFloat("LLM_TEMPERATURE", 0.4),
		AuditTable:     envStr("AUDIT_TABLE", ""),
		NatsURL:        envStr("NATS_URL", ""),
		NatsToken:      envStr("NATS_TOKEN", ""),
		NatsSubject:    envStr("NATS_SUBJECT", "facilitator.intervention"),
		MaxInputBytes:  envInt("MAX_INPUT_BYTES", 1<<20),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		Port:           envInt("PORT", 3000),
	}
}

// Validate reports every problem with c, joined.
func (c Config) Validate() error {
	var errs []error
	switch c.DecisionEngine {
	case EngineRules:
	case EngineLLM:
		if c.ParamPrefix == "" {
			errs = append(errs, errors.New("config: PARAM_PREFIX is required when DECISION_ENGINE=llm"))
		}
		if strings.TrimSpace(c.OpenAIModel) == "" {
			errs = append(errs, errors.New("config: OPENAI_MODEL must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown DECISION_ENGINE %q (want rules or llm)", c.DecisionEngine))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("config: LLM_TIMEOUT_SECONDS must be positive"))
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		errs = append(errs, fmt.Errorf("config: LLM_TEMPERATURE %v out of range [0, 2]", c.LLMTemperature))
	}
	if c.MaxInputBytes <= 0 {
		errs = append(errs, errors.New("config: MAX_INPUT_BYTES must be positive"))
	}
	if c.NatsURL != "" && strings.TrimSpace(c.NatsSubject) == "" {
		errs = append(errs, errors.New("config: NATS_SUBJECT must not be empty when NATS_URL is set"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}
