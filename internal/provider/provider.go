package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"galgame-server/internal/config"
	"galgame-server/internal/models"
)

var (
	// ErrGenerationFailed is matched by every error a Provider returns.
	ErrGenerationFailed = errors.New("text generation failed")
	// ErrEmptyCompletion: the model answered with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Provider is the text-generation capability: one prompt, one system
// instruction and the replayed history in, the completion text out.
type Provider interface {
	TextChat(ctx context.Context, prompt, systemPrompt string, history []models.Message) (string, error)
}

// Error is a failed generation call. Detail is meant for end users.
type Error struct {
	Client string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrGenerationFailed}
	}
	return []error{ErrGenerationFailed, e.Err}
}

func newError(client string, err error) *Error {
	return &Error{Client: client, Detail: err.Error(), Err: err}
}

// Detail extracts the user-facing text from any error.
func Detail(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Detail
	}
	return err.Error()
}

// NewProvider builds the Provider selected by cfg.ClientType.
func NewProvider(cfg config.AIConfig, logger *zap.Logger) (Provider, error) {
	var tokens *TokenCounter
	if cfg.TokenMetrics {
		tokens = NewTokenCounter(cfg.Model, logger)
	}

	switch strings.ToLower(cfg.ClientType) {
	case "openai":
		logger.Info("Using AI client implementation: OpenAI",
			zap.String("baseURL", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		return NewOpenAIClient(cfg, tokens, logger), nil
	case "ollama":
		logger.Info("Using AI client implementation: Ollama",
			zap.String("baseURL", cfg.BaseURL), zap.String("model", cfg.Model), zap.Duration("timeout", cfg.Timeout))
		client, err := NewOllamaClient(cfg, tokens, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI client type: '%s'", cfg.ClientType)
	}
}
