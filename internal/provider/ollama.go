package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"galgame-server/internal/config"
	"galgame-server/internal/models"
)

const clientOllama = "ollama"

// OllamaClient talks to a local Ollama server through its native chat API.
type OllamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	options map[string]interface{}
	tokens  *TokenCounter
	logger  *zap.Logger
}

func NewOllamaClient(cfg config.AIConfig, tokens *TokenCounter, logger *zap.Logger) (*OllamaClient, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Ollama base URL '%s': %w", baseURL, err)
	}

	options := map[string]interface{}{}
	if cfg.Temperature != nil {
		options["temperature"] = *cfg.Temperature
	}
	if cfg.MaxTokens != nil {
		options["num_predict"] = *cfg.MaxTokens
	}

	return &OllamaClient{
		client:  api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout}),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		options: options,
		tokens:  tokens,
		logger:  logger.Named("OllamaClient"),
	}, nil
}

func (c *OllamaClient) TextChat(ctx context.Context, prompt, systemPrompt string, history []models.Message) (string, error) {
	messages := make([]api.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, api.Message{Role: string(models.RoleSystem), Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, api.Message{Role: string(models.RoleUser), Content: prompt})

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  c.options,
	}

	requestCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, req, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("Ollama request timed out", zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			c.logger.Error("Ollama request failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		}
		observe(clientOllama, c.model, statusError, started)
		return "", newError(clientOllama, err)
	}
	if resp.Message.Content == "" {
		c.logger.Warn("Ollama returned an empty response", zap.Duration("duration", time.Since(started)))
		observe(clientOllama, c.model, statusEmptyResponse, started)
		return "", newError(clientOllama, fmt.Errorf("%w from model %s", ErrEmptyCompletion, c.model))
	}
	observe(clientOllama, c.model, statusSuccess, started)

	if resp.PromptEvalCount > 0 {
		observePromptTokens(c.model, resp.PromptEvalCount)
	} else if n, ok := c.tokens.Count(prompt, systemPrompt, history); ok {
		observePromptTokens(c.model, n)
	}

	c.logger.Debug("Ollama response received",
		zap.Duration("duration", time.Since(started)), zap.Int("length", len(resp.Message.Content)),
		zap.Int("promptTokens", resp.PromptEvalCount), zap.Int("completionTokens", resp.EvalCount))
	return resp.Message.Content, nil
}
