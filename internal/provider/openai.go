package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"galgame-server/internal/config"
	"galgame-server/internal/models"
)

const clientOpenAI = "openai"

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client      *openaigo.Client
	model       string
	temperature *float64
	maxTokens   *int
	tokens      *TokenCounter
	logger      *zap.Logger
}

func NewOpenAIClient(cfg config.AIConfig, tokens *TokenCounter, logger *zap.Logger) *OpenAIClient {
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client:      openaigo.NewClientWithConfig(openaiConfig),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		tokens:      tokens,
		logger:      logger.Named("OpenAIClient"),
	}
}

func openAIRole(r models.Role) string {
	switch r {
	case models.RoleSystem:
		return openaigo.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openaigo.ChatMessageRoleAssistant
	default:
		return openaigo.ChatMessageRoleUser
	}
}

func (c *OpenAIClient) TextChat(ctx context.Context, prompt, systemPrompt string, history []models.Message) (string, error) {
	messages := make([]openaigo.ChatCompletionMessage, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: prompt})

	req := openaigo.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if c.temperature != nil {
		req.Temperature = float32(*c.temperature)
	}
	if c.maxTokens != nil {
		req.MaxTokens = *c.maxTokens
	}

	started := time.Now()
	c.logger.Debug("Sending chat completion request",
		zap.String("model", c.model), zap.Int("messages", len(messages)), zap.Int("promptBytes", len(prompt)))

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.logger.Error("AI API request failed", zap.Duration("duration", time.Since(started)), zap.Error(err))
		observe(clientOpenAI, c.model, statusError, started)
		return "", newError(clientOpenAI, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("AI API returned an empty response", zap.Duration("duration", time.Since(started)))
		observe(clientOpenAI, c.model, statusEmptyResponse, started)
		return "", newError(clientOpenAI, fmt.Errorf("%w from model %s", ErrEmptyCompletion, c.model))
	}
	observe(clientOpenAI, c.model, statusSuccess, started)

	if resp.Usage.PromptTokens > 0 {
		observePromptTokens(c.model, resp.Usage.PromptTokens)
	} else if n, ok := c.tokens.Count(prompt, systemPrompt, history); ok {
		observePromptTokens(c.model, n)
	}

	text := resp.Choices[0].Message.Content
	c.logger.Debug("AI API response received",
		zap.Duration("duration", time.Since(started)), zap.Int("length", len(text)),
		zap.Int("promptTokens", resp.Usage.PromptTokens), zap.Int("completionTokens", resp.Usage.CompletionTokens))
	return text, nil
}
