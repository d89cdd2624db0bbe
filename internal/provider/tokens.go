package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"galgame-server/internal/models"
)

const fallbackEncoding = "cl100k_base"

// TokenCounter estimates prompt sizes with tiktoken. The encoding is loaded on
// first use. A nil *TokenCounter counts nothing.
type TokenCounter struct {
	model  string
	logger *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenCounter(model string, logger *zap.Logger) *TokenCounter {
	return &TokenCounter{model: model, logger: logger.Named("TokenCounter")}
}

func (c *TokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		// most non-OpenAI model names are unknown to tiktoken
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		c.logger.Warn("Tokenizer unavailable, token estimation disabled", zap.String("model", c.model), zap.Error(err))
		return
	}
	c.enc = enc
}

// Count returns the estimated token count of a chat request.
func (c *TokenCounter) Count(prompt, systemPrompt string, history []models.Message) (int, bool) {
	if c == nil {
		return 0, false
	}
	c.once.Do(c.load)
	if c.enc == nil {
		return 0, false
	}
	n := len(c.enc.Encode(systemPrompt, nil, nil)) + len(c.enc.Encode(prompt, nil, nil))
	for _, m := range history {
		n += len(c.enc.Encode(m.Content, nil, nil))
	}
	return n, true
}
