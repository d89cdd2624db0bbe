package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"galgame-server/internal/models"
)

const conversationKeyPrefix = "galgame:conversation:"

// RedisConversationStore keeps conversation bindings in Redis so they survive
// restarts and are shared between replicas. Keys expire after ttl of inactivity.
type RedisConversationStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ ConversationStore = (*RedisConversationStore)(nil)

func NewRedisConversationStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisConversationStore {
	return &RedisConversationStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisConversationStore"),
	}
}

func conversationKey(sessionID string) string {
	return conversationKeyPrefix + sessionID
}

func (s *RedisConversationStore) Current(ctx context.Context, sessionID string) (*models.Conversation, error) {
	key := conversationKey(sessionID)

	conv, err := s.load(ctx, key)
	if err == nil {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.Warn("Failed to refresh conversation TTL", zap.String("sessionID", sessionID), zap.Error(err))
		}
		return conv, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	fresh := &models.Conversation{ID: uuid.NewString()}
	data, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	created, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		s.logger.Error("Failed to create conversation in redis", zap.String("sessionID", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	if !created {
		// another replica won the race
		return s.load(ctx, key)
	}
	s.logger.Debug("Conversation created", zap.String("sessionID", sessionID), zap.String("conversationID", fresh.ID))
	return fresh, nil
}

func (s *RedisConversationStore) Bind(ctx context.Context, sessionID string, personaID *string) (*models.Conversation, error) {
	conv, err := s.Current(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	conv.PersonaID = copyID(personaID)
	data, err := json.Marshal(conv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.client.Set(ctx, conversationKey(sessionID), data, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to bind persona in redis", zap.String("sessionID", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	return conv, nil
}

func (s *RedisConversationStore) load(ctx context.Context, key string) (*models.Conversation, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}
