package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"galgame-server/internal/router"
)

// Outbound event types.
const (
	EventTypeReply  = "reply"
	EventTypeResult = "result"
)

// ReplyEvent carries one outbound item of a turn. Seq starts at 1 per inbound message.
type ReplyEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id,omitempty"`
	Seq       int    `json:"seq"`
	Text      string `json:"text"`
}

// ResultEvent closes a turn and tells the host what to do with the inbound message.
type ResultEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id,omitempty"`
	router.Result
}

// Publisher sends outbound events to the host bot.
type Publisher interface {
	PublishReply(ctx context.Context, event ReplyEvent) error
	PublishResult(ctx context.Context, event ResultEvent) error
}

// RabbitMQPublisher publishes events as persistent JSON messages to one queue.
type RabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	mu        sync.Mutex
	logger    *zap.Logger
}

// NewRabbitMQPublisher opens a dedicated channel and declares the outbound queue.
func NewRabbitMQPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare queue '%s': %w", queueName, err)
	}
	return &RabbitMQPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("RabbitMQPublisher"),
	}, nil
}

func (p *RabbitMQPublisher) PublishReply(ctx context.Context, event ReplyEvent) error {
	event.Type = EventTypeReply
	return p.publishJSON(ctx, event)
}

func (p *RabbitMQPublisher) PublishResult(ctx context.Context, event ResultEvent) error {
	event.Type = EventTypeResult
	return p.publishJSON(ctx, event)
}

// Close closes the publisher channel.
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}

func (p *RabbitMQPublisher) publishJSON(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound event: %w", err)
	}
	return p.publishMessage(ctx, body)
}

func (p *RabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		return errors.New("RabbitMQ channel is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// one turn's replies must reach the queue in emission order
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // default exchange
			p.queueName, // routing key
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        "galgame-server",
			},
		)
		if err == nil {
			p.logger.Debug("Event published", zap.String("queue", p.queueName), zap.Int("attempt", attempt))
			return nil
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("queue", p.queueName), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return fmt.Errorf("failed to publish to queue %s after retries: %w", p.queueName, err)
}
