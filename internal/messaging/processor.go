package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"galgame-server/internal/narrative"
	"galgame-server/internal/router"
)

// ErrMalformedMessage marks an inbound delivery that can never be processed.
var ErrMalformedMessage = errors.New("malformed inbound message")

// InboundMessage is the payload of the inbound queue.
type InboundMessage struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

// Dispatcher runs one chat message through the game.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg router.Message, emit narrative.Emitter) router.Result
}

// Processor turns one inbound delivery into a dispatch and its outbound events.
type Processor struct {
	dispatcher Dispatcher
	publisher  Publisher
	logger     *zap.Logger
}

func NewProcessor(dispatcher Dispatcher, publisher Publisher, logger *zap.Logger) *Processor {
	return &Processor{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger.Named("MessageProcessor"),
	}
}

// Process handles one delivery body. Replies are published as the game
// produces them; the result event follows the last reply.
func (p *Processor) Process(ctx context.Context, body []byte) error {
	var in InboundMessage
	if err := json.Unmarshal(body, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if in.SessionID == "" {
		return fmt.Errorf("%w: session_id is empty", ErrMalformedMessage)
	}
	log := p.logger.With(zap.String("sessionID", in.SessionID), zap.String("messageID", in.MessageID))

	seq := 0
	emit := func(text string) error {
		seq++
		return p.publisher.PublishReply(ctx, ReplyEvent{
			SessionID: in.SessionID,
			MessageID: in.MessageID,
			Seq:       seq,
			Text:      text,
		})
	}

	res := p.dispatcher.Dispatch(ctx, router.Message{SessionID: in.SessionID, Text: in.Text}, emit)
	log.Debug("Message dispatched", zap.Bool("handled", res.Handled), zap.Int("replies", seq))

	err := p.publisher.PublishResult(ctx, ResultEvent{
		SessionID: in.SessionID,
		MessageID: in.MessageID,
		Result:    res,
	})
	if err != nil {
		return fmt.Errorf("failed to publish result for session %s: %w", in.SessionID, err)
	}
	return nil
}
