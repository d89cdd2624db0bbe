package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingAcknowledger struct {
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (a *recordingAcknowledger) Ack(tag uint64, _ bool) error {
	a.acks = append(a.acks, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.nacks = append(a.nacks, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type processFunc func(ctx context.Context, body []byte) error

func (f processFunc) Process(ctx context.Context, body []byte) error { return f(ctx, body) }

func TestConsumer_Handle(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantAck  bool
		wantNack bool
	}{
		{name: "processed", err: nil, wantAck: true},
		{name: "malformed", err: fmt.Errorf("%w: bad json", ErrMalformedMessage), wantNack: true},
		{name: "publish failure", err: errors.New("channel closed"), wantAck: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAcknowledger{}
			c := &Consumer{
				processor: processFunc(func(context.Context, []byte) error { return tt.err }),
				logger:    zap.NewNop(),
			}

			c.handle(amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte(`{}`)})

			if tt.wantAck {
				assert.Equal(t, []uint64{7}, ack.acks)
			} else {
				assert.Empty(t, ack.acks)
			}
			if tt.wantNack {
				assert.Equal(t, []uint64{7}, ack.nacks)
				assert.Equal(t, []bool{false}, ack.requeue)
			} else {
				assert.Empty(t, ack.nacks)
			}
		})
	}
}

func TestConsumer_StopIsIdempotent(t *testing.T) {
	c := NewConsumer(nil, nil, "q", 0, zap.NewNop())
	assert.Equal(t, 1, c.concurrency)
	c.Stop()
	c.Stop()
	_, open := <-c.stopChannel
	assert.False(t, open)
}

func TestConsumer_WorkerExitsOnClosedChannel(t *testing.T) {
	c := NewConsumer(nil, nil, "q", 1, zap.NewNop())
	msgs := make(chan amqp.Delivery)
	close(msgs)
	c.work(0, msgs)
}
