package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type deliveryProcessor interface {
	Process(ctx context.Context, body []byte) error
}

// Consumer reads chat messages from the inbound queue with a fixed pool of workers.
type Consumer struct {
	conn        *amqp.Connection
	processor   deliveryProcessor
	queueName   string
	concurrency int
	stopChannel chan struct{}
	stopOnce    sync.Once
	logger      *zap.Logger
}

func NewConsumer(conn *amqp.Connection, processor *Processor, queueName string, concurrency int, logger *zap.Logger) *Consumer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Consumer{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		concurrency: concurrency,
		stopChannel: make(chan struct{}),
		logger:      logger.Named("InboundConsumer"),
	}
}

// StartConsuming blocks until Stop is called or the delivery channel closes.
func (c *Consumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer: failed to open RabbitMQ channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to declare queue '%s': %w", c.queueName, err)
	}

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("consumer: failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"galgame-consumer",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to register consumer: %w", err)
	}
	c.logger.Info("Waiting for inbound messages", zap.String("queue", q.Name), zap.Int("workers", c.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.work(worker, msgs)
		}(i)
	}
	wg.Wait()
	return nil
}

func (c *Consumer) work(worker int, msgs <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Info("Delivery channel closed", zap.Int("worker", worker))
				return
			}
			c.handle(d)
		case <-c.stopChannel:
			return
		}
	}
}

// handle acks every processed delivery; malformed ones are dropped without requeue.
func (c *Consumer) handle(d amqp.Delivery) {
	err := c.processor.Process(context.Background(), d.Body)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedMessage):
		c.logger.Warn("Malformed message rejected", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("Nack failed", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(nackErr))
		}
		return
	default:
		// the turn already ran; redelivery would replay it
		c.logger.Error("Message processing failed", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("Ack failed", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(ackErr))
	}
}

// Stop makes StartConsuming return once in-flight messages finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping consumer")
		close(c.stopChannel)
	})
}
