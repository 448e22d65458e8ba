package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/config"
	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/events"
)

// PaymentWriter stores projected payments.
type PaymentWriter interface {
	InsertPayment(ctx context.Context, p *Payment) error
}

// errMalformed marks deliveries that can never be processed.
var errMalformed = errors.New("malformed event")

// RabbitMQConsumer consumes payment-completed events from RabbitMQ
type RabbitMQConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	config  config.RabbitMQConfig
	writer  PaymentWriter
	logger  *slog.Logger
}

// NewRabbitMQConsumer connects and declares the exchange, queue and binding.
func NewRabbitMQConsumer(cfg config.RabbitMQConfig, writer PaymentWriter, logger *slog.Logger) (*RabbitMQConsumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	closeAll := func() {
		channel.Close()
		conn.Close()
	}

	if err := channel.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(queue.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("rabbitmq consumer initialized",
		"exchange", cfg.Exchange, "queue", cfg.Queue, "routing_key", cfg.RoutingKey)

	return &RabbitMQConsumer{
		conn:    conn,
		channel: channel,
		config:  cfg,
		writer:  writer,
		logger:  logger,
	}, nil
}

// Start consumes until ctx is cancelled or the delivery channel closes.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.config.Queue, // queue
		"",             // consumer tag (auto-generated)
		false,          // auto-ack (we'll ack manually)
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("rabbitmq consumer started", "queue", c.config.Queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, stopping rabbitmq consumer")
			return nil

		case msg, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.settle(msg, handleMessage(ctx, c.writer, msg.Body))
		}
	}
}

// settle acks processed deliveries, drops malformed ones and requeues the rest.
func (c *RabbitMQConsumer) settle(msg amqp.Delivery, err error) {
	switch {
	case err == nil:
		msg.Ack(false)
	case errors.Is(err, errMalformed):
		c.logger.Error("dropping malformed event", "message_id", msg.MessageId, "error", err)
		msg.Nack(false, false)
	default:
		c.logger.Warn("error handling event, requeueing", "message_id", msg.MessageId, "error", err)
		msg.Nack(false, true)
	}
}

// handleMessage decodes one delivery body and writes it to the projection.
func handleMessage(ctx context.Context, writer PaymentWriter, body []byte) error {
	var event events.PaymentCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	payment, err := PaymentFromEvent(&event)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	if err := writer.InsertPayment(ctx, payment); err != nil {
		return err
	}
	return nil
}

// Close closes the RabbitMQ channel and connection
func (c *RabbitMQConsumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
