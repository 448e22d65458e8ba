package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/spbu-ds-practicum-2025/example-project/services/billpay-service/internal/domain"
)

const publishTimeout = 5 * time.Second

// RabbitMQPublisher publishes payment events to a topic exchange.
// It implements domain.EventPublisher.
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex // guards channel; amqp channels are not safe for concurrent publishes
	channel *amqp.Channel
}

// NewRabbitMQPublisher dials RabbitMQ and declares the durable topic exchange.
func NewRabbitMQPublisher(url, exchange, routingKey string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger := slog.Default()
	logger.Info("rabbitmq publisher initialized", "exchange", exchange, "routing_key", routingKey)

	return &RabbitMQPublisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// PublishPaymentCompleted publishes a billpayment.completed event for a committed entry.
func (p *RabbitMQPublisher) PublishPaymentCompleted(ctx context.Context, entry *domain.JournalEntry) error {
	event := NewPaymentCompletedEvent(entry, p.now())

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Type:         event.EventType,
			Timestamp:    p.now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}

	p.logger.Debug("payment event published",
		"event_id", event.EventID,
		"transaction_id", event.TransactionID,
		"account_id", event.AccountID)

	return nil
}

// Close closes the RabbitMQ channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("error closing channel", "error", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
