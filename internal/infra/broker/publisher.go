// Package broker publishes snapshot lifecycle events to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Publisher is a port.EventPublisher over an AMQP topic exchange. Each event
// is routed as "<routingKey>.<event type>", e.g. "ledger.snapshot.published".
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *zap.Logger
}

// NewPublisher dials url and declares a durable topic exchange.
func NewPublisher(url, exchange, routingKey string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := &Publisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger,
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
		p.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return p, nil
}

// Publish sends ev as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, ev domain.SnapshotEvent) error {
	msg, err := NewMessage(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	key := RoutingKey(p.routingKey, ev.Type)
	if err := p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("event published",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", key),
		zap.String("session_id", ev.SessionID),
		zap.Uint64("seq", ev.Seq),
	)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey derives the per-event routing key.
func RoutingKey(base string, t domain.EventType) string {
	if base == "" {
		return string(t)
	}
	return base + "." + string(t)
}

// NewMessage builds the AMQP publishing for ev.
func NewMessage(ev domain.SnapshotEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         string(ev.Type),
		Timestamp:    ts,
		Headers: amqp.Table{
			"session_id": ev.SessionID,
			"seq":        int64(ev.Seq),
		},
		Body: body,
	}, nil
}
