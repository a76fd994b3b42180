package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/pkg/config"
)

// Routing keys for timetable events.
const (
	TimetableGenerated         = "timetable.generated"
	TimetableConflictsDetected = "timetable.conflicts_detected"
)

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Data       interface{} `json:"data"`
}

// NewEnvelope stamps data with a fresh id and the current time.
func NewEnvelope(eventType string, data interface{}) Envelope {
	return Envelope{ID: uuid.NewString(), Type: eventType, OccurredAt: time.Now().UTC(), Data: data}
}

// AMQPPublisher sends events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAMQPPublisher dials RabbitMQ and declares the configured exchange.
func NewAMQPPublisher(cfg config.EventsConfig, logger *zap.Logger) (*AMQPPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AMQPPublisher{conn: conn, channel: ch, exchange: cfg.Exchange, timeout: timeout, logger: logger}, nil
}

// Publish sends data under routingKey.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, data interface{}) error {
	envelope := NewEnvelope(routingKey, data)
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID,
		Timestamp:    envelope.OccurredAt,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	p.logger.Debug("event published", zap.String("routing_key", routingKey), zap.String("event_id", envelope.ID))
	return nil
}

// Close shuts the channel and connection down.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
