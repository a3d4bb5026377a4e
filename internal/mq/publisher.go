package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunTrigger  MessageType = "run.trigger"
	MessageTypeRunFinished MessageType = "run.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// RunTriggerPayload — запрос на запуск pipeline.
type RunTriggerPayload struct {
	// ScheduledAt — логический слот. Нулевой — текущий момент.
	ScheduledAt time.Time `json:"scheduled_at"`

	// RequestedBy — кто запросил запуск (для логов).
	RequestedBy string `json:"requested_by,omitempty"`
}

// RunFinishedPayload — итог run.
type RunFinishedPayload struct {
	RunID       uuid.UUID `json:"run_id"`
	Pipeline    string    `json:"pipeline"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunTrigger публикует запрос на запуск pipeline.
// Потребитель: daemon.
func (p *Publisher) PublishRunTrigger(ctx context.Context, payload RunTriggerPayload) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKeyTrigger, NewMessage(MessageTypeRunTrigger, payload))
}

// PublishRunFinished публикует итог run.
func (p *Publisher) PublishRunFinished(ctx context.Context, payload RunFinishedPayload) error {
	return p.Publish(ctx, ExchangeRuns, RoutingKeyFinished, NewMessage(MessageTypeRunFinished, payload))
}
