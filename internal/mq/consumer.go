package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrPermanent — обработка сообщения невозможна в принципе.
// Такое сообщение уходит в DLQ без повторной доставки.
var ErrPermanent = errors.New("permanent message failure")

// Handler — функция обработки сообщения.
//
// nil — ack; ошибка с ErrPermanent — nack в DLQ; иначе — nack с requeue.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенный конверт.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer потребляет сообщения из очереди RabbitMQ.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество неподтверждённых сообщений (default: 1).
	Prefetch int
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start запускает потребление и блокируется до отмены ctx или Stop.
// После разрыва соединения потребление возобновляется на новом канале.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
		} else {
			c.logger.Info("consumer started", "queue", c.queue)
			err = c.processDeliveries(ctx, deliveries)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, waiting for reconnect", "queue", c.queue, "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
		}
	}
}

// setupConsume настраивает QoS и подписывается на очередь.
func (c *Consumer) setupConsume() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// auto-ack выключен: подтверждаем после обработки
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}
	return deliveries, nil
}

func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery разбирает конверт, вызывает handler и подтверждает сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "queue", c.queue, "error", err)
		// Некорректное сообщение — в DLQ
		_ = raw.Nack(false, false)
		return
	}

	c.logger.Debug("received message", "queue", c.queue, "message_id", msg.ID, "type", msg.Type)

	err := c.handler(ctx, &Delivery{Message: msg, Raw: raw})
	switch {
	case err == nil:
		_ = raw.Ack(false)
	case errors.Is(err, ErrPermanent):
		c.logger.Warn("message rejected", "queue", c.queue, "message_id", msg.ID, "error", err)
		_ = raw.Nack(false, false)
	default:
		c.logger.Error("handler failed", "queue", c.queue, "message_id", msg.ID, "error", err)
		_ = raw.Nack(false, true)
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// ParsePayload декодирует payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// После json.Unmarshal конверта payload — map[string]any
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("%w: unmarshal payload: %v", ErrPermanent, err)
	}
	return result, nil
}
