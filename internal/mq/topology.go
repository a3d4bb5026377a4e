package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeRuns Exchange = "stockpipe.runs"
	ExchangeDLQ  Exchange = "stockpipe.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsTrigger  Queue = "runs.trigger"
	QueueRunsFinished Queue = "runs.finished"
	QueueDLQRuns      Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyTrigger  RoutingKey = "trigger"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQRuns  RoutingKey = "runs"
)

type queueDecl struct {
	name Queue
	args amqp.Table
}

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology — полное описание exchanges, очередей и привязок.
var topology = struct {
	exchanges []Exchange
	queues    []queueDecl
	bindings  []binding
}{
	exchanges: []Exchange{ExchangeRuns, ExchangeDLQ},
	queues: []queueDecl{
		// runs.trigger — с DLQ: некорректные запросы не должны крутиться в очереди
		{QueueRunsTrigger, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},
		// runs.finished — для внешних потребителей (алерты, отчёты)
		{QueueRunsFinished, nil},
		{QueueDLQRuns, nil},
	},
	bindings: []binding{
		{QueueRunsTrigger, RoutingKeyTrigger, ExchangeRuns},
		{QueueRunsFinished, RoutingKeyFinished, ExchangeRuns},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	},
}

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology.exchanges {
			// durable, не auto-delete, не internal
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, q := range topology.queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range topology.bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Stockpipe RabbitMQ Topology:

    stockpipe.runs (direct)
    ├── runs.trigger [routing: trigger]
    │       Consumer: stockpipe daemon
    │       DLQ: dlq.runs
    └── runs.finished [routing: finished]
            Consumer: external subscribers

    stockpipe.dlq (direct)
    └── dlq.runs [routing: runs]
            Manual processing
  `
}
