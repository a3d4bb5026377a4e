package notify

import (
	"context"

	"github.com/shaiso/Stockpipe/internal/mq"
)

// RunFinishedPublisher — публикация события run.finished (*mq.Publisher).
type RunFinishedPublisher interface {
	PublishRunFinished(ctx context.Context, payload mq.RunFinishedPayload) error
}

// MQNotifier публикует итог run в RabbitMQ.
type MQNotifier struct {
	publisher RunFinishedPublisher
}

// NewMQNotifier создаёт MQNotifier.
func NewMQNotifier(publisher RunFinishedPublisher) *MQNotifier {
	return &MQNotifier{publisher: publisher}
}

func (m *MQNotifier) Send(ctx context.Context, n Notification) error {
	return m.publisher.PublishRunFinished(ctx, mq.RunFinishedPayload{
		RunID:       n.RunID,
		Pipeline:    n.Pipeline,
		ScheduledAt: n.ScheduledAt,
		Status:      string(n.Status),
		FailedStage: n.FailedStage,
		Error:       n.Error,
		DurationMs:  n.Duration.Milliseconds(),
	})
}
