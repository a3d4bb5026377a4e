package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/mq"
)

// HandleTrigger обрабатывает сообщение run.trigger из очереди.
//
// Run запускается в фоне. Повторный запрос для активного слота
// подтверждается без запуска, остановленный координатор возвращает
// сообщение в очередь.
func (c *Coordinator) HandleTrigger(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.RunTriggerPayload](&delivery.Message)
	if err != nil {
		c.logger.Error("failed to parse run.trigger payload", "error", err)
		return err
	}

	slot := payload.ScheduledAt
	if slot.IsZero() {
		slot = c.now().Truncate(time.Second)
	}

	c.logger.Debug("received run.trigger event",
		"message_id", delivery.Message.ID,
		"slot", slot,
		"requested_by", payload.RequestedBy,
	)

	run, err := c.Submit(slot, domain.TriggerManual)
	if err != nil {
		if errors.Is(err, ErrRunAlreadyActive) {
			c.logger.Info("run for slot already active, skipping", "slot", slot)
			return nil
		}
		return err
	}

	c.logger.Info("run triggered from queue", "run_id", run.ID, "slot", slot)
	return nil
}
