package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/taskdigest/internal/eventbus"
	"github.com/kazz187/taskdigest/internal/run"
)

type Notifier interface {
	SendToAll(ctx context.Context, payload *NotificationPayload) int
}

// Dispatcher alerts registered browsers whenever a digest run fails.
type Dispatcher struct {
	eventBus *eventbus.Bus
	notifier Notifier
}

func NewDispatcher(eventBus *eventbus.Bus, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		notifier: notifier,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(64)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Type == eventbus.EventRunFailed && event.Run != nil {
				d.handleRunFailed(context.WithoutCancel(ctx), event.Run)
			}
		}
	}
}

func (d *Dispatcher) handleRunFailed(ctx context.Context, r *run.Run) {
	title := "Daily digest failed"
	if r.Trigger == run.TriggerOnDemand {
		title = "Task digest failed"
	}
	sent := d.notifier.SendToAll(ctx, &NotificationPayload{
		Title: title,
		Body:  failureBody(r),
		URL:   "/api/runs/" + r.ID,
		Tag:   r.ID,
	})
	slog.Info("push dispatcher: failure alert sent", "run_id", r.ID, "recipients", sent)
}

func failureBody(r *run.Run) string {
	if r.Delivered > 0 {
		return fmt.Sprintf("Stopped after %d of %d messages: %s", r.Delivered, r.ChunkCount, r.Error)
	}
	return r.Error
}
