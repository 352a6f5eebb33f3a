package recorder

import (
	"context"
	"log/slog"

	"github.com/kazz187/taskdigest/internal/eventbus"
	"github.com/kazz187/taskdigest/internal/run"
)

// Recorder archives every finished run published on the bus.
type Recorder struct {
	eventBus *eventbus.Bus
	repo     run.Repository
}

func New(eventBus *eventbus.Bus, repo run.Repository) *Recorder {
	return &Recorder{
		eventBus: eventBus,
		repo:     repo,
	}
}

// Start archives runs until ctx ends. Events already queued when ctx ends
// are still archived before Start returns.
func (r *Recorder) Start(ctx context.Context) {
	subID, ch := r.eventBus.Subscribe(64)
	defer r.eventBus.Unsubscribe(subID)

	slog.Info("run recorder started")
	for {
		select {
		case <-ctx.Done():
			r.drain(ctx, ch)
			slog.Info("run recorder stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.archive(ctx, event)
		}
	}
}

func (r *Recorder) drain(ctx context.Context, ch <-chan *eventbus.Event) {
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.archive(ctx, event)
		default:
			return
		}
	}
}

func (r *Recorder) archive(ctx context.Context, event *eventbus.Event) {
	if event.Run == nil || !event.Run.Finished() {
		return
	}
	if err := r.repo.Create(context.WithoutCancel(ctx), event.Run); err != nil {
		slog.Error("run recorder: failed to archive run", "run_id", event.Run.ID, "error", err)
	}
}
