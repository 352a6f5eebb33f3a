package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kazz187/taskdigest/pkg/panicerr"
)

type State int32

const (
	StateIdle State = iota
	StateWaiting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	}
	return "unknown"
}

// NextTrigger returns the first instant at hour:00:00 strictly ahead of the
// current hour in now's location: today when now is before hour, tomorrow
// otherwise.
func NextTrigger(now time.Time, hour int) time.Time {
	y, m, d := now.Date()
	if now.Hour() >= hour {
		d++
	}
	return time.Date(y, m, d, hour, 0, 0, 0, now.Location())
}

// FireFunc runs the pipeline for the trigger instant that just arrived.
type FireFunc func(ctx context.Context, trigger time.Time) error

type Options struct {
	Hour     int
	Location *time.Location
	// WakeInterval bounds a single sleep so that clock jumps are noticed.
	WakeInterval time.Duration
	Clock        Clock
}

type Scheduler struct {
	fire  FireFunc
	hour  int
	loc   *time.Location
	wake  time.Duration
	clock Clock

	next  atomic.Pointer[time.Time]
	state atomic.Int32
}

func New(fire FireFunc, opts Options) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.WakeInterval <= 0 {
		opts.WakeInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &Scheduler{
		fire:  fire,
		hour:  opts.Hour,
		loc:   opts.Location,
		wake:  opts.WakeInterval,
		clock: opts.Clock,
	}
}

// Next returns the pending trigger instant, or nil when idle.
func (s *Scheduler) Next() *time.Time {
	return s.next.Load()
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start waits for each daily trigger and fires it until ctx is canceled. A
// failed run is logged and the next day is scheduled as usual. Start returns
// ctx's error and leaves the scheduler idle.
func (s *Scheduler) Start(ctx context.Context) error {
	defer func() {
		s.next.Store(nil)
		s.state.Store(int32(StateIdle))
	}()

	next := NextTrigger(s.clock.Now().In(s.loc), s.hour)
	for {
		s.next.Store(&next)
		s.state.Store(int32(StateWaiting))
		slog.InfoContext(ctx, "scheduler: waiting", "next_trigger", next)

		if !s.waitUntil(ctx, next) {
			slog.InfoContext(ctx, "scheduler: stopped")
			return ctx.Err()
		}

		fired := next
		err := panicerr.Call(func() error { return s.fire(ctx, fired) })
		if err != nil {
			slog.ErrorContext(ctx, "scheduler: run failed, keeping the daily schedule", "trigger", fired, "error", err)
		}

		// Counting from the fired instant keeps pipeline latency from
		// shifting the schedule.
		next = time.Date(fired.Year(), fired.Month(), fired.Day()+1, s.hour, 0, 0, 0, s.loc)
		if now := s.clock.Now(); !next.After(now) {
			slog.WarnContext(ctx, "scheduler: missed triggers, skipping ahead", "missed", next)
			next = NextTrigger(now.In(s.loc), s.hour)
		}
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "scheduler: stopped")
			return ctx.Err()
		}
	}
}

// waitUntil sleeps in slices of at most the wake interval, recomputing the
// remaining time after every wake. It reports false when ctx ends first.
func (s *Scheduler) waitUntil(ctx context.Context, deadline time.Time) bool {
	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-s.clock.After(min(remaining, s.wake)):
		}
	}
}
