package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskdigest/internal/eventbus"
	"github.com/kazz187/taskdigest/internal/run"
	"github.com/kazz187/taskdigest/internal/tasktree"
	"github.com/kazz187/taskdigest/pkg/cerr"
	"github.com/kazz187/taskdigest/pkg/clog"
	"github.com/kazz187/taskdigest/pkg/panicerr"
)

var errStopped = errors.New("digest: stopped before delivery")

// Synchronizer produces a fresh task tree for every call.
type Synchronizer interface {
	Synchronize(ctx context.Context) (*tasktree.Tree, error)
}

// Sender delivers one chunk of text to a destination.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

type Config struct {
	ScheduleTag    string
	ScheduledTitle string
	ActiveTitle    string
	ItemLimit      int
	PayloadLimit   int
	// SendInterval is the fixed pause between two consecutive chunks.
	SendInterval time.Duration
	Location     *time.Location
	// MentionID is mentioned at the top of scheduled digests when set.
	MentionID   string
	Destination string
}

type Request struct {
	Trigger run.Trigger
	// Limit overrides Config.ItemLimit when positive.
	Limit int
	// Destination overrides Config.Destination when set.
	Destination string
}

type Result struct {
	Run    *run.Run
	Chunks []string
}

type Pipeline struct {
	syncer   Synchronizer
	sender   Sender
	eventBus *eventbus.Bus
	cfg      Config
	renderer *Renderer
	now      func() time.Time
	sleep    func(time.Duration)

	// slot holds one token while a run is in flight so that deliveries
	// never interleave.
	slot chan struct{}
}

type Option func(*Pipeline)

func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Pipeline) { p.sleep = sleep }
}

func NewPipeline(syncer Synchronizer, sender Sender, eventBus *eventbus.Bus, cfg Config, opts ...Option) *Pipeline {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	p := &Pipeline{
		syncer:   syncer,
		sender:   sender,
		eventBus: eventBus,
		cfg:      cfg,
		renderer: NewRenderer(cfg.ScheduleTag, cfg.ItemLimit),
		now:      time.Now,
		sleep:    time.Sleep,
		slot:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes sync, classify, render, chunk and deliver once. Scheduled
// runs wait for an in-flight run to finish, giving up when ctx ends;
// on-demand runs are rejected with cerr.Aborted instead. A run stopped before
// delivery returns ctx.Err() and is not reported as failed. Once delivery has
// started it is carried out in full even if ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Limit < 0 {
		return nil, cerr.NewError(cerr.InvalidArgument, "limit must not be negative", nil)
	}
	switch req.Trigger {
	case run.TriggerScheduled:
		select {
		case p.slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	case run.TriggerOnDemand:
		select {
		case p.slot <- struct{}{}:
		default:
			return nil, cerr.NewError(cerr.Aborted, "another digest is being delivered", nil)
		}
	default:
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown trigger %q", req.Trigger), nil)
	}
	defer func() { <-p.slot }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rn := &run.Run{
		ID:          ulid.Make().String(),
		Trigger:     req.Trigger,
		Destination: req.Destination,
		Status:      run.StatusRunning,
		StartedAt:   p.now(),
	}
	if rn.Destination == "" {
		rn.Destination = p.cfg.Destination
	}

	ctx = clog.ContextWithSlog(ctx)
	clog.AddAttributes(ctx, map[string]any{
		"run_id":  rn.ID,
		"trigger": string(rn.Trigger),
	})
	p.publish(eventbus.EventRunStarted, rn)
	slog.InfoContext(ctx, "digest: run started", "destination", rn.Destination)

	chunks, err := p.execute(ctx, rn, req)
	rn.FinishedAt = p.now()
	if errors.Is(err, errStopped) {
		slog.InfoContext(ctx, "digest: run stopped before delivery")
		return &Result{Run: rn}, ctx.Err()
	}
	if err != nil {
		rn.Status = run.StatusFailed
		rn.Error = err.Error()
		p.publish(eventbus.EventRunFailed, rn)
		clog.AddError(ctx, err)
		slog.ErrorContext(ctx, "digest: run failed", "delivered", rn.Delivered, "error", err)
		return &Result{Run: rn, Chunks: chunks}, err
	}
	rn.Status = run.StatusSucceeded
	p.publish(eventbus.EventRunSucceeded, rn)
	slog.InfoContext(ctx, "digest: run succeeded",
		"tasks", rn.TaskCount,
		"chunks", rn.ChunkCount,
		"duration", rn.Duration(),
	)
	return &Result{Run: rn, Chunks: chunks}, nil
}

func (p *Pipeline) execute(ctx context.Context, rn *run.Run, req Request) ([]string, error) {
	var chunks []string
	err := panicerr.Call(func() error {
		tree, err := p.syncer.Synchronize(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return errStopped
			}
			return err
		}
		rn.TaskCount = tree.Len()
		rn.Orphans = len(tree.Orphans())

		now := p.now().In(p.cfg.Location)
		chunks = p.Compose(tree, now, req)
		rn.Chunks = chunks
		rn.ChunkCount = len(chunks)
		return nil
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, errStopped) && cerr.CodeOf(err) == cerr.Unknown {
			err = cerr.NewError(cerr.Internal, "digest pipeline failed", err)
		}
		return nil, err
	}
	return chunks, p.deliver(context.WithoutCancel(ctx), rn, chunks)
}

// Compose renders the digest for tree as payload-sized chunks.
func (p *Pipeline) Compose(tree *tasktree.Tree, now time.Time, req Request) []string {
	renderer := p.renderer
	if req.Limit > 0 {
		renderer = renderer.WithLimit(req.Limit)
	}
	buckets := Classify(tree, now, ClassifyOptions{
		ScheduleTag:    p.cfg.ScheduleTag,
		ScheduledTitle: p.cfg.ScheduledTitle,
		ActiveTitle:    p.cfg.ActiveTitle,
	})
	lines := p.preamble(req.Trigger, now)
	lines = append(lines, renderer.Render(buckets, now)...)
	return Chunk(lines, p.cfg.PayloadLimit)
}

func (p *Pipeline) preamble(trigger run.Trigger, now time.Time) []string {
	day := now.Format("Jan 02")
	if trigger == run.TriggerScheduled {
		var lines []string
		if p.cfg.MentionID != "" {
			lines = append(lines, fmt.Sprintf("<@%s>", p.cfg.MentionID))
		}
		return append(lines, "# Daily Reminder "+day)
	}
	return []string{"# Tasks " + day}
}

// deliver sends chunks strictly in order with a fixed pause between them.
func (p *Pipeline) deliver(ctx context.Context, rn *run.Run, chunks []string) error {
	for i, chunk := range chunks {
		if i > 0 && p.cfg.SendInterval > 0 {
			p.sleep(p.cfg.SendInterval)
		}
		if err := p.sender.Send(ctx, rn.Destination, chunk); err != nil {
			return cerr.NewError(cerr.Unavailable, fmt.Sprintf("failed to deliver chunk %d of %d", i+1, len(chunks)), err)
		}
		rn.Delivered++
	}
	return nil
}

func (p *Pipeline) publish(t eventbus.EventType, rn *run.Run) {
	if p.eventBus == nil {
		return
	}
	p.eventBus.PublishRun(t, rn)
}
