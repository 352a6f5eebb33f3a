package eventbus

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/taskdigest/internal/run"
)

type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunSucceeded EventType = "run.succeeded"
	EventRunFailed    EventType = "run.failed"
)

type Event struct {
	ID        string
	Type      EventType
	Run       *run.Run
	CreatedAt time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan *Event
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]chan *Event),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish never blocks: subscribers with a full buffer miss the event.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// PublishRun publishes a snapshot of r so that later mutations by the
// publisher are not observed by subscribers.
func (b *Bus) PublishRun(eventType EventType, r *run.Run) {
	b.Publish(&Event{
		ID:        ulid.Make().String(),
		Type:      eventType,
		Run:       r.Clone(),
		CreatedAt: time.Now(),
	})
}
