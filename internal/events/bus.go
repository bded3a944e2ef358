package events

import (
	"log"
	"sync"
	"time"
)

type Type string

const (
	DuelAccepted         Type = "duel.accepted"
	DuelDeclined         Type = "duel.declined"
	DuelCancelled        Type = "duel.cancelled"
	DuelCompleted        Type = "duel.completed"
	CompetitionAccepted  Type = "competition.accepted"
	CompetitionCancelled Type = "competition.cancelled"
	CompetitionCompleted Type = "competition.completed"
	GroupsMatched        Type = "matchmaking.paired"
)

// Event is a plain state-change notification. The notification/UI layer
// subscribes to these; the engine never pushes anything itself.
type Event struct {
	Type       Type              `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data"`
}

// Bus fans out engine events to in-process subscribers. Publish never blocks
// the caller; events are dropped with a log line if a subscriber falls behind.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	queue  chan Event
	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

func NewBus() *Bus {
	b := &Bus{
		queue: make(chan Event, 256),
		stop:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.dispatch()
	return b
}

func (b *Bus) dispatch() {
	defer b.wg.Done()
	for {
		select {
		case evt := <-b.queue:
			b.mu.Lock()
			subs := make([]chan Event, len(b.subs))
			copy(subs, b.subs)
			b.mu.Unlock()

			for _, ch := range subs {
				select {
				case ch <- evt:
				default:
					log.Printf("events: dropping %s, subscriber buffer full", evt.Type)
				}
			}
		case <-b.stop:
			return
		}
	}
}

// Subscribe registers a new subscriber channel with the given buffer size.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish enqueues an event for delivery. It is a no-op after Close.
func (b *Bus) Publish(t Type, data map[string]string) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}

	evt := Event{Type: t, OccurredAt: time.Now(), Data: data}
	select {
	case b.queue <- evt:
	default:
		log.Printf("events: dropping %s, queue full", t)
	}
}

// Close stops the dispatcher and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	b.wg.Wait()

	b.mu.Lock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}
