// Package events fans the orchestrator's status stream out to any number of
// listeners.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/narworks/muhasebe-asistani-sub000/internal/models"
)

// DefaultSubscriberBuffer is the per-listener queue length.
const DefaultSubscriberBuffer = 64

// Broker is the single consumer of the orchestrator's event channel. It
// delivers every event to each subscriber in order. A subscriber whose queue
// is full misses events rather than stalling the scan.
type Broker struct {
	buffer int
	logger *slog.Logger

	mu       sync.Mutex
	subs     map[uint64]*subscriber
	nextID   uint64
	progress *models.Event
	state    *models.Event
}

type subscriber struct {
	ch      chan models.Event
	dropped int
}

// NewBroker creates a Broker.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broker{
		buffer: buffer,
		logger: logger.With("component", "events"),
		subs:   make(map[uint64]*subscriber),
	}
}

// Run drains src until it is closed or ctx is done.
func (b *Broker) Run(ctx context.Context, src <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-src:
			if !ok {
				return
			}
			b.Publish(ev)
		}
	}
}

// Publish delivers ev to every subscriber and remembers the latest progress
// and scan-state events.
func (b *Broker) Publish(ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev.Type {
	case models.EventProgress:
		e := ev
		b.progress = &e
	case models.EventScanState:
		e := ev
		b.state = &e
	}

	for id, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped++
			if s.dropped == 1 || s.dropped%100 == 0 {
				b.logger.Warn("slow event subscriber, dropping events", "subscriber", id, "dropped", s.dropped)
			}
		}
	}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel.
func (b *Broker) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	s := &subscriber{ch: make(chan models.Event, b.buffer)}
	b.subs[id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
}

// Latest returns the last progress and scan-state events, oldest first, so a
// reconnecting listener can render the current status straight away.
func (b *Broker) Latest() []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Event
	if b.progress != nil {
		out = append(out, *b.progress)
	}
	if b.state != nil {
		out = append(out, *b.state)
	}
	if len(out) == 2 && out[1].Seq < out[0].Seq {
		out[0], out[1] = out[1], out[0]
	}
	return out
}

// Subscribers returns the number of active listeners.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
