package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the per-subscriber channel capacity
const subscriberBuffer = 64

type subscriber struct {
	ch     chan EventWithData
	filter map[EventType]bool // nil means all types
}

// Bus fans events out to subscribers. Emit never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	log    zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]*subscriber),
		log:  log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers for the given event types (all types when none are
// given). The returned function unsubscribes and closes the channel.
func (b *Bus) Subscribe(types ...EventType) (<-chan EventWithData, func()) {
	sub := &subscriber{ch: make(chan EventWithData, subscriberBuffer)}
	if len(types) > 0 {
		sub.filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.filter[t] = true
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Emit publishes data from module to every matching subscriber.
func (b *Bus) Emit(module string, data EventData) {
	if data == nil {
		return
	}
	event := EventWithData{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			dropped++
		}
	}

	ev := b.log.Debug()
	if dropped > 0 {
		ev = b.log.Warn().Int("dropped", dropped)
	}
	ev.Str("event_type", string(event.Type)).Str("module", module).Msg("Event emitted")
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
