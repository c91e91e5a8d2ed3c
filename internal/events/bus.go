// Package events is the in-process pub/sub bus carrying transfer lifecycle
// notifications from the pipeline to live consumers such as the websocket
// feed. Delivery is non-blocking: a slow subscriber loses events rather than
// stalling the pipeline.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transfer lifecycle event types.
const (
	TypeTransferPersisted  = "transfer.persisted"
	TypeTransferLinked     = "transfer.linked"
	TypeTransferDeadLetter = "transfer.deadletter"
	TypeObserverState      = "observer.state"
)

// Event is one bus notification. Data is the domain payload, typically a
// *model.CrossChainTransfer or a status snapshot.
type Event struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Subject string      `json:"subject,omitempty"`
	Time    time.Time   `json:"time"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON serializes the event for wire delivery.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Bus fans events out to subscribers. Channels are buffered; Publish never
// blocks.
type Bus struct {
	mu         sync.RWMutex
	byType     map[string][]chan *Event
	all        []chan *Event
	bufferSize int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		byType:     make(map[string][]chan *Event),
		bufferSize: 100,
	}
}

// Subscribe returns a channel receiving events of the given types, or every
// event when no type is named. The caller must Unsubscribe when done.
func (b *Bus) Subscribe(types ...string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, b.bufferSize)
	if len(types) == 0 {
		b.all = append(b.all, ch)
		return ch
	}
	for _, t := range types {
		b.byType[t] = append(b.byType[t], ch)
	}
	return ch
}

// Unsubscribe detaches and closes the channel.
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t, subs := range b.byType {
		b.byType[t] = removeChan(subs, ch)
	}
	b.all = removeChan(b.all, ch)
	close(ch)
}

func removeChan(subs []chan *Event, ch chan *Event) []chan *Event {
	out := subs[:0]
	for _, s := range subs {
		if s != ch {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers an event to every matching subscriber without blocking.
func (b *Bus) Publish(e *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.byType[e.Type] {
		select {
		case ch <- e:
		default:
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit builds and publishes an event in one call.
func (b *Bus) Emit(eventType, subject string, data interface{}) {
	b.Publish(&Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Subject: subject,
		Time:    time.Now().UTC(),
		Data:    data,
	})
}

// SubscriberCount reports the number of attached subscriber channels.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.all)
	for _, subs := range b.byType {
		n += len(subs)
	}
	return n
}
