// Package events fans sweep progress out to API subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// SubscriberBuffer is the channel capacity of a subscription. Events
	// beyond it are dropped for that subscriber.
	SubscriberBuffer = 64
	// ReplaySize is how many of the latest events of the current sweep a new
	// subscriber receives first.
	ReplaySize = 8
)

// EventHub is a non-blocking pub/sub hub serving one sweep. Subscribers
// joining mid-sweep first get the sweep start and the latest events, and
// every subscription ends when the hub is closed. A nil *EventHub drops
// everything.
type EventHub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	started *Event
	recent  []Event
	closed  bool
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel receiving every event from now on, preceded by
// the replay. On a closed hub the channel holds the replay and is closed.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, SubscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started != nil {
		ch <- *h.started
	}
	for _, ev := range h.recent {
		ch <- ev
	}
	if h.closed {
		close(ch)
		return ch
	}
	h.subs[ch] = struct{}{}
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of active subscriptions.
func (h *EventHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	if name == SweepStarted {
		h.started = &msg
		h.recent = h.recent[:0]
	} else {
		h.recent = append(h.recent, msg)
		if len(h.recent) > ReplaySize {
			h.recent = h.recent[len(h.recent)-ReplaySize:]
		}
	}

	for ch := range h.subs {
		// Non-blocking send; drop if subscriber is slow
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", name).Debug("subscriber is slow, event dropped")
		}
	}
}

// Close ends every subscription. Later events are dropped.
func (h *EventHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
