package agent

import (
	"sync"
	"time"
)

type EventType string

const (
	EventConnectionState EventType = "connection-state"
	EventReconnecting    EventType = "reconnecting"
	EventReconnectFailed EventType = "reconnect-failed"
	EventAuthError       EventType = "auth-error"
	EventPrinterDetected EventType = "printer-detected"
	EventPrinterStatus   EventType = "printer-status"
	EventJob             EventType = "job"
	EventInfo            EventType = "info"
	EventWarning         EventType = "warning"
	EventError           EventType = "error"
)

// Event is what the shell consumes. Data carries the event-specific payload
// (a queue entry, a descriptor, a reconnect attempt).
type Event struct {
	Type    EventType
	Message string
	Data    any
	Time    time.Time
}

type Subscriber func(Event)

// Bus fans events out to the shell's subscribers. Delivery is synchronous
// and in subscription order; subscribers must not block.
type Bus struct {
	mu   sync.Mutex
	subs []Subscriber
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

func (b *Bus) Publish(t EventType, message string, data any) {
	b.mu.Lock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.Unlock()

	ev := Event{Type: t, Message: message, Data: data, Time: time.Now()}
	for _, s := range subs {
		s(ev)
	}
}
