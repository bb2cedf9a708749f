package mediatest

import (
	"slices"
	"strings"
	"sync"
)

// EventLog records backend calls in order.
type EventLog struct {
	mu     sync.Mutex
	events []string
}

// Add appends an event name.
func (l *EventLog) Add(event string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

// Events returns a snapshot of the recorded events.
func (l *EventLog) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events)
}

// Index returns the position of the first event equal to name, or -1.
func (l *EventLog) Index(name string) int {
	return slices.Index(l.Events(), name)
}

// Count reports how many events equal name.
func (l *EventLog) Count(name string) int {
	n := 0
	for _, e := range l.Events() {
		if e == name {
			n++
		}
	}
	return n
}

// Filter returns events with the given prefix, in order.
func (l *EventLog) Filter(prefix string) []string {
	var out []string
	for _, e := range l.Events() {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
