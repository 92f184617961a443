package client

import (
	"log/slog"
	"sync"

	"github.com/lodhi7862/bringit-app/protocol"
)

// Handler processes one inbound event.
type Handler func(protocol.Event)

// EventAll subscribes a handler to every event type.
const EventAll protocol.EventType = "*"

type subscription struct {
	id int
	fn Handler
}

// Subscriptions is an ordered handler registry. Handlers subscribed to an
// event's exact type run first, in subscription order, followed by wildcard
// handlers. Safe for concurrent use.
type Subscriptions struct {
	mu       sync.Mutex
	nextID   int
	handlers map[protocol.EventType][]subscription
	log      *slog.Logger
}

// NewSubscriptions creates an empty registry.
func NewSubscriptions(log *slog.Logger) *Subscriptions {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriptions{
		handlers: make(map[protocol.EventType][]subscription),
		log:      log,
	}
}

// On registers a handler for the given event type and returns a function
// that removes exactly that handler. The returned function is idempotent.
func (s *Subscriptions) On(t protocol.EventType, fn Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.handlers[t] = append(s.handlers[t], subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.handlers[t]
		for i, sub := range list {
			if sub.id == id {
				s.handlers[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Dispatch delivers the event to exact-type handlers, then wildcard
// handlers. A panicking handler is recovered and logged; it never prevents
// delivery to the handlers after it.
func (s *Subscriptions) Dispatch(ev protocol.Event) {
	s.mu.Lock()
	list := make([]subscription, 0, len(s.handlers[ev.Type])+len(s.handlers[EventAll]))
	list = append(list, s.handlers[ev.Type]...)
	list = append(list, s.handlers[EventAll]...)
	s.mu.Unlock()

	for _, sub := range list {
		s.call(sub, ev)
	}
}

func (s *Subscriptions) call(sub subscription, ev protocol.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("event handler panicked", "type", ev.Type, "panic", r)
		}
	}()
	sub.fn(ev)
}
