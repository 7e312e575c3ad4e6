package channel

import "sync"

type subscription struct {
	id      uint64
	handler PushHandler
}

// Subscriptions is a topic keyed registry of push handlers shared by the
// channel implementations.
type Subscriptions struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
}

// Add registers handler for topic. The returned function removes it and is
// safe to call more than once.
func (s *Subscriptions) Add(topic string, handler PushHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[string][]subscription)
	}
	s.nextID++
	id := s.nextID
	s.handlers[topic] = append(s.handlers[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(topic, id) })
	}
}

func (s *Subscriptions) remove(topic string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.handlers[topic]
	for i, sub := range subs {
		if sub.id == id {
			s.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(s.handlers[topic]) == 0 {
		delete(s.handlers, topic)
	}
}

// Deliver calls every handler for topic in registration order and reports
// how many ran. Handlers run without the lock held.
func (s *Subscriptions) Deliver(topic string, args Args) int {
	s.mu.RLock()
	subs := make([]subscription, len(s.handlers[topic]))
	copy(subs, s.handlers[topic])
	s.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(args)
	}
	return len(subs)
}

// Clear drops every handler.
func (s *Subscriptions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = nil
}
