package engagement

import "sync"

// Signal is a named, in-process broadcast source. Delivery is synchronous on
// the publishing goroutine, in subscription order.
type Signal[T any] struct {
	name string

	mu   sync.Mutex
	next uint64
	subs []signalSub[T]
}

type signalSub[T any] struct {
	id uint64
	fn func(T)
}

// NewSignal creates an empty Signal.
func NewSignal[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

// Name returns the signal name.
func (s *Signal[T]) Name() string {
	return s.name
}

// Subscribe registers fn and returns the handle that releases it.
func (s *Signal[T]) Subscribe(fn func(T)) Subscription {
	if fn == nil {
		return noopSubscription{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.subs = append(s.subs, signalSub[T]{id: id, fn: fn})
	return &signalSubscription[T]{signal: s, id: id}
}

// Publish delivers v to every current subscriber.
func (s *Signal[T]) Publish(v T) {
	s.mu.Lock()
	subs := append([]signalSub[T](nil), s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of live subscriptions.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Signal[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

type signalSubscription[T any] struct {
	signal *Signal[T]
	id     uint64
	once   sync.Once
}

func (s *signalSubscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.signal.remove(s.id)
	})
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

// subscriptions collects handles so they can be released together.
type subscriptions struct {
	mu   sync.Mutex
	list []Subscription
}

func (s *subscriptions) add(sub Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	s.list = append(s.list, sub)
	s.mu.Unlock()
}

func (s *subscriptions) release() {
	s.mu.Lock()
	list := s.list
	s.list = nil
	s.mu.Unlock()
	for _, sub := range list {
		sub.Unsubscribe()
	}
}
