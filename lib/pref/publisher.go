package pref

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/prefkv/lib/common"
)

// Subscriber receives value changes. Subscribers are compared by identity,
// implementations should be pointers.
type Subscriber[T any] interface {
	OnChanged(value T)
}

type subscriberFunc[T any] struct {
	fn func(T)
}

func (s *subscriberFunc[T]) OnChanged(value T) {
	s.fn(value)
}

// NewSubscriber wraps fn. Keep the returned handle to unsubscribe later.
func NewSubscriber[T any](fn func(T)) Subscriber[T] {
	return &subscriberFunc[T]{fn: fn}
}

// Publisher fans a value out to a set of subscribers.
//
// Thread-safety: All methods are safe for concurrent use. Publish calls the
// subscribers of a snapshot without holding any lock, so subscribers may
// subscribe or unsubscribe from within OnChanged.
type Publisher[T any] struct {
	subscribers *xsync.MapOf[Subscriber[T], struct{}]
}

func NewPublisher[T any]() *Publisher[T] {
	return &Publisher[T]{
		subscribers: xsync.NewMapOf[Subscriber[T], struct{}](),
	}
}

// Subscribe adds s. Adding the same subscriber twice has no effect.
func (p *Publisher[T]) Subscribe(s Subscriber[T]) {
	if s == nil {
		return
	}
	p.subscribers.Store(s, struct{}{})
}

// Unsubscribe removes s. Removing an unknown subscriber is a no-op.
func (p *Publisher[T]) Unsubscribe(s Subscriber[T]) {
	if s == nil {
		return
	}
	p.subscribers.Delete(s)
}

// Contains reports whether s is subscribed
func (p *Publisher[T]) Contains(s Subscriber[T]) bool {
	if s == nil {
		return false
	}
	_, ok := p.subscribers.Load(s)
	return ok
}

// Len returns the number of subscribers
func (p *Publisher[T]) Len() int {
	return p.subscribers.Size()
}

// Publish delivers value to every subscriber once, in no particular order,
// and returns the number of deliveries.
func (p *Publisher[T]) Publish(value T) int {
	var snapshot []Subscriber[T]
	p.subscribers.Range(func(s Subscriber[T], _ struct{}) bool {
		snapshot = append(snapshot, s)
		return true
	})
	for _, s := range snapshot {
		s.OnChanged(value)
	}
	common.Publishes.Inc()
	return len(snapshot)
}
