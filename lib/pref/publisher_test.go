package pref

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublisherDeliversToSubscribers(t *testing.T) {
	p := NewPublisher[string]()
	a := &recordingSubscriber[string]{}
	b := &recordingSubscriber[string]{}

	p.Subscribe(a)
	p.Subscribe(b)
	assert.Equal(t, 2, p.Publish("x"))

	assert.Equal(t, []string{"x"}, a.Values())
	assert.Equal(t, []string{"x"}, b.Values())
}

func TestPublisherSubscribeIsIdempotent(t *testing.T) {
	p := NewPublisher[int32]()
	a := &recordingSubscriber[int32]{}

	p.Subscribe(a)
	p.Subscribe(a)
	assert.Equal(t, 1, p.Len())

	p.Publish(1)
	assert.Equal(t, 1, a.Count())
}

func TestPublisherUnsubscribeUnknown(t *testing.T) {
	p := NewPublisher[bool]()
	a := &recordingSubscriber[bool]{}

	assert.NotPanics(t, func() {
		p.Unsubscribe(a)
		p.Unsubscribe(nil)
	})
	assert.Equal(t, 0, p.Publish(true))
}

func TestPublisherTwoSubscribersOneLeaves(t *testing.T) {
	p := NewPublisher[string]()
	a := &recordingSubscriber[string]{}
	b := &recordingSubscriber[string]{}
	p.Subscribe(a)
	p.Subscribe(b)

	p.Unsubscribe(a)
	p.Publish("only b")

	assert.Empty(t, a.Values())
	assert.Equal(t, []string{"only b"}, b.Values())
}

func TestPublisherDeliveryCountMatchesSubscribedPublishes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPublisher[int]()

	const n = 5
	subs := make([]*recordingSubscriber[int], n)
	subscribed := make([]bool, n)
	expected := make([]int, n)
	for i := range subs {
		subs[i] = &recordingSubscriber[int]{}
	}

	for step := 0; step < 1000; step++ {
		i := rng.Intn(n)
		switch rng.Intn(3) {
		case 0:
			p.Subscribe(subs[i])
			subscribed[i] = true
		case 1:
			p.Unsubscribe(subs[i])
			subscribed[i] = false
		default:
			p.Publish(step)
			for j := range subs {
				if subscribed[j] {
					expected[j]++
				}
			}
		}
	}

	for i := range subs {
		assert.Equal(t, expected[i], subs[i].Count(), "subscriber %d", i)
	}
}

func TestPublisherSubscriberLeavesDuringPublish(t *testing.T) {
	p := NewPublisher[string]()
	var self Subscriber[string]
	calls := 0
	self = NewSubscriber(func(string) {
		calls++
		p.Unsubscribe(self)
	})
	p.Subscribe(self)

	p.Publish("a")
	p.Publish("b")
	assert.Equal(t, 1, calls)
}

func TestNewSubscriberHandlesAreDistinct(t *testing.T) {
	fn := func(string) {}
	a := NewSubscriber(fn)
	b := NewSubscriber(fn)

	p := NewPublisher[string]()
	p.Subscribe(a)
	p.Subscribe(b)
	assert.Equal(t, 2, p.Len())
	assert.True(t, p.Contains(a))

	p.Unsubscribe(a)
	assert.False(t, p.Contains(a))
	assert.True(t, p.Contains(b))
}
