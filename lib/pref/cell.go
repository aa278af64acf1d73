package pref

import (
	"sync"

	"github.com/ValentinKolb/prefkv/lib/dispatch"
)

// Cell caches the value of one key in a scope and fans changes out to its
// observers. A cell becomes ready with the first value it receives, either
// pushed by its provider or written through SetValue.
//
// Several handles in a scope can share a cell: the provider is created on
// every Attach and destroyed on the last Detach, it is subscribed while at
// least one observer exists.
//
// Writes are numbered. A pushed value that was read before the last write
// settled is dropped, and every write ends with a fresh push, so a stale read
// never overwrites a newer write.
//
// Thread-safety: All methods are safe for concurrent use. Pushed values are
// applied and published on the main dispatcher. Observers see values in the
// order they were applied only if that dispatcher runs tasks one at a time.
type Cell[T Value] struct {
	key      Key
	provider *Provider[T]
	main     dispatch.Dispatcher

	mu        sync.Mutex
	value     T
	hasValue  bool
	ready     chan struct{}
	readyOnce sync.Once

	// writes counts started writes, settled the finished ones
	writes  uint64
	settled uint64
	// lastSeq is the newest provider read seen
	lastSeq uint64

	// setMu serializes writes. It is released before publishing.
	setMu sync.Mutex

	observers *Publisher[T]

	// refMu guards the reference counts and the provider transitions they cause
	refMu    sync.Mutex
	attached int
}

func newCell[T Value](key Key, provider *Provider[T], main dispatch.Dispatcher) *Cell[T] {
	if main == nil {
		main = dispatch.Unconfined
	}
	return &Cell[T]{
		key:       key,
		provider:  provider,
		main:      main,
		ready:     make(chan struct{}),
		observers: NewPublisher[T](),
	}
}

// Key returns the key of the cell
func (c *Cell[T]) Key() Key {
	return c.key
}

// Provider returns the provider owned by the cell
func (c *Cell[T]) Provider() *Provider[T] {
	return c.provider
}

// Ready is closed once the cell holds a value
func (c *Cell[T]) Ready() <-chan struct{} {
	return c.ready
}

func (c *Cell[T]) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// GetValueBlocking returns the cached value. It fails with NotReady if the
// cell holds no value yet and never reads the store.
func (c *Cell[T]) GetValueBlocking() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasValue {
		var zero T
		return zero, notReady(c.key)
	}
	return c.value, nil
}

// OnChanged implements Subscriber. The value counts as read now.
func (c *Cell[T]) OnChanged(value T) {
	c.onStampedChange(value, c.stamp(), 0)
}

func (c *Cell[T]) stamp() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

func (c *Cell[T]) onStampedChange(value T, stamp, seq uint64) {
	c.main.Dispatch(func() {
		c.apply(value, stamp, seq)
	})
}

// apply stores value and publishes it unless it equals the cached one. It
// runs on the main dispatcher. Values read before a newer read or before the
// last write settled are dropped. A seq of 0 is not ordered.
func (c *Cell[T]) apply(value T, stamp, seq uint64) {
	c.mu.Lock()
	if seq != 0 {
		if seq <= c.lastSeq {
			c.mu.Unlock()
			return
		}
		c.lastSeq = seq
	}
	if stamp != c.writes {
		c.mu.Unlock()
		return
	}
	changed := !c.hasValue || c.value != value
	c.value = value
	c.hasValue = true
	c.mu.Unlock()
	c.markReady()

	if changed {
		c.observers.Publish(value)
	}
}

// SetValue caches value, writes it to the store and publishes it. Writing the
// cached value again is a no-op. A failed write restores the previous value.
//
// The lock serializing writes is not held while publishing, so observers may
// call SetValue from OnChanged.
func (c *Cell[T]) SetValue(value T) error {
	c.setMu.Lock()

	c.mu.Lock()
	prev, hadValue := c.value, c.hasValue
	if hadValue && prev == value {
		c.mu.Unlock()
		c.setMu.Unlock()
		return nil
	}
	if !c.provider.IsInitialized() {
		c.mu.Unlock()
		c.setMu.Unlock()
		return notReady(c.key)
	}
	c.value = value
	c.hasValue = true
	c.writes++
	gen := c.writes
	c.mu.Unlock()

	err := c.provider.SetValue(value)

	c.mu.Lock()
	if err != nil {
		// pushes are dropped while a write is in flight, the cache is still ours
		c.value, c.hasValue = prev, hadValue
	}
	c.settled = c.writes
	c.mu.Unlock()
	c.setMu.Unlock()

	if err == nil {
		c.markReady()
		c.main.Dispatch(func() {
			c.publishWrite(value, gen)
		})
	}
	// catch up with external changes dropped during the write
	c.provider.refresh()
	return err
}

// publishWrite publishes the value of write gen unless a newer write or push
// replaced it first
func (c *Cell[T]) publishWrite(value T, gen uint64) {
	c.mu.Lock()
	current := c.writes == gen && c.hasValue && c.value == value
	c.mu.Unlock()
	if current {
		c.observers.Publish(value)
	}
}

// --------------------------------------------------------------------------
// Store lifecycle
// --------------------------------------------------------------------------

// OnStoreCreated opens the store of the provider
func (c *Cell[T]) OnStoreCreated() error {
	return c.provider.OnCreate()
}

// OnStoreActivated subscribes the cell to its provider
func (c *Cell[T]) OnStoreActivated() {
	c.provider.Subscribe(c)
}

// OnStoreDeactivated unsubscribes the cell from its provider
func (c *Cell[T]) OnStoreDeactivated() {
	c.provider.Unsubscribe(c)
}

// OnStoreDestroyed tears the provider down
func (c *Cell[T]) OnStoreDestroyed() {
	c.provider.OnDestroy()
}

// --------------------------------------------------------------------------
// Reference counting
// --------------------------------------------------------------------------

// Attach registers a handle whose host was created
func (c *Cell[T]) Attach() error {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if err := c.OnStoreCreated(); err != nil {
		return err
	}
	c.attached++
	return nil
}

// Detach releases a handle. The last detach destroys the provider.
func (c *Cell[T]) Detach() {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if c.attached == 0 {
		return
	}
	c.attached--
	if c.attached == 0 {
		c.OnStoreDestroyed()
	}
}

// Observe adds an active observer. The first one subscribes the cell to its
// provider. Observing twice has no effect.
func (c *Cell[T]) Observe(o Subscriber[T]) {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if o == nil || c.observers.Contains(o) {
		return
	}
	c.observers.Subscribe(o)
	if c.observers.Len() == 1 {
		c.OnStoreActivated()
	}
}

// RemoveObserver removes an observer. The last one unsubscribes the cell from
// its provider.
func (c *Cell[T]) RemoveObserver(o Subscriber[T]) {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	if !c.observers.Contains(o) {
		return
	}
	c.observers.Unsubscribe(o)
	if c.observers.Len() == 0 {
		c.OnStoreDeactivated()
	}
}

// Observers returns the number of active observers
func (c *Cell[T]) Observers() int {
	return c.observers.Len()
}

// Attached returns the number of attached handles
func (c *Cell[T]) Attached() int {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	return c.attached
}

// shutdown tears down a still live provider when the scope closes
func (c *Cell[T]) shutdown() {
	c.refMu.Lock()
	defer c.refMu.Unlock()
	c.provider.Unsubscribe(c)
	c.provider.OnDestroy()
	c.attached = 0
}
