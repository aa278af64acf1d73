package pref

import (
	"sync"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/ValentinKolb/prefkv/lib/dispatch"
	"github.com/ValentinKolb/prefkv/lib/store"
)

var plog = logger.GetLogger("pref")

// Opener resolves the store of a scope. It is called when a provider is
// created and may return the same store every time.
type Opener func() (store.IStore, error)

// ProviderState is the state of a Provider
type ProviderState int

const (
	Uninitialized ProviderState = iota // store not opened yet
	Initialized                        // store open, reads and writes allowed
	TornDown                           // destroyed, a later create opens the store again
)

func (s ProviderState) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initialized:
		return "Initialized"
	case TornDown:
		return "TornDown"
	default:
		return "Unknown"
	}
}

// Provider connects one key to the store. It tracks at most one subscriber,
// registers at most one store listener while that subscriber exists and pushes
// values to it on the background dispatcher.
//
// Thread-safety: All methods are safe for concurrent use. Reads of one
// provider are serialized and numbered, so a subscriber never sees an older
// read after a newer one.
type Provider[T Value] struct {
	key        Key
	defValue   T
	kind       Kind[T]
	opener     Opener
	background dispatch.Dispatcher

	mu         sync.Mutex
	state      ProviderState
	store      store.IStore
	subscriber Subscriber[T]
	listening  bool

	// pushMu orders the reads of concurrent pushes
	pushMu  sync.Mutex
	pushSeq uint64
}

// stampedSubscriber is a subscriber that tracks its own writes. stamp is
// taken before a push reads the store and handed back with the value, so
// the subscriber can drop reads that raced with one of its writes. seq grows
// with every read of the provider.
type stampedSubscriber[T any] interface {
	Subscriber[T]
	stamp() uint64
	onStampedChange(value T, stamp, seq uint64)
}

// NewProvider creates a provider for name. It fails with a ConfigurationError
// if kind is invalid.
func NewProvider[T Value](kind Kind[T], name string, defValue T, opener Opener, background dispatch.Dispatcher) (*Provider[T], error) {
	return newProvider(kind, NewKey(name, kind.Type, ""), defValue, opener, background)
}

func newProvider[T Value](kind Kind[T], key Key, defValue T, opener Opener, background dispatch.Dispatcher) (*Provider[T], error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if background == nil {
		background = dispatch.Unconfined
	}
	return &Provider[T]{
		key:        key,
		defValue:   defValue,
		kind:       kind,
		opener:     opener,
		background: background,
	}, nil
}

// Key returns the key of the provider
func (p *Provider[T]) Key() Key {
	return p.key
}

// State returns the current state
func (p *Provider[T]) State() ProviderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsInitialized reports whether the store is open
func (p *Provider[T]) IsInitialized() bool {
	return p.State() == Initialized
}

// OnCreate opens the store. It is a no-op if the store is already open. If a
// subscriber exists, the store listener is registered and the subscriber gets
// the current value.
func (p *Provider[T]) OnCreate() error {
	p.mu.Lock()
	if p.state == Initialized {
		p.mu.Unlock()
		return nil
	}
	if p.opener == nil {
		p.mu.Unlock()
		return contextUnavailable(p.key, nil)
	}
	s, err := p.opener()
	if err != nil {
		p.mu.Unlock()
		return contextUnavailable(p.key, err)
	}
	if s == nil {
		p.mu.Unlock()
		return contextUnavailable(p.key, nil)
	}

	p.store = s
	p.state = Initialized
	hasSubscriber := p.subscriber != nil
	if hasSubscriber && !p.listening {
		s.RegisterChangeListener(p)
		p.listening = true
	}
	p.mu.Unlock()

	plog.Debugf("opened store for %s", p.key)
	if hasSubscriber {
		p.push(p.currentSubscriber)
	}
	return nil
}

// GetValue reads the value from the store
func (p *Provider[T]) GetValue() (T, error) {
	p.mu.Lock()
	if p.state != Initialized {
		p.mu.Unlock()
		return p.defValue, notReady(p.key)
	}
	s := p.store
	p.mu.Unlock()

	v, err := p.kind.Get(s, p.key.Name, p.defValue)
	if err != nil {
		return p.defValue, storeError(p.key, "reading", err)
	}
	return v, nil
}

// SetValue writes value and commits it
func (p *Provider[T]) SetValue(value T) error {
	p.mu.Lock()
	if p.state != Initialized {
		p.mu.Unlock()
		return notReady(p.key)
	}
	s := p.store
	p.mu.Unlock()

	if err := p.kind.Put(s.Edit(), p.key.Name, value).Commit(); err != nil {
		return storeError(p.key, "writing", err)
	}
	return nil
}

// Subscribe replaces the subscriber. If the store is open, the store listener
// is registered (once) and sub receives the current value.
func (p *Provider[T]) Subscribe(sub Subscriber[T]) {
	if sub == nil {
		return
	}
	p.mu.Lock()
	p.subscriber = sub
	initialized := p.state == Initialized
	if initialized && !p.listening {
		p.store.RegisterChangeListener(p)
		p.listening = true
	}
	p.mu.Unlock()

	if initialized {
		p.push(func() Subscriber[T] { return sub })
	}
}

// Unsubscribe clears the subscriber if it is sub and unregisters the store
// listener. Any other subscriber is ignored.
func (p *Provider[T]) Unsubscribe(sub Subscriber[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub == nil || p.subscriber != sub {
		return
	}
	p.subscriber = nil
	if p.listening {
		p.store.UnregisterChangeListener(p)
		p.listening = false
	}
}

// OnDestroy unregisters the store listener if it is registered
func (p *Provider[T]) OnDestroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listening {
		p.store.UnregisterChangeListener(p)
		p.listening = false
	}
	if p.state == Initialized {
		p.state = TornDown
	}
}

// OnPreferenceChanged implements store.ChangeListener
func (p *Provider[T]) OnPreferenceChanged(_ store.IStore, key string) {
	if key != p.key.Name {
		return
	}
	p.push(p.currentSubscriber)
}

func (p *Provider[T]) currentSubscriber() Subscriber[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscriber
}

// refresh pushes the current value to the current subscriber
func (p *Provider[T]) refresh() {
	p.push(p.currentSubscriber)
}

// push reads the value on the background dispatcher and delivers it to the
// subscriber returned by target. A push whose subscriber changed while the
// value was read is dropped, the new subscriber got its own push on
// Subscribe. Read errors have no caller to return to and are logged.
//
// Plain subscribers are called with pushMu held. Stamped subscribers are
// called without it and order the values by seq themselves, so they may
// write to the store from within the delivery.
func (p *Provider[T]) push(target func() Subscriber[T]) {
	p.background.Dispatch(func() {
		p.pushMu.Lock()
		locked := true
		defer func() {
			if locked {
				p.pushMu.Unlock()
			}
		}()

		sub := target()
		if sub == nil {
			return
		}
		stamped, isStamped := sub.(stampedSubscriber[T])
		var stamp uint64
		if isStamped {
			stamp = stamped.stamp()
		}

		v, err := p.GetValue()
		p.pushSeq++
		seq := p.pushSeq
		if err != nil {
			if IsNotReady(err) {
				// torn down between scheduling and running
				plog.Debugf("dropping push for %s: %v", p.key, err)
			} else {
				plog.Errorf("dropping push for %s: %v", p.key, err)
			}
			return
		}
		if target() != sub {
			plog.Debugf("dropping push for %s: subscriber changed", p.key)
			return
		}

		if !isStamped {
			sub.OnChanged(v)
			return
		}
		locked = false
		p.pushMu.Unlock()
		stamped.onStampedChange(v, stamp, seq)
	})
}
