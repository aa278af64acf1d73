package pref

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/ValentinKolb/prefkv/lib/lifecycle"
)

// Host is the owner of preference handles: a lifecycle to follow and the
// scope the cells live in.
type Host interface {
	Lifecycle() lifecycle.Source
	Scope() *Scope
}

type host struct {
	source lifecycle.Source
	scope  *Scope
}

func (h *host) Lifecycle() lifecycle.Source { return h.source }
func (h *host) Scope() *Scope               { return h.scope }

// NewHost combines a lifecycle source and a scope
func NewHost(scope *Scope, source lifecycle.Source) Host {
	return &host{source: source, scope: scope}
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

type options struct {
	qualifier   string
	foreground  bool
	subscribers []any
}

// Option configures a Pref
type Option func(*options)

// WithQualifier separates cache entries of the same name and type
func WithQualifier(qualifier string) Option {
	return func(o *options) { o.qualifier = qualifier }
}

// WithForeground observes the cell as soon as the host is created instead of
// waiting for it to become active.
func WithForeground() Option {
	return func(o *options) { o.foreground = true }
}

// WithSubscriber subscribes s right away. Its value type must match the
// preference.
func WithSubscriber[T Value](s Subscriber[T]) Option {
	return func(o *options) { o.subscribers = append(o.subscribers, s) }
}

// --------------------------------------------------------------------------
// Pref
// --------------------------------------------------------------------------

// Pref is the handle application code holds for one preference. It follows
// the lifecycle of its host: the cell is looked up when the host is created,
// observed while it is active and released when it is destroyed.
//
// Subscribers are called on the main dispatcher and only see changes that
// happen after they subscribed.
type Pref[T Value] struct {
	host       Host
	kind       Kind[T]
	name       string
	defValue   T
	qualifier  string
	foreground bool

	publisher *Publisher[T]
	binding   *binding[T]

	mu        sync.Mutex
	cell      *Cell[T]
	attached  bool
	observing bool
	released  bool

	// cellSet is closed once the host was created and the cell looked up
	cellSet  chan struct{}
	cellOnce sync.Once
}

// New creates a handle for name and registers it on the lifecycle of host.
func New[T Value](h Host, name string, defValue T, opts ...Option) (*Pref[T], error) {
	kind, err := KindOf[T]()
	if err != nil {
		return nil, err
	}
	if h == nil || h.Lifecycle() == nil || h.Scope() == nil {
		return nil, configurationError("preference %q needs a host with a lifecycle and a scope", name)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pref[T]{
		host:       h,
		kind:       kind,
		name:       name,
		defValue:   defValue,
		qualifier:  o.qualifier,
		foreground: o.foreground,
		publisher:  NewPublisher[T](),
		cellSet:    make(chan struct{}),
	}
	for _, s := range o.subscribers {
		sub, ok := s.(Subscriber[T])
		if !ok {
			return nil, configurationError("subscriber %T does not match preference %q of type %s", s, name, kind.Type)
		}
		p.publisher.Subscribe(sub)
	}

	p.binding = &binding[T]{pref: p}
	h.Lifecycle().AddObserver(p.binding)
	return p, nil
}

// Bool creates a bool preference
func Bool(h Host, name string, defValue bool, opts ...Option) (*Pref[bool], error) {
	return New(h, name, defValue, opts...)
}

// Int32 creates an int32 preference
func Int32(h Host, name string, defValue int32, opts ...Option) (*Pref[int32], error) {
	return New(h, name, defValue, opts...)
}

// Int64 creates an int64 preference
func Int64(h Host, name string, defValue int64, opts ...Option) (*Pref[int64], error) {
	return New(h, name, defValue, opts...)
}

// Float32 creates a float32 preference
func Float32(h Host, name string, defValue float32, opts ...Option) (*Pref[float32], error) {
	return New(h, name, defValue, opts...)
}

// String creates a string preference
func String(h Host, name string, defValue string, opts ...Option) (*Pref[string], error) {
	return New(h, name, defValue, opts...)
}

// Name returns the store key of the preference
func (p *Pref[T]) Name() string {
	return p.name
}

func (p *Pref[T]) currentCell() *Cell[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cell
}

// GetValue returns the cached value. Before the cell holds a value it waits
// until one arrives or ctx ends. If the host is never created, it waits for
// ctx.
func (p *Pref[T]) GetValue(ctx context.Context) (T, error) {
	if cell := p.currentCell(); cell != nil {
		if v, err := cell.GetValueBlocking(); err == nil {
			return v, nil
		}
	}

	start := time.Now()
	defer common.ReadyWait.UpdateSince(start)

	select {
	case <-p.cellSet:
	case <-ctx.Done():
		return p.defValue, ctx.Err()
	}

	cell := p.currentCell()
	select {
	case <-cell.Ready():
	case <-ctx.Done():
		return p.defValue, ctx.Err()
	}
	return cell.GetValueBlocking()
}

// GetValueAsync runs GetValue on the background dispatcher and passes the
// result to cb. The wait ends when the scope is closed. A panic in cb is
// recovered and logged.
func (p *Pref[T]) GetValueAsync(cb func(value T, err error)) {
	scope := p.host.Scope()
	scope.Background().Dispatch(func() {
		v, err := p.GetValue(scope.Context())
		defer func() {
			if r := recover(); r != nil {
				plog.Errorf("callback of preference %s panicked: %v\n%s", p.name, r, debug.Stack())
			}
		}()
		cb(v, err)
	})
}

// SetValue writes value through the cell. It fails with NotReady before the
// host was created.
func (p *Pref[T]) SetValue(value T) error {
	cell := p.currentCell()
	if cell == nil {
		return notReady(NewKey(p.name, p.kind.Type, p.qualifier))
	}
	return cell.SetValue(value)
}

// Subscribe adds s to the subscribers of this handle
func (p *Pref[T]) Subscribe(s Subscriber[T]) {
	p.publisher.Subscribe(s)
}

// Unsubscribe removes s. Removing an unknown subscriber is a no-op.
func (p *Pref[T]) Unsubscribe(s Subscriber[T]) {
	p.publisher.Unsubscribe(s)
}

// --------------------------------------------------------------------------
// Lifecycle binding
// --------------------------------------------------------------------------

// binding is the lifecycle observer of a Pref. It also observes the cell and
// forwards its changes to the subscribers of the handle.
type binding[T Value] struct {
	pref *Pref[T]
}

// OnChanged runs on the main dispatcher, called by the cell
func (b *binding[T]) OnChanged(value T) {
	b.pref.publisher.Publish(value)
}

func (b *binding[T]) OnCreate() error {
	p := b.pref
	cell, err := GetCell(p.host.Scope(), p.kind, p.name, p.defValue, p.qualifier)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.cell = cell
	p.mu.Unlock()
	p.cellOnce.Do(func() { close(p.cellSet) })

	if err := cell.Attach(); err != nil {
		return err
	}
	p.mu.Lock()
	p.attached = true
	p.mu.Unlock()

	if p.foreground {
		b.observe()
	}
	return nil
}

func (b *binding[T]) OnActive() {
	b.observe()
}

func (b *binding[T]) OnInactive() {
	b.stopObserving()
}

func (b *binding[T]) OnDestroy() {
	p := b.pref
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	cell, attached, observing := p.cell, p.attached, p.observing
	p.attached, p.observing = false, false
	p.mu.Unlock()

	if cell != nil {
		if observing {
			cell.RemoveObserver(b)
		}
		if attached {
			cell.Detach()
		}
	}
	p.host.Lifecycle().RemoveObserver(b)
}

func (b *binding[T]) observe() {
	p := b.pref
	p.mu.Lock()
	if p.cell == nil || !p.attached || p.observing || p.released {
		p.mu.Unlock()
		return
	}
	p.observing = true
	cell := p.cell
	p.mu.Unlock()

	cell.Observe(b)
}

func (b *binding[T]) stopObserving() {
	p := b.pref
	p.mu.Lock()
	if !p.observing {
		p.mu.Unlock()
		return
	}
	p.observing = false
	cell := p.cell
	p.mu.Unlock()

	cell.RemoveObserver(b)
}
