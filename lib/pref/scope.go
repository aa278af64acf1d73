package pref

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/ValentinKolb/prefkv/lib/dispatch"
)

// Scope owns the cells of one host tree and the environment they share: the
// store opener and the main and background dispatchers. Equal keys within a
// scope always resolve to the same cell.
//
// Thread-safety: All methods are safe for concurrent use.
type Scope struct {
	id         uuid.UUID
	opener     Opener
	main       dispatch.Dispatcher
	background dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	// dispatchers created by the scope itself, stopped on Close
	closeMain       func()
	closeBackground func()

	cells   *xsync.MapOf[string, any]
	lookups atomic.Int64
	closed  atomic.Bool
}

// ScopeOption configures a Scope
type ScopeOption func(*Scope)

// WithMain sets the main dispatcher. The caller keeps ownership.
func WithMain(d dispatch.Dispatcher) ScopeOption {
	return func(s *Scope) { s.main = d }
}

// WithBackground sets the background dispatcher. The caller keeps ownership.
func WithBackground(d dispatch.Dispatcher) ScopeOption {
	return func(s *Scope) { s.background = d }
}

// WithUnconfined runs everything inline on the calling goroutine
func WithUnconfined() ScopeOption {
	return func(s *Scope) {
		s.main = dispatch.Unconfined
		s.background = dispatch.Unconfined
	}
}

// WithBackgroundLimit creates the background pool with a concurrency limit
func WithBackgroundLimit(limit int) ScopeOption {
	return func(s *Scope) {
		pool := dispatch.NewPool(s.ctx, limit)
		s.background = pool
		s.closeBackground = pool.Close
	}
}

// NewScope creates a scope whose cells open their store through opener.
// Without options the scope runs its own main loop and background pool and
// stops them on Close.
func NewScope(opener Opener, opts ...ScopeOption) *Scope {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scope{
		id:     uuid.New(),
		opener: opener,
		ctx:    ctx,
		cancel: cancel,
		cells:  xsync.NewMapOf[string, any](),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.main == nil {
		loop := dispatch.NewLoop("main-" + s.id.String()[:8])
		s.main = loop
		s.closeMain = loop.Close
	}
	if s.background == nil {
		pool := dispatch.NewPool(ctx, 0)
		s.background = pool
		s.closeBackground = pool.Close
	}
	return s
}

// ID identifies the scope in log messages
func (s *Scope) ID() uuid.UUID {
	return s.id
}

// Context is canceled when the scope is closed
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Main returns the main dispatcher
func (s *Scope) Main() dispatch.Dispatcher {
	return s.main
}

// Background returns the background dispatcher
func (s *Scope) Background() dispatch.Dispatcher {
	return s.background
}

// Lookups returns the number of GetCell calls
func (s *Scope) Lookups() int64 {
	return s.lookups.Load()
}

// Len returns the number of cells
func (s *Scope) Len() int {
	return s.cells.Size()
}

// GetCell returns the cell for name in scope, creating it on first access.
// Concurrent first accesses create exactly one cell. The default value of
// the first access wins.
func GetCell[T Value](scope *Scope, kind Kind[T], name string, defValue T, qualifier ...string) (*Cell[T], error) {
	scope.lookups.Add(1)
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if scope.closed.Load() {
		return nil, contextUnavailable(NewKey(name, kind.Type, ""), nil)
	}

	q := ""
	if len(qualifier) > 0 {
		q = qualifier[0]
	}
	key := NewKey(name, kind.Type, q)

	var buildErr error
	actual, _ := scope.cells.LoadOrCompute(key.String(), func() any {
		provider, err := newProvider(kind, key, defValue, scope.opener, scope.background)
		if err != nil {
			buildErr = err
			return nil
		}
		common.CellsCreated.Inc()
		plog.Debugf("scope %s: created cell %s", scope.id, key)
		return newCell(key, provider, scope.main)
	})
	if buildErr != nil {
		scope.cells.Delete(key.String())
		return nil, buildErr
	}

	cell, ok := actual.(*Cell[T])
	if !ok {
		return nil, configurationError("cell %s holds %T", key, actual)
	}
	return cell, nil
}

type shutdowner interface {
	shutdown()
}

// Close tears down all live providers, drops every cell and stops the
// dispatchers the scope created. Closing twice is a no-op.
func (s *Scope) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()

	s.cells.Range(func(_ string, cell any) bool {
		if c, ok := cell.(shutdowner); ok {
			c.shutdown()
		}
		return true
	})
	s.cells.Clear()

	// background tasks may still dispatch to main
	if s.closeBackground != nil {
		s.closeBackground()
	}
	if s.closeMain != nil {
		s.closeMain()
	}
	plog.Debugf("scope %s closed", s.id)
}
