package lifecycle

import (
	stderrors "errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("lifecycle")

// --------------------------------------------------------------------------
// States
// --------------------------------------------------------------------------

// State of a lifecycle source
type State int

const (
	Initialized State = iota // not created yet
	Created                  // created, not in the foreground
	Active                   // in the foreground
	Inactive                 // was active, moved to the background
	Destroyed                // terminal
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "Initialized"
	case Created:
		return "Created"
	case Active:
		return "Active"
	case Inactive:
		return "Inactive"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// validTransitions lists the successors of every state. Destroyed is terminal.
var validTransitions = map[State][]State{
	Initialized: {Created, Destroyed},
	Created:     {Active, Destroyed},
	Active:      {Inactive, Destroyed},
	Inactive:    {Active, Destroyed},
	Destroyed:   {},
}

func isValidTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CodeInvalidTransition is the error code of a rejected state change
const CodeInvalidTransition errors.ErrorCode = "INVALID_TRANSITION"

// --------------------------------------------------------------------------
// Interfaces
// --------------------------------------------------------------------------

// Observer receives the state changes of a Source.
// Observers are compared by identity, implementations should be pointers.
type Observer interface {
	// OnCreate is called once when the source is created.
	OnCreate() error
	// OnActive is called every time the source moves to the foreground.
	OnActive()
	// OnInactive is called every time the source leaves the foreground.
	OnInactive()
	// OnDestroy is called once when the source is destroyed.
	OnDestroy()
}

// Source is the lifecycle of a host object
type Source interface {
	// AddObserver registers o. An observer added to an already created source
	// is brought up to the current state right away.
	AddObserver(o Observer)
	// RemoveObserver unregisters o. Removing an unknown observer is a no-op.
	RemoveObserver(o Observer)
	// State returns the current state
	State() State
}

// --------------------------------------------------------------------------
// Observer entries
// --------------------------------------------------------------------------

// entry tracks the last state delivered to one observer. Every delivery
// brings the observer to the current state of the registry in order, so a
// catch-up racing a transition can neither skip OnCreate nor repeat a call.
type entry struct {
	o Observer

	mu   sync.Mutex
	seen State
}

// sync delivers the steps between the last delivered state and the current
// state of r. It returns the error of OnCreate if it called it.
func (e *entry) sync(r *Registry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	to := r.State()
	if to == e.seen || e.seen == Destroyed {
		return nil
	}

	var err error
	if to != Destroyed && e.seen == Initialized {
		err = e.o.OnCreate()
		e.seen = Created
	}

	switch to {
	case Active:
		if e.seen != Active {
			e.o.OnActive()
		}
	case Inactive:
		if e.seen == Active {
			e.o.OnInactive()
		}
	case Destroyed:
		if e.seen == Active {
			e.o.OnInactive()
		}
		if e.seen != Initialized {
			e.o.OnDestroy()
		}
	}
	e.seen = to
	return err
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Registry is a Source driven explicitly by its owner through Create,
// Activate, Deactivate and Destroy.
//
// Thread-safety: AddObserver, RemoveObserver and State are safe for
// concurrent use, also from within observer callbacks. Transitions are meant
// to be driven by one goroutine, concurrent transitions are serialized but
// their order is up to the scheduler. Each observer receives its callbacks
// in lifecycle order, also while it is caught up concurrently to a
// transition.
type Registry struct {
	id uuid.UUID

	// transitionMu serializes transitions including their callbacks
	transitionMu sync.Mutex

	mu      sync.Mutex
	state   State
	entries []*entry
}

// NewRegistry returns a registry in state Initialized
func NewRegistry() *Registry {
	return &Registry{id: uuid.New()}
}

// ID identifies the registry in log messages
func (r *Registry) ID() uuid.UUID {
	return r.id
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) AddObserver(o Observer) {
	if o == nil {
		return
	}
	r.mu.Lock()
	for _, existing := range r.entries {
		if existing.o == o {
			r.mu.Unlock()
			return
		}
	}
	if r.state == Destroyed {
		r.mu.Unlock()
		plog.Warningf("lifecycle %s is destroyed, observer not added", r.id)
		return
	}
	e := &entry{o: o}
	r.entries = append(r.entries, e)
	r.mu.Unlock()

	// catch up
	if err := e.sync(r); err != nil {
		plog.Errorf("lifecycle %s: observer failed to create: %v", r.id, err)
	}
}

func (r *Registry) RemoveObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.entries {
		if existing.o == o {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return
		}
	}
}

// transition switches to state to and returns the entries to notify
func (r *Registry) transition(to State) ([]*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from := r.state
	if !isValidTransition(from, to) {
		return nil, errors.Newf(CodeInvalidTransition, "invalid lifecycle transition from %s to %s", from, to)
	}
	r.state = to
	return append([]*entry(nil), r.entries...), nil
}

// Create moves the source to Created and calls OnCreate on every observer.
// All observer errors are returned joined, the transition happens anyway.
func (r *Registry) Create() error {
	r.transitionMu.Lock()
	defer r.transitionMu.Unlock()

	entries, err := r.transition(Created)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := e.sync(r); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Activate moves the source to Active
func (r *Registry) Activate() error {
	return r.move(Active)
}

// Deactivate moves the source from Active to Inactive
func (r *Registry) Deactivate() error {
	return r.move(Inactive)
}

// Destroy moves the source to Destroyed. An active source is deactivated
// first. Observers are dropped afterwards.
func (r *Registry) Destroy() error {
	if err := r.move(Destroyed); err != nil {
		return err
	}
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
	return nil
}

func (r *Registry) move(to State) error {
	r.transitionMu.Lock()
	defer r.transitionMu.Unlock()

	entries, err := r.transition(to)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := e.sync(r); err != nil {
			plog.Errorf("lifecycle %s: observer failed to create: %v", r.id, err)
		}
	}
	return nil
}

// Len returns the number of registered observers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsInvalidTransition reports whether err is a rejected state change
func IsInvalidTransition(err error) bool {
	return errors.GetCode(err) == CodeInvalidTransition
}
