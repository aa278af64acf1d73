package lifecycle

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu        sync.Mutex
	events    []string
	createErr error
	onCreate  func()
	onDestroy func()
}

func (o *recordingObserver) record(event string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) OnCreate() error {
	if o.onCreate != nil {
		o.onCreate()
	}
	o.record("create")
	return o.createErr
}

func (o *recordingObserver) OnActive()   { o.record("active") }
func (o *recordingObserver) OnInactive() { o.record("inactive") }

func (o *recordingObserver) OnDestroy() {
	o.record("destroy")
	if o.onDestroy != nil {
		o.onDestroy()
	}
}

func (o *recordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func TestFullLifecycle(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	r.AddObserver(o)

	assert.Equal(t, Initialized, r.State())
	require.NoError(t, r.Create())
	require.NoError(t, r.Activate())
	require.NoError(t, r.Deactivate())
	require.NoError(t, r.Activate())
	require.NoError(t, r.Destroy())

	assert.Equal(t, Destroyed, r.State())
	assert.Equal(t, []string{"create", "active", "inactive", "active", "inactive", "destroy"}, o.Events())
	assert.Equal(t, 0, r.Len())
}

func TestInvalidTransitions(t *testing.T) {
	r := NewRegistry()

	err := r.Activate()
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))

	require.NoError(t, r.Create())
	assert.True(t, IsInvalidTransition(r.Create()))
	assert.True(t, IsInvalidTransition(r.Deactivate()))

	require.NoError(t, r.Destroy())
	assert.True(t, IsInvalidTransition(r.Destroy()))
	assert.True(t, IsInvalidTransition(r.Create()))
}

func TestDestroyBeforeCreateSkipsCallbacks(t *testing.T) {
	r := NewRegistry()
	o := &recordingObserver{}
	r.AddObserver(o)

	require.NoError(t, r.Destroy())
	assert.Empty(t, o.Events())
}

func TestCreateJoinsObserverErrors(t *testing.T) {
	r := NewRegistry()
	errA := stderrors.New("a failed")
	errB := stderrors.New("b failed")
	a := &recordingObserver{createErr: errA}
	b := &recordingObserver{createErr: errB}
	c := &recordingObserver{}
	r.AddObserver(a)
	r.AddObserver(b)
	r.AddObserver(c)

	err := r.Create()
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	// the transition happened and every observer was called
	assert.Equal(t, Created, r.State())
	assert.Equal(t, []string{"create"}, c.Events())
}

func TestAddObserverCatchesUp(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create())
	require.NoError(t, r.Activate())

	o := &recordingObserver{}
	r.AddObserver(o)
	assert.Equal(t, []string{"create", "active"}, o.Events())

	// adding twice has no effect
	r.AddObserver(o)
	assert.Equal(t, 1, r.Len())
}

func TestCatchUpRacingActivate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create())

	entered := make(chan struct{})
	release := make(chan struct{})
	o := &recordingObserver{onCreate: func() {
		close(entered)
		<-release
	}}

	added := make(chan struct{})
	go func() {
		defer close(added)
		r.AddObserver(o)
	}()
	<-entered

	activated := make(chan error, 1)
	go func() { activated <- r.Activate() }()
	require.Eventually(t, func() bool { return r.State() == Active }, time.Second, time.Millisecond)

	// OnActive must wait for the pending OnCreate
	assert.Empty(t, o.Events())
	close(release)

	require.NoError(t, <-activated)
	<-added
	assert.Equal(t, []string{"create", "active"}, o.Events())
}

func TestCatchUpToInactive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Create())
	require.NoError(t, r.Activate())
	require.NoError(t, r.Deactivate())

	o := &recordingObserver{}
	r.AddObserver(o)
	assert.Equal(t, []string{"create"}, o.Events())

	require.NoError(t, r.Activate())
	require.NoError(t, r.Destroy())
	assert.Equal(t, []string{"create", "active", "inactive", "destroy"}, o.Events())
}

func TestAddObserverAfterDestroy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Destroy())

	o := &recordingObserver{}
	r.AddObserver(o)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, o.Events())
}

func TestObserverRemovesItselfOnDestroy(t *testing.T) {
	r := NewRegistry()
	a := &recordingObserver{}
	b := &recordingObserver{}
	a.onDestroy = func() { r.RemoveObserver(a) }
	r.AddObserver(a)
	r.AddObserver(b)

	require.NoError(t, r.Create())
	require.NoError(t, r.Destroy())

	assert.Equal(t, []string{"create", "destroy"}, a.Events())
	assert.Equal(t, []string{"create", "destroy"}, b.Events())
}

func TestRemoveObserver(t *testing.T) {
	r := NewRegistry()
	a := &recordingObserver{}
	b := &recordingObserver{}
	r.AddObserver(a)
	r.AddObserver(b)

	r.RemoveObserver(a)
	r.RemoveObserver(a)
	require.NoError(t, r.Create())

	assert.Empty(t, a.Events())
	assert.Equal(t, []string{"create"}, b.Events())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Active", Active.String())
	assert.Equal(t, "Unknown", State(42).String())
}
