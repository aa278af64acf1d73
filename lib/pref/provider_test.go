package pref

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/dispatch"
	"github.com/ValentinKolb/prefkv/lib/store/storetest"
)

const (
	testKey     = "KEY"
	testDefault = "DEFAULT_VALUE"
	testNew     = "NEW_VALUE"
)

func newTestProvider(t *testing.T) (*Provider[string], *countingOpener) {
	t.Helper()
	opener := &countingOpener{rec: storetest.NewRecorder()}
	p, err := NewProvider(StringKind, testKey, testDefault, opener.open, dispatch.Unconfined)
	require.NoError(t, err)
	return p, opener
}

func TestProviderRejectsInvalidKind(t *testing.T) {
	_, err := NewProvider(Kind[string]{Type: codec.TypeInvalid, Get: StringKind.Get, Put: StringKind.Put}, "k", "", nil, nil)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewProvider(Kind[int32]{Type: codec.TypeInt32}, "k", 0, nil, nil)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestKindOf(t *testing.T) {
	k, err := KindOf[float32]()
	require.NoError(t, err)
	assert.Equal(t, codec.TypeFloat32, k.Type)

	s, err := KindOf[string]()
	require.NoError(t, err)
	assert.Equal(t, codec.TypeString, s.Type)
}

func TestProviderNotReadyBeforeCreate(t *testing.T) {
	p, opener := newTestProvider(t)

	v, err := p.GetValue()
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
	assert.Equal(t, testDefault, v)

	err = p.SetValue(testNew)
	assert.True(t, IsNotReady(err))
	assert.Equal(t, int64(0), opener.rec.Commits())
	assert.Equal(t, Uninitialized, p.State())
}

func TestProviderCreateTwiceOpensOnce(t *testing.T) {
	p, opener := newTestProvider(t)

	require.NoError(t, p.OnCreate())
	require.NoError(t, p.OnCreate())
	assert.Equal(t, 1, opener.Opens())
	assert.True(t, p.IsInitialized())

	v, err := p.GetValue()
	require.NoError(t, err)
	assert.Equal(t, testDefault, v)
}

func TestProviderContextUnavailable(t *testing.T) {
	opener := &countingOpener{err: errors.New("no context")}
	p, err := NewProvider(StringKind, testKey, testDefault, opener.open, dispatch.Unconfined)
	require.NoError(t, err)

	err = p.OnCreate()
	require.Error(t, err)
	assert.True(t, IsContextUnavailable(err))
	assert.Equal(t, Uninitialized, p.State())

	nilOpener, err := NewProvider(StringKind, testKey, testDefault, nil, dispatch.Unconfined)
	require.NoError(t, err)
	assert.True(t, IsContextUnavailable(nilOpener.OnCreate()))
}

func TestProviderSubscribeBeforeCreate(t *testing.T) {
	p, opener := newTestProvider(t)
	sub := &recordingSubscriber[string]{}

	p.Subscribe(sub)
	assert.Equal(t, int64(0), opener.rec.Registers())
	assert.Empty(t, sub.Values())

	require.NoError(t, p.OnCreate())
	assert.Equal(t, int64(1), opener.rec.Registers())
	assert.Equal(t, []string{testDefault}, sub.Values())
}

func TestProviderSubscribeTwiceRegistersOnce(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())

	first := &recordingSubscriber[string]{}
	second := &recordingSubscriber[string]{}
	p.Subscribe(first)
	p.Subscribe(second)

	assert.Equal(t, int64(1), opener.rec.Registers())
	assert.Equal(t, 1, opener.rec.Listeners())

	// each subscribe pushes a snapshot to the new subscriber
	assert.Equal(t, []string{testDefault}, first.Values())
	assert.Equal(t, []string{testDefault}, second.Values())
}

func TestProviderUnsubscribeOtherKeepsRegistration(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())

	current := &recordingSubscriber[string]{}
	other := &recordingSubscriber[string]{}
	p.Subscribe(current)

	p.Unsubscribe(other)
	assert.Equal(t, int64(0), opener.rec.Unregisters())
	assert.Equal(t, 1, opener.rec.Listeners())

	p.Unsubscribe(current)
	assert.Equal(t, int64(1), opener.rec.Unregisters())
	assert.Equal(t, 0, opener.rec.Listeners())

	// already gone
	p.Unsubscribe(current)
	assert.Equal(t, int64(1), opener.rec.Unregisters())
}

func TestProviderIgnoresOtherKeys(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())
	sub := &recordingSubscriber[string]{}
	p.Subscribe(sub)
	gets := opener.rec.Gets()

	p.OnPreferenceChanged(opener.rec, "OTHER_KEY")
	assert.Equal(t, gets, opener.rec.Gets())
	assert.Equal(t, 1, sub.Count())

	require.NoError(t, opener.rec.Edit().PutString(testKey, testNew).Commit())
	assert.Equal(t, gets+1, opener.rec.Gets())
	assert.Equal(t, []string{testDefault, testNew}, sub.Values())
}

func TestProviderSetValueCommits(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())

	require.NoError(t, p.SetValue(testNew))
	assert.Equal(t, int64(1), opener.rec.Puts())
	assert.Equal(t, int64(1), opener.rec.Commits())

	v, err := opener.rec.GetString(testKey, "")
	require.NoError(t, err)
	assert.Equal(t, testNew, v)
}

func TestProviderSetValueSurfacesStoreErrors(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())

	opener.rec.FailCommits(errors.New("disk full"))
	err := p.SetValue(testNew)
	require.Error(t, err)
	assert.True(t, IsStoreError(err))
}

func TestProviderDestroy(t *testing.T) {
	t.Run("WithoutSubscriber", func(t *testing.T) {
		p, opener := newTestProvider(t)
		require.NoError(t, p.OnCreate())

		p.OnDestroy()
		assert.Equal(t, int64(0), opener.rec.Unregisters())
		assert.Equal(t, TornDown, p.State())
	})

	t.Run("WithSubscriber", func(t *testing.T) {
		p, opener := newTestProvider(t)
		require.NoError(t, p.OnCreate())
		p.Subscribe(&recordingSubscriber[string]{})

		p.OnDestroy()
		p.OnDestroy()
		assert.Equal(t, int64(1), opener.rec.Unregisters())
		assert.Equal(t, 0, opener.rec.Listeners())
	})

	t.Run("BeforeCreate", func(t *testing.T) {
		p, opener := newTestProvider(t)
		p.Subscribe(&recordingSubscriber[string]{})

		p.OnDestroy()
		assert.Equal(t, int64(0), opener.rec.Unregisters())
		assert.Equal(t, Uninitialized, p.State())
	})

	t.Run("CreateAgain", func(t *testing.T) {
		p, opener := newTestProvider(t)
		sub := &recordingSubscriber[string]{}
		require.NoError(t, p.OnCreate())
		p.Subscribe(sub)
		p.OnDestroy()

		require.NoError(t, p.OnCreate())
		assert.Equal(t, Initialized, p.State())
		assert.Equal(t, 2, opener.Opens())
		assert.Equal(t, int64(2), opener.rec.Registers())
		assert.Equal(t, []string{testDefault, testDefault}, sub.Values())
	})
}

func TestProviderReadErrorsAreNotPushed(t *testing.T) {
	p, opener := newTestProvider(t)
	require.NoError(t, p.OnCreate())
	sub := &recordingSubscriber[string]{}
	p.Subscribe(sub)

	// a value of another type under the same name cannot be read as string
	require.NoError(t, opener.rec.Edit().PutInt32(testKey, 7).Commit())
	assert.Equal(t, []string{testDefault}, sub.Values())
}
