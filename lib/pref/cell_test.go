package pref

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/prefkv/lib/dispatch"
	"github.com/ValentinKolb/prefkv/lib/store/storetest"
)

func newTestCell(t *testing.T) (*Cell[string], *storetest.Recorder) {
	t.Helper()
	p, opener := newTestProvider(t)
	return newCell(p.Key(), p, dispatch.Unconfined), opener.rec
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestCellNotReadyBeforePush(t *testing.T) {
	cell, rec := newTestCell(t)

	_, err := cell.GetValueBlocking()
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
	assert.False(t, isClosed(cell.Ready()))
	assert.Equal(t, int64(0), rec.Gets())
}

func TestCellOneStoreReadPerPush(t *testing.T) {
	cell, rec := newTestCell(t)
	observer := &recordingSubscriber[string]{}

	require.NoError(t, cell.Attach())
	cell.Observe(observer)

	assert.True(t, isClosed(cell.Ready()))
	assert.Equal(t, int64(1), rec.Gets())

	for i := 0; i < 10; i++ {
		v, err := cell.GetValueBlocking()
		require.NoError(t, err)
		assert.Equal(t, testDefault, v)
	}
	assert.Equal(t, int64(1), rec.Gets())
	assert.Equal(t, []string{testDefault}, observer.Values())
}

func TestCellDropsEqualPushes(t *testing.T) {
	cell, _ := newTestCell(t)
	observer := &recordingSubscriber[string]{}
	cell.observers.Subscribe(observer)

	cell.OnChanged("a")
	cell.OnChanged("a")
	cell.OnChanged("b")

	assert.Equal(t, []string{"a", "b"}, observer.Values())
}

func TestCellSetValueDeduplicates(t *testing.T) {
	cell, rec := newTestCell(t)
	require.NoError(t, cell.Attach())
	cell.Observe(&recordingSubscriber[string]{})

	require.NoError(t, cell.SetValue(testNew))
	require.NoError(t, cell.SetValue(testNew))
	assert.Equal(t, int64(1), rec.Commits())

	require.NoError(t, cell.SetValue("third"))
	require.NoError(t, cell.SetValue("fourth"))
	assert.Equal(t, int64(3), rec.Commits())

	// writing the cached value again is a no-op
	require.NoError(t, cell.SetValue("fourth"))
	assert.Equal(t, int64(3), rec.Commits())
}

func TestCellSetValueNotReady(t *testing.T) {
	cell, rec := newTestCell(t)

	err := cell.SetValue(testNew)
	require.Error(t, err)
	assert.True(t, IsNotReady(err))
	assert.Equal(t, int64(0), rec.Commits())

	_, err = cell.GetValueBlocking()
	assert.True(t, IsNotReady(err))
}

func TestCellSetValueWithoutPushMarksReady(t *testing.T) {
	cell, _ := newTestCell(t)
	require.NoError(t, cell.Attach())

	require.NoError(t, cell.SetValue(testNew))
	assert.True(t, isClosed(cell.Ready()))

	v, err := cell.GetValueBlocking()
	require.NoError(t, err)
	assert.Equal(t, testNew, v)
}

func TestCellSetValueFailureRestores(t *testing.T) {
	cell, rec := newTestCell(t)
	observer := &recordingSubscriber[string]{}
	require.NoError(t, cell.Attach())
	cell.Observe(observer)

	rec.FailCommits(errors.New("disk full"))
	err := cell.SetValue(testNew)
	require.Error(t, err)
	assert.True(t, IsStoreError(err))

	v, err := cell.GetValueBlocking()
	require.NoError(t, err)
	assert.Equal(t, testDefault, v)
	assert.Equal(t, []string{testDefault}, observer.Values())
}

func TestCellSetValuePublishesOnce(t *testing.T) {
	cell, rec := newTestCell(t)
	a := &recordingSubscriber[string]{}
	b := &recordingSubscriber[string]{}
	require.NoError(t, cell.Attach())
	cell.Observe(a)
	cell.Observe(b)

	require.NoError(t, cell.SetValue(testNew))

	// the store notification re-reads the new value, which is not published again
	assert.Equal(t, []string{testDefault, testNew}, a.Values())
	assert.Equal(t, []string{testDefault, testNew}, b.Values())
	assert.Equal(t, int64(1), rec.Puts())
}

func TestCellReferenceCounting(t *testing.T) {
	cell, rec := newTestCell(t)
	a := &recordingSubscriber[string]{}
	b := &recordingSubscriber[string]{}

	require.NoError(t, cell.Attach())
	require.NoError(t, cell.Attach())
	assert.Equal(t, 2, cell.Attached())

	cell.Observe(a)
	cell.Observe(b)
	cell.Observe(b)
	assert.Equal(t, 2, cell.Observers())
	assert.Equal(t, int64(1), rec.Registers())

	cell.RemoveObserver(a)
	assert.Equal(t, int64(0), rec.Unregisters())
	cell.RemoveObserver(b)
	assert.Equal(t, int64(1), rec.Unregisters())

	cell.Detach()
	assert.Equal(t, Initialized, cell.Provider().State())
	cell.Detach()
	assert.Equal(t, TornDown, cell.Provider().State())

	// extra detaches are ignored
	cell.Detach()
	assert.Equal(t, 0, cell.Attached())
}

func TestCellKeepsValueAfterDestroy(t *testing.T) {
	cell, _ := newTestCell(t)
	require.NoError(t, cell.Attach())
	o := &recordingSubscriber[string]{}
	cell.Observe(o)
	cell.RemoveObserver(o)
	cell.Detach()

	v, err := cell.GetValueBlocking()
	require.NoError(t, err)
	assert.Equal(t, testDefault, v)
}

func TestCellWriteWinsOverQueuedPush(t *testing.T) {
	p, opener := newTestProvider(t)
	main := &manualDispatcher{}
	cell := newCell(p.Key(), p, main)
	observer := &recordingSubscriber[string]{}

	require.NoError(t, cell.Attach())
	cell.Observe(observer)
	main.drain()
	require.Equal(t, []string{testDefault}, observer.Values())

	// the push of this external write is still queued when the write starts
	require.NoError(t, opener.rec.Edit().PutString(testKey, "OTHER").Commit())
	require.NoError(t, cell.SetValue(testNew))
	main.drain()

	assert.Equal(t, []string{testDefault, testNew}, observer.Values())
	v, err := cell.GetValueBlocking()
	require.NoError(t, err)
	assert.Equal(t, testNew, v)

	// external writes after the write still come through
	require.NoError(t, opener.rec.Edit().PutString(testKey, "LATER").Commit())
	main.drain()
	assert.Equal(t, []string{testDefault, testNew, "LATER"}, observer.Values())
}

func TestCellDropsOlderReads(t *testing.T) {
	cell, _ := newTestCell(t)
	observer := &recordingSubscriber[string]{}
	cell.observers.Subscribe(observer)

	cell.onStampedChange("newer", 0, 2)
	cell.onStampedChange("older", 0, 1)

	assert.Equal(t, []string{"newer"}, observer.Values())
}

func TestCellFailedWriteCatchesUp(t *testing.T) {
	p, opener := newTestProvider(t)
	main := &manualDispatcher{}
	cell := newCell(p.Key(), p, main)
	observer := &recordingSubscriber[string]{}
	require.NoError(t, cell.Attach())
	cell.Observe(observer)
	main.drain()

	// queued before the write, dropped by it, read again afterwards
	require.NoError(t, opener.rec.Edit().PutString(testKey, "OTHER").Commit())
	opener.rec.FailCommits(errors.New("disk full"))
	require.Error(t, cell.SetValue(testNew))
	main.drain()

	assert.Equal(t, []string{testDefault, "OTHER"}, observer.Values())
	v, err := cell.GetValueBlocking()
	require.NoError(t, err)
	assert.Equal(t, "OTHER", v)
}

func TestCellObserverMayWrite(t *testing.T) {
	run := func(t *testing.T, fn func() error) {
		t.Helper()
		done := make(chan error, 1)
		go func() { done <- fn() }()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("write from OnChanged did not return")
		}
	}

	t.Run("AfterOwnWrite", func(t *testing.T) {
		cell, rec := newTestCell(t)
		require.NoError(t, cell.Attach())

		var seen []string
		var innerErr error
		cell.Observe(NewSubscriber(func(v string) {
			seen = append(seen, v)
			if v == testNew {
				innerErr = cell.SetValue("AGAIN")
			}
		}))

		run(t, func() error { return cell.SetValue(testNew) })
		require.NoError(t, innerErr)
		assert.Equal(t, []string{testDefault, testNew, "AGAIN"}, seen)

		stored, err := rec.GetString(testKey, "")
		require.NoError(t, err)
		assert.Equal(t, "AGAIN", stored)
	})

	t.Run("AfterExternalWrite", func(t *testing.T) {
		cell, rec := newTestCell(t)
		require.NoError(t, cell.Attach())

		var seen []string
		var innerErr error
		cell.Observe(NewSubscriber(func(v string) {
			seen = append(seen, v)
			if v == "EXTERNAL" {
				innerErr = cell.SetValue("REPLY")
			}
		}))

		run(t, func() error { return rec.Edit().PutString(testKey, "EXTERNAL").Commit() })
		require.NoError(t, innerErr)
		assert.Equal(t, []string{testDefault, "EXTERNAL", "REPLY"}, seen)
	})
}
