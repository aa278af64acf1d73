package pref

import (
	"sync"

	"github.com/ValentinKolb/prefkv/lib/store"
	"github.com/ValentinKolb/prefkv/lib/store/storetest"
)

// recordingSubscriber records every value it receives
type recordingSubscriber[T any] struct {
	mu     sync.Mutex
	values []T
}

func (s *recordingSubscriber[T]) OnChanged(value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
}

func (s *recordingSubscriber[T]) Values() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.values...)
}

func (s *recordingSubscriber[T]) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// countingOpener returns rec and counts how often it was asked for it
type countingOpener struct {
	mu    sync.Mutex
	rec   *storetest.Recorder
	opens int
	err   error
}

func (o *countingOpener) open() (store.IStore, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.rec, nil
}

func (o *countingOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// manualDispatcher queues tasks until drain runs them
type manualDispatcher struct {
	mu    sync.Mutex
	tasks []func()
}

func (d *manualDispatcher) Dispatch(task func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
}

// drain runs queued tasks, including the ones they queue, until none is left
func (d *manualDispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.tasks) == 0 {
			d.mu.Unlock()
			return
		}
		task := d.tasks[0]
		d.tasks = d.tasks[1:]
		d.mu.Unlock()
		task()
	}
}
