package dispatch

import (
	"sync/atomic"
)

// Loop is a sequential execution context: a single goroutine that runs the
// dispatched tasks one after another. Tasks dispatched from one goroutine run
// in dispatch order.
//
// A task running on the loop must not block on work that itself needs the
// loop, e.g. waiting for a value that is delivered through the same loop.
type Loop struct {
	name     string
	queue    *taskQueue
	done     chan struct{}
	executed atomic.Int64
}

// NewLoop starts a new loop
func NewLoop(name string) *Loop {
	l := &Loop{
		name:  name,
		queue: newTaskQueue(),
		done:  make(chan struct{}),
	}
	go l.consume()
	return l
}

func (l *Loop) consume() {
	defer close(l.done)
	for l.queue.wait() {
		for {
			task, ok := l.queue.pop()
			if !ok {
				break
			}
			run(l.name, task)
			l.executed.Add(1)
		}
	}
}

// Dispatch schedules task on the loop. Tasks dispatched after Close are
// dropped.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *Loop) Dispatch(task func()) {
	if task == nil {
		return
	}
	if !l.queue.push(task) {
		plog.Warningf("loop %s is closed, dropping task", l.name)
	}
}

// Flush blocks until every task dispatched before the call has run. It must
// not be called from a task on the same loop.
func (l *Loop) Flush() {
	marker := make(chan struct{})
	if !l.queue.push(func() { close(marker) }) {
		<-l.done
		return
	}
	select {
	case <-marker:
	case <-l.done:
	}
}

// Close stops accepting tasks, runs the ones already queued and waits for the
// loop goroutine to exit.
func (l *Loop) Close() {
	l.queue.close()
	<-l.done
}

// Pending returns an approximate number of queued tasks
func (l *Loop) Pending() int {
	return l.queue.len()
}

// Executed returns the number of tasks run so far
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}
