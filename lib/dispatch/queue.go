package dispatch

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single task in the queue
type node struct {
	task func()
	next atomic.Pointer[node]
}

// taskQueue is a lock-free multi-producer single-consumer queue of tasks.
// It is a linked list with a sentinel head. Producers append with CAS on the
// tail, the single consumer advances the head. Tasks pushed by one producer
// are popped in push order.
type taskQueue struct {
	head   atomic.Pointer[node]
	tail   atomic.Pointer[node]
	closed atomic.Bool
	size   atomic.Int64

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

func newTaskQueue() *taskQueue {
	sentinel := &node{}
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// push appends task. It returns false if the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *taskQueue) push(task func()) bool {
	if task == nil || q.closed.Load() {
		return false
	}

	newNode := &node{task: task}
	var backoff uint8

	for {
		tailNode := q.tail.Load()
		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// another producer may already have moved the tail
				q.tail.CompareAndSwap(tailNode, newNode)
				q.size.Add(1)

				// signal under the lock so a consumer between its check and Wait does not miss it
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that appended but did not move the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// spin a little under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// pop removes the oldest task. It returns false if the queue is empty.
//
// Thread-safety: Only the single consumer may call pop.
func (q *taskQueue) pop() (func(), bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}
	task := next.task
	next.task = nil // next becomes the sentinel
	q.head.Store(next)
	q.size.Add(-1)
	return task, true
}

// wait blocks until a task is available or the queue is closed.
// It returns false once the queue is closed and drained.
//
// Thread-safety: Only the single consumer may call wait.
func (q *taskQueue) wait() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head.Load().next.Load() == nil {
		if q.closed.Load() {
			return false
		}
		q.cond.Wait()
	}
	return true
}

// close prevents further pushes. Queued tasks can still be popped.
func (q *taskQueue) close() {
	q.closed.Store(true)
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// len returns an approximate count of queued tasks
func (q *taskQueue) len() int {
	return int(q.size.Load())
}
