package dispatch

import (
	"runtime/debug"

	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("dispatch")

// Dispatcher runs tasks on an execution context
type Dispatcher interface {
	// Dispatch schedules task. It never blocks on the task itself.
	Dispatch(task func())
}

// run executes task and logs a panic instead of propagating it, so a faulty
// task does not take its execution context down.
func run(name string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			plog.Errorf("task on %s panicked: %v\n%s", name, r, debug.Stack())
		}
	}()
	task()
}

// --------------------------------------------------------------------------
// Unconfined
// --------------------------------------------------------------------------

type unconfined struct{}

// Unconfined runs every task inline on the calling goroutine. Tests use it to
// make asynchronous deliveries deterministic.
var Unconfined Dispatcher = unconfined{}

func (unconfined) Dispatch(task func()) {
	if task == nil {
		return
	}
	run("unconfined", task)
}
