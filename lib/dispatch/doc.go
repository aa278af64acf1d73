// Package dispatch provides the execution contexts preferences run on.
//
//   - Loop: the main sequential context. A single goroutine drains a lock-free
//     multi-producer single-consumer task queue, so everything dispatched to
//     it is serialized without locks in the tasks.
//   - Pool: the background context for store reads, blocking waits and
//     asynchronous callbacks, built on an errgroup.
//   - Unconfined: runs tasks inline on the caller, for deterministic tests.
//
// A panicking task is recovered and logged, the context keeps running.
package dispatch
