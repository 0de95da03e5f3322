// Package orchestrator runs independent task modules with isolated failure
// domains and records every outcome into a core.ResultStore.
//
// Tasks share no mutable state, so serial and parallel runs produce the same
// store. Run returns only after every task has reached a terminal state; the
// document patch stage relies on that barrier.
package orchestrator
