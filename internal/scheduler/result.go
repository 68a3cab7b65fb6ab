package scheduler

import "time"

// Failure is a task whose process exited with a non-zero status or did not
// exit normally.
type Failure struct {
	Task     Task
	ExitCode int
	Err      error
}

// SpawnFailure is a task abandoned after its process could not be started.
type SpawnFailure struct {
	Task     Task
	Attempts int
	Err      error
}

// Result summarizes a scheduler run.
type Result struct {
	Total       int
	Dispatched  int
	Succeeded   int
	Failed      []Failure
	SpawnFailed []SpawnFailure

	// Skipped holds the tasks never dispatched because the run was cancelled.
	Skipped []Task

	Cancelled bool
	Duration  time.Duration
}

// Completed counts tasks that advanced progress: every reaped process plus
// every task abandoned after spawn retries.
func (r *Result) Completed() int {
	return r.Succeeded + len(r.Failed) + len(r.SpawnFailed)
}

// OK reports whether every task ran and exited zero.
func (r *Result) OK() bool {
	return !r.Cancelled && len(r.Failed) == 0 && len(r.SpawnFailed) == 0 && r.Succeeded == r.Total
}
