package scheduler

import "os"

// TaskID is an opaque task identifier produced by expansion and handed
// unmodified to the worker process.
type TaskID string

// Task is a queued task together with its position in the original queue.
type Task struct {
	Index int
	ID    TaskID
}

// Process is a spawned, running task.
type Process interface {
	// Pid identifies the process while it runs.
	Pid() int

	// Wait blocks until the process exits and returns its exit code. A
	// process that did not exit normally (killed by a signal, wait failure)
	// reports code -1 and a non-nil error.
	Wait() (int, error)

	// Signal delivers sig. Signalling a process that already exited is not
	// an error.
	Signal(sig os.Signal) error

	// Kill terminates the process immediately.
	Kill() error
}

// Spawner starts the process that runs a task.
type Spawner interface {
	Spawn(t Task) (Process, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(t Task) (Process, error)

func (f SpawnerFunc) Spawn(t Task) (Process, error) { return f(t) }

// Reporter receives aggregate progress. Start is called once with the queue
// length, Advance once per completed or abandoned task, Finish once at the end.
type Reporter interface {
	Start(total int)
	Advance()
	Finish()
}

// Events receives per-task callbacks from the control loop. Callbacks run on
// the loop goroutine and must not block.
type Events interface {
	// OnDispatch is called after a task's process has been started.
	OnDispatch(t Task, pid, attempt int)

	// OnExit is called once per reaped process.
	OnExit(t Task, pid, code int, err error)

	// OnSpawnError is called when starting a task's process fails.
	OnSpawnError(t Task, attempt int, err error, willRetry bool)

	// OnSkipped is called for each task left undispatched by cancellation.
	OnSkipped(t Task)
}

type nopReporter struct{}

func (nopReporter) Start(int) {}
func (nopReporter) Advance()  {}
func (nopReporter) Finish()   {}

type nopEvents struct{}

func (nopEvents) OnDispatch(Task, int, int)           {}
func (nopEvents) OnExit(Task, int, int, error)        {}
func (nopEvents) OnSpawnError(Task, int, error, bool) {}
func (nopEvents) OnSkipped(Task)                      {}
