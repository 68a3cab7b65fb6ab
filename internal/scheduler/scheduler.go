// Package scheduler runs a queue of tasks as independent OS processes with a
// fixed upper bound on how many run at once.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pablasso/tn/internal/logx"
)

// ErrInvalidConcurrency is returned when the process limit is below one.
var ErrInvalidConcurrency = errors.New("number of processes must be at least 1")

// ShutdownPolicy decides what happens to running processes on cancellation.
type ShutdownPolicy string

const (
	// ShutdownTerminate sends SIGTERM to running processes and SIGKILL to
	// those still alive after the grace period.
	ShutdownTerminate ShutdownPolicy = "terminate"

	// ShutdownWait lets running processes finish on their own.
	ShutdownWait ShutdownPolicy = "wait"
)

// Default spawn retry settings.
const (
	DefaultSpawnRetries    = 3
	DefaultSpawnBackoff    = 200 * time.Millisecond
	DefaultSpawnMaxBackoff = 5 * time.Second
	DefaultGrace           = 5 * time.Second

	backoffJitter = 0.2
)

// Config controls a Scheduler.
type Config struct {
	// Processes is the maximum number of concurrently running processes.
	Processes int

	// SpawnRetries is how many times a failed spawn is retried before the
	// task is abandoned. Zero disables retries.
	SpawnRetries    int
	SpawnBackoff    time.Duration
	SpawnMaxBackoff time.Duration

	// SpawnRate limits process starts per second. Zero means unlimited.
	SpawnRate float64

	Shutdown ShutdownPolicy
	Grace    time.Duration
}

// DefaultConfig returns the configuration for n processes.
func DefaultConfig(n int) Config {
	return Config{
		Processes:       n,
		SpawnRetries:    DefaultSpawnRetries,
		SpawnBackoff:    DefaultSpawnBackoff,
		SpawnMaxBackoff: DefaultSpawnMaxBackoff,
		Shutdown:        ShutdownTerminate,
		Grace:           DefaultGrace,
	}
}

// Scheduler dispatches tasks to processes.
type Scheduler struct {
	cfg      Config
	spawner  Spawner
	reporter Reporter
	events   Events
	logger   logx.Logger
	limiter  *rate.Limiter
}

// New creates a Scheduler that starts processes with spawner.
func New(spawner Spawner, cfg Config) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		spawner:  spawner,
		reporter: nopReporter{},
		events:   nopEvents{},
		logger:   logx.Nop(),
	}
	if cfg.SpawnRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SpawnRate), 1)
	}
	return s
}

// WithReporter sets the progress reporter.
func (s *Scheduler) WithReporter(r Reporter) *Scheduler {
	s.reporter = r
	return s
}

// WithEvents sets the per-task event receiver.
func (s *Scheduler) WithEvents(e Events) *Scheduler {
	s.events = e
	return s
}

// WithLogger sets the logger.
func (s *Scheduler) WithLogger(l logx.Logger) *Scheduler {
	s.logger = l
	return s
}

// slot is an in-flight process.
type slot struct {
	task    Task
	proc    Process
	pid     int
	attempt int
}

type exitEvent struct {
	id   int
	code int
	err  error
}

// Run executes every task exactly once, keeping at most cfg.Processes
// processes alive, and returns after every started process has been reaped.
//
// On cancellation no further tasks are dispatched; undispatched tasks are
// reported in Result.Skipped and ctx.Err() is returned along with the result.
func (s *Scheduler) Run(ctx context.Context, ids []TaskID) (Result, error) {
	n := s.cfg.Processes
	if n < 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, n)
	}

	start := time.Now()
	res := Result{Total: len(ids)}
	queue := make([]Task, len(ids))
	for i, id := range ids {
		queue[i] = Task{Index: i, ID: id}
	}

	s.reporter.Start(len(ids))
	s.logger.Debug("run started", logx.Int("tasks", len(ids)), logx.Int("processes", n))

	var (
		running  = make(map[int]*slot, n)
		attempts = make(map[int]int)
		exits    = make(chan exitEvent, n)
		nextID   int

		retry     *time.Timer
		retryC    <-chan time.Time
		kill      *time.Timer
		killC     <-chan time.Time
		done      = ctx.Done()
		cancelled bool
	)
	defer func() {
		if retry != nil {
			retry.Stop()
		}
		if kill != nil {
			kill.Stop()
		}
	}()

	for len(queue) > 0 || len(running) > 0 {
		for !cancelled && retryC == nil && len(running) < n && len(queue) > 0 && ctx.Err() == nil {
			t := queue[0]
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					break
				}
			}
			queue = queue[1:]
			attempts[t.Index]++
			attempt := attempts[t.Index]

			proc, err := s.spawner.Spawn(t)
			if err != nil {
				willRetry := attempt <= s.cfg.SpawnRetries
				s.logger.Warn("failed to spawn worker",
					logx.Int("task", t.Index),
					logx.Int("attempt", attempt),
					logx.Bool("retry", willRetry),
					logx.Err(err))
				s.events.OnSpawnError(t, attempt, err, willRetry)

				if willRetry {
					queue = append([]Task{t}, queue...)
					retry = time.NewTimer(backoffDelay(s.cfg.SpawnBackoff, s.cfg.SpawnMaxBackoff, attempt))
					retryC = retry.C
					break
				}
				res.SpawnFailed = append(res.SpawnFailed, SpawnFailure{Task: t, Attempts: attempt, Err: err})
				s.reporter.Advance()
				continue
			}

			id := nextID
			nextID++
			sl := &slot{task: t, proc: proc, pid: proc.Pid(), attempt: attempt}
			running[id] = sl
			res.Dispatched++
			s.logger.Debug("task dispatched", logx.Int("task", t.Index), logx.Int("pid", sl.pid))
			s.events.OnDispatch(t, sl.pid, attempt)

			go func() {
				code, err := proc.Wait()
				exits <- exitEvent{id: id, code: code, err: err}
			}()
		}

		if len(queue) == 0 && len(running) == 0 {
			break
		}

		select {
		case ev := <-exits:
			sl := running[ev.id]
			delete(running, ev.id)
			s.events.OnExit(sl.task, sl.pid, ev.code, ev.err)
			if ev.code == 0 && ev.err == nil {
				res.Succeeded++
			} else {
				res.Failed = append(res.Failed, Failure{Task: sl.task, ExitCode: ev.code, Err: ev.err})
				s.logger.Info("task failed",
					logx.Int("task", sl.task.Index),
					logx.Int("pid", sl.pid),
					logx.Int("code", ev.code))
			}
			s.reporter.Advance()

		case <-retryC:
			retry, retryC = nil, nil

		case <-done:
			done = nil
			cancelled = true
			res.Cancelled = true
			if retry != nil {
				retry.Stop()
				retry, retryC = nil, nil
			}
			for _, t := range queue {
				s.events.OnSkipped(t)
			}
			res.Skipped = append(res.Skipped, queue...)
			queue = nil

			s.logger.Warn("run cancelled",
				logx.Int("running", len(running)),
				logx.Int("skipped", len(res.Skipped)),
				logx.String("policy", string(s.cfg.Shutdown)))
			if s.cfg.Shutdown != ShutdownWait && len(running) > 0 {
				s.signalAll(running, "SIGTERM", func(p Process) error { return p.Signal(syscall.SIGTERM) })
				kill = time.NewTimer(s.cfg.Grace)
				killC = kill.C
			}

		case <-killC:
			killC = nil
			s.logger.Warn("grace period expired", logx.Int("running", len(running)))
			s.signalAll(running, "SIGKILL", func(p Process) error { return p.Kill() })
		}
	}

	s.reporter.Finish()
	res.Duration = time.Since(start)
	s.logger.Debug("run finished",
		logx.Int("succeeded", res.Succeeded),
		logx.Int("failed", len(res.Failed)),
		logx.Int("spawn_failed", len(res.SpawnFailed)),
		logx.Duration("duration", res.Duration))

	if res.Cancelled {
		return res, ctx.Err()
	}
	return res, nil
}

// signalAll applies fn to every running process concurrently.
func (s *Scheduler) signalAll(running map[int]*slot, name string, fn func(Process) error) {
	var g errgroup.Group
	for _, sl := range running {
		sl := sl
		g.Go(func() error {
			if err := fn(sl.proc); err != nil {
				return fmt.Errorf("pid %d: %w", sl.pid, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to signal worker", logx.String("signal", name), logx.Err(err))
	}
}

// backoffDelay returns the wait before spawn retry number attempt (starting
// at 1): base doubled per attempt, capped at maxDelay, with ±20% jitter.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = DefaultSpawnBackoff
	}
	if maxDelay <= 0 {
		maxDelay = DefaultSpawnMaxBackoff
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > maxDelay {
			d = maxDelay
			break
		}
	}
	r := (rand.Float64()*2 - 1) * backoffJitter
	d = time.Duration(float64(d) * (1 + r))
	if d < 0 {
		d = 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
