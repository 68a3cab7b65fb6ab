package scheduler

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"time"
)

// fakeProc exits after delay with code, or when signalled. A negative delay
// runs until a signal arrives.
type fakeProc struct {
	pid        int
	code       int
	delay      time.Duration
	ignoreTerm bool
	onExit     func()

	mu       sync.Mutex
	signals  []string
	term     chan struct{}
	termOnce sync.Once
	kill     chan struct{}
	killOnce sync.Once
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) Wait() (int, error) {
	var timer <-chan time.Time
	if p.delay >= 0 {
		timer = time.After(p.delay)
	}
	defer p.onExit()
	select {
	case <-timer:
		return p.code, nil
	case <-p.term:
		return -1, errors.New("signal: terminated")
	case <-p.kill:
		return -1, errors.New("signal: killed")
	}
}

func (p *fakeProc) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig.String())
	p.mu.Unlock()
	if sig == syscall.SIGTERM && !p.ignoreTerm {
		p.termOnce.Do(func() { close(p.term) })
	}
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.signals = append(p.signals, "killed")
	p.mu.Unlock()
	p.killOnce.Do(func() { close(p.kill) })
	return nil
}

func (p *fakeProc) Signals() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.signals...)
}

// fakeSpawner records spawn order and the peak number of live processes.
type fakeSpawner struct {
	// behave returns the exit code and run time of a task.
	behave func(t Task) (code int, delay time.Duration)

	// fail, when set, returns a spawn error for the given attempt (from 1).
	fail func(t Task, attempt int) error

	ignoreTerm bool

	mu       sync.Mutex
	live     int
	maxLive  int
	nextPid  int
	order    []int
	attempts map[int]int
	procs    []*fakeProc
}

func (s *fakeSpawner) Spawn(t Task) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempts == nil {
		s.attempts = make(map[int]int)
	}
	s.attempts[t.Index]++
	if s.fail != nil {
		if err := s.fail(t, s.attempts[t.Index]); err != nil {
			return nil, err
		}
	}

	code, delay := 0, time.Millisecond
	if s.behave != nil {
		code, delay = s.behave(t)
	}

	s.nextPid++
	s.live++
	if s.live > s.maxLive {
		s.maxLive = s.live
	}
	s.order = append(s.order, t.Index)

	p := &fakeProc{
		pid:        1000 + s.nextPid,
		code:       code,
		delay:      delay,
		ignoreTerm: s.ignoreTerm,
		term:       make(chan struct{}),
		kill:       make(chan struct{}),
		onExit: func() {
			s.mu.Lock()
			s.live--
			s.mu.Unlock()
		},
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) Order() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.order...)
}

func (s *fakeSpawner) MaxLive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLive
}

func (s *fakeSpawner) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *fakeSpawner) Procs() []*fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProc(nil), s.procs...)
}

// countingReporter counts reporter calls.
type countingReporter struct {
	mu       sync.Mutex
	total    int
	starts   int
	advances int
	finishes int
}

func (r *countingReporter) Start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.total = total
}

func (r *countingReporter) Advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances++
}

func (r *countingReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes++
}

// recordingEvents records callbacks and can run a hook on dispatch.
type recordingEvents struct {
	onDispatch func(dispatched int)

	dispatched  []int
	exits       []int
	spawnErrors []bool
	skipped     []int
}

func (e *recordingEvents) OnDispatch(t Task, pid, attempt int) {
	e.dispatched = append(e.dispatched, t.Index)
	if e.onDispatch != nil {
		e.onDispatch(len(e.dispatched))
	}
}

func (e *recordingEvents) OnExit(t Task, pid, code int, err error) {
	e.exits = append(e.exits, t.Index)
}

func (e *recordingEvents) OnSpawnError(t Task, attempt int, err error, willRetry bool) {
	e.spawnErrors = append(e.spawnErrors, willRetry)
}

func (e *recordingEvents) OnSkipped(t Task) {
	e.skipped = append(e.skipped, t.Index)
}

func taskIDs(n int) []TaskID {
	ids := make([]TaskID, n)
	for i := range ids {
		ids[i] = TaskID("task")
	}
	return ids
}

func fastConfig(n int) Config {
	cfg := DefaultConfig(n)
	cfg.SpawnBackoff = time.Millisecond
	cfg.SpawnMaxBackoff = 5 * time.Millisecond
	cfg.Grace = 20 * time.Millisecond
	return cfg
}
