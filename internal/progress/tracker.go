// Package progress tracks and renders how many tasks of a run have completed.
package progress

import (
	"errors"
	"sync"
	"time"
)

// ErrOverAdvance is returned when progress is advanced past its total.
var ErrOverAdvance = errors.New("progress advanced past total")

// Snapshot is a point-in-time view of a Tracker.
type Snapshot struct {
	Total     int
	Completed int
	Elapsed   time.Duration

	// ETA is the estimated time remaining. It is only meaningful when
	// ETAKnown is set, which requires at least one completion.
	ETA      time.Duration
	ETAKnown bool

	Finished bool
}

// Percent returns completion in [0, 100]. An empty run is complete.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Completed) * 100 / float64(s.Total)
}

// Tracker counts completions against a fixed total. It is safe for
// concurrent use.
type Tracker struct {
	mu        sync.Mutex
	total     int
	completed int
	start     time.Time
	end       time.Time
	finished  bool
	err       error
	now       func() time.Time
}

// NewTracker returns an unstarted tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Start fixes the total and starts the clock.
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = total
	t.completed = 0
	t.start = t.now()
	t.finished = false
	t.err = nil
}

// Advance records one completion. Advancing past the total returns
// ErrOverAdvance and leaves the count unchanged.
func (t *Tracker) Advance() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed >= t.total {
		if t.err == nil {
			t.err = ErrOverAdvance
		}
		return ErrOverAdvance
	}
	t.completed++
	return nil
}

// Finish stops the clock. Later calls have no effect.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	t.finished = true
	t.end = t.now()
}

// Err returns ErrOverAdvance if Advance was ever called past the total.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	end := t.now()
	if t.finished {
		end = t.end
	}
	s := Snapshot{
		Total:     t.total,
		Completed: t.completed,
		Elapsed:   end.Sub(t.start),
		Finished:  t.finished,
	}
	if t.completed > 0 {
		perTask := s.Elapsed / time.Duration(t.completed)
		s.ETA = perTask * time.Duration(t.total-t.completed)
		s.ETAKnown = true
	}
	return s
}
