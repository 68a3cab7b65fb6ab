// Package ledger records each run as a JSON Lines event log under the
// project's runs directory.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pablasso/tn/internal/logx"
	"github.com/pablasso/tn/internal/scheduler"
)

const (
	eventsFileName = "events.jsonl"

	// OutputFileName receives worker output when it is not shown directly.
	OutputFileName = "output.log"
)

// Event type constants for the run ledger.
const (
	EventRunStarted     = "run_started"
	EventTaskDispatched = "task_dispatched"
	EventTaskExited     = "task_exited"
	EventSpawnFailed    = "spawn_failed"
	EventTaskSkipped    = "task_skipped"
	EventRunFinished    = "run_finished"
)

// Event represents a single ledger entry.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Ledger appends events for one run. It implements scheduler.Events.
type Ledger struct {
	id     string
	dir    string
	mu     sync.Mutex
	logger logx.Logger
	now    func() time.Time
}

// Create starts a new run directory under runsDir.
func Create(runsDir string) (*Ledger, error) {
	id := uuid.NewString()
	dir := filepath.Join(runsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Ledger{id: id, dir: dir, logger: logx.Nop(), now: time.Now}, nil
}

// WithLogger sets where write failures from scheduler callbacks are reported.
func (l *Ledger) WithLogger(logger logx.Logger) *Ledger {
	l.logger = logger
	return l
}

// ID returns the run identifier.
func (l *Ledger) ID() string { return l.id }

// Dir returns the run directory.
func (l *Ledger) Dir() string { return l.dir }

// OutputPath returns the path of the run's worker output log.
func (l *Ledger) OutputPath() string { return filepath.Join(l.dir, OutputFileName) }

// Log appends an event to the ledger file.
func (l *Ledger) Log(event string, data map[string]any) error {
	entry := Event{
		Timestamp: l.now(),
		Event:     event,
		Data:      data,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	jsonBytes = append(jsonBytes, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(filepath.Join(l.dir, eventsFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(jsonBytes)
	return err
}

// RunStarted logs a run_started event.
func (l *Ledger) RunStarted(configPath string, total, processes int) error {
	return l.Log(EventRunStarted, map[string]any{
		"config":    configPath,
		"total":     total,
		"processes": processes,
	})
}

// RunFinished logs a run_finished event with summary statistics.
func (l *Ledger) RunFinished(res scheduler.Result) error {
	failed := make([]int, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.Task.Index)
	}
	return l.Log(EventRunFinished, map[string]any{
		"total":        res.Total,
		"dispatched":   res.Dispatched,
		"succeeded":    res.Succeeded,
		"failed":       failed,
		"spawn_failed": len(res.SpawnFailed),
		"skipped":      len(res.Skipped),
		"cancelled":    res.Cancelled,
		"duration_ms":  res.Duration.Milliseconds(),
	})
}

func (l *Ledger) OnDispatch(t scheduler.Task, pid, attempt int) {
	l.record(EventTaskDispatched, map[string]any{
		"task":    t.Index,
		"pid":     pid,
		"attempt": attempt,
	})
}

func (l *Ledger) OnExit(t scheduler.Task, pid, code int, err error) {
	data := map[string]any{
		"task": t.Index,
		"pid":  pid,
		"code": code,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.record(EventTaskExited, data)
}

func (l *Ledger) OnSpawnError(t scheduler.Task, attempt int, err error, willRetry bool) {
	l.record(EventSpawnFailed, map[string]any{
		"task":    t.Index,
		"attempt": attempt,
		"error":   err.Error(),
		"retry":   willRetry,
	})
}

func (l *Ledger) OnSkipped(t scheduler.Task) {
	l.record(EventTaskSkipped, map[string]any{"task": t.Index})
}

func (l *Ledger) record(event string, data map[string]any) {
	if err := l.Log(event, data); err != nil {
		l.logger.Warn("failed to write run ledger", logx.String("event", event), logx.Err(err))
	}
}
