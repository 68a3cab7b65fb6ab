package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Summary describes one recorded run.
type Summary struct {
	ID      string
	Config  string
	Started time.Time

	Total       int
	Processes   int
	Succeeded   int
	Failed      []int
	SpawnFailed int
	Skipped     int
	Cancelled   bool
	Duration    time.Duration

	// Finished is false when the run never logged run_finished, for example
	// because the parent process was killed.
	Finished bool
}

// ReadEvents reads a run's events in the order they were written.
func ReadEvents(runDir string) ([]Event, error) {
	f, err := os.Open(filepath.Join(runDir, eventsFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("corrupt ledger %s: %w", runDir, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Summarize folds a run's events into a Summary.
func Summarize(id string, events []Event) Summary {
	s := Summary{ID: id}
	succeeded := 0
	for _, ev := range events {
		switch ev.Event {
		case EventRunStarted:
			s.Started = ev.Timestamp
			s.Config, _ = ev.Data["config"].(string)
			s.Total = intField(ev.Data, "total")
			s.Processes = intField(ev.Data, "processes")
		case EventTaskExited:
			if intField(ev.Data, "code") == 0 && ev.Data["error"] == nil {
				succeeded++
			}
		case EventRunFinished:
			s.Finished = true
			s.Succeeded = intField(ev.Data, "succeeded")
			s.SpawnFailed = intField(ev.Data, "spawn_failed")
			s.Skipped = intField(ev.Data, "skipped")
			s.Cancelled, _ = ev.Data["cancelled"].(bool)
			s.Duration = time.Duration(intField(ev.Data, "duration_ms")) * time.Millisecond
			if list, ok := ev.Data["failed"].([]any); ok {
				for _, v := range list {
					if f, ok := v.(float64); ok {
						s.Failed = append(s.Failed, int(f))
					}
				}
			}
		}
	}
	if !s.Finished {
		s.Succeeded = succeeded
	}
	return s
}

// List returns up to limit runs found under runsDir, newest first. A limit
// of zero or less returns every run. Directories without a readable ledger
// are skipped.
func List(runsDir string, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var runs []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		events, err := ReadEvents(filepath.Join(runsDir, entry.Name()))
		if err != nil || len(events) == 0 {
			continue
		}
		runs = append(runs, Summarize(entry.Name(), events))
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Started.After(runs[j].Started)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
