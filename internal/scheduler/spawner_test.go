package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is the worker started by the exec
// tests below: TN_TASK is either an exit code or "hang".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	task := os.Getenv(TaskEnv)
	os.Stdout.WriteString("task " + os.Getenv(TaskIndexEnv) + " in " + os.Getenv(ProjectDirEnv) + "\n")
	if task == "hang" {
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	code, err := strconv.Atoi(task)
	if err != nil {
		os.Exit(100)
	}
	os.Exit(code)
}

func helperSpawner(t *testing.T) (*ExecSpawner, *os.File) {
	t.Helper()
	out, err := os.Create(filepath.Join(t.TempDir(), "output.log"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { out.Close() })
	return &ExecSpawner{
		Path:       os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$", "--"},
		ProjectDir: t.TempDir(),
		Env:        []string{"GO_WANT_HELPER_PROCESS=1"},
		Stdout:     out,
		Stderr:     out,
	}, out
}

func TestExecSpawner_ExitCodes(t *testing.T) {
	spawner, out := helperSpawner(t)

	res, err := New(spawner, DefaultConfig(2)).Run(context.Background(), []TaskID{"0", "3", "0", "7"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Succeeded != 2 || len(res.Failed) != 2 {
		t.Fatalf("succeeded=%d failed=%+v", res.Succeeded, res.Failed)
	}
	codes := make(map[int]int)
	for _, f := range res.Failed {
		codes[f.Task.Index] = f.ExitCode
		if f.Err != nil {
			t.Errorf("task %d: unexpected error %v", f.Task.Index, f.Err)
		}
	}
	if codes[1] != 3 || codes[3] != 7 {
		t.Errorf("exit codes = %v", codes)
	}
	data, err := os.ReadFile(out.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("task 2 in "+spawner.ProjectDir)) {
		t.Errorf("worker did not receive its environment, output %q", data)
	}
}

func TestExecSpawner_TerminateOnCancel(t *testing.T) {
	spawner, _ := helperSpawner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := &recordingEvents{onDispatch: func(n int) {
		if n == 2 {
			// Give the children time to start before they are signalled.
			time.AfterFunc(200*time.Millisecond, cancel)
		}
	}}
	cfg := DefaultConfig(2)
	cfg.Grace = 2 * time.Second

	start := time.Now()
	res, err := New(spawner, cfg).WithEvents(events).Run(ctx, []TaskID{"hang", "hang", "0"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 30*time.Second {
		t.Error("workers were not terminated")
	}
	if len(res.Failed) != 2 || len(res.Skipped) != 1 {
		t.Fatalf("failed=%+v skipped=%+v", res.Failed, res.Skipped)
	}
	for _, f := range res.Failed {
		if f.ExitCode != -1 || f.Err == nil {
			t.Errorf("task %d: expected a signal exit, got code %d err %v", f.Task.Index, f.ExitCode, f.Err)
		}
	}
}

func TestExecSpawner_StartFailure(t *testing.T) {
	spawner := &ExecSpawner{Path: filepath.Join(t.TempDir(), "missing")}
	cfg := DefaultConfig(1)
	cfg.SpawnRetries = 1
	cfg.SpawnBackoff = time.Millisecond

	res, err := New(spawner, cfg).Run(context.Background(), []TaskID{"0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.SpawnFailed) != 1 || res.SpawnFailed[0].Attempts != 2 {
		t.Errorf("spawn failed = %+v", res.SpawnFailed)
	}
	if !errors.Is(res.SpawnFailed[0].Err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", res.SpawnFailed[0].Err)
	}
}
