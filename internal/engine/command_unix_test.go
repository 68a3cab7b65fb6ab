//go:build unix

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

// waitForPID reads the PID a shell wrote to path.
func waitForPID(path string) (int, error) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(path); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
				return pid, nil
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 0, fmt.Errorf("no pid in %s", path)
}

// gone reports whether pid has exited; a zombie awaiting its reaper counts.
func gone(pid int) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
			return true
		}
		if data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid)); err == nil {
			if i := bytes.LastIndexByte(data, ')'); i >= 0 && i+2 < len(data) && data[i+2] == 'Z' {
				return true
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func TestCommand_CancelKillsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	v, err := newCommand(Call{
		Kwargs: map[string]any{"shell": "sleep 30 & echo $! > pid; wait", "dir": dir},
		Stdout: &out,
		Stderr: &out,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pidc := make(chan int, 1)
	go func() {
		pid, err := waitForPID(filepath.Join(dir, "pid"))
		if err != nil {
			t.Error(err)
		}
		pidc <- pid
		cancel()
	}()

	err = v.(Runnable).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	pid := <-pidc
	if pid == 0 {
		return
	}
	t.Cleanup(func() { syscall.Kill(pid, syscall.SIGKILL) })
	if !gone(pid) {
		t.Errorf("background process %d survived cancellation", pid)
	}
}
