package progress

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the reporter's update goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLineReporter_PlainPrintsOneLinePerAdvance(t *testing.T) {
	var out syncBuffer
	r := NewLineReporter(&out).WithRewrite(false)

	r.Start(2)
	r.Advance()
	r.Advance()
	r.Finish()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "1/2 │") || !strings.HasPrefix(lines[1], "2/2 │") {
		t.Errorf("unexpected progress lines: %q", lines)
	}
	if !strings.HasPrefix(lines[2], "done 2/2 in ") {
		t.Errorf("unexpected summary: %q", lines[2])
	}
	if strings.Contains(out.String(), "\r") {
		t.Error("plain output should not rewrite lines")
	}
}

func TestLineReporter_RewritesInPlace(t *testing.T) {
	var out syncBuffer
	r := NewLineReporter(&out).WithRewrite(true).WithInterval(5 * time.Millisecond)

	r.Start(3)
	r.Advance()
	time.Sleep(20 * time.Millisecond)
	r.Advance()
	r.Advance()
	r.Finish()

	got := out.String()
	if !strings.Contains(got, "\r\033[K") {
		t.Errorf("expected carriage-return rewrites, got %q", got)
	}
	if !strings.Contains(got, "■■■■■■■■■■■■■■■■■■■■ 100%") {
		t.Errorf("expected a full bar, got %q", got)
	}
	if !strings.HasSuffix(got, "\r\033[Kdone 3/3 in 00:00\n") {
		t.Errorf("expected the status line replaced by a summary, got %q", got)
	}
	if r.Err() != nil {
		t.Errorf("Err() = %v", r.Err())
	}
}

func TestLineReporter_EmptyRun(t *testing.T) {
	var out syncBuffer
	r := NewLineReporter(&out).WithRewrite(false)

	r.Start(0)
	r.Finish()

	if got := out.String(); got != "done 0/0 in 00:00\n" {
		t.Errorf("got %q", got)
	}
}

func TestLineReporter_FinishIsIdempotent(t *testing.T) {
	var out syncBuffer
	r := NewLineReporter(&out).WithRewrite(true).WithInterval(time.Millisecond)

	r.Finish()
	r.Start(1)
	r.Advance()
	r.Finish()
	r.Finish()

	if n := strings.Count(out.String(), "done 1/1"); n != 1 {
		t.Errorf("expected one summary, got %d in %q", n, out.String())
	}
}

func TestLineReporter_OverAdvance(t *testing.T) {
	r := NewLineReporter(&syncBuffer{}).WithRewrite(false)
	r.Start(1)
	r.Advance()
	r.Advance()
	r.Finish()

	if !errors.Is(r.Err(), ErrOverAdvance) {
		t.Errorf("Err() = %v", r.Err())
	}
	if r.Snapshot().Completed != 1 {
		t.Errorf("Completed = %d", r.Snapshot().Completed)
	}
}

func TestLineReporter_FormatLineTruncates(t *testing.T) {
	r := NewLineReporter(&syncBuffer{}).WithWidth(20)
	line := r.formatLine("⣾", Snapshot{Total: 10, Completed: 5})

	if !strings.HasSuffix(line, "…") {
		t.Errorf("expected a truncated line, got %q", line)
	}
	if n := len([]rune(line)); n > 19 {
		t.Errorf("line is %d columns wide: %q", n, line)
	}
}

func TestNop(t *testing.T) {
	n := NewNop()
	n.Start(2)
	n.Advance()
	n.Advance()
	n.Finish()

	s := n.Snapshot()
	if s.Completed != 2 || !s.Finished || n.Err() != nil {
		t.Errorf("unexpected state: %+v err %v", s, n.Err())
	}
}
