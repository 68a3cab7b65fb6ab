package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

const barWidth = 20

// LineReporter renders progress on a single status line. On a terminal the
// line is rewritten in place once per interval and on every advance;
// elsewhere each advance prints a new line.
type LineReporter struct {
	mu       sync.Mutex
	writer   io.Writer
	tracker  *Tracker
	rewrite  bool
	width    int
	frames   []string
	frame    int
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup // Ensures goroutine exits before Finish returns
	active   bool
	lastLine string
}

// NewLineReporter creates a reporter writing to w.
func NewLineReporter(w io.Writer) *LineReporter {
	r := &LineReporter{
		writer:   w,
		tracker:  NewTracker(),
		frames:   spinner.MiniDot.Frames,
		interval: time.Second,
	}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		r.rewrite = true
		if width, _, err := term.GetSize(f.Fd()); err == nil {
			r.width = width
		}
	}
	return r
}

// WithRewrite forces in-place rewriting on or off.
func (r *LineReporter) WithRewrite(rewrite bool) *LineReporter {
	r.rewrite = rewrite
	return r
}

// WithWidth truncates the status line to width columns. Zero disables
// truncation.
func (r *LineReporter) WithWidth(width int) *LineReporter {
	r.width = width
	return r
}

// WithInterval sets how often the line is redrawn while rewriting.
func (r *LineReporter) WithInterval(d time.Duration) *LineReporter {
	r.interval = d
	return r
}

// Start begins the display update loop.
func (r *LineReporter) Start(total int) {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return
	}
	r.active = true
	r.tracker.Start(total)
	r.mu.Unlock()

	if !r.rewrite {
		return
	}
	r.ticker = time.NewTicker(r.interval)
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.updateLoop()
}

// Advance records one completion and redraws.
func (r *LineReporter) Advance() {
	if err := r.tracker.Advance(); err != nil {
		return
	}
	if r.rewrite {
		r.render()
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.writer, statusText(r.tracker.Snapshot()))
}

// Finish stops the update loop and replaces the status line with a summary.
// Blocks until the update goroutine has exited.
func (r *LineReporter) Finish() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	r.tracker.Finish()
	if r.rewrite {
		r.ticker.Stop()
		close(r.done)
		r.wg.Wait()
		r.clearLine()
	}
	fmt.Fprintln(r.writer, summaryText(r.tracker.Snapshot()))
}

// Err reports ErrOverAdvance if the reporter was advanced past its total.
func (r *LineReporter) Err() error {
	return r.tracker.Err()
}

// Snapshot returns the tracked state.
func (r *LineReporter) Snapshot() Snapshot {
	return r.tracker.Snapshot()
}

func (r *LineReporter) updateLoop() {
	defer r.wg.Done()
	r.render()
	for {
		select {
		case <-r.ticker.C:
			r.render()
		case <-r.done:
			return
		}
	}
}

// render draws the current status line.
func (r *LineReporter) render() {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := r.frames[r.frame%len(r.frames)]
	r.frame++
	line := r.formatLine(frame, r.tracker.Snapshot())

	// Only update if changed (reduces flicker)
	if line == r.lastLine {
		return
	}
	r.lastLine = line

	// Move to start of line, clear it, write new content
	fmt.Fprintf(r.writer, "\r\033[K%s", line)
}

func (r *LineReporter) formatLine(frame string, s Snapshot) string {
	bar := Bar{Current: s.Completed, Total: s.Total, Width: barWidth}
	line := fmt.Sprintf("%s %s │ %s", frame, bar.View(), statusText(s))
	if r.width > 0 {
		line = ansi.Truncate(line, r.width-1, "…")
	}
	return line
}

func (r *LineReporter) clearLine() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.writer, "\r\033[K")
}
