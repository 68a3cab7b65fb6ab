package progress

import (
	"fmt"
	"strings"
	"time"
)

const (
	filledChar = "■"
	emptyChar  = "□"
)

// Bar renders a progress bar like: ■■■■□□□□ 50%
type Bar struct {
	Current int
	Total   int
	Width   int // character width of the bar portion
}

// View returns the rendered bar. An empty run renders as full.
func (b Bar) View() string {
	if b.Width <= 0 {
		return ""
	}
	if b.Total <= 0 {
		return strings.Repeat(filledChar, b.Width) + " 100%"
	}

	current := min(max(b.Current, 0), b.Total)
	percent := (current * 100) / b.Total
	filled := (current * b.Width) / b.Total

	return fmt.Sprintf("%s %d%%", strings.Repeat(filledChar, filled)+strings.Repeat(emptyChar, b.Width-filled), percent)
}

// statusText renders the counters shared by every reporter.
func statusText(s Snapshot) string {
	eta := "--:--"
	if s.ETAKnown {
		eta = FormatDuration(s.ETA)
	}
	return fmt.Sprintf("%d/%d │ ⏱ %s │ ETA %s", s.Completed, s.Total, FormatDuration(s.Elapsed), eta)
}

// summaryText renders the final line of a run.
func summaryText(s Snapshot) string {
	return fmt.Sprintf("done %d/%d in %s", s.Completed, s.Total, FormatDuration(s.Elapsed))
}

// FormatDuration renders d as MM:SS, or HH:MM:SS from one hour up.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
