package progress

import (
	"io"
	"time"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pablasso/tn/internal/styles"
)

// advanceMsg wakes the model after a completion.
type advanceMsg struct{}

// finishMsg ends the program.
type finishMsg struct{}

// tickMsg is used for elapsed time updates.
type tickMsg time.Time

type model struct {
	tracker *Tracker
	title   string
	spinner spinner.Model
	bar     bprogress.Model
	done    bool
}

func newModel(tracker *Tracker, title string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.SpinnerStyle

	return model{
		tracker: tracker,
		title:   title,
		spinner: s,
		bar: bprogress.New(
			bprogress.WithGradient(styles.GradientStart, styles.GradientEnd),
			bprogress.WithWidth(2*barWidth),
			bprogress.WithoutPercentage(),
		),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(2*barWidth, max(msg.Width/3, 10))
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()

	case advanceMsg:
		return m, nil

	case finishMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	s := m.tracker.Snapshot()
	if m.done {
		return styles.SuccessStyle.Render("✓") + " " + summaryText(s) + "\n"
	}

	line := m.spinner.View() + " "
	if m.title != "" {
		line += styles.TitleStyle.Render(m.title) + " "
	}
	return line + m.bar.ViewAs(s.Percent()/100) + " " + styles.SubtleStyle.Render(statusText(s)) + "\n"
}

// TUIReporter renders progress with a Bubble Tea program. Terminal input is
// left alone, so an interrupt reaches the parent process as a signal.
type TUIReporter struct {
	tracker *Tracker
	title   string
	opts    []tea.ProgramOption
	program *tea.Program
	done    chan struct{}
	runErr  error
}

// NewTUIReporter creates a reporter drawing to w.
func NewTUIReporter(w io.Writer, title string) *TUIReporter {
	return &TUIReporter{
		tracker: NewTracker(),
		title:   title,
		opts: []tea.ProgramOption{
			tea.WithOutput(w),
			tea.WithInput(nil),
			tea.WithoutSignalHandler(),
		},
	}
}

// Start launches the program.
func (r *TUIReporter) Start(total int) {
	if r.program != nil {
		return
	}
	r.tracker.Start(total)
	r.program = tea.NewProgram(newModel(r.tracker, r.title), r.opts...)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		_, r.runErr = r.program.Run()
	}()
}

// Advance records one completion.
func (r *TUIReporter) Advance() {
	if err := r.tracker.Advance(); err != nil || r.program == nil {
		return
	}
	r.program.Send(advanceMsg{})
}

// Finish renders the summary and waits for the program to exit.
func (r *TUIReporter) Finish() {
	if r.program == nil {
		return
	}
	r.tracker.Finish()
	r.program.Send(finishMsg{})
	<-r.done
}

// Err reports ErrOverAdvance if the reporter was advanced past its total,
// or the error the program exited with.
func (r *TUIReporter) Err() error {
	if err := r.tracker.Err(); err != nil {
		return err
	}
	return r.runErr
}

// Snapshot returns the tracked state.
func (r *TUIReporter) Snapshot() Snapshot {
	return r.tracker.Snapshot()
}
