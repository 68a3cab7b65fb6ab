package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/pablasso/tn/internal/engine"
	"github.com/pablasso/tn/internal/ledger"
	"github.com/pablasso/tn/internal/logx"
	"github.com/pablasso/tn/internal/progress"
	"github.com/pablasso/tn/internal/project"
	"github.com/pablasso/tn/internal/scheduler"
	"github.com/pablasso/tn/internal/styles"
)

const taskPreviewWidth = 72

// newSpawner builds the spawner for worker processes. Tests replace it to
// avoid re-executing the test binary as tn.
var newSpawner = func(root string) (*scheduler.ExecSpawner, error) {
	return scheduler.NewWorkerSpawner(root)
}

type runOptions struct {
	processes   int
	dryRun      bool
	quiet       bool
	plain       bool
	onInterrupt string
	grace       time.Duration
	logLevel    string
}

func (o *runOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&o.processes, "processes", "n", 1, "Maximum number of tasks running at once")
	f.BoolVar(&o.dryRun, "dry-run", false, "Print the expanded tasks without running them")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Do not show progress")
	f.BoolVar(&o.plain, "plain", false, "Show progress as plain lines instead of the interactive view")
	f.StringVar(&o.onInterrupt, "on-interrupt", project.ShutdownTerminate, "What to do with running tasks on Ctrl-C: terminate or wait")
	f.DurationVar(&o.grace, "grace", scheduler.DefaultGrace, "Time between SIGTERM and SIGKILL when terminating")
	f.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error, off")
}

// apply overrides cfg with the flags set on the command line.
func (o *runOptions) apply(cmd *cobra.Command, cfg *project.Config) error {
	f := cmd.Flags()
	if f.Changed("processes") {
		cfg.Processes = o.processes
	}
	if f.Changed("on-interrupt") {
		switch o.onInterrupt {
		case project.ShutdownTerminate, project.ShutdownWait:
			cfg.Shutdown.Policy = o.onInterrupt
		default:
			return usageError("invalid --on-interrupt %q: must be %s or %s", o.onInterrupt, project.ShutdownTerminate, project.ShutdownWait)
		}
	}
	if f.Changed("grace") {
		if o.grace < 0 {
			return usageError("invalid --grace %s: must not be negative", o.grace)
		}
		cfg.Shutdown.Grace = project.Duration(o.grace)
	}
	if f.Changed("log-level") {
		if !logx.ValidLevel(o.logLevel) {
			return usageError("invalid --log-level %q", o.logLevel)
		}
		cfg.LogLevel = o.logLevel
	}
	return nil
}

func runSweep(cmd *cobra.Command, opts *runOptions, configPath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	root, err := project.FindRoot(cwd)
	if err != nil {
		return err
	}
	cfg, err := project.LoadConfig(root)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, &cfg); err != nil {
		return err
	}
	paths := project.Paths{Root: root}

	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	logCfg := logx.Config{Level: cfg.LogLevel, Console: stderr}
	if cfg.FileLogging() {
		logCfg.FilePath = paths.LogFile()
	}
	logger, closer, err := logx.New(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger.Debug("loaded project configuration", logx.String("root", root), logx.Any("config", cfg))

	absConfig, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	tasks, err := engine.New(root).Expand(absConfig)
	if err != nil {
		return err
	}
	logger.Info("expanded configuration", logx.String("config", absConfig), logx.Int("tasks", len(tasks)))

	if opts.dryRun {
		return printTasks(stdout, tasks)
	}
	if cfg.Processes < 1 {
		return fmt.Errorf("%w: got %d", scheduler.ErrInvalidConcurrency, cfg.Processes)
	}

	run, err := ledger.Create(paths.RunsDir())
	if err != nil {
		return err
	}
	run.WithLogger(logger)
	logger = logger.With(logx.String("run", run.ID()))
	if err := run.RunStarted(absConfig, len(tasks), cfg.Processes); err != nil {
		logger.Warn("failed to write run ledger", logx.Err(err))
	}

	spawner, err := newSpawner(root)
	if err != nil {
		return err
	}

	var reporter scheduler.Reporter
	switch {
	case opts.quiet:
		reporter = progress.NewNop()
		spawner.Stdout, spawner.Stderr = syncWriters(stdout, stderr)
	case !opts.plain && logx.IsTerminal(stdout):
		output, err := os.OpenFile(run.OutputPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open task output log: %w", err)
		}
		defer output.Close()
		spawner.Stdout, spawner.Stderr = output, output
		reporter = progress.NewTUIReporter(stdout, filepath.Base(configPath))
		fmt.Fprintln(stderr, styles.SubtleStyle.Render("task output: "+run.OutputPath()))
	default:
		spawner.Stdout, spawner.Stderr = syncWriters(stdout, stderr)
		reporter = progress.NewLineReporter(stderr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(spawner, scheduler.Config{
		Processes:       cfg.Processes,
		SpawnRetries:    cfg.Spawn.Retries,
		SpawnBackoff:    cfg.Spawn.Backoff.Std(),
		SpawnMaxBackoff: cfg.Spawn.MaxBackoff.Std(),
		SpawnRate:       cfg.Spawn.Rate,
		Shutdown:        scheduler.ShutdownPolicy(cfg.Shutdown.Policy),
		Grace:           cfg.Shutdown.Grace.Std(),
	}).WithReporter(reporter).WithEvents(run).WithLogger(logger)

	ids := make([]scheduler.TaskID, len(tasks))
	for i, t := range tasks {
		ids[i] = scheduler.TaskID(t)
	}

	res, err := sched.Run(ctx, ids)
	if err != nil && !res.Cancelled {
		return err
	}
	if ferr := run.RunFinished(res); ferr != nil {
		logger.Warn("failed to write run ledger", logx.Err(ferr))
	}

	printSummary(stderr, res)

	if res.Cancelled {
		return &ExitError{Code: ExitInterrupted}
	}
	if !res.OK() {
		return &ExitError{Code: ExitFailure}
	}
	return nil
}

func printTasks(w io.Writer, tasks []string) error {
	for i, t := range tasks {
		if _, err := fmt.Fprintf(w, "# task %d\n%s\n", i, strings.TrimRight(t, "\n")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d tasks\n", len(tasks))
	return err
}

func printSummary(w io.Writer, res scheduler.Result) {
	if res.OK() && !res.Cancelled {
		fmt.Fprintln(w, styles.SuccessStyle.Render("all tasks completed"))
		return
	}

	if len(res.Failed) > 0 {
		fmt.Fprintln(w, styles.ErrorStyle.Render(fmt.Sprintf("%d of %d tasks failed:", len(res.Failed), res.Total)))
		for _, f := range res.Failed {
			reason := fmt.Sprintf("exit %d", f.ExitCode)
			if f.Err != nil {
				reason = f.Err.Error()
			}
			fmt.Fprintf(w, "  task %d (%s): %s\n", f.Task.Index, reason, taskPreview(f.Task.ID))
		}
	}
	if len(res.SpawnFailed) > 0 {
		fmt.Fprintln(w, styles.ErrorStyle.Render(fmt.Sprintf("%d tasks could not be started:", len(res.SpawnFailed))))
		for _, f := range res.SpawnFailed {
			fmt.Fprintf(w, "  task %d after %d attempts: %v\n", f.Task.Index, f.Attempts, f.Err)
		}
	}
	if res.Cancelled {
		fmt.Fprintln(w, styles.WarningStyle.Render(fmt.Sprintf("interrupted: %d tasks skipped", len(res.Skipped))))
	}
}

// taskPreview returns the first line of a task, truncated for display.
func taskPreview(id scheduler.TaskID) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(id)), "\n")
	return ansi.Truncate(line, taskPreviewWidth, "…")
}

// syncWriters serializes writes from concurrently running tasks when the
// destinations are not files, which exec would otherwise pass to children
// directly.
func syncWriters(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	_, outFile := stdout.(*os.File)
	_, errFile := stderr.(*os.File)
	if outFile && errFile {
		return stdout, stderr
	}
	mu := &sync.Mutex{}
	return &lockedWriter{mu: mu, w: stdout}, &lockedWriter{mu: mu, w: stderr}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
