package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/pablasso/tn/internal/ledger"
	"github.com/pablasso/tn/internal/progress"
	"github.com/pablasso/tn/internal/project"
	"github.com/pablasso/tn/internal/styles"
)

const defaultHistoryLimit = 10

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", defaultHistoryLimit, "Number of runs to show, 0 for all")
	return cmd
}

func runHistory(cmd *cobra.Command, limit int) error {
	if limit < 0 {
		return usageError("invalid --limit %d: must not be negative", limit)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	root, err := project.FindRoot(cwd)
	if err != nil {
		return err
	}

	runs, err := ledger.List(project.Paths{Root: root}.RunsDir(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.SubtleStyle).
		Headers("RUN", "STARTED", "CONFIG", "TASKS", "OK", "FAILED", "DURATION", "STATUS")
	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			r.Started.Local().Format("2006-01-02 15:04"),
			filepath.Base(r.Config),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(len(r.Failed)+r.SpawnFailed),
			progress.FormatDuration(r.Duration),
			runStatus(r),
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func runStatus(r ledger.Summary) string {
	switch {
	case !r.Finished:
		return "incomplete"
	case r.Cancelled:
		return "interrupted"
	case len(r.Failed) > 0 || r.SpawnFailed > 0:
		return "failed"
	default:
		return "ok"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
