package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pablasso/tn/internal/engine"
	"github.com/pablasso/tn/internal/scheduler"
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run the task passed in " + scheduler.TaskEnv,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE:   runWorker,
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	task, ok := os.LookupEnv(scheduler.TaskEnv)
	if !ok {
		return usageError("%s is not set; worker is started by tn itself", scheduler.TaskEnv)
	}
	root := os.Getenv(scheduler.ProjectDirEnv)
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		root = cwd
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(root, engine.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()))
	err := eng.Run(ctx, task)
	if err == nil {
		return nil
	}

	var exitErr *engine.ExitCodeError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.Code}
	}
	return err
}
