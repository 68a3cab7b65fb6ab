package cli

import (
	"github.com/spf13/cobra"

	"github.com/pablasso/tn/internal/version"
)

// NewRootCmd builds the tn command tree.
func NewRootCmd() *cobra.Command {
	opts := &runOptions{}

	rootCmd := &cobra.Command{
		Use:   "tn <config>",
		Short: "Run parameter sweeps as parallel local processes",
		Long: `tn expands a configuration file into tasks, one per sweep point, and runs
each task in its own process with at most -n running at once.`,
		Version:       version.Version,
		Args:          configArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, opts, args[0])
		},
	}
	rootCmd.SetVersionTemplate("tn " + version.String() + "\n")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError("%v", err)
	})
	opts.addFlags(rootCmd)

	rootCmd.AddCommand(newInitCmd(), newWorkerCmd(), newHistoryCmd())
	return rootCmd
}

func configArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError("expected exactly one configuration file, got %d arguments\n\n%s", len(args), cmd.UsageString())
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
