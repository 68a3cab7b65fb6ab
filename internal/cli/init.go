package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pablasso/tn/internal/project"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a tn project in the current directory",
		Long:  "Creates a .tn.yaml file holding the project configuration. Logs and run history are kept in .tn/.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	path, err := project.Init(cwd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Initialized tn in", path)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Write a configuration with a _sweep_ section")
	fmt.Fprintln(out, "  2. Run: tn <config> -n 4")
	return nil
}
