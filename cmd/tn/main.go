package main

import (
	"os"

	"github.com/pablasso/tn/internal/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute(), os.Stderr))
}
