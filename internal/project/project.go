// Package project locates and initializes tn projects.
//
// A project is any directory holding a .tn.yaml marker file. The marker doubles
// as the project configuration; runtime data (logs, run ledgers) lives in the
// .tn/ directory next to it and is created on demand.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MarkerFile identifies the project root.
	MarkerFile = ".tn.yaml"

	// StateDir holds logs and run ledgers, relative to the project root.
	StateDir = ".tn"
)

var (
	ErrNotProject         = errors.New("not a tn project (or any of the parent directories): " + MarkerFile)
	ErrAlreadyInitialized = errors.New("already initialized")
)

// FindRoot walks up from dir until it finds a directory containing the
// marker file, and returns that directory.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		info, err := os.Stat(filepath.Join(dir, MarkerFile))
		if err == nil && !info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotProject
		}
		dir = parent
	}
}

// Init creates the marker file in dir. It fails if dir or one of its parents
// is already a project.
func Init(dir string) (string, error) {
	if root, err := FindRoot(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyInitialized, filepath.Join(root, MarkerFile))
	}

	path := filepath.Join(dir, MarkerFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", MarkerFile, err)
	}
	defer f.Close()

	if _, err := f.WriteString(defaultConfigYAML); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", MarkerFile, err)
	}
	return path, nil
}

// Paths resolves the state locations of a project rooted at Root.
type Paths struct {
	Root string
}

func (p Paths) Marker() string  { return filepath.Join(p.Root, MarkerFile) }
func (p Paths) State() string   { return filepath.Join(p.Root, StateDir) }
func (p Paths) LogFile() string { return filepath.Join(p.State(), "logs", "tn.log") }
func (p Paths) RunsDir() string { return filepath.Join(p.State(), "runs") }
