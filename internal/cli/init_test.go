package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pablasso/tn/internal/project"
	"github.com/pablasso/tn/internal/testutil"
)

func TestInitCmd(t *testing.T) {
	t.Run("creates marker file", func(t *testing.T) {
		dir := testutil.SetupTestDir(t)

		stdout, _, err := execute(t, "init")
		if err != nil {
			t.Fatalf("init failed: %v", err)
		}

		marker := filepath.Join(dir, project.MarkerFile)
		if _, err := os.Stat(marker); err != nil {
			t.Fatalf("expected %s to exist: %v", marker, err)
		}
		if !strings.Contains(stdout, marker) {
			t.Errorf("output should name the marker file, got %q", stdout)
		}
		if _, err := project.LoadConfig(dir); err != nil {
			t.Errorf("generated config does not load: %v", err)
		}
	})

	t.Run("fails when already initialized", func(t *testing.T) {
		testutil.SetupTestDir(t)

		if _, _, err := execute(t, "init"); err != nil {
			t.Fatalf("first init failed: %v", err)
		}
		_, _, err := execute(t, "init")
		if !errors.Is(err, project.ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got %v", err)
		}
	})

	t.Run("fails inside an existing project", func(t *testing.T) {
		dir := setupProject(t)
		sub := filepath.Join(dir, "experiments")
		if err := os.Mkdir(sub, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(sub); err != nil {
			t.Fatal(err)
		}

		_, _, err := execute(t, "init")
		if !errors.Is(err, project.ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got %v", err)
		}
		if _, statErr := os.Stat(filepath.Join(sub, project.MarkerFile)); !os.IsNotExist(statErr) {
			t.Error("no marker should be created in the subdirectory")
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		testutil.SetupTestDir(t)
		if _, _, err := execute(t, "init", "extra"); err == nil {
			t.Error("expected an error for extra arguments")
		}
	})
}
