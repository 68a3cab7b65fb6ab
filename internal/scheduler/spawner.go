package scheduler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// Environment variables through which a worker process receives its task.
const (
	TaskEnv       = "TN_TASK"
	TaskIndexEnv  = "TN_TASK_INDEX"
	ProjectDirEnv = "TN_PROJECT_DIR"
)

// ExecSpawner starts each task as a child process of Path with Args, passing
// the task through the environment.
type ExecSpawner struct {
	Path       string
	Args       []string
	ProjectDir string

	// Env is appended to the parent environment.
	Env []string

	// Stdout and Stderr default to the parent's streams.
	Stdout io.Writer
	Stderr io.Writer
}

// NewWorkerSpawner re-executes the running binary with the worker subcommand.
func NewWorkerSpawner(projectDir string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ExecSpawner{
		Path:       exe,
		Args:       []string{"worker"},
		ProjectDir: projectDir,
	}, nil
}

// Spawn starts the process for t.
func (s *ExecSpawner) Spawn(t Task) (Process, error) {
	cmd := exec.Command(s.Path, s.Args...)
	cmd.Dir = s.ProjectDir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Env = append(cmd.Env,
		TaskEnv+"="+string(t.ID),
		TaskIndexEnv+"="+strconv.Itoa(t.Index),
		ProjectDirEnv+"="+s.ProjectDir,
	)
	cmd.Stdin = nil
	cmd.Stdout = s.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Signal and Kill reach the worker's whole process group, so processes a
// task started do not outlive it.
func (p *execProcess) Signal(sig os.Signal) error {
	if err := signalGroup(p.cmd.Process, sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) Kill() error {
	if err := killGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
