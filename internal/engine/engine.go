// Package engine expands sweep configurations into tasks and runs a single
// task.
//
// Expansion happens once in the parent process. Running happens inside a
// worker process, which builds a fresh Engine from the same static component
// registry; no engine state is shared between processes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// ConfigEnv is set to the task text before a task runs, so child programs
// can read the configuration they were started with.
const ConfigEnv = "CONFIG"

// Engine expands configurations and runs tasks.
type Engine struct {
	registry   *Registry
	projectDir string
	stdout     io.Writer
	stderr     io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithOutput redirects what tasks print.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Engine) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

// New bootstraps an engine with the built-in components.
func New(projectDir string, opts ...Option) *Engine {
	e := &Engine{
		registry:   NewRegistry(),
		projectDir: projectDir,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the component registry so callers can add components.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Expand turns the configuration at configPath into task texts, one per sweep
// point, in sweep order. A configuration without a `_sweep_` key is a single
// task.
func (e *Engine) Expand(configPath string) ([]string, error) {
	doc, err := decodeFile(configPath)
	if err != nil {
		return nil, err
	}

	sweepDoc, ok := doc[sweepKey]
	if !ok {
		text, err := encodeTask(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode task: %w", err)
		}
		return []string{text}, nil
	}

	base := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != sweepKey {
			base[k] = v
		}
	}

	v := e.visitor(doc)
	out, err := v.visit(sweepDoc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sweepKey, err)
	}
	sweep, ok := out.(Sweep)
	if !ok {
		return nil, fmt.Errorf("%s must be a sweep component, got %T", sweepKey, out)
	}
	points, err := sweep.Points()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sweepKey, err)
	}

	tasks := make([]string, 0, len(points))
	for i, point := range points {
		task := deepCopy(base).(map[string]any)
		paths := make([]string, 0, len(point))
		for p := range point {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			if err := mergeDotPath(task, p, deepCopy(point[p])); err != nil {
				return nil, fmt.Errorf("sweep point %d: %w", i, err)
			}
		}
		text, err := encodeTask(task)
		if err != nil {
			return nil, fmt.Errorf("sweep point %d: failed to encode task: %w", i, err)
		}
		tasks = append(tasks, text)
	}
	return tasks, nil
}

// Run executes one task text. The configuration is printed as JSON first; if
// it names a top-level `_component_`, that component is built and run.
func (e *Engine) Run(ctx context.Context, task string) error {
	if err := os.Setenv(ConfigEnv, task); err != nil {
		return fmt.Errorf("failed to set %s: %w", ConfigEnv, err)
	}

	doc, err := decodeYAML([]byte(task))
	if err != nil {
		return fmt.Errorf("failed to parse task: %w", err)
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to print task: %w", err)
	}
	fmt.Fprintln(e.stdout, string(pretty))

	if _, ok := doc[componentKey]; !ok {
		return nil
	}

	out, err := e.visitor(doc).visit(doc)
	if err != nil {
		return err
	}
	runnable, ok := out.(Runnable)
	if !ok {
		return fmt.Errorf("%s must build a runnable component, got %T", componentKey, out)
	}
	return runnable.Run(ctx)
}

func (e *Engine) visitor(doc map[string]any) *visitor {
	return &visitor{
		registry: e.registry,
		call: Call{
			Config:     doc,
			ProjectDir: e.projectDir,
			Stdout:     e.stdout,
			Stderr:     e.stderr,
		},
	}
}
