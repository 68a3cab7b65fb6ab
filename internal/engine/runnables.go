package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// ExitCodeError carries the exit status a task wants its worker process to
// terminate with.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// CommandContext creates the commands run by the `command` component. Tests
// may replace it.
var CommandContext = exec.CommandContext

func registerRunnables(r *Registry) {
	r.Register("command", newCommand)
	r.Register("sleep", newSleep)
	r.Register("echo", newEcho)
	r.Register("exit", newExit)
}

// newCommand runs an external program. Use `args` for an argv list or `shell`
// for a string handed to `sh -c`. Every string is rendered as a text/template
// against the task configuration, so `{{ .optim.lr }}` expands to the swept
// value.
func newCommand(c Call) (any, error) {
	argv, err := commandArgv(c)
	if err != nil {
		return nil, err
	}

	env, err := stringMap(c.Kwargs["env"])
	if err != nil {
		return nil, fmt.Errorf("env: %w", err)
	}
	for k, v := range env {
		if env[k], err = render(v, c.Config); err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
	}

	dir := ""
	if raw, ok := c.Kwargs["dir"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("dir must be a string, got %T", raw)
		}
		if dir, err = render(s, c.Config); err != nil {
			return nil, fmt.Errorf("dir: %w", err)
		}
		if !filepath.IsAbs(dir) && c.ProjectDir != "" {
			dir = filepath.Join(c.ProjectDir, dir)
		}
	}

	return RunFunc(func(ctx context.Context) error {
		cmd := CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		isolate(cmd)
		cmd.Stdout = c.Stdout
		cmd.Stderr = c.Stderr
		cmd.Env = os.Environ()
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+env[k])
		}

		err := cmd.Run()
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			return &ExitCodeError{Code: exitErr.ExitCode()}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}), nil
}

func commandArgv(c Call) ([]string, error) {
	rawArgs, hasArgs := c.Kwargs["args"]
	rawShell, hasShell := c.Kwargs["shell"]
	switch {
	case hasArgs && hasShell:
		return nil, errors.New("set either args or shell, not both")
	case hasShell:
		s, ok := rawShell.(string)
		if !ok {
			return nil, fmt.Errorf("shell must be a string, got %T", rawShell)
		}
		script, err := render(s, c.Config)
		if err != nil {
			return nil, fmt.Errorf("shell: %w", err)
		}
		return []string{"sh", "-c", script}, nil
	case hasArgs:
		list, ok := rawArgs.([]any)
		if !ok || len(list) == 0 {
			return nil, errors.New("args must be a non-empty list")
		}
		argv := make([]string, len(list))
		for i, a := range list {
			s, err := render(scalarString(a), c.Config)
			if err != nil {
				return nil, fmt.Errorf("args[%d]: %w", i, err)
			}
			argv[i] = s
		}
		return argv, nil
	default:
		return nil, errors.New("args or shell is required")
	}
}

// newSleep waits for `duration` ("1.5s", or a number of seconds).
func newSleep(c Call) (any, error) {
	raw, ok := c.Kwargs["duration"]
	if !ok && len(c.Args) == 1 {
		raw, ok = c.Args[0], true
	}
	if !ok {
		return nil, errors.New("duration is required")
	}
	d, err := toDuration(raw)
	if err != nil {
		return nil, err
	}

	return RunFunc(func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}), nil
}

// newEcho prints `message`, rendered against the task configuration.
func newEcho(c Call) (any, error) {
	raw, ok := c.Kwargs["message"]
	if !ok && len(c.Args) > 0 {
		parts := make([]string, len(c.Args))
		for i, a := range c.Args {
			parts[i] = scalarString(a)
		}
		raw, ok = strings.Join(parts, " "), true
	}
	if !ok {
		return nil, errors.New("message is required")
	}
	msg, err := render(scalarString(raw), c.Config)
	if err != nil {
		return nil, err
	}

	return RunFunc(func(ctx context.Context) error {
		_, err := fmt.Fprintln(c.Stdout, msg)
		return err
	}), nil
}

// newExit terminates the task with `code`.
func newExit(c Call) (any, error) {
	raw, ok := c.Kwargs["code"]
	if !ok && len(c.Args) == 1 {
		raw, ok = c.Args[0], true
	}
	code := 0
	if ok {
		f, isInt, err := toNumber(raw)
		if err != nil || !isInt || f < 0 || f > 255 {
			return nil, fmt.Errorf("code must be an integer between 0 and 255, got %v", raw)
		}
		code = int(f)
	}

	return RunFunc(func(ctx context.Context) error {
		if code == 0 {
			return nil
		}
		return &ExitCodeError{Code: code}
	}), nil
}

func render(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("arg").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func stringMap(v any) (map[string]string, error) {
	out := map[string]string{}
	if v == nil {
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be a mapping, got %T", v)
	}
	for k, val := range m {
		out[k] = scalarString(val)
	}
	return out, nil
}

func toDuration(v any) (time.Duration, error) {
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		return d, nil
	}
	f, _, err := toNumber(v)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	return time.Duration(f * float64(time.Second)), nil
}
