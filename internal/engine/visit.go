package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	componentKey = "_component_"
	argsKey      = "_args_"
	sweepKey     = "_sweep_"
)

// ComponentError reports a failure to resolve or instantiate a component.
type ComponentError struct {
	Name string
	Err  error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %q: %v", e.Name, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// visitor instantiates components bottom-up: children are visited before the
// mapping that holds them, so components receive already-built values.
type visitor struct {
	registry *Registry
	call     Call
}

func (v *visitor) visit(el any) (any, error) {
	switch x := el.(type) {
	case map[string]any:
		visited := make(map[string]any, len(x))
		for k, val := range x {
			out, err := v.visit(val)
			if err != nil {
				return nil, err
			}
			visited[k] = out
		}
		if _, ok := visited[componentKey]; ok {
			return v.instantiate(visited)
		}
		return visited, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			visited, err := v.visit(item)
			if err != nil {
				return nil, err
			}
			out[i] = visited
		}
		return out, nil
	case string, bool, int, int64, uint64, float64, nil, time.Time,
		toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
		return x, nil
	default:
		return nil, fmt.Errorf("unknown type: %T", el)
	}
}

func (v *visitor) instantiate(m map[string]any) (any, error) {
	raw, ok := m[componentKey].(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string, got %T", componentKey, m[componentKey])
	}
	name := strings.TrimSpace(raw)
	if name == "" {
		return nil, fmt.Errorf("%s must not be empty", componentKey)
	}

	component, ok := v.registry.Lookup(name)
	if !ok {
		return nil, &ComponentError{
			Name: name,
			Err:  fmt.Errorf("not registered (available: %s)", strings.Join(v.registry.Names(), ", ")),
		}
	}

	call := v.call
	call.Kwargs = make(map[string]any)
	for k, val := range m {
		if strings.HasPrefix(k, "_") || strings.HasSuffix(k, "_") {
			continue
		}
		call.Kwargs[k] = val
	}
	if args, present := m[argsKey]; present {
		list, ok := args.([]any)
		if !ok {
			return nil, &ComponentError{Name: name, Err: fmt.Errorf("%s must be a list, got %T", argsKey, args)}
		}
		call.Args = list
	} else {
		call.Args = nil
	}

	out, err := component(call)
	if err != nil {
		return nil, &ComponentError{Name: name, Err: err}
	}
	return out, nil
}
