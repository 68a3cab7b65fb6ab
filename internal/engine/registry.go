package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Call is what a component receives when it is instantiated.
type Call struct {
	// Args holds the visited `_args_` list.
	Args []any

	// Kwargs holds the visited keys that neither start nor end with an underscore.
	Kwargs map[string]any

	// Config is the whole document being visited, before component instantiation.
	Config map[string]any

	ProjectDir string
	Stdout     io.Writer
	Stderr     io.Writer
}

// Component builds a value from a `_component_` mapping.
type Component func(c Call) (any, error)

// Sweep produces the override maps of a parameter sweep. Each point maps a
// dot path to the value that replaces it in the base configuration.
type Sweep interface {
	Points() ([]map[string]any, error)
}

// Runnable is the executable result of a task configuration.
type Runnable interface {
	Run(ctx context.Context) error
}

// SweepFunc adapts a function to Sweep.
type SweepFunc func() ([]map[string]any, error)

func (f SweepFunc) Points() ([]map[string]any, error) { return f() }

// RunFunc adapts a function to Runnable.
type RunFunc func(ctx context.Context) error

func (f RunFunc) Run(ctx context.Context) error { return f(ctx) }

// Registry maps component names to constructors.
type Registry struct {
	components map[string]Component
}

// NewRegistry returns a registry holding the built-in components.
func NewRegistry() *Registry {
	r := &Registry{components: make(map[string]Component)}
	registerSweeps(r)
	registerRunnables(r)
	return r
}

// Register adds a component. Registering the same name twice is a programmer
// error and panics.
func (r *Registry) Register(name string, c Component) {
	if _, exists := r.components[name]; exists {
		panic(fmt.Sprintf("engine: component %q registered twice", name))
	}
	r.components[name] = c
}

// Lookup returns the component registered under name.
func (r *Registry) Lookup(name string) (Component, bool) {
	c, ok := r.components[name]
	return c, ok
}

// Names lists the registered component names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
