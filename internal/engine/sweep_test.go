package engine

import (
	"reflect"
	"strings"
	"testing"
)

func points(t *testing.T, v any) []map[string]any {
	t.Helper()
	s, ok := v.(Sweep)
	if !ok {
		t.Fatalf("expected a Sweep, got %T", v)
	}
	pts, err := s.Points()
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	return pts
}

func TestGrid_CartesianProductLastKeyFastest(t *testing.T) {
	v, err := newGrid(Call{Kwargs: map[string]any{
		"b": []any{"x", "y"},
		"a": []any{1, 2},
	}})
	if err != nil {
		t.Fatal(err)
	}

	want := []map[string]any{
		{"a": 1, "b": "x"},
		{"a": 1, "b": "y"},
		{"a": 2, "b": "x"},
		{"a": 2, "b": "y"},
	}
	if got := points(t, v); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestGrid_EmptyAxisYieldsNothing(t *testing.T) {
	v, err := newGrid(Call{Kwargs: map[string]any{"a": []any{1}, "b": []any{}}})
	if err != nil {
		t.Fatal(err)
	}
	if got := points(t, v); len(got) != 0 {
		t.Errorf("expected no points, got %v", got)
	}
}

func TestGrid_RejectsScalarAxis(t *testing.T) {
	_, err := newGrid(Call{Kwargs: map[string]any{"a": 1}})
	if err == nil || !strings.Contains(err.Error(), "must be a list") {
		t.Errorf("expected list error, got %v", err)
	}
}

func TestZip(t *testing.T) {
	v, err := newZip(Call{Kwargs: map[string]any{
		"lr":   []any{0.1, 0.01},
		"seed": []any{1, 2},
	}})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{
		{"lr": 0.1, "seed": 1},
		{"lr": 0.01, "seed": 2},
	}
	if got := points(t, v); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestZip_LengthMismatch(t *testing.T) {
	_, err := newZip(Call{Kwargs: map[string]any{
		"a": []any{1, 2},
		"b": []any{1},
	}})
	if err == nil {
		t.Fatal("expected an error for mismatched lengths")
	}
}

func TestList(t *testing.T) {
	v, err := newList(Call{
		Args:   []any{map[string]any{"a": 1}},
		Kwargs: map[string]any{"items": []any{map[string]any{"a": 2}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"a": 1}, {"a": 2}}
	if got := points(t, v); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestList_RejectsNonMapping(t *testing.T) {
	if _, err := newList(Call{Args: []any{"a"}}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestChain(t *testing.T) {
	first, _ := newList(Call{Args: []any{map[string]any{"a": 1}}})
	second, _ := newList(Call{Args: []any{map[string]any{"a": 2}, map[string]any{"a": 3}}})

	v, err := newChain(Call{Args: []any{first, second}})
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"a": 1}, {"a": 2}, {"a": 3}}
	if got := points(t, v); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChain_RejectsNonSweep(t *testing.T) {
	if _, err := newChain(Call{Args: []any{[]any{1}}}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRange(t *testing.T) {
	tests := []struct {
		name string
		call Call
		want []any
	}{
		{"stop only", Call{Args: []any{3}}, []any{0, 1, 2}},
		{"positional", Call{Args: []any{2, 8, 3}}, []any{2, 5}},
		{"keywords", Call{Kwargs: map[string]any{"start": 1, "stop": 4}}, []any{1, 2, 3}},
		{"negative step", Call{Kwargs: map[string]any{"start": 3, "stop": 0, "step": -1}}, []any{3, 2, 1}},
		{"floats", Call{Kwargs: map[string]any{"start": 0, "stop": 1.0, "step": 0.5}}, []any{0.0, 0.5}},
		{"empty", Call{Kwargs: map[string]any{"start": 5, "stop": 1}}, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newRange(tt.call)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRange_Errors(t *testing.T) {
	tests := []struct {
		name string
		call Call
	}{
		{"missing stop", Call{Kwargs: map[string]any{"start": 1}}},
		{"zero step", Call{Args: []any{0, 3, 0}}},
		{"not a number", Call{Args: []any{"three"}}},
		{"too many args", Call{Args: []any{1, 2, 3, 4}}},
		{"tiny step", Call{Kwargs: map[string]any{"start": 0, "stop": 1, "step": 1e-12}}},
		{"huge stop", Call{Args: []any{1e18}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newRange(tt.call); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
