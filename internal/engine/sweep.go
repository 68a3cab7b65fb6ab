package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// maxRangeLen bounds the values a single range may produce.
const maxRangeLen = 1_000_000

func registerSweeps(r *Registry) {
	r.Register("grid", newGrid)
	r.Register("zip", newZip)
	r.Register("list", newList)
	r.Register("chain", newChain)
	r.Register("range", newRange)
}

// newGrid builds the cartesian product of its keyword arguments. Keys are
// iterated in sorted order and the last key varies fastest.
func newGrid(c Call) (any, error) {
	keys, values, err := sweepAxes(c.Kwargs)
	if err != nil {
		return nil, err
	}

	return SweepFunc(func() ([]map[string]any, error) {
		points := []map[string]any{{}}
		for i, key := range keys {
			next := make([]map[string]any, 0, len(points)*len(values[i]))
			for _, p := range points {
				for _, v := range values[i] {
					point := make(map[string]any, len(p)+1)
					for k, pv := range p {
						point[k] = pv
					}
					point[key] = v
					next = append(next, point)
				}
			}
			points = next
		}
		return points, nil
	}), nil
}

// newZip pairs its keyword arguments element-wise. All lists must have the
// same length.
func newZip(c Call) (any, error) {
	keys, values, err := sweepAxes(c.Kwargs)
	if err != nil {
		return nil, err
	}
	n := 0
	for i, vs := range values {
		if i == 0 {
			n = len(vs)
			continue
		}
		if len(vs) != n {
			return nil, fmt.Errorf("%q has %d values, %q has %d", keys[0], n, keys[i], len(vs))
		}
	}

	return SweepFunc(func() ([]map[string]any, error) {
		points := make([]map[string]any, n)
		for j := 0; j < n; j++ {
			point := make(map[string]any, len(keys))
			for i, key := range keys {
				point[key] = values[i][j]
			}
			points[j] = point
		}
		return points, nil
	}), nil
}

// newList takes explicit override maps, either positionally or as `items`.
func newList(c Call) (any, error) {
	items := c.Args
	if raw, ok := c.Kwargs["items"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("items must be a list, got %T", raw)
		}
		items = append(append([]any(nil), items...), list...)
	}

	points := make([]map[string]any, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d must be a mapping of dot paths, got %T", i, item)
		}
		points = append(points, m)
	}

	return SweepFunc(func() ([]map[string]any, error) {
		out := make([]map[string]any, len(points))
		for i, p := range points {
			out[i] = deepCopy(p).(map[string]any)
		}
		return out, nil
	}), nil
}

// newChain concatenates the points of its positional sweeps.
func newChain(c Call) (any, error) {
	sweeps := make([]Sweep, 0, len(c.Args))
	for i, arg := range c.Args {
		s, ok := arg.(Sweep)
		if !ok {
			return nil, fmt.Errorf("argument %d must be a sweep component, got %T", i, arg)
		}
		sweeps = append(sweeps, s)
	}

	return SweepFunc(func() ([]map[string]any, error) {
		var out []map[string]any
		for _, s := range sweeps {
			points, err := s.Points()
			if err != nil {
				return nil, err
			}
			out = append(out, points...)
		}
		return out, nil
	}), nil
}

// newRange returns a list of numbers from start (inclusive) to stop
// (exclusive). It accepts `start`, `stop`, `step` keywords or up to three
// positional arguments in that order. Integer inputs produce integers.
func newRange(c Call) (any, error) {
	params := map[string]any{"start": 0, "step": 1}
	names := []string{"start", "stop", "step"}
	if len(c.Args) == 1 {
		params["stop"] = c.Args[0]
	} else {
		if len(c.Args) > len(names) {
			return nil, fmt.Errorf("takes at most 3 arguments, got %d", len(c.Args))
		}
		for i, a := range c.Args {
			params[names[i]] = a
		}
	}
	for _, name := range names {
		if v, ok := c.Kwargs[name]; ok {
			params[name] = v
		}
	}
	if _, ok := params["stop"]; !ok {
		return nil, errors.New("stop is required")
	}

	allInts := true
	nums := make(map[string]float64, len(names))
	for _, name := range names {
		f, isInt, err := toNumber(params[name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		nums[name] = f
		allInts = allInts && isInt
	}

	start, stop, step := nums["start"], nums["stop"], nums["step"]
	if step == 0 {
		return nil, errors.New("step must not be zero")
	}

	n := math.Ceil((stop - start) / step)
	if math.IsNaN(n) || n > maxRangeLen {
		return nil, fmt.Errorf("range from %v to %v by %v has more than %d values", start, stop, step, maxRangeLen)
	}
	count := int(max(n, 0))
	out := make([]any, 0, count)
	for i := 0; i < count; i++ {
		v := start + float64(i)*step
		if allInts {
			out = append(out, int(v))
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

func sweepAxes(kwargs map[string]any) ([]string, [][]any, error) {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([][]any, len(keys))
	for i, k := range keys {
		list, ok := kwargs[k].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("%q must be a list of values, got %T", k, kwargs[k])
		}
		values[i] = list
	}
	return keys, values, nil
}

func toNumber(v any) (float64, bool, error) {
	switch x := v.(type) {
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case uint64:
		return float64(x), true, nil
	case float64:
		return x, false, nil
	default:
		return 0, false, fmt.Errorf("expected a number, got %T", v)
	}
}
