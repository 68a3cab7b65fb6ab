package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// mergeDotPath sets value at path inside base. Path segments are separated by
// dots; a segment like `layers[2]` indexes into a list, growing it as needed.
// Missing intermediate containers are created.
func mergeDotPath(base map[string]any, path string, value any) error {
	if path == "" {
		return fmt.Errorf("empty dot path")
	}
	keys := strings.Split(path, ".")
	current := base

	for _, key := range keys[:len(keys)-1] {
		name, idx, indexed, err := parseSegment(key)
		if err != nil {
			return fmt.Errorf("dot path %q: %w", path, err)
		}

		if !indexed {
			next, exists := current[name]
			if !exists {
				next = map[string]any{}
				current[name] = next
			}
			m, ok := next.(map[string]any)
			if !ok {
				return fmt.Errorf("dot path %q: %q is a %T, not a mapping", path, name, next)
			}
			current = m
			continue
		}

		list, err := growList(current, name, idx, func() any { return map[string]any{} })
		if err != nil {
			return fmt.Errorf("dot path %q: %w", path, err)
		}
		if list[idx] == nil {
			list[idx] = map[string]any{}
		}
		m, ok := list[idx].(map[string]any)
		if !ok {
			return fmt.Errorf("dot path %q: %s[%d] is a %T, not a mapping", path, name, idx, list[idx])
		}
		current = m
	}

	last := keys[len(keys)-1]
	name, idx, indexed, err := parseSegment(last)
	if err != nil {
		return fmt.Errorf("dot path %q: %w", path, err)
	}
	if !indexed {
		current[name] = value
		return nil
	}

	list, err := growList(current, name, idx, func() any { return nil })
	if err != nil {
		return fmt.Errorf("dot path %q: %w", path, err)
	}
	list[idx] = value
	return nil
}

// growList makes sure m[name] is a list with at least idx+1 elements, padding
// with fill(), and stores the (possibly reallocated) list back into m.
func growList(m map[string]any, name string, idx int, fill func() any) ([]any, error) {
	var list []any
	if existing, ok := m[name]; ok && existing != nil {
		l, ok := existing.([]any)
		if !ok {
			return nil, fmt.Errorf("%q is a %T, not a list", name, existing)
		}
		list = l
	}
	for len(list) <= idx {
		list = append(list, fill())
	}
	m[name] = list
	return list, nil
}

func parseSegment(key string) (name string, idx int, indexed bool, err error) {
	if key == "" {
		return "", 0, false, fmt.Errorf("empty segment")
	}
	if !strings.HasSuffix(key, "]") {
		return key, 0, false, nil
	}
	open := strings.IndexByte(key, '[')
	if open <= 0 {
		return "", 0, false, fmt.Errorf("malformed index in %q", key)
	}
	idx, err = strconv.Atoi(key[open+1 : len(key)-1])
	if err != nil || idx < 0 {
		return "", 0, false, fmt.Errorf("malformed index in %q", key)
	}
	return key[:open], idx, true, nil
}

// deepCopy clones the maps and lists of a decoded document. Scalars are shared.
func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
