package config

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Layer maps dotted attribute paths to values.
type Layer map[string]any

// Set stores a normalized copy of v at path.
func (l Layer) Set(path string, v any) error {
	n, err := normalize(v)
	if err != nil {
		return fmt.Errorf("attribute %s: %w", path, err)
	}
	l[path] = n
	return nil
}

// Merge returns a new layer holding l overlaid by each of others in order.
func (l Layer) Merge(others ...Layer) Layer {
	out := make(Layer, len(l))
	for k, v := range l {
		out[k] = clone(v)
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = clone(v)
		}
	}
	return out
}

// Keys returns the layer's paths in sorted order.
func (l Layer) Keys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source tells which layer answered a lookup.
type Source string

const (
	SourceOverride Source = "override"
	SourceDefault  Source = "default"
)

// Tree is an immutable two-layer attribute store.
type Tree struct {
	defaults  Layer
	overrides Layer
}

// NewTree builds a tree from normalized copies of the given layers.
func NewTree(defaults, overrides Layer) (*Tree, error) {
	d, err := normalizeLayer(defaults)
	if err != nil {
		return nil, err
	}
	o, err := normalizeLayer(overrides)
	if err != nil {
		return nil, err
	}
	return &Tree{defaults: d, overrides: o}, nil
}

func normalizeLayer(l Layer) (Layer, error) {
	out := make(Layer, len(l))
	for k, v := range l {
		if err := out.Set(k, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Lookup resolves path, override first. The returned value is a copy.
func (t *Tree) Lookup(path string) (any, error) {
	if v, ok := t.overrides[path]; ok {
		return clone(v), nil
	}
	if v, ok := t.defaults[path]; ok {
		return clone(v), nil
	}
	return nil, &ConfigurationError{Path: path}
}

// SourceOf reports which layer answers path, or "" if neither does.
func (t *Tree) SourceOf(path string) Source {
	if _, ok := t.overrides[path]; ok {
		return SourceOverride
	}
	if _, ok := t.defaults[path]; ok {
		return SourceDefault
	}
	return ""
}

// Keys returns every resolvable path in sorted order.
func (t *Tree) Keys() []string {
	return t.defaults.Merge(t.overrides).Keys()
}

// Effective returns the flattened view a lookup of every key would produce.
func (t *Tree) Effective() Layer {
	return t.defaults.Merge(t.overrides)
}

// UnknownOverrides lists overridden paths that have no registered default.
// They still resolve, but usually indicate a typo in an attribute file.
func (t *Tree) UnknownOverrides() []string {
	var unknown []string
	for _, k := range t.overrides.Keys() {
		if _, ok := t.defaults[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	return unknown
}

// String returns a string attribute. An explicit nil yields "".
func (t *Tree) String(path string) (string, error) {
	v, err := t.Lookup(path)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	}
	return "", &TypeError{Path: path, Want: "string", Got: v}
}

// Bool returns a boolean attribute. An explicit nil yields false.
func (t *Tree) Bool(path string) (bool, error) {
	v, err := t.Lookup(path)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	}
	return false, &TypeError{Path: path, Want: "bool", Got: v}
}

// Int returns an integer attribute. An explicit nil yields 0.
func (t *Tree) Int(path string) (int, error) {
	v, err := t.Lookup(path)
	if err != nil {
		return 0, err
	}
	switch i := v.(type) {
	case nil:
		return 0, nil
	case int:
		return i, nil
	}
	return 0, &TypeError{Path: path, Want: "integer", Got: v}
}

// Strings returns a sequence of strings, preserving order.
// An explicit nil yields an empty sequence.
func (t *Tree) Strings(path string) ([]string, error) {
	v, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, &TypeError{Path: path, Want: "sequence of strings", Got: v}
	}
	out := make([]string, 0, len(seq))
	for i, e := range seq {
		s, ok := e.(string)
		if !ok {
			return nil, &TypeError{Path: fmt.Sprintf("%s[%d]", path, i), Want: "string", Got: e}
		}
		out = append(out, s)
	}
	return out, nil
}

// JoinPath joins path segments with dots, skipping empty segments.
func JoinPath(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// normalize converts decoded values into the tree's closed set of types.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", x)
		}
		return int(x), nil
	case float32:
		return normalizeFloat(float64(x)), nil
	case float64:
		return normalizeFloat(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", x.String())
		}
		return normalizeFloat(f), nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			if _, nested := n.([]any); nested {
				return nil, fmt.Errorf("nested sequences are not supported")
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", v)
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func clone(v any) any {
	if seq, ok := v.([]any); ok {
		out := make([]any, len(seq))
		copy(out, seq)
		return out
	}
	return v
}
