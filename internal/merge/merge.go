// Package merge folds nested configuration records together.
//
// The fold walks keys depth-first. Two mappings merge recursively, two
// sequences are concatenated in fold order and anything else is replaced by
// the value from the later record. The inputs are never modified; the
// result shares no mappings or sequences with them.
package merge

import (
	"maps"
	"reflect"
	"slices"
)

// Config is a nested configuration record. Values are scalars, sequences or
// nested mappings.
type Config map[string]any

// Fragment is a named partial configuration describing one build concern.
type Fragment struct {
	Name   string
	Config Config
}

// Named wraps cfg in a Fragment.
func Named(name string, cfg Config) Fragment {
	return Fragment{Name: name, Config: cfg}
}

// Merge folds configs left to right. Conflicting scalars resolve to the
// rightmost value without any diagnostics.
func Merge(configs ...Config) Config {
	fragments := make([]Fragment, len(configs))
	for i, cfg := range configs {
		fragments[i] = Fragment{Config: cfg}
	}

	// PolicyOverride never fails
	out, _, _ := Fold(PolicyOverride, fragments...)
	return out
}

// Fold merges fragments in order under the given conflict policy. Under
// PolicyReport the returned conflicts list every scalar that was replaced by
// a different value. Under PolicyStrict the first such replacement stops the
// fold with a *ConflictError.
func Fold(policy Policy, fragments ...Fragment) (Config, []Conflict, error) {
	f := &folder{
		policy: policy,
		owners: map[string]string{},
	}

	out := Config{}
	for _, fragment := range fragments {
		if err := f.mergeInto(out, fragment.Config, fragment.Name, ""); err != nil {
			return nil, f.conflicts, err
		}
	}

	return out, f.conflicts, nil
}

type folder struct {
	policy    Policy
	owners    map[string]string
	conflicts []Conflict
}

func (f *folder) mergeInto(dst, src Config, name, prefix string) error {
	for _, key := range slices.Sorted(maps.Keys(src)) {
		path := joinPath(prefix, key)
		value := src[key]

		current, exists := dst[key]
		if !exists {
			dst[key] = clone(value)
			f.own(path, value, name)
			continue
		}

		if dstMap, ok := asMap(current); ok {
			if srcMap, ok := asMap(value); ok {
				if err := f.mergeInto(dstMap, srcMap, name, path); err != nil {
					return err
				}
				continue
			}
		}

		if dstSeq, ok := asSlice(current); ok {
			if srcSeq, ok := asSlice(value); ok {
				dst[key] = append(dstSeq, cloneSlice(srcSeq)...)
				continue
			}
		}

		if f.policy != PolicyOverride && !reflect.DeepEqual(current, value) {
			conflict := Conflict{
				Path:     path,
				Previous: f.owners[path],
				Fragment: name,
				Old:      current,
				New:      value,
			}
			if f.policy == PolicyStrict {
				return &ConflictError{Conflict: conflict}
			}
			f.conflicts = append(f.conflicts, conflict)
		}

		dst[key] = clone(value)
		f.own(path, value, name)
	}

	return nil
}

// own records name as the source of path and of every leaf below it.
func (f *folder) own(path string, value any, name string) {
	f.owners[path] = name
	if m, ok := asMap(value); ok {
		for key, v := range m {
			f.own(joinPath(path, key), v, name)
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	return cloneMap(c)
}

// Get walks keys through nested mappings and returns the value found.
func (c Config) Get(keys ...string) (any, bool) {
	var current any = c
	for _, key := range keys {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func clone(v any) any {
	if m, ok := asMap(v); ok {
		return cloneMap(m)
	}
	if s, ok := asSlice(v); ok {
		return cloneSlice(s)
	}
	return v
}

func cloneMap(m Config) Config {
	out := make(Config, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = clone(v)
	}
	return out
}

// asMap views v as a Config. Decoders and producers hand over
// map[string]any, Config and occasionally typed maps such as
// map[string]string; all of them count as mappings.
func asMap(v any) (Config, bool) {
	switch m := v.(type) {
	case Config:
		return m, true
	case map[string]any:
		return Config(m), true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(Config, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// asSlice views v as a sequence. Byte slices are treated as scalars.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
