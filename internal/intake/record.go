package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record is an intake document keyed by section.
type Record map[Section]map[string]any

// Get returns the value stored at path.
func (r Record) Get(path FieldPath) (any, bool) {
	if len(path) < 2 {
		return nil, false
	}
	sec, ok := r[path.Section()]
	if !ok || sec == nil {
		return nil, false
	}
	var cur any = sec
	for _, key := range path[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate objects as needed.
// A non-object value on the way to the leaf is an error.
func (r Record) Set(path FieldPath, value any) error {
	if len(path) < 2 {
		return fmt.Errorf("intake: field path %q has no field", path)
	}
	sec := r[path.Section()]
	if sec == nil {
		sec = map[string]any{}
		r[path.Section()] = sec
	}
	cur := sec
	for i, key := range path[1 : len(path)-1] {
		next, ok := cur[key]
		if !ok || next == nil {
			m := map[string]any{}
			cur[key] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("intake: %s is not an object", path[:i+2])
		}
		cur = m
	}
	cur[path[len(path)-1]] = value
	return nil
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for s, fields := range r {
		if fields == nil {
			out[s] = nil
			continue
		}
		out[s] = cloneMap(fields)
	}
	return out
}

// Map returns the record as a plain JSON-like value.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r))
	for s, fields := range r {
		out[string(s)] = cloneMap(fields)
	}
	return out
}

// MarshalJSON writes sections in canonical order; keys inside a section are sorted.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, s := range Sections {
		fields, ok := r[s]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(string(s))
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("intake: encode %s: %w", s, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rec, err := toRecord(raw)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
