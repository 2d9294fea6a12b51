package intake

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	errx "github.com/intakeflow/server/internal/core/error"
)

// Result is the outcome of validation: the repaired record and the paths
// that had to be filled with the sentinel, in canonical order.
type Result struct {
	Record Record
	Gaps   []FieldPath
}

// Complete reports whether validation found no gaps.
func (r Result) Complete() bool {
	return len(r.Gaps) == 0
}

// Validate checks raw against the intake schema. Every empty expected field
// is replaced with Sentinel and reported as a gap. raw is never modified.
//
// raw may be a Record or a decoded JSON/YAML object. A value that is not an
// object, an unknown top-level key, or a section that is not an object is
// reported as *errx.IntakeFormatError.
func Validate(raw any) (Result, error) {
	rec, err := toRecord(raw)
	if err != nil {
		return Result{}, err
	}

	out := make(Record, len(Sections))
	for s, fields := range rec {
		out[s] = cloneMap(fields)
	}

	var gaps []FieldPath
	for _, s := range Sections {
		if out[s] == nil {
			out[s] = map[string]any{}
		}
		for _, f := range schema[s] {
			v, _ := out.Get(f.Path)
			if !IsEmpty(v) {
				continue
			}
			if err := out.Set(f.Path, Sentinel); err != nil {
				return Result{}, &errx.IntakeFormatError{Reason: err.Error()}
			}
			gaps = append(gaps, f.Path)
		}
	}

	return Result{Record: out, Gaps: gaps}, nil
}

// IsEmpty reports whether v carries no usable data. Numbers and booleans are
// never empty; the sentinel is.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == Sentinel
	case bool, int, int32, int64, float32, float64, uint, uint32, uint64, json.Number:
		return false
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func toRecord(raw any) (Record, error) {
	switch t := raw.(type) {
	case Record:
		return fromRecord(t)
	case map[Section]map[string]any:
		return fromRecord(Record(t))
	case map[string]any:
		return fromMap(t)
	case nil:
		return nil, &errx.IntakeFormatError{Reason: "intake must be an object, got null"}
	default:
		return nil, &errx.IntakeFormatError{Reason: fmt.Sprintf("intake must be an object, got %T", raw)}
	}
}

func fromRecord(r Record) (Record, error) {
	var unknown []string
	for s := range r {
		if !IsSection(string(s)) {
			unknown = append(unknown, string(s))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &errx.IntakeFormatError{Reason: "unknown sections", Keys: unknown}
	}
	return checkNested(r.Clone())
}

func fromMap(m map[string]any) (Record, error) {
	var unknown []string
	for k := range m {
		if !IsSection(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &errx.IntakeFormatError{Reason: "unknown sections", Keys: unknown}
	}

	rec := make(Record, len(m))
	for k, v := range m {
		switch sec := v.(type) {
		case nil:
			rec[Section(k)] = nil
		case map[string]any:
			rec[Section(k)] = cloneMap(sec)
		default:
			return nil, &errx.IntakeFormatError{
				Reason: fmt.Sprintf("section must be an object, got %T", v),
				Keys:   []string{k},
			}
		}
	}
	return checkNested(rec)
}

// checkNested rejects scalars where the schema expects an object on the way to a leaf.
func checkNested(rec Record) (Record, error) {
	for _, f := range Schema() {
		if len(f.Path) <= 2 {
			continue
		}
		for depth := 2; depth < len(f.Path); depth++ {
			v, ok := rec.Get(f.Path[:depth])
			if !ok || v == nil {
				break
			}
			if _, isObj := v.(map[string]any); !isObj {
				return nil, &errx.IntakeFormatError{
					Reason: fmt.Sprintf("field must be an object, got %T", v),
					Keys:   []string{f.Path[:depth].String()},
				}
			}
		}
	}
	return rec, nil
}
