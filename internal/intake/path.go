package intake

import (
	"fmt"
	"strings"
)

// FieldPath addresses a leaf of an intake record: section, field and optional subfields.
type FieldPath []string

// ParsePath parses the dotted form, e.g. "CII.Latency.Realtime".
func ParsePath(s string) (FieldPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("intake: empty field path")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("intake: malformed field path %q", s)
		}
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("intake: field path %q has no field", s)
	}
	if !IsSection(parts[0]) {
		return nil, fmt.Errorf("intake: unknown section %q", parts[0])
	}
	return FieldPath(parts), nil
}

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// Section returns the first path element as a Section.
func (p FieldPath) Section() Section {
	if len(p) == 0 {
		return ""
	}
	return Section(p[0])
}

func (p FieldPath) Equal(o FieldPath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// MarshalText encodes the path in its dotted form.
func (p FieldPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *FieldPath) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Strings returns the dotted form of every path.
func Strings(paths []FieldPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}
