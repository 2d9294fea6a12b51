package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	errx "github.com/intakeflow/server/internal/core/error"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of an intake document.
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// maxDocumentBytes bounds the size of an intake document.
const maxDocumentBytes = 1 << 20

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// Decode parses data into a JSON-like value suitable for Validate.
// FormatAuto tries JSON when the document starts with '{' and YAML otherwise.
func Decode(data []byte, format Format) (any, error) {
	if len(data) > maxDocumentBytes {
		return nil, &errx.IntakeFormatError{Reason: fmt.Sprintf("document exceeds %d bytes", maxDocumentBytes)}
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &errx.IntakeFormatError{Reason: "empty document"}
	}
	if format == FormatAuto {
		format = FormatYAML
		if trimmed[0] == '{' || trimmed[0] == '[' {
			format = FormatJSON
		}
	}

	var out any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, &errx.IntakeFormatError{Reason: "invalid JSON: " + err.Error()}
		}
		return out, nil
	case FormatYAML:
		if err := yaml.Unmarshal(trimmed, &out); err != nil {
			return nil, &errx.IntakeFormatError{Reason: "invalid YAML: " + err.Error()}
		}
		return normalize(out), nil
	default:
		return nil, fmt.Errorf("intake: unknown format %q", format)
	}
}

// normalize turns YAML specific shapes into the ones encoding/json produces.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}
