package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Body formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var errEmptyBody = errors.New("empty body")

// ParseError is returned for a body that is not well-formed in its declared
// format. Callers treat it as a validation failure.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s body: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatFor picks the body format for a declared content type.
func FormatFor(contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

// ParseBody decodes raw into a generic value: YAML when contentType mentions
// yaml, JSON otherwise. The result carries no schema guarantees.
func ParseBody(raw []byte, contentType string) (any, error) {
	format := FormatFor(contentType)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ParseError{Format: format, Err: errEmptyBody}
	}
	var out any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(raw, &out); err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
		out = stringKeys(out)
	default:
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &ParseError{Format: format, Err: err}
		}
	}
	return out, nil
}

// stringKeys rewrites YAML mappings with non-string keys (404: x) into
// string-keyed maps so the value has a JSON shape.
func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = stringKeys(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = stringKeys(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = stringKeys(child)
		}
		return t
	default:
		return v
	}
}
