package task

import (
	"encoding/json"
	"strconv"
	"strings"

	tferrors "github.com/threadforge/threadforge/pkg/common/errors"
	"github.com/threadforge/threadforge/pkg/common/validation"
)

const moduleName = "task"

// Descriptor is the normalized view of a task specification: a type tag plus
// named parameters. Params holds the flattened string form used by the
// built-in constructors; Raw keeps the original structured fields for callers
// that need richer types.
type Descriptor struct {
	Type   string
	Params map[string]string
	Raw    map[string]interface{}
}

// Parse parses a task specification into a Descriptor and validates it.
//
// The primary form is a JSON object with a "type" string and arbitrary
// additional fields. When the input is not a JSON object, the legacy
// pipe-delimited form "TYPE|key=value|key=value" is accepted as a fallback.
// Validation errors are returned synchronously, before any scheduling.
func Parse(data string) (Descriptor, error) {
	d, err := parseAny(data)
	if err != nil {
		return Descriptor{}, err
	}
	if err := validateDescriptor(d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func parseAny(data string) (Descriptor, error) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return Descriptor{}, tferrors.NewValidationError(moduleName, "data", "", "cannot be empty").
			WithHint("provide a JSON descriptor or TYPE|key=value form")
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		return fromRaw(raw)
	}

	return parseLegacy(trimmed), nil
}

// fromRaw builds a Descriptor from an already-decoded JSON object.
func fromRaw(raw map[string]interface{}) (Descriptor, error) {
	typ, _ := raw["type"].(string)
	if typ == "" {
		return Descriptor{}, tferrors.NewValidationError(moduleName, "type", raw["type"], "must be a non-empty string")
	}

	d := Descriptor{Type: typ, Params: make(map[string]string, len(raw)), Raw: raw}
	for key, value := range raw {
		if key == "type" {
			continue
		}
		d.Params[key] = stringifyParam(value)
	}
	return d, nil
}

// FromRaw builds a validated Descriptor from a decoded JSON object. It is
// used by the pipeline registry after placeholder resolution.
func FromRaw(raw map[string]interface{}) (Descriptor, error) {
	d, err := fromRaw(raw)
	if err != nil {
		return Descriptor{}, err
	}
	if err := validateDescriptor(d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

// parseLegacy parses the pipe-delimited fallback form. Empty segments and
// segments without a key=value separator are skipped.
func parseLegacy(data string) Descriptor {
	d := Descriptor{Params: make(map[string]string)}
	first := true
	for _, segment := range strings.Split(data, "|") {
		if segment == "" {
			continue
		}
		if first {
			d.Type = segment
			first = false
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		d.Params[key] = value
	}
	return d
}

func stringifyParam(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		// Nested objects and arrays keep their JSON encoding; callers that
		// need structure read Raw instead.
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// String returns the named parameter, or def when absent.
func (d Descriptor) String(key, def string) string {
	if v, ok := d.Params[key]; ok {
		return v
	}
	return def
}

// Int returns the named parameter parsed as an integer, or def when absent
// or malformed.
func (d Descriptor) Int(key string, def int64) int64 {
	v, ok := d.Params[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// requireInt returns a ValidationError unless the named parameter is present
// and parses as an integer.
func (d Descriptor) requireInt(key string) (int64, error) {
	v, ok := d.Params[key]
	if !ok {
		return 0, tferrors.NewValidationError(moduleName, key, "<missing>", "is required").
			WithHint("provide a positive integer " + key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, tferrors.NewValidationError(moduleName, key, v, "must be an integer")
	}
	return n, nil
}

func validateDescriptor(d Descriptor) error {
	if err := validation.ValidateNotEmpty(moduleName, "type", d.Type); err != nil {
		return err
	}
	b, ok := builtins[d.Type]
	if !ok || b.validate == nil {
		// Unknown types are a documented fallback, handled at run time.
		return nil
	}
	return b.validate(d)
}
