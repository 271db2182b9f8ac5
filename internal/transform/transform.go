// Package transform provides the named payload transforms that can be
// attached to a bridge direction from configuration.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"wsbridge-go/internal/model"
)

// Spec selects and parameterises a transform.
type Spec struct {
	Name string
	From string
	To   string
}

type builder func(Spec) (model.Transform, error)

var registry = map[string]builder{
	"identity": func(Spec) (model.Transform, error) {
		return func(p []byte) ([]byte, error) { return p, nil }, nil
	},
	"uppercase": func(Spec) (model.Transform, error) {
		return textOnly(bytes.ToUpper), nil
	},
	"lowercase": func(Spec) (model.Transform, error) {
		return textOnly(bytes.ToLower), nil
	},
	"replace": newReplace,
}

// Build returns the transform named by s, or nil when s.Name is empty.
func Build(s Spec) (model.Transform, error) {
	if s.Name == "" {
		return nil, nil
	}
	b, ok := registry[s.Name]
	if !ok {
		return nil, fmt.Errorf("unknown transform %q (known: %v)", s.Name, Names())
	}
	return b(s)
}

// Names lists the registered transform names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// textOnly applies fn to valid UTF-8 payloads and passes anything else
// through untouched, since case mapping rewrites invalid bytes to U+FFFD.
func textOnly(fn func([]byte) []byte) model.Transform {
	return func(p []byte) ([]byte, error) {
		if !utf8.Valid(p) {
			return p, nil
		}
		return fn(p), nil
	}
}

func newReplace(s Spec) (model.Transform, error) {
	if s.From == "" {
		return nil, errors.New("replace transform requires a non-empty from")
	}
	from, to := []byte(s.From), []byte(s.To)
	return func(p []byte) ([]byte, error) {
		return bytes.ReplaceAll(p, from, to), nil
	}, nil
}
