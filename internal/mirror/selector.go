package mirror

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Selector picks bands for one Bind behaviour. The zero value is unset
// and falls back to the behaviour's default.
type Selector struct {
	set   bool
	all   bool
	bands []string
}

// All selects every band in scope.
func All() Selector { return Selector{set: true, all: true} }

// None selects no band.
func None() Selector { return Selector{set: true} }

// Only selects the named bands.
func Only(bands ...string) Selector {
	return Selector{set: true, bands: slices.Clone(bands)}
}

// IsSet reports whether the selector was given explicitly.
func (s Selector) IsSet() bool { return s.set }

// String renders the selector for logs.
func (s Selector) String() string {
	switch {
	case !s.set:
		return "default"
	case s.all:
		return "all"
	case len(s.bands) == 0:
		return "none"
	default:
		return fmt.Sprintf("%v", s.bands)
	}
}

// resolve returns the selected bands. An unset selector selects scope
// when def is true and nothing otherwise.
func (s Selector) resolve(scope []string, def bool) map[string]bool {
	out := make(map[string]bool)
	switch {
	case !s.set && def, s.all:
		for _, b := range scope {
			out[b] = true
		}
	case s.set:
		for _, b := range s.bands {
			out[b] = true
		}
	}
	return out
}

// ParseSelector accepts a bool or a list of band names. A missing value
// (nil) is rejected; leave the key out to get the default.
func ParseSelector(v any) (Selector, error) {
	switch val := v.(type) {
	case nil:
		return Selector{}, fmt.Errorf("%w: expected boolean or band list, got null", ErrConfiguration)
	case bool:
		if val {
			return All(), nil
		}
		return None(), nil
	case []string:
		return Only(val...), nil
	case []any:
		bands := make([]string, 0, len(val))
		for i, elem := range val {
			b, ok := elem.(string)
			if !ok || b == "" {
				return Selector{}, fmt.Errorf("%w: element %d must be a band name, got %v", ErrConfiguration, i, elem)
			}
			bands = append(bands, b)
		}
		return Only(bands...), nil
	default:
		return Selector{}, fmt.Errorf("%w: expected boolean or band list, got %T", ErrConfiguration, v)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("%w: line %d: expected boolean or band list", ErrConfiguration, node.Line)
		}
		if b {
			*s = All()
		} else {
			*s = None()
		}
		return nil
	case yaml.SequenceNode:
		var bands []string
		if err := node.Decode(&bands); err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrConfiguration, node.Line, err)
		}
		*s = Only(bands...)
		return nil
	default:
		return fmt.Errorf("%w: line %d: expected boolean or band list", ErrConfiguration, node.Line)
	}
}
