package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// PropertyType is the wire type of a tool parameter.
type PropertyType string

const (
	TypeBoolean PropertyType = "boolean"
	TypeInteger PropertyType = "integer"
	TypeString  PropertyType = "string"
)

// Property describes one named, typed parameter of a tool.
// A property without a default value is required.
type Property struct {
	Name        string
	Type        PropertyType
	Description string

	def        any
	hasDefault bool

	min, max int
	hasRange bool
}

// PropertyOption customizes a Property.
type PropertyOption func(*Property)

// WithDefault makes the property optional with the given value.
func WithDefault(v any) PropertyOption {
	return func(p *Property) {
		p.def = v
		p.hasDefault = true
	}
}

// WithDescription sets the human/AI readable description.
func WithDescription(s string) PropertyOption {
	return func(p *Property) {
		p.Description = s
	}
}

func newProperty(name string, typ PropertyType, opts []PropertyOption) Property {
	p := Property{Name: name, Type: typ}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// BoolProperty declares a boolean parameter.
func BoolProperty(name string, opts ...PropertyOption) Property {
	return newProperty(name, TypeBoolean, opts)
}

// StringProperty declares a string parameter.
func StringProperty(name string, opts ...PropertyOption) Property {
	return newProperty(name, TypeString, opts)
}

// IntProperty declares an unbounded integer parameter.
func IntProperty(name string, opts ...PropertyOption) Property {
	return newProperty(name, TypeInteger, opts)
}

// IntRangeProperty declares an integer parameter bounded to [min, max].
func IntRangeProperty(name string, min, max int, opts ...PropertyOption) Property {
	p := newProperty(name, TypeInteger, opts)
	p.min, p.max, p.hasRange = min, max, true
	return p
}

// Default returns the default value and whether one is set.
func (p Property) Default() (any, bool) {
	return p.def, p.hasDefault
}

// Range returns the integer bounds and whether they apply.
func (p Property) Range() (min, max int, ok bool) {
	return p.min, p.max, p.hasRange
}

// Required reports whether a caller must supply the value.
func (p Property) Required() bool {
	return !p.hasDefault
}

// coerce checks v against the property and returns its canonical Go value
// (bool, int or string).
func (p Property) coerce(v any) (any, error) {
	switch p.Type {
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, &ParamError{Param: p.Name, Reason: "expected boolean"}
		}
		return b, nil

	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, &ParamError{Param: p.Name, Reason: "expected string"}
		}
		return s, nil

	case TypeInteger:
		n, err := toInt(v)
		if err != nil {
			return nil, &ParamError{Param: p.Name, Reason: err.Error()}
		}
		if p.hasRange && (n < p.min || n > p.max) {
			return nil, &ParamError{
				Param:  p.Name,
				Reason: fmt.Sprintf("value %d out of range [%d, %d]", n, p.min, p.max),
			}
		}
		return n, nil
	}
	return nil, &ParamError{Param: p.Name, Reason: fmt.Sprintf("unsupported type %q", p.Type)}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return intFromFloat(float64(n))
	case int64:
		return intFromFloat(float64(n))
	case json.Number:
		if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
			return intFromFloat(float64(i))
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected integer")
		}
		return intFromFloat(f)
	case float64:
		return intFromFloat(n)
	}
	return 0, fmt.Errorf("expected integer")
}

func intFromFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected integer, got %v", f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("integer %v overflows", f)
	}
	return int(f), nil
}
