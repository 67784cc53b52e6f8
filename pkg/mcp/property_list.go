package mcp

import (
	"fmt"
	"math"
	"sort"
)

// PropertyList is an ordered set of uniquely named properties.
type PropertyList struct {
	props []Property
	index map[string]int
}

// NewPropertyList builds a list, rejecting duplicate names, inverted integer
// ranges and defaults that would fail their own validation.
func NewPropertyList(props ...Property) (PropertyList, error) {
	pl := PropertyList{
		props: make([]Property, 0, len(props)),
		index: make(map[string]int, len(props)),
	}
	for _, p := range props {
		if p.Name == "" {
			return PropertyList{}, fmt.Errorf("%w: empty name", ErrInvalidParams)
		}
		if _, dup := pl.index[p.Name]; dup {
			return PropertyList{}, fmt.Errorf("%w: %s", ErrDuplicateProperty, p.Name)
		}
		if p.hasRange && (p.min > p.max || p.min < math.MinInt32 || p.max > math.MaxInt32) {
			return PropertyList{}, fmt.Errorf("%w: %s [%d, %d]", ErrInvalidRange, p.Name, p.min, p.max)
		}
		if p.hasDefault {
			v, err := p.coerce(p.def)
			if err != nil {
				return PropertyList{}, fmt.Errorf("%w: %v", ErrInvalidDefault, err)
			}
			p.def = v
		}
		pl.index[p.Name] = len(pl.props)
		pl.props = append(pl.props, p)
	}
	return pl, nil
}

// MustPropertyList is NewPropertyList for static tool declarations.
func MustPropertyList(props ...Property) PropertyList {
	pl, err := NewPropertyList(props...)
	if err != nil {
		panic(err)
	}
	return pl
}

// Len returns the number of properties.
func (pl PropertyList) Len() int {
	return len(pl.props)
}

// All returns the properties in declaration order.
func (pl PropertyList) All() []Property {
	out := make([]Property, len(pl.props))
	copy(out, pl.props)
	return out
}

// Get returns the named property.
func (pl PropertyList) Get(name string) (Property, bool) {
	i, ok := pl.index[name]
	if !ok {
		return Property{}, false
	}
	return pl.props[i], true
}

// Validate binds args to the declared properties. Missing optional values take
// their default. Type mismatches, missing required values, out of range
// integers and undeclared arguments fail with a *ParamError.
func (pl PropertyList) Validate(args map[string]any) (Values, error) {
	var unknown []string
	for name := range args {
		if _, ok := pl.index[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ParamError{Param: unknown[0], Reason: "unknown argument"}
	}

	vals := make(Values, len(pl.props))
	for _, p := range pl.props {
		raw, ok := args[p.Name]
		if !ok || raw == nil {
			if !p.hasDefault {
				return nil, &ParamError{Param: p.Name, Reason: "missing required argument"}
			}
			vals[p.Name] = p.def
			continue
		}
		v, err := p.coerce(raw)
		if err != nil {
			return nil, err
		}
		vals[p.Name] = v
	}
	return vals, nil
}

// Values holds validated arguments keyed by property name.
type Values map[string]any

// Has reports whether name is bound.
func (v Values) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Int returns an integer argument, or 0.
func (v Values) Int(name string) int {
	n, _ := v[name].(int)
	return n
}

// String returns a string argument, or "".
func (v Values) String(name string) string {
	s, _ := v[name].(string)
	return s
}

// Bool returns a boolean argument, or false.
func (v Values) Bool(name string) bool {
	b, _ := v[name].(bool)
	return b
}
