package mcp

import (
	"encoding/json"
	"math"

	"github.com/google/jsonschema-go/jsonschema"
)

// InputSchema describes the tool's arguments as a JSON Schema object.
// Undeclared arguments are rejected, so additionalProperties is false.
func (t *Tool) InputSchema() *jsonschema.Schema {
	return t.Properties.Schema()
}

// Schema renders the list as a JSON Schema object.
func (pl PropertyList) Schema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema, len(pl.props)),
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	for _, p := range pl.props {
		ps := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.hasDefault {
			if raw, err := json.Marshal(p.def); err == nil {
				ps.Default = raw
			}
		}
		if p.Type == TypeInteger {
			// Arguments are carried as int32; unbounded integers advertise that.
			lo, hi := float64(math.MinInt32), float64(math.MaxInt32)
			if p.hasRange {
				lo, hi = float64(p.min), float64(p.max)
			}
			ps.Minimum = &lo
			ps.Maximum = &hi
		}
		s.Properties[p.Name] = ps
		if !p.hasDefault {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}
