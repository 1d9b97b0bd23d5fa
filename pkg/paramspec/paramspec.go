// Package paramspec describes the configurable knobs a builtin
// transformation exposes to callers that only know its name — the CLI's
// "connections" JSON and any future interactive tooling — so a caller can
// validate or prompt for a value without importing pkg/builtin's Go API.
package paramspec

import (
	"fmt"
	"log"
	"strings"
)

// Type identifies the Go type a Param's value must satisfy.
type Type int

const (
	// BoolParam reflects a boolean value.
	BoolParam Type = iota
	// IntParam reflects an integer value.
	IntParam
	// FloatParam reflects a floating point value.
	FloatParam
	// StringParam reflects a string value.
	StringParam
	// DtypeParam reflects a dtype.Type name, validated against dtype.Names().
	DtypeParam
)

// String renders the type name shown in CLI help text.
func (t Type) String() string {
	switch t {
	case BoolParam:
		return "bool"
	case IntParam:
		return "int"
	case FloatParam:
		return "float"
	case StringParam:
		return "string"
	case DtypeParam:
		return "dtype"
	}

	log.Panicf("paramspec: invalid Type value %d", int(t))

	return ""
}

// Param describes one named, typed, optionally-defaulted knob of a builtin
// transformation, e.g. ScaleConst's "multiplier".
type Param struct {
	// Default is the value used when the caller omits this param.
	Default any
	// Name identifies the param in a connection spec's arg map.
	Name string
	// Description is shown in CLI help text.
	Description string
	Type        Type
	// Required reports whether omitting this param is an error rather than
	// falling back to Default.
	Required bool
}

// FormatDefault renders Default the way CLI help text and generated
// connection-spec templates want to see it.
func (p Param) FormatDefault() string {
	if p.Default == nil {
		return ""
	}

	if p.Type == StringParam || p.Type == DtypeParam {
		return fmt.Sprintf("%q", p.Default)
	}

	return fmt.Sprint(p.Default)
}

// Spec is the full set of params one builtin transformation accepts.
type Spec []Param

// Describe renders a one-line-per-param summary, e.g. for a
// "list-transforms --describe" CLI surface.
func (s Spec) Describe() string {
	if len(s) == 0 {
		return "(no parameters)"
	}

	lines := make([]string, 0, len(s))

	for _, p := range s {
		req := ""
		if p.Required {
			req = ", required"
		}

		lines = append(lines, fmt.Sprintf("  %s (%s%s): %s", p.Name, p.Type, req, p.Description))
	}

	return strings.Join(lines, "\n")
}
