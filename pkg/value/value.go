// Package value implements the two-variant tagged union describing the
// semantic type of a transformation-tree endpoint: an array (shape + dtype)
// or a scalar (literal + dtype). See SPEC_FULL.md Data Model.
package value

import (
	"fmt"

	"github.com/kerngraph/kerngraph/pkg/dtype"
)

// Value is the shared interface over ArrayValue and ScalarValue. Dispatch
// on the concrete kind is by type switch / IsArray, never by a subclass
// hierarchy: the two variants are a closed sum type.
type Value interface {
	// IsArray reports whether this Value is an ArrayValue.
	IsArray() bool
	// Dtype returns the element type, or the zero dtype.Type if undefined.
	Dtype() dtype.Type
	// SetDtype overwrites the element type.
	SetDtype(dtype.Type)
	// FillWith copies every field from other into this Value. other must
	// be the same concrete variant.
	FillWith(other Value)
	// Clear resets every field to undefined.
	Clear()
	fmt.Stringer
}

// ArrayValue is the Value variant for LOAD/STORE endpoints: an array
// endpoint's shape and element type. Size is derived, never stored
// independently, so it can never drift from Shape.
type ArrayValue struct {
	shape []int
	dt    dtype.Type
}

// NewArrayValue constructs an ArrayValue; shape may be nil (undefined).
func NewArrayValue(shape []int, dt dtype.Type) *ArrayValue {
	return &ArrayValue{shape: cloneShape(shape), dt: dt}
}

// IsArray always returns true for ArrayValue.
func (a *ArrayValue) IsArray() bool { return true }

// Dtype returns the element type.
func (a *ArrayValue) Dtype() dtype.Type { return a.dt }

// SetDtype overwrites the element type.
func (a *ArrayValue) SetDtype(dt dtype.Type) { a.dt = dt }

// Shape returns the array's shape, or nil if undefined. The returned slice
// must not be mutated by the caller.
func (a *ArrayValue) Shape() []int { return a.shape }

// SetShape overwrites the shape; the invariant that Size stays consistent
// with Shape holds because Size is always computed from Shape on demand.
func (a *ArrayValue) SetShape(shape []int) { a.shape = cloneShape(shape) }

// Size returns the product of Shape, or -1 if Shape is undefined.
func (a *ArrayValue) Size() int {
	if a.shape == nil {
		return -1
	}

	size := 1
	for _, dim := range a.shape {
		size *= dim
	}

	return size
}

// FillWith copies shape and dtype from other, which must be an *ArrayValue.
func (a *ArrayValue) FillWith(other Value) {
	src, ok := other.(*ArrayValue)
	if !ok {
		panic("value: FillWith variant mismatch: ArrayValue from non-array")
	}

	a.shape = cloneShape(src.shape)
	a.dt = src.dt
}

// Clear resets shape and dtype to undefined.
func (a *ArrayValue) Clear() {
	a.shape = nil
	a.dt = dtype.Type{}
}

// String renders a short human-readable summary.
func (a *ArrayValue) String() string {
	s := "array"
	if !a.dt.Zero() {
		s += ", " + a.dt.Name
	}

	if a.shape != nil {
		s += fmt.Sprintf(", %v", a.shape)
	}

	return s
}

func cloneShape(shape []int) []int {
	if shape == nil {
		return nil
	}

	out := make([]int, len(shape))
	copy(out, shape)

	return out
}

// ScalarValue is the Value variant for SCALAR endpoints: a literal cast
// into its dtype, plus the dtype itself.
type ScalarValue struct {
	literal any
	dt      dtype.Type
}

// NewScalarValue constructs a ScalarValue; literal may be nil (undefined).
func NewScalarValue(literal any, dt dtype.Type) *ScalarValue {
	return &ScalarValue{literal: literal, dt: dt}
}

// IsArray always returns false for ScalarValue.
func (s *ScalarValue) IsArray() bool { return false }

// Dtype returns the element type.
func (s *ScalarValue) Dtype() dtype.Type { return s.dt }

// SetDtype overwrites the element type.
func (s *ScalarValue) SetDtype(dt dtype.Type) { s.dt = dt }

// Literal returns the scalar's literal value, or nil if undefined.
func (s *ScalarValue) Literal() any { return s.literal }

// SetLiteral overwrites the literal value.
func (s *ScalarValue) SetLiteral(v any) { s.literal = v }

// FillWith copies literal and dtype from other, which must be a *ScalarValue.
func (s *ScalarValue) FillWith(other Value) {
	src, ok := other.(*ScalarValue)
	if !ok {
		panic("value: FillWith variant mismatch: ScalarValue from non-scalar")
	}

	s.literal = src.literal
	s.dt = src.dt
}

// Clear resets literal and dtype to undefined.
func (s *ScalarValue) Clear() {
	s.literal = nil
	s.dt = dtype.Type{}
}

// String renders a short human-readable summary.
func (s *ScalarValue) String() string {
	str := "scalar"
	if !s.dt.Zero() {
		str += ", " + s.dt.Name
	}

	return str
}
