// Package dtype provides the minimal element-type representation the
// transformation core needs to name, promote, and render GPU scalar types.
//
// The full numerical-type system of a real GPU kernel library (complex
// constructors, vector types, exhaustive C99/OpenCL type tables) is an
// external collaborator of this core (see SPEC_FULL.md); this package is
// deliberately a small stand-in that only carries what the tree and
// codegen components actually consume: a name, a C type string, promotion,
// and literal rendering.
package dtype

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind classifies the representation of a Type for promotion and literal
// rendering purposes.
type Kind int

const (
	// KindInt marks a signed or unsigned integer type.
	KindInt Kind = iota
	// KindFloat marks a real floating-point type.
	KindFloat
	// KindComplex marks a complex floating-point type.
	KindComplex
)

// Type names a single element type known to the core: its canonical name,
// its device-side C type spelling, its Kind, and (for complex types) the
// real component type used by split/combine-style transformations.
type Type struct {
	Name  string
	CType string
	Kind  Kind
	// Real is the component type of a complex Type; zero value for
	// non-complex types.
	Real *Type
	// rank orders types for promotion: a strictly wider/more general type
	// always has a strictly greater rank than a narrower one of the same Kind.
	rank int
}

// String renders the type's canonical name.
func (t Type) String() string {
	return t.Name
}

// IsComplex reports whether t is a complex type.
func (t Type) IsComplex() bool {
	return t.Kind == KindComplex
}

// Zero reports whether t is the zero value (absent/undefined type).
func (t Type) Zero() bool {
	return t.Name == ""
}

// Well-known builtin types, ordered narrowest to widest within each Kind.
var (
	Int32   = Type{Name: "int32", CType: "int", Kind: KindInt, rank: 10}
	Uint32  = Type{Name: "uint32", CType: "unsigned int", Kind: KindInt, rank: 11}
	Int64   = Type{Name: "int64", CType: "long", Kind: KindInt, rank: 12}
	Float32 = Type{Name: "float32", CType: "float", Kind: KindFloat, rank: 20}
	Float64 = Type{Name: "float64", CType: "double", Kind: KindFloat, rank: 21}
)

// Complex64 and Complex128 are the complex counterparts of Float32/Float64.
var (
	Complex64  = Type{Name: "complex64", CType: "float2", Kind: KindComplex, rank: 30, Real: &Float32}
	Complex128 = Type{Name: "complex128", CType: "double2", Kind: KindComplex, rank: 31, Real: &Float64}
)

// registry maps every known type name back to its Type value, used by
// Normalize to canonicalize a Type coming from user code (which may carry
// only a Name).
var registry = func() map[string]Type {
	all := []Type{Int32, Uint32, Int64, Float32, Float64, Complex64, Complex128}
	reg := make(map[string]Type, len(all))

	for _, t := range all {
		reg[t.Name] = t
	}

	return reg
}()

// Normalize resolves a Type that may carry only a Name (as produced by
// user-supplied derivation callbacks) to its canonical, fully-populated
// registry entry. Unknown names pass through unchanged.
func Normalize(t Type) Type {
	if t.Zero() {
		return t
	}

	if canon, ok := registry[t.Name]; ok {
		return canon
	}

	return t
}

// Promote returns the widest type among ts, applying the usual numeric
// promotion rule: complex beats float beats int; ties within a Kind are
// broken by rank. Promote panics if ts is empty; callers (transform
// defaults) always supply at least one dtype.
func Promote(ts ...Type) Type {
	if len(ts) == 0 {
		panic("dtype: Promote called with no types")
	}

	best := Normalize(ts[0])
	for _, t := range ts[1:] {
		t = Normalize(t)
		if t.Zero() {
			continue
		}

		if best.Zero() || rankOf(t) > rankOf(best) {
			best = t
		}
	}

	return best
}

func rankOf(t Type) int {
	if canon, ok := registry[t.Name]; ok {
		return canon.rank
	}

	return t.rank
}

// ComplexFor returns the complex type whose real component is real, or the
// zero Type if no such complex type is registered.
func ComplexFor(real Type) Type {
	real = Normalize(real)

	switch real.Name {
	case Float32.Name:
		return Complex64
	case Float64.Name:
		return Float64Complex()
	default:
		return Type{}
	}
}

// Float64Complex exists only so ComplexFor reads naturally; it is
// Complex128.
func Float64Complex() Type { return Complex128 }

// CLiteral renders a Go numeric literal as device-side C source for the
// given dtype, e.g. CLiteral(Float32, 2.0) -> "2f".
func CLiteral(t Type, value float64) string {
	switch t.Kind {
	case KindFloat:
		if t.Name == Float32.Name {
			return strconv.FormatFloat(value, 'g', -1, 32) + "f"
		}

		return strconv.FormatFloat(value, 'g', -1, 64)
	case KindInt:
		return strconv.FormatInt(int64(value), 10)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// Names returns the sorted list of every builtin type name, used by tests
// and diagnostics that need a deterministic type universe.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
