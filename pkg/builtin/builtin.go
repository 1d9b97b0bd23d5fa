// Package builtin provides a small library of ready-made transformation
// descriptors — identity, scaling, and complex split/combine — of the
// kind every kernel-fusion core ships so callers don't hand-write the
// common cases. See SPEC_FULL.md §3 (Data model) and §8
// (end-to-end scenarios), which exercise Identity and ScaleConst directly.
package builtin

import (
	"github.com/kerngraph/kerngraph/pkg/dtype"
	"github.com/kerngraph/kerngraph/pkg/paramspec"
	"github.com/kerngraph/kerngraph/pkg/transform"
)

// Names lists every builtin transformation in registration order, the order
// "list-transforms" prints them in.
func Names() []string {
	return []string{"identity", "scale_param", "scale_const", "split_complex", "combine_complex"}
}

// Params returns the CLI-facing parameter spec for a builtin transformation
// name, or ok=false if name is not one of Names().
func Params(name string) (spec paramspec.Spec, ok bool) {
	switch name {
	case "identity", "scale_param", "split_complex", "combine_complex":
		return nil, true
	case "scale_const":
		return paramspec.Spec{
			{
				Name:        "multiplier",
				Description: "constant multiplier baked into the generated kernel source",
				Type:        paramspec.FloatParam,
				Required:    true,
			},
		}, true
	default:
		return nil, false
	}
}

// Identity returns a pass-through transformation: store.s1(load.l1).
func Identity() transform.Descriptor {
	return transform.New(1, 1, 0, `{{store "s1"}}({{load "l1"}});`)
}

// ScaleParam returns a transformation that multiplies its load by a
// runtime scalar parameter: store.s1(load.l1 * param.p1).
func ScaleParam() transform.Descriptor {
	return transform.New(1, 1, 1, `{{store "s1"}}({{func "mul" "l1" "p1"}});`)
}

// ScaleConst returns a transformation that multiplies its load by a
// fixed, compile-time constant baked directly into the generated source.
func ScaleConst(multiplier float64, dt dtype.Type) transform.Descriptor {
	literal := dtype.CLiteral(dt, multiplier)

	return transform.New(1, 1, 0, `{{store "s1"}}({{load "l1"}} * `+literal+`);`)
}

// SplitComplex returns a transformation attached to an output (STORE)
// endpoint: it splits one complex value into writes to two real output
// arrays, store.s1(val.x); store.s2(val.y). Its load dtype (the complex
// value being stored) is derived from its two real store children, and
// vice versa, overriding the default promote-and-broadcast behavior,
// which would otherwise treat the store children as the same complex type
// as the value itself.
func SplitComplex() transform.Descriptor {
	return transform.New(
		1, 2, 0,
		`{{store "s1"}}({{load "l1"}}.x);
{{store "s2"}}({{load "l1"}}.y);`,
		transform.WithDeriveLFromSP(func(storeParamDtypes, _ []dtype.Type) []dtype.Type {
			return []dtype.Type{dtype.ComplexFor(storeParamDtypes[0])}
		}),
		transform.WithDeriveSPFromL(func(loadDtype dtype.Type) ([]dtype.Type, []dtype.Type) {
			real := realComponent(loadDtype)
			return []dtype.Type{real, real}, nil
		}),
	)
}

// CombineComplex returns a transformation attached to an input (LOAD)
// endpoint: it packs two real loads into one complex value,
// store.s1(COMPLEX_CTR(ctype.s1)(load.l1, load.l2)). Its store dtype (the
// complex value handed to the consumer) is derived from its two real load
// children, and vice versa.
func CombineComplex() transform.Descriptor {
	return transform.New(
		2, 1, 0,
		`{{store "s1"}}(COMPLEX_CTR({{ctype "s1"}})({{load "l1"}}, {{load "l2"}}));`,
		transform.WithDeriveSFromLP(func(loadParamDtypes, _ []dtype.Type) []dtype.Type {
			return []dtype.Type{dtype.ComplexFor(loadParamDtypes[0])}
		}),
		transform.WithDeriveLPFromS(func(storeDtype dtype.Type) ([]dtype.Type, []dtype.Type) {
			real := realComponent(storeDtype)
			return []dtype.Type{real, real}, nil
		}),
	)
}

func realComponent(t dtype.Type) dtype.Type {
	t = dtype.Normalize(t)
	if t.Real != nil {
		return *t.Real
	}

	return t
}
