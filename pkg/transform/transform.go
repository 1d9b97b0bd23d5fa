// Package transform defines the immutable transformation descriptor a user
// attaches to a transformation-tree endpoint: its fan-in/fan-out shape,
// its four type-derivation callbacks, and its code template. See
// SPEC_FULL.md §3 (Data model).
package transform

import "github.com/kerngraph/kerngraph/pkg/dtype"

// ForwardFromLoad derives the dtypes of every store/param slot from the
// dtypes of the load/param slots feeding a LOAD node, or vice versa for a
// STORE node's forward direction. It returns the derived dtypes as a single
// slice.
type ForwardFromLoad func(loadDtypes, paramDtypes []dtype.Type) []dtype.Type

// BackwardFromStore derives the ([]load, []param) dtypes of a node's
// children from its own single dtype (the inverse of ForwardFromLoad).
type BackwardFromStore func(storeDtype dtype.Type) (loadDtypes, paramDtypes []dtype.Type)

// Descriptor is the immutable, user-authored record describing one
// transformation: how many array/scalar slots it has, how dtypes flow
// across it in both directions, and the GPU source template that
// implements it.
type Descriptor struct {
	// Load is the number of input array slots.
	Load int
	// Store is the number of output array slots.
	Store int
	// Parameters is the number of extra scalar slots.
	Parameters int

	// DeriveSFromLP derives the store dtype(s) from load+param dtypes.
	// Used by propagate_to_base for a LOAD node (node.value.dtype).
	DeriveSFromLP ForwardFromLoad
	// DeriveLPFromS derives (load dtypes, param dtypes) from the store dtype.
	// Used by propagate_to_leaves for a LOAD node.
	DeriveLPFromS BackwardFromStore
	// DeriveLFromSP derives the load dtype(s) from store+param dtypes.
	// Used by propagate_to_base for a STORE node.
	DeriveLFromSP ForwardFromLoad
	// DeriveSPFromL derives (store dtypes, param dtypes) from the load dtype.
	// Used by propagate_to_leaves for a STORE node.
	DeriveSPFromL BackwardFromStore

	// Code is the GPU source template body. Its hole set is
	// load.l1..ln, store.s1..sm, param.p1..pk, dtype.*, ctype.*, and the
	// func.* helper namespace; see pkg/codegen.
	Code string
}

// promoteAll is the default ForwardFromLoad / "other" half of a derivation
// pair: promote across every input dtype and broadcast the result to every
// output slot. This is the sentinel behavior SPEC_FULL.md calls "promote
// across inputs, return that promoted type for all outputs".
func promoteAll(outCount int) ForwardFromLoad {
	return func(a, b []dtype.Type) []dtype.Type {
		all := make([]dtype.Type, 0, len(a)+len(b))
		all = append(all, a...)
		all = append(all, b...)

		promoted := dtype.Promote(all...)
		out := make([]dtype.Type, outCount)

		for i := range out {
			out[i] = promoted
		}

		return out
	}
}

// broadcastBackward is the default BackwardFromStore: every load and param
// slot takes on the single store dtype unchanged.
func broadcastBackward(loadCount, paramCount int) BackwardFromStore {
	return func(dt dtype.Type) ([]dtype.Type, []dtype.Type) {
		loads := make([]dtype.Type, loadCount)
		for i := range loads {
			loads[i] = dt
		}

		params := make([]dtype.Type, paramCount)
		for i := range params {
			params[i] = dt
		}

		return loads, params
	}
}

// New constructs a Descriptor, filling any nil derivation callback with the
// "promote across inputs, broadcast result" default described in
// SPEC_FULL.md §9 (Type-derivation callbacks: a stored closure, or the
// promote-and-broadcast sentinel behavior).
func New(load, store, parameters int, code string, opts ...Option) Descriptor {
	d := Descriptor{
		Load:          load,
		Store:         store,
		Parameters:    parameters,
		DeriveSFromLP: promoteAll(store),
		DeriveLPFromS: broadcastBackward(load, parameters),
		DeriveLFromSP: promoteAll(load),
		DeriveSPFromL: broadcastBackward(store, parameters),
		Code:          code,
	}

	for _, opt := range opts {
		opt(&d)
	}

	return d
}

// Option customizes a Descriptor built by New.
type Option func(*Descriptor)

// WithDeriveSFromLP overrides the LOAD-node forward derivation.
func WithDeriveSFromLP(f ForwardFromLoad) Option {
	return func(d *Descriptor) { d.DeriveSFromLP = f }
}

// WithDeriveLPFromS overrides the LOAD-node backward derivation.
func WithDeriveLPFromS(f BackwardFromStore) Option {
	return func(d *Descriptor) { d.DeriveLPFromS = f }
}

// WithDeriveLFromSP overrides the STORE-node forward derivation.
func WithDeriveLFromSP(f ForwardFromLoad) Option {
	return func(d *Descriptor) { d.DeriveLFromSP = f }
}

// WithDeriveSPFromL overrides the STORE-node backward derivation.
func WithDeriveSPFromL(f BackwardFromStore) Option {
	return func(d *Descriptor) { d.DeriveSPFromL = f }
}
