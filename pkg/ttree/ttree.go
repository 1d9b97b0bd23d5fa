// Package ttree implements the transformation tree: a rooted DAG of named
// endpoints that fuse user-supplied transformation descriptors onto a base
// computation's array and scalar arguments. See SPEC_FULL.md §4
// (Transformation tree).
package ttree

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/kerngraph/kerngraph/pkg/dtype"
	"github.com/kerngraph/kerngraph/pkg/toposort"
	"github.com/kerngraph/kerngraph/pkg/transform"
	"github.com/kerngraph/kerngraph/pkg/value"
)

// Kind identifies the role a node plays in the tree.
type Kind int

const (
	// KindLoad marks an input array endpoint.
	KindLoad Kind = iota
	// KindStore marks an output array endpoint.
	KindStore
	// KindScalar marks a scalar parameter endpoint.
	KindScalar
)

// String renders the Kind's name, used in error messages and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindStore:
		return "store"
	case KindScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// Sentinel error kinds. Every tree operation returns one of these wrapped
// with context via fmt.Errorf("%w: ..."), never a bare error.
var (
	// ErrInvalidName reports an endpoint name that fails the argument-name
	// grammar or collides with an existing name.
	ErrInvalidName = errors.New("ttree: invalid name")
	// ErrInvalidConnection reports a Connect call whose descriptor shape
	// (load/store/parameter counts) does not match its target or argument
	// lists, or that would close a cycle.
	ErrInvalidConnection = errors.New("ttree: invalid connection")
	// ErrTypePropagation reports a dtype conflict discovered while
	// propagating types root-to-leaves.
	ErrTypePropagation = errors.New("ttree: type propagation error")
	// ErrShapeMismatch reports sibling array children whose shapes disagree
	// during base-ward propagation.
	ErrShapeMismatch = errors.New("ttree: shape mismatch")
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validArgumentName(name string) bool {
	return validName.MatchString(name)
}

// node is one tree vertex: a base argument or an intermediate endpoint
// introduced by Connect.
type node struct {
	name         string
	kind         Kind
	val          value.Value
	children     []string // nil for a leaf
	trToChildren *transform.Descriptor
}

func (n *node) isLeaf() bool { return n.children == nil }

// Tree is a single computation's transformation tree: its base argument
// list plus every node grafted on by Connect. A zero Tree is not usable;
// construct one with New.
type Tree struct {
	nodes     map[string]*node
	baseNames []string
	graph     *toposort.Graph
}

// New constructs a Tree whose base arguments are stores, loads, and scalars,
// in that positional order. Names must be valid C identifiers and unique
// across all three lists.
func New(stores, loads, scalars []string) (*Tree, error) {
	base := make([]string, 0, len(stores)+len(loads)+len(scalars))
	base = append(base, stores...)
	base = append(base, loads...)
	base = append(base, scalars...)

	seen := make(map[string]bool, len(base))

	for _, name := range base {
		if !validArgumentName(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}

		if seen[name] {
			return nil, fmt.Errorf("%w: repeated argument name %q", ErrInvalidName, name)
		}

		seen[name] = true
	}

	t := &Tree{
		nodes:     make(map[string]*node, len(base)),
		baseNames: base,
		graph:     toposort.NewGraph(),
	}

	for _, name := range stores {
		t.addBaseNode(name, KindStore, value.NewArrayValue(nil, dtype.Type{}))
	}

	for _, name := range loads {
		t.addBaseNode(name, KindLoad, value.NewArrayValue(nil, dtype.Type{}))
	}

	for _, name := range scalars {
		t.addBaseNode(name, KindScalar, value.NewScalarValue(nil, dtype.Type{}))
	}

	return t, nil
}

func (t *Tree) addBaseNode(name string, kind Kind, v value.Value) {
	t.nodes[name] = &node{name: name, kind: kind, val: v}
	t.graph.AddNode(name)
}

// BaseNames returns the tree's base argument names, in stores-loads-scalars
// order, as supplied to New.
func (t *Tree) BaseNames() []string {
	out := make([]string, len(t.baseNames))
	copy(out, t.baseNames)

	return out
}

// BaseValues returns the current Value of every base argument, in
// BaseNames order.
func (t *Tree) BaseValues() []value.Value {
	out := make([]value.Value, len(t.baseNames))
	for i, name := range t.baseNames {
		out[i] = t.nodes[name].val
	}

	return out
}

// HasArrayLeaf reports whether name is a leaf of the tree (possibly an
// unconnected base argument) whose value is an array.
func (t *Tree) HasArrayLeaf(name string) bool {
	for _, entry := range t.LeafSignature() {
		if entry.Name == name {
			return entry.Value == nil || entry.Value.IsArray()
		}
	}

	return false
}

// LeafEntry is one element of a leaf signature: a leaf endpoint name and
// its current Value (nil if the leaf is not part of this tree, i.e. a
// temporary array name passed straight through transformations_for-style
// code generation).
type LeafEntry struct {
	Name  string
	Value value.Value
}

// LeafSignature walks baseNames (or, if given, an explicit subset/superset
// of names) depth-first and returns every leaf reached, ordered leaf
// arrays first and then scalars — base scalars before transformation
// scalars, matching the calling convention a generated kernel signature
// must expose.
func (t *Tree) LeafSignature(baseNames ...string) []LeafEntry {
	names := baseNames
	if len(names) == 0 {
		names = t.baseNames
	}

	var arrays []string

	scalars := make([]string, 0)
	visited := make(map[string]bool)

	for _, name := range names {
		if n, ok := t.nodes[name]; ok && n.kind == KindScalar {
			scalars = append(scalars, name)
			visited[name] = true
		}
	}

	var visit func(names []string)

	visit = func(names []string) {
		for _, name := range names {
			if visited[name] {
				continue
			}

			visited[name] = true

			n, ok := t.nodes[name]
			if !ok {
				arrays = append(arrays, name)
				continue
			}

			if n.isLeaf() {
				if n.kind == KindScalar {
					scalars = append(scalars, name)
				} else {
					arrays = append(arrays, name)
				}

				continue
			}

			visit(n.children)
		}
	}

	visit(names)

	out := make([]LeafEntry, 0, len(arrays)+len(scalars))
	for _, name := range arrays {
		out = append(out, LeafEntry{Name: name, Value: t.leafValue(name)})
	}

	for _, name := range scalars {
		out = append(out, LeafEntry{Name: name, Value: t.leafValue(name)})
	}

	return out
}

func (t *Tree) leafValue(name string) value.Value {
	if n, ok := t.nodes[name]; ok {
		return n.val
	}

	return nil
}

// Inspect exposes one node's shape to pkg/codegen: its Kind, current
// Value, direct children (nil for a leaf), and the transformation
// descriptor attached to it (nil for a leaf). exists is false if name is
// not a node of this tree at all.
func (t *Tree) Inspect(name string) (kind Kind, val value.Value, children []string, tr *transform.Descriptor, exists bool) {
	n, ok := t.nodes[name]
	if !ok {
		return 0, nil, nil, nil, false
	}

	return n.kind, n.val, n.children, n.trToChildren, true
}

// ValueOf returns name's current Value and whether name is a node of this
// tree.
func (t *Tree) ValueOf(name string) (value.Value, bool) {
	n, ok := t.nodes[name]
	if !ok {
		return nil, false
	}

	return n.val, true
}

// DescriptorSlots returns the Load and Store slot counts of the
// transformation descriptor attached at name, or (0, 0) if name is a leaf
// or not a node of this tree.
func (t *Tree) DescriptorSlots(name string) (load, store int) {
	n, ok := t.nodes[name]
	if !ok || n.trToChildren == nil {
		return 0, 0
	}

	return n.trToChildren.Load, n.trToChildren.Store
}

// AllChildren returns the names of every leaf reachable from name, as if
// name were the sole base argument.
func (t *Tree) AllChildren(name string) []string {
	entries := t.LeafSignature(name)
	out := make([]string, len(entries))

	for i, e := range entries {
		out[i] = e.Name
	}

	return out
}

func (t *Tree) clearValues() {
	for _, n := range t.nodes {
		n.val.Clear()
	}
}

// Connect grafts descriptor tr onto the existing array leaf endpoint.
// newArrayArgs and newScalarArgs name the transformation's own array and
// scalar slots, in load-then-parameter order for a KindLoad target, or
// store-then-parameter order for a KindStore target. Existing names may be
// reused to merge sibling transformations onto a shared argument, provided
// their kind agrees; reusing an existing KindStore endpoint is rejected,
// since an output can have only one transformation chain.
func (t *Tree) Connect(endpointName string, tr transform.Descriptor, newArrayArgs, newScalarArgs []string) error {
	if !t.HasArrayLeaf(endpointName) {
		return fmt.Errorf("%w: %q does not exist or is not a connectable array leaf", ErrInvalidConnection, endpointName)
	}

	for _, name := range newArrayArgs {
		if !validArgumentName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}

	for _, name := range newScalarArgs {
		if !validArgumentName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}

	parent := t.nodes[endpointName]

	switch parent.kind {
	case KindStore:
		if tr.Load != 1 {
			return fmt.Errorf("%w: transformation for an output node must have one input", ErrInvalidConnection)
		}

		if tr.Store != len(newArrayArgs) {
			return fmt.Errorf("%w: expected %d array arguments, got %d", ErrInvalidConnection, tr.Store, len(newArrayArgs))
		}
	case KindLoad:
		if tr.Store != 1 {
			return fmt.Errorf("%w: transformation for an input node must have one output", ErrInvalidConnection)
		}

		if tr.Load != len(newArrayArgs) {
			return fmt.Errorf("%w: expected %d array arguments, got %d", ErrInvalidConnection, tr.Load, len(newArrayArgs))
		}
	case KindScalar:
		return fmt.Errorf("%w: %q is a scalar, cannot attach an array transformation", ErrInvalidConnection, endpointName)
	}

	if tr.Parameters != len(newScalarArgs) {
		return fmt.Errorf("%w: expected %d scalar arguments, got %d", ErrInvalidConnection, tr.Parameters, len(newScalarArgs))
	}

	newNodes := make(map[string]*node)

	for _, name := range newArrayArgs {
		existing, ok := t.nodes[name]

		switch {
		case !ok:
			newNodes[name] = &node{name: name, kind: parent.kind, val: value.NewArrayValue(nil, dtype.Type{})}
		case existing.kind == KindScalar:
			return fmt.Errorf("%w: %q is a scalar, expected an array", ErrInvalidConnection, name)
		case parent.kind == KindStore:
			return fmt.Errorf("%w: cannot connect to an existing output node %q", ErrInvalidConnection, name)
		}
	}

	for _, name := range newScalarArgs {
		existing, ok := t.nodes[name]

		switch {
		case !ok:
			newNodes[name] = &node{name: name, kind: KindScalar, val: value.NewScalarValue(nil, dtype.Type{})}
		case existing.kind != KindScalar:
			return fmt.Errorf("%w: %q is an array, expected a scalar", ErrInvalidConnection, name)
		}
	}

	children := make([]string, 0, len(newArrayArgs)+len(newScalarArgs))
	children = append(children, newArrayArgs...)
	children = append(children, newScalarArgs...)

	if err := t.checkAcyclic(endpointName, children, newNodes); err != nil {
		return err
	}

	for name, n := range newNodes {
		t.nodes[name] = n
		t.graph.AddNode(name)
	}

	for _, child := range children {
		t.graph.AddEdge(endpointName, child)
	}

	parent.children = children
	trCopy := tr
	parent.trToChildren = &trCopy

	return nil
}

// checkAcyclic simulates the edges Connect is about to add and rejects the
// connection if any child name is endpointName itself, or an ancestor of
// it, which would close a cycle in the tree graph.
func (t *Tree) checkAcyclic(endpointName string, children []string, newNodes map[string]*node) error {
	for _, child := range children {
		if child == endpointName {
			return fmt.Errorf("%w: %q cannot reference itself", ErrInvalidConnection, endpointName)
		}

		if _, isNew := newNodes[child]; isNew {
			continue
		}

		if t.hasPath(child, endpointName) {
			return fmt.Errorf("%w: connecting %q to %q would create a cycle", ErrInvalidConnection, endpointName, child)
		}
	}

	return nil
}

// hasPath reports whether to is reachable from from by following existing
// child edges, via plain BFS over toposort.Graph.FindChildren.
func (t *Tree) hasPath(from, to string) bool {
	if from == to {
		return true
	}

	visited := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, child := range t.graph.FindChildren(cur) {
			if child == to {
				return true
			}

			if !visited[child] {
				visited[child] = true
				queue = append(queue, child)
			}
		}
	}

	return false
}

// PropagateToBase fills every node's Value by walking leaves-to-root,
// deriving each internal node's dtype and shape from its children via the
// transformation descriptor attached at Connect. leafValues must supply a
// Value for every leaf name returned by LeafSignature(); base endpoints
// that were never connected are themselves leaves and must also appear.
func (t *Tree) PropagateToBase(leafValues map[string]value.Value) error {
	t.clearValues()

	var deduce func(name string) error

	deduce = func(name string) error {
		n := t.nodes[name]

		if n.isLeaf() {
			leaf, ok := leafValues[name]
			if !ok {
				return fmt.Errorf("%w: missing value for leaf %q", ErrInvalidConnection, name)
			}

			n.val.FillWith(leaf)

			return nil
		}

		for _, child := range n.children {
			if err := deduce(child); err != nil {
				return err
			}
		}

		childDtypes := make([]dtype.Type, len(n.children))
		for i, child := range n.children {
			childDtypes[i] = t.nodes[child].val.Dtype()
		}

		tr := n.trToChildren

		var derived []dtype.Type
		if n.kind == KindStore {
			derived = tr.DeriveLFromSP(childDtypes, nil)
		} else {
			derived = tr.DeriveSFromLP(childDtypes, nil)
		}

		if len(derived) == 0 {
			return fmt.Errorf("%w: node %q derived no dtype", ErrTypePropagation, name)
		}

		n.val.SetDtype(dtype.Normalize(derived[0]))

		if n.val.IsArray() {
			shape, err := t.deriveChildShape(name, n.children)
			if err != nil {
				return err
			}

			n.val.(*value.ArrayValue).SetShape(shape)
		}

		return nil
	}

	for _, name := range t.baseNames {
		if err := deduce(name); err != nil {
			return err
		}
	}

	return nil
}

func (t *Tree) deriveChildShape(name string, children []string) ([]int, error) {
	var shape []int

	set := false

	for _, child := range children {
		cv := t.nodes[child].val
		if !cv.IsArray() {
			continue
		}

		cShape := cv.(*value.ArrayValue).Shape()
		if !set {
			shape = cShape
			set = true

			continue
		}

		if !shapesEqual(shape, cShape) {
			return nil, fmt.Errorf("%w: node %q has children with disagreeing shapes %v and %v", ErrShapeMismatch, name, shape, cShape)
		}
	}

	return shape, nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// PropagateToLeaves fills every node's Value by walking root-to-leaves,
// starting from the dtype and shape supplied for each base name in
// rootValues and deriving every descendant's dtype via the transformation
// descriptor attached at Connect. A dtype disagreement between a
// descriptor's derived type and an already-visited sibling's type (shared
// by a reused argument name) is reported as ErrTypePropagation.
func (t *Tree) PropagateToLeaves(rootValues map[string]value.Value) error {
	t.clearValues()

	var propagate func(name string) error

	propagate = func(name string) error {
		n := t.nodes[name]
		if n.isLeaf() {
			return nil
		}

		tr := n.trToChildren

		var arrDtypes, scalarDtypes []dtype.Type
		if n.kind == KindStore {
			arrDtypes, scalarDtypes = tr.DeriveSPFromL(n.val.Dtype())
		} else {
			arrDtypes, scalarDtypes = tr.DeriveLPFromS(n.val.Dtype())
		}

		all := make([]dtype.Type, 0, len(arrDtypes)+len(scalarDtypes))
		all = append(all, arrDtypes...)
		all = append(all, scalarDtypes...)

		if len(all) != len(n.children) {
			return fmt.Errorf("%w: node %q derived %d child dtypes for %d children", ErrTypePropagation, name, len(all), len(n.children))
		}

		for i, child := range n.children {
			childVal := t.nodes[child].val
			dt := dtype.Normalize(all[i])

			if childVal.Dtype().Zero() {
				childVal.SetDtype(dt)
			} else if childVal.Dtype() != dt {
				return fmt.Errorf("%w: data type conflict in node %q", ErrTypePropagation, child)
			}

			if childVal.IsArray() && n.val.IsArray() {
				childVal.(*value.ArrayValue).SetShape(n.val.(*value.ArrayValue).Shape())
			}

			if err := propagate(child); err != nil {
				return err
			}
		}

		return nil
	}

	for _, name := range t.baseNames {
		root, ok := rootValues[name]
		if !ok {
			return fmt.Errorf("%w: missing value for base argument %q", ErrInvalidConnection, name)
		}

		t.nodes[name].val.FillWith(root)

		if err := propagate(name); err != nil {
			return err
		}
	}

	return nil
}
