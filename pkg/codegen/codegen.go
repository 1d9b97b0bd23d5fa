// Package codegen fuses a transformation tree into GPU kernel source: load
// and store macros at every endpoint, one inline helper function per
// internal node, a deduplicated per-type arithmetic-helper collector, and a
// final SIGNATURE macro for the kernel's own parameter list. See
// SPEC_FULL.md §4 (Code generation).
package codegen

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/kerngraph/kerngraph/pkg/dtype"
	"github.com/kerngraph/kerngraph/pkg/transform"
	"github.com/kerngraph/kerngraph/pkg/ttree"
	"github.com/kerngraph/kerngraph/pkg/value"
)

// indexName is the ambient loop-index identifier every generated macro and
// helper function agrees on, matching the single index variable a fused
// elementwise kernel iterates with.
const indexName = "idx"

// ErrUnknownLeaf reports a tree node TransformationsFor cannot render: a
// scalar reached as a transformable node, or a leaf with no value for an
// argument list or the SIGNATURE macro. A requested name that is not a base
// name is never rejected; it is rendered as a temporary.
var ErrUnknownLeaf = errors.New("codegen: unknown leaf name")

func loadMacroName(name string) string     { return "_LOAD_" + name }
func loadFunctionName(name string) string  { return "_load_" + name }
func storeMacroName(name string) string    { return "_STORE_" + name }
func storeFunctionName(name string) string { return "_store_" + name }
func signatureMacroName() string           { return "SIGNATURE" }

func leafLoadMacro(name string) string {
	return fmt.Sprintf("#define %s(%s) (%s[%s])", loadMacroName(name), indexName, name, indexName)
}

func nodeLoadMacro(name string, argnames []string) string {
	return fmt.Sprintf("#define %s(%s) %s(%s, %s)",
		loadMacroName(name), indexName, loadFunctionName(name), strings.Join(argnames, ", "), indexName)
}

// leafStoreMacro and nodeStoreMacro generate the nested-scope form, which
// assumes idx is already bound in the enclosing helper function. The base
// form (base=true) instead takes idx as an explicit macro argument, since a
// base store is invoked directly from the kernel body, which has no
// ambient idx of its own.
func leafStoreMacro(name string, base bool) string {
	if base {
		return fmt.Sprintf("#define %s(%s, val) %s[%s] = (val)", storeMacroName(name), indexName, name, indexName)
	}

	return fmt.Sprintf("#define %s(val) %s[%s] = (val)", storeMacroName(name), name, indexName)
}

func nodeStoreMacro(name string, argnames []string, base bool) string {
	fname := storeFunctionName(name)
	arglist := strings.Join(argnames, ", ")

	if base {
		return fmt.Sprintf("#define %s(%s, val) %s(%s, %s, val)", storeMacroName(name), indexName, fname, arglist, indexName)
	}

	return fmt.Sprintf("#define %s(val) %s(%s, %s, val)", storeMacroName(name), fname, arglist, indexName)
}

func loadMacroCallIndexed(name string) string {
	return fmt.Sprintf("%s(%s)", loadMacroName(name), indexName)
}

func storeMacroCall(name string) string {
	return storeMacroName(name)
}

// funcCollector deduplicates per-dtype arithmetic helper functions
// referenced from a transformation's body template via {{func ...}}. Two
// calls to Call with the same op and argument dtypes reuse the same
// generated function name; the collector's Render emits exactly one
// definition per unique (op, dtypes) pair.
type funcCollector struct {
	prefix  string
	seen    map[string]string // key -> generated function name
	order   []string          // keys in first-seen order, for deterministic Render
	defs    map[string]string // key -> full function definition source
	counter int
}

func newFuncCollector(prefix string) *funcCollector {
	return &funcCollector{prefix: prefix, seen: make(map[string]string), defs: make(map[string]string)}
}

// Call returns a C expression invoking the named arithmetic op over args,
// registering (and, on first use, defining) a dedicated helper function
// for this exact (op, argument-dtype) combination.
func (fc *funcCollector) Call(op string, args ...funcArg) string {
	key := op
	for _, a := range args {
		key += "|" + a.dt.Name
	}

	name, ok := fc.seen[key]
	if !ok {
		fc.counter++
		name = fmt.Sprintf("_%s_%s_%d", fc.prefix, op, fc.counter)
		fc.seen[key] = name
		fc.order = append(fc.order, key)
		fc.defs[key] = renderHelperDefinition(name, op, args)
	}

	params := make([]string, len(args))
	for i, a := range args {
		params[i] = a.expr
	}

	return fmt.Sprintf("%s(%s)", name, strings.Join(params, ", "))
}

// Render emits every helper function definition collected so far, in the
// order they were first referenced.
func (fc *funcCollector) Render() string {
	defs := make([]string, len(fc.order))
	for i, key := range fc.order {
		defs[i] = fc.defs[key]
	}

	return strings.Join(defs, "\n\n")
}

type funcArg struct {
	expr string
	dt   dtype.Type
}

// builtinOps maps a func.<op> name to the C infix/prefix operator it
// compiles to. Only the arithmetic ops a transformation body plausibly
// needs are registered; an unknown op panics at template-execution time,
// surfacing the authoring mistake immediately rather than emitting bad
// kernel source silently.
var builtinOps = map[string]string{
	"add": "+",
	"sub": "-",
	"mul": "*",
	"div": "/",
}

func renderHelperDefinition(name, op string, args []funcArg) string {
	operator, ok := builtinOps[op]
	if !ok {
		panic(fmt.Sprintf("codegen: unknown func op %q", op))
	}

	resultType := dtype.Promote(dtypesOf(args)...)

	params := make([]string, len(args))
	for i, a := range args {
		params[i] = fmt.Sprintf("%s a%d", a.dt.CType, i)
	}

	exprs := make([]string, len(args))
	for i := range args {
		exprs[i] = fmt.Sprintf("a%d", i)
	}

	body := strings.Join(exprs, " "+operator+" ")

	return fmt.Sprintf("INLINE WITHIN_KERNEL %s %s(%s)\n{\n    return %s;\n}",
		resultType.CType, name, strings.Join(params, ", "), body)
}

func dtypesOf(args []funcArg) []dtype.Type {
	out := make([]dtype.Type, len(args))
	for i, a := range args {
		out[i] = a.dt
	}

	return out
}

// slotContext is the data text/template renders a transformation body
// against: the load.*/store.*/param.* holes resolve to macro calls or
// argument names, dtype.*/ctype.* resolve to type names, and func.<op>
// resolves through the shared funcCollector.
type slotContext struct {
	Load, Store, Param, Dtype, Ctype map[string]string
	fc                               *funcCollector
	// slotDtype maps a rendered slot label (e.g. "l1", "p1") to its
	// resolved dtype.Type, for func.<op> argument-type resolution; Dtype
	// only carries the type's name, which is not enough to promote or
	// pick a C literal suffix.
	slotDtype map[string]dtype.Type
}

func (c *slotContext) Func(op string, labels ...string) (string, error) {
	args := make([]funcArg, len(labels))

	for i, label := range labels {
		dt, ok := c.slotDtype[label]
		if !ok {
			return "", fmt.Errorf("codegen: func %q references unknown slot %q", op, label)
		}

		args[i] = funcArg{expr: resolveSlotExpr(c, label), dt: dt}
	}

	return c.fc.Call(op, args...), nil
}

func resolveSlotExpr(c *slotContext, label string) string {
	if v, ok := c.Load[label]; ok {
		return v
	}

	if v, ok := c.Store[label]; ok {
		return v
	}

	return c.Param[label]
}

func renderBody(tmplSrc string, ctx *slotContext) (string, error) {
	funcs := template.FuncMap{
		"load":  func(label string) string { return ctx.Load[label] },
		"store": func(label string) string { return ctx.Store[label] },
		"param": func(label string) string { return ctx.Param[label] },
		"dtype": func(label string) string { return ctx.Dtype[label] },
		"ctype": func(label string) string { return ctx.Ctype[label] },
		"func":  ctx.Func,
	}

	tmpl, err := template.New("transformation").Funcs(funcs).Parse(tmplSrc)
	if err != nil {
		return "", fmt.Errorf("codegen: parsing transformation body: %w", err)
	}

	var sb strings.Builder
	if execErr := tmpl.Execute(&sb, nil); execErr != nil {
		return "", fmt.Errorf("codegen: rendering transformation body: %w", execErr)
	}

	return sb.String(), nil
}

// TransformationsFor returns the GPU source implementing every
// transformation reachable from names, followed by the kernel's
// SIGNATURE macro. A name that is not one of the tree's base names is
// treated as a temporary leaf array: plain load/store macros are emitted for
// it with no backing transformation. Output is deterministic for a given tree and
// name list.
func TransformationsFor(tr *ttree.Tree, names []string) (string, error) {
	visited := make(map[string]bool)
	fc := newFuncCollector("tr")

	var codeBlocks []string

	baseSet := make(map[string]bool)
	for _, n := range tr.BaseNames() {
		baseSet[n] = true
	}

	var process func(name string) error

	process = func(name string) error {
		if visited[name] {
			return nil
		}

		visited[name] = true

		kind, val, children, trDesc, exists := tr.Inspect(name)
		if !exists {
			return nil
		}

		isBase := baseSet[name]

		if children == nil {
			switch kind {
			case ttree.KindLoad:
				codeBlocks = append(codeBlocks, "// leaf node "+name+"\n"+leafLoadMacro(name))
			case ttree.KindStore:
				codeBlocks = append(codeBlocks, "// leaf node "+name+"\n"+leafStoreMacro(name, isBase))
			}

			return nil
		}

		for _, child := range children {
			if err := process(child); err != nil {
				return err
			}
		}

		allChildren := tr.AllChildren(name)

		block, err := renderNode(tr, name, kind, val, children, trDesc, allChildren, isBase, fc)
		if err != nil {
			return err
		}

		codeBlocks = append(codeBlocks, block)

		return nil
	}

	for _, name := range names {
		if baseSet[name] {
			if err := process(name); err != nil {
				return "", err
			}

			continue
		}

		codeBlocks = append(codeBlocks, leafLoadMacro(name), leafStoreMacro(name, false))
	}

	sig, err := buildSignatureMacro(tr)
	if err != nil {
		return "", err
	}

	out := fc.Render() + "\n\n" + strings.Join(codeBlocks, "\n\n") + "\n\n" + sig

	return out, nil
}

func renderNode(
	tr *ttree.Tree,
	name string,
	kind ttree.Kind,
	val value.Value,
	children []string,
	trDesc *transform.Descriptor,
	allChildren []string,
	isBase bool,
	fc *funcCollector,
) (string, error) {
	arglist, argDtype, err := buildArglist(tr, allChildren)
	if err != nil {
		return "", err
	}

	ctx := &slotContext{
		Load: map[string]string{}, Store: map[string]string{}, Param: map[string]string{},
		Dtype: map[string]string{}, Ctype: map[string]string{},
		fc: fc, slotDtype: map[string]dtype.Type{},
	}

	loadCount, storeCount := tr.DescriptorSlots(name)

	var definition string

	switch kind {
	case ttree.KindLoad:
		loadNames := children[:loadCount]
		paramNames := children[loadCount:]

		for i, cname := range loadNames {
			label := fmt.Sprintf("l%d", i+1)
			ctx.Load[label] = loadMacroCallIndexed(cname)
			dt := argDtype[cname]
			ctx.Dtype[label] = dt.Name
			ctx.Ctype[label] = dt.CType
			ctx.slotDtype[label] = dt
		}

		for i, cname := range paramNames {
			label := fmt.Sprintf("p%d", i+1)
			ctx.Param[label] = cname
			dt := argDtype[cname]
			ctx.Dtype[label] = dt.Name
			ctx.Ctype[label] = dt.CType
			ctx.slotDtype[label] = dt
		}

		ctx.Store["s1"] = "return"
		ctx.Dtype["s1"] = val.Dtype().Name
		ctx.Ctype["s1"] = val.Dtype().CType
		ctx.slotDtype["s1"] = val.Dtype()

		definition = fmt.Sprintf("INLINE WITHIN_KERNEL %s %s(%s, int %s)",
			val.Dtype().CType, loadFunctionName(name), arglist, indexName)
	case ttree.KindStore:
		storeNames := children[:storeCount]
		paramNames := children[storeCount:]

		for i, cname := range storeNames {
			label := fmt.Sprintf("s%d", i+1)
			ctx.Store[label] = storeMacroCall(cname)
			dt := argDtype[cname]
			ctx.Dtype[label] = dt.Name
			ctx.Ctype[label] = dt.CType
			ctx.slotDtype[label] = dt
		}

		for i, cname := range paramNames {
			label := fmt.Sprintf("p%d", i+1)
			ctx.Param[label] = cname
			dt := argDtype[cname]
			ctx.Dtype[label] = dt.Name
			ctx.Ctype[label] = dt.CType
			ctx.slotDtype[label] = dt
		}

		ctx.Load["l1"] = "val"
		ctx.Dtype["l1"] = val.Dtype().Name
		ctx.Ctype["l1"] = val.Dtype().CType
		ctx.slotDtype["l1"] = val.Dtype()

		definition = fmt.Sprintf("INLINE WITHIN_KERNEL void %s(%s, int %s, %s val)",
			storeFunctionName(name), arglist, indexName, val.Dtype().CType)
	default:
		return "", fmt.Errorf("%w: %q is a scalar, not a transformable node", ErrUnknownLeaf, name)
	}

	codeSrc, err := renderBody(trDesc.Code, ctx)
	if err != nil {
		return "", err
	}

	var macro string
	if kind == ttree.KindLoad {
		macro = nodeLoadMacro(name, allChildren)
	} else {
		macro = nodeStoreMacro(name, allChildren, isBase)
	}

	return fmt.Sprintf("// node %s\n%s\n{\n%s\n}\n%s", name, definition, codeSrc, macro), nil
}

func buildArglist(tr *ttree.Tree, argnames []string) (string, map[string]dtype.Type, error) {
	parts := make([]string, len(argnames))
	dtypes := make(map[string]dtype.Type, len(argnames))

	for i, name := range argnames {
		v, ok := tr.ValueOf(name)
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownLeaf, name)
		}

		dtypes[name] = v.Dtype()
		ct := v.Dtype().CType

		if v.IsArray() {
			parts[i] = "GLOBAL_MEM " + ct + " *" + name
		} else {
			parts[i] = ct + " " + name
		}
	}

	return strings.Join(parts, ", "), dtypes, nil
}

func buildSignatureMacro(tr *ttree.Tree) (string, error) {
	entries := tr.LeafSignature()

	parts := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.Value == nil {
			return "", fmt.Errorf("%w: leaf %q has no resolvable value for signature generation", ErrUnknownLeaf, e.Name)
		}

		ct := e.Value.Dtype().CType

		if e.Value.IsArray() {
			parts = append(parts, "GLOBAL_MEM "+ct+" *"+e.Name)
		} else {
			parts = append(parts, ct+" "+e.Name)
		}
	}

	return fmt.Sprintf("#define %s %s", signatureMacroName(), strings.Join(parts, ", ")), nil
}
