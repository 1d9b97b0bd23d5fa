package codegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerngraph/kerngraph/pkg/builtin"
	"github.com/kerngraph/kerngraph/pkg/codegen"
	"github.com/kerngraph/kerngraph/pkg/dtype"
	"github.com/kerngraph/kerngraph/pkg/ttree"
	"github.com/kerngraph/kerngraph/pkg/value"
)

func buildIdentityTree(t *testing.T) *ttree.Tree {
	t.Helper()

	tree, err := ttree.New([]string{"out"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Connect("out", builtin.Identity(), []string{"raw"}, nil))

	leaves := map[string]value.Value{
		"raw": value.NewArrayValue([]int{16}, dtype.Float32),
	}
	require.NoError(t, tree.PropagateToBase(leaves))

	return tree
}

func TestTransformationsForBareTreeEmitsSignature(t *testing.T) {
	t.Parallel()

	tree, err := ttree.New([]string{"out"}, []string{"in"}, nil)
	require.NoError(t, err)

	leaves := map[string]value.Value{
		"out": value.NewArrayValue([]int{4}, dtype.Float32),
		"in":  value.NewArrayValue([]int{4}, dtype.Float32),
	}
	require.NoError(t, tree.PropagateToBase(leaves))

	src, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Contains(t, src, "#define SIGNATURE")
	assert.Contains(t, src, "GLOBAL_MEM float *out")
	assert.Contains(t, src, "GLOBAL_MEM float *in")
}

func TestTransformationsForIdentityEmitsLoadStoreMacros(t *testing.T) {
	t.Parallel()

	tree := buildIdentityTree(t)

	src, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Contains(t, src, "_LOAD_raw")
	assert.Contains(t, src, "_STORE_out")
	assert.Contains(t, src, "_load_out")
}

func TestTransformationsForScaleConstEmbedsLiteral(t *testing.T) {
	t.Parallel()

	tree, err := ttree.New([]string{"out"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Connect("out", builtin.ScaleConst(2.5, dtype.Float32), []string{"raw"}, nil))

	leaves := map[string]value.Value{
		"raw": value.NewArrayValue([]int{4}, dtype.Float32),
	}
	require.NoError(t, tree.PropagateToBase(leaves))

	src, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Contains(t, src, "2.5f")
}

func TestTransformationsForScaleParamUsesFuncCollector(t *testing.T) {
	t.Parallel()

	tree, err := ttree.New([]string{"out"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Connect("out", builtin.ScaleParam(), []string{"raw"}, []string{"factor"}))

	leaves := map[string]value.Value{
		"raw":    value.NewArrayValue([]int{4}, dtype.Float32),
		"factor": value.NewScalarValue(2.0, dtype.Float32),
	}
	require.NoError(t, tree.PropagateToBase(leaves))

	src, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Contains(t, src, "_tr_mul_1")
	assert.Contains(t, src, "factor")
}

func TestTransformationsForSplitComplex(t *testing.T) {
	t.Parallel()

	tree, err := ttree.New([]string{"out"}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, tree.Connect("out", builtin.SplitComplex(), []string{"real", "imag"}, nil))

	leaves := map[string]value.Value{
		"real": value.NewArrayValue([]int{4}, dtype.Float32),
		"imag": value.NewArrayValue([]int{4}, dtype.Float32),
	}
	require.NoError(t, tree.PropagateToBase(leaves))

	outVal, ok := tree.ValueOf("out")
	require.True(t, ok)
	assert.Equal(t, dtype.Complex64, outVal.Dtype())

	src, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Contains(t, src, "_store_out")
	assert.Contains(t, src, ".x")
	assert.Contains(t, src, ".y")
}

func TestTransformationsForUnconnectedNameIsTemporaryLeaf(t *testing.T) {
	t.Parallel()

	tree, err := ttree.New(nil, nil, nil)
	require.NoError(t, err)

	src, err := codegen.TransformationsFor(tree, []string{"temp"})
	require.NoError(t, err)

	assert.Contains(t, src, "_LOAD_temp")
	assert.Contains(t, src, "_STORE_temp")
}

func TestTransformationsForDeterministicOutput(t *testing.T) {
	t.Parallel()

	tree := buildIdentityTree(t)

	first, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	second, err := codegen.TransformationsFor(tree, tree.BaseNames())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
