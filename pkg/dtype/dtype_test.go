package dtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kerngraph/kerngraph/pkg/dtype"
)

func TestNormalizeResolvesRegisteredName(t *testing.T) {
	t.Parallel()

	got := dtype.Normalize(dtype.Type{Name: "float32"})
	assert.Equal(t, dtype.Float32, got)
}

func TestNormalizePassesThroughUnknownName(t *testing.T) {
	t.Parallel()

	custom := dtype.Type{Name: "custom128"}
	assert.Equal(t, custom, dtype.Normalize(custom))
}

func TestNormalizeZeroType(t *testing.T) {
	t.Parallel()

	assert.True(t, dtype.Normalize(dtype.Type{}).Zero())
}

func TestPromoteWidensAcrossKinds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, dtype.Float32, dtype.Promote(dtype.Int32, dtype.Float32))
	assert.Equal(t, dtype.Complex64, dtype.Promote(dtype.Float32, dtype.Complex64))
	assert.Equal(t, dtype.Int64, dtype.Promote(dtype.Int32, dtype.Int64))
}

func TestPromoteSkipsZeroTypes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, dtype.Float32, dtype.Promote(dtype.Type{}, dtype.Float32))
}

func TestPromotePanicsOnEmpty(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { dtype.Promote() })
}

func TestComplexFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, dtype.Complex64, dtype.ComplexFor(dtype.Float32))
	assert.Equal(t, dtype.Complex128, dtype.ComplexFor(dtype.Float64))
	assert.True(t, dtype.ComplexFor(dtype.Int32).Zero())
}

func TestCLiteral(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2f", dtype.CLiteral(dtype.Float32, 2.0))
	assert.Equal(t, "2.5", dtype.CLiteral(dtype.Float64, 2.5))
	assert.Equal(t, "3", dtype.CLiteral(dtype.Int32, 3.0))
}

func TestNamesIsSortedAndComplete(t *testing.T) {
	t.Parallel()

	names := dtype.Names()
	assert.Contains(t, names, "float32")
	assert.Contains(t, names, "complex128")

	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
