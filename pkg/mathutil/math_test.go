package mathutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kerngraph/kerngraph/pkg/mathutil"
)

func TestMin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, mathutil.Min(3, 5))
	assert.Equal(t, 3, mathutil.Min(5, 3))
	assert.Equal(t, -5, mathutil.Min(-5, 0))
	assert.Equal(t, 4, mathutil.Min(4, 4))
}

func TestMax(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5, mathutil.Max(3, 5))
	assert.Equal(t, 5, mathutil.Max(5, 3))
	assert.Equal(t, 0, mathutil.Max(-5, 0))
	assert.Equal(t, 4, mathutil.Max(4, 4))
}
