package paramspec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kerngraph/kerngraph/pkg/paramspec"
)

func TestTypeStringRendersName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "float", paramspec.FloatParam.String())
	assert.Equal(t, "bool", paramspec.BoolParam.String())
	assert.Equal(t, "dtype", paramspec.DtypeParam.String())
}

func TestTypeStringPanicsOnInvalidValue(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { _ = paramspec.Type(99).String() })
}

func TestFormatDefaultNil(t *testing.T) {
	t.Parallel()

	p := paramspec.Param{Type: paramspec.IntParam}
	assert.Equal(t, "", p.FormatDefault())
}

func TestFormatDefaultQuotesStrings(t *testing.T) {
	t.Parallel()

	p := paramspec.Param{Type: paramspec.StringParam, Default: "float32"}
	assert.Equal(t, `"float32"`, p.FormatDefault())
}

func TestFormatDefaultNumeric(t *testing.T) {
	t.Parallel()

	p := paramspec.Param{Type: paramspec.FloatParam, Default: 2.5}
	assert.Equal(t, "2.5", p.FormatDefault())
}

func TestSpecDescribeEmpty(t *testing.T) {
	t.Parallel()

	var s paramspec.Spec
	assert.Equal(t, "(no parameters)", s.Describe())
}

func TestSpecDescribeListsRequiredParams(t *testing.T) {
	t.Parallel()

	s := paramspec.Spec{
		{Name: "multiplier", Type: paramspec.FloatParam, Required: true, Description: "scale factor"},
	}

	desc := s.Describe()
	assert.Contains(t, desc, "multiplier")
	assert.Contains(t, desc, "required")
	assert.Contains(t, desc, "scale factor")
}
