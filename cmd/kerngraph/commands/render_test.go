package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerngraph/kerngraph/pkg/dtype"
)

func writeSpec(t *testing.T, dir, name, contents string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	return path
}

const identitySpecJSON = `{
	"stores": ["out"],
	"loads": [],
	"scalars": [],
	"connections": [
		{"endpoint": "out", "builtin": "identity", "array_args": ["raw"]}
	],
	"leaf_types": {
		"raw": {"dtype": "float32", "shape": [8]}
	}
}`

func TestResolveBuiltinKnownNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"identity", "scale_param", "scale_const", "split_complex", "combine_complex"} {
		_, err := resolveBuiltin(connectionSpec{Builtin: name})
		assert.NoError(t, err, name)
	}
}

func TestResolveBuiltinUnknownName(t *testing.T) {
	t.Parallel()

	_, err := resolveBuiltin(connectionSpec{Builtin: "not_a_builtin"})
	require.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestBuildTreeConnectsEndpoints(t *testing.T) {
	t.Parallel()

	spec := computationSpec{
		Stores: []string{"out"},
		Connections: []connectionSpec{
			{Endpoint: "out", Builtin: "identity", ArrayArgs: []string{"raw"}},
		},
	}

	tree, err := buildTree(spec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"raw"}, tree.AllChildren("out"))
}

func TestBuildTreeRejectsUnknownBuiltin(t *testing.T) {
	t.Parallel()

	spec := computationSpec{
		Stores: []string{"out"},
		Connections: []connectionSpec{
			{Endpoint: "out", Builtin: "nope", ArrayArgs: []string{"raw"}},
		},
	}

	_, err := buildTree(spec)
	require.Error(t, err)
}

func TestLeafValuesBuildsArrayAndScalarValues(t *testing.T) {
	t.Parallel()

	spec := computationSpec{
		Stores: []string{"out"},
		Connections: []connectionSpec{
			{Endpoint: "out", Builtin: "scale_param", ArrayArgs: []string{"raw"}, ScalarArgs: []string{"factor"}},
		},
	}

	tree, err := buildTree(spec)
	require.NoError(t, err)

	leafTypes := map[string]leafType{
		"raw":    {Dtype: "float32", Shape: []int{4}},
		"factor": {Dtype: "float32"},
	}

	leaves, err := leafValues(tree, leafTypes)
	require.NoError(t, err)

	require.Contains(t, leaves, "raw")
	require.Contains(t, leaves, "factor")
	assert.True(t, leaves["raw"].IsArray())
	assert.False(t, leaves["factor"].IsArray())
	assert.Equal(t, dtype.Float32, leaves["raw"].Dtype())
}

func TestLeafValuesRejectsUnknownDtype(t *testing.T) {
	t.Parallel()

	tree, err := buildTree(computationSpec{Loads: []string{"raw"}})
	require.NoError(t, err)

	_, err = leafValues(tree, map[string]leafType{"raw": {Dtype: "not_a_dtype"}})
	assert.Error(t, err)
}

func TestLeafValuesRejectsMissingBaseEntry(t *testing.T) {
	t.Parallel()

	tree, err := buildTree(computationSpec{Loads: []string{"raw"}})
	require.NoError(t, err)

	_, err = leafValues(tree, map[string]leafType{})
	assert.Error(t, err)
}

func TestLeafValuesDoesNotRequireAConnectedBaseName(t *testing.T) {
	t.Parallel()

	spec := computationSpec{
		Loads: []string{"mid"},
		Connections: []connectionSpec{
			{Endpoint: "mid", Builtin: "identity", ArrayArgs: []string{"raw"}},
		},
	}

	tree, err := buildTree(spec)
	require.NoError(t, err)

	leaves, err := leafValues(tree, map[string]leafType{"raw": {Dtype: "float32", Shape: []int{4}}})
	require.NoError(t, err)

	assert.NotContains(t, leaves, "mid")
	assert.Contains(t, leaves, "raw")
}

func TestLoadTreeEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := writeSpec(t, dir, "identity.json", identitySpecJSON)

	tree, err := loadTree(specPath)
	require.NoError(t, err)

	val, ok := tree.ValueOf("out")
	require.True(t, ok)
	assert.Equal(t, dtype.Float32, val.Dtype())
}

func TestLoadTreeRejectsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := loadTree(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadTreeRejectsMalformedJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := writeSpec(t, dir, "bad.json", "{not json")

	_, err := loadTree(specPath)
	assert.Error(t, err)
}

func TestWriteRenderedToExplicitFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "out.cl")

	require.NoError(t, writeRendered("spec.json", "KERNEL CODE", dest, "", false))

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "KERNEL CODE")
}

func TestWriteRenderedMultiDerivesFilenameFromSpec(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, writeRendered(filepath.Join("some", "path", "identity.json"), "KERNEL CODE", dir, "", true))

	contents, err := os.ReadFile(filepath.Join(dir, "identity.cl"))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "KERNEL CODE")
}

func TestRunRenderWritesOutputForSingleSpec(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := writeSpec(t, dir, "identity.json", identitySpecJSON)
	dest := filepath.Join(dir, "identity.cl")

	require.NoError(t, runRender([]string{specPath}, dest, ""))

	contents, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "SIGNATURE")
}

func TestRunRenderRendersGoodSpecsDespiteABadSibling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeSpec(t, dir, "good.json", identitySpecJSON)
	bad := writeSpec(t, dir, "bad.json", `{"stores": ["out"], "connections": [{"endpoint": "out", "builtin": "nope"}]}`)

	err := runRender([]string{good, bad}, dir, "")
	require.Error(t, err)

	contents, readErr := os.ReadFile(filepath.Join(dir, "good.cl"))
	require.NoError(t, readErr)
	assert.Contains(t, string(contents), "SIGNATURE")

	_, statErr := os.Stat(filepath.Join(dir, "bad.cl"))
	assert.True(t, os.IsNotExist(statErr))
}
