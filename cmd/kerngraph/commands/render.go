package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kerngraph/kerngraph/pkg/batch"
	"github.com/kerngraph/kerngraph/pkg/builtin"
	"github.com/kerngraph/kerngraph/pkg/config"
	"github.com/kerngraph/kerngraph/pkg/dtype"
	"github.com/kerngraph/kerngraph/pkg/transform"
	"github.com/kerngraph/kerngraph/pkg/ttree"
	"github.com/kerngraph/kerngraph/pkg/value"
)

const (
	renderCmdUse   = "render <computation.json>..."
	renderCmdShort = "Fuse one or more computations' transformation trees and print kernel source"
)

// ErrUnknownBuiltin is returned when a connection names a builtin
// transformation kerngraph does not ship.
var ErrUnknownBuiltin = errors.New("unknown builtin transformation")

// computationSpec is the on-disk description of a computation's base
// arguments, its transformation-tree connections, and the concrete
// dtype/shape of every leaf — everything codegen needs besides the tree
// and descriptor logic itself.
type computationSpec struct {
	Stores      []string             `json:"stores"`
	Loads       []string             `json:"loads"`
	Scalars     []string             `json:"scalars"`
	Connections []connectionSpec     `json:"connections"`
	LeafTypes   map[string]leafType  `json:"leaf_types"`
}

type connectionSpec struct {
	Endpoint   string   `json:"endpoint"`
	Builtin    string   `json:"builtin"`
	Multiplier float64  `json:"multiplier,omitempty"`
	ArrayArgs  []string `json:"array_args"`
	ScalarArgs []string `json:"scalar_args"`
}

type leafType struct {
	Dtype string `json:"dtype"`
	Shape []int  `json:"shape,omitempty"`
}

// NewRenderCommand creates the render subcommand.
func NewRenderCommand(configPath *string) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   renderCmdUse,
		Short: renderCmdShort,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRender(args, outputPath, *configPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file; for multiple specs, a directory (default: stdout / config render.output_dir)")

	return cmd
}

func runRender(specPaths []string, outputPath, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// A spec that fails to load (bad JSON, an unknown builtin, a type
	// propagation error) becomes a failed Result in place rather than
	// aborting the whole run, so it doesn't block its siblings from
	// rendering.
	results := make([]batch.Result, len(specPaths))
	jobs := make([]batch.Job, 0, len(specPaths))
	jobSpecIndex := make([]int, 0, len(specPaths))

	for i, specPath := range specPaths {
		tree, loadErr := loadTree(specPath)
		if loadErr != nil {
			results[i] = batch.Result{Label: specPath, Err: loadErr}
			continue
		}

		jobs = append(jobs, batch.Job{Label: specPath, Tree: tree, Names: tree.BaseNames()})
		jobSpecIndex = append(jobSpecIndex, i)
	}

	if len(jobs) > 0 {
		rendered, batchErr := batch.Render(context.Background(), jobs, cfg.Render.Workers)
		if batchErr != nil {
			return fmt.Errorf("batch render: %w", batchErr)
		}

		for i, r := range rendered {
			results[jobSpecIndex[i]] = r
		}
	}

	failed := 0

	for _, r := range results {
		if r.Err != nil {
			failed++

			logger.Error("rendering computation failed", "spec", r.Label, "error", r.Err)

			continue
		}

		if err := writeRendered(r.Label, r.Source, outputPath, cfg.Render.OutputDir, len(specPaths) > 1); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d computations failed to render", failed, len(specPaths))
	}

	return nil
}

func loadTree(specPath string) (*ttree.Tree, error) {
	raw, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("reading computation spec %q: %w", specPath, err)
	}

	var spec computationSpec

	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing computation spec %q: %w", specPath, err)
	}

	tree, err := buildTree(spec)
	if err != nil {
		return nil, err
	}

	leaves, err := leafValues(tree, spec.LeafTypes)
	if err != nil {
		return nil, err
	}

	if err := tree.PropagateToBase(leaves); err != nil {
		return nil, fmt.Errorf("propagating types for %q: %w", specPath, err)
	}

	return tree, nil
}

func writeRendered(specPath, src, outputPath, configOutputDir string, multi bool) error {
	dest := outputPath
	if dest == "" {
		dest = configOutputDir
	}

	if dest == "" {
		if multi {
			fmt.Printf("// --- %s ---\n%s\n", specPath, src)
		} else {
			fmt.Println(src)
		}

		return nil
	}

	file := dest

	if multi {
		base := strings.TrimSuffix(filepath.Base(specPath), filepath.Ext(specPath))
		file = filepath.Join(dest, base+".cl")
	}

	if err := os.WriteFile(file, []byte(src+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing rendered kernel for %q: %w", specPath, err)
	}

	logger.Info("rendered kernel source", "spec", specPath, "output", file, "bytes", len(src))

	return nil
}

func buildTree(spec computationSpec) (*ttree.Tree, error) {
	tree, err := ttree.New(spec.Stores, spec.Loads, spec.Scalars)
	if err != nil {
		return nil, fmt.Errorf("constructing transformation tree: %w", err)
	}

	for _, c := range spec.Connections {
		descriptor, err := resolveBuiltin(c)
		if err != nil {
			return nil, err
		}

		if connErr := tree.Connect(c.Endpoint, descriptor, c.ArrayArgs, c.ScalarArgs); connErr != nil {
			return nil, fmt.Errorf("connecting %q: %w", c.Endpoint, connErr)
		}
	}

	return tree, nil
}

func resolveBuiltin(c connectionSpec) (transform.Descriptor, error) {
	switch c.Builtin {
	case "identity":
		return builtin.Identity(), nil
	case "scale_param":
		return builtin.ScaleParam(), nil
	case "scale_const":
		return builtin.ScaleConst(c.Multiplier, dtype.Float32), nil
	case "split_complex":
		return builtin.SplitComplex(), nil
	case "combine_complex":
		return builtin.CombineComplex(), nil
	default:
		return transform.Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownBuiltin, c.Builtin)
	}
}

func leafValues(tree *ttree.Tree, leafTypes map[string]leafType) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(leafTypes))

	for name, lt := range leafTypes {
		dt := dtype.Normalize(dtype.Type{Name: lt.Dtype})
		if dt.Zero() || dt.CType == "" {
			return nil, fmt.Errorf("unknown dtype %q for leaf %q", lt.Dtype, name)
		}

		if lt.Shape != nil {
			out[name] = value.NewArrayValue(lt.Shape, dt)
		} else {
			out[name] = value.NewScalarValue(nil, dt)
		}
	}

	for _, entry := range tree.LeafSignature() {
		if _, ok := out[entry.Name]; !ok {
			return nil, fmt.Errorf("computation spec is missing leaf_types entry for leaf %q", entry.Name)
		}
	}

	return out, nil
}
