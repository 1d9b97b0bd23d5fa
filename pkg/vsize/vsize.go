// Package vsize maps an abstract N-D launch grid (a "virtual" global/local
// work size, as wide as a computation's natural indexing wants) onto a
// grid that respects a real device's work-group and grid-dimension
// limits, and renders the GPU helper functions a kernel uses to recover
// its virtual ids from the physical ones. See SPEC_FULL.md §4 (Virtual
// work-size mapper).
package vsize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kerngraph/kerngraph/pkg/mathutil"
	"github.com/kerngraph/kerngraph/pkg/safeconv"
)

// Sentinel error kinds.
var (
	// ErrInvalidLaunchGeometry reports a global/local size pair that cannot
	// be mapped onto the device at all: mismatched dimensionality, more
	// than 3 dimensions, or a work-group/grid size over the device limit.
	ErrInvalidLaunchGeometry = errors.New("vsize: invalid launch geometry")
	// ErrInvalidFactoring reports an internal failure to decompose a grid
	// axis within the device's size limits; this should not occur for any
	// DeviceParams with at least one grid dimension, and reaching it
	// indicates a zero-sized or malformed DeviceParams.
	ErrInvalidFactoring = errors.New("vsize: could not factor grid axis within device limits")
)

// DeviceParams describes the target device's launch-geometry limits.
type DeviceParams struct {
	// MaxWorkGroupSize is the maximum number of work items in one work
	// group (the product of a local size).
	MaxWorkGroupSize int
	// MaxGridSizes is the maximum number of work groups along each of 1 to
	// 3 grid dimensions. A zero entry marks an axis that is already
	// saturated by an outer decomposition step and contributes no further
	// capacity; it is clamped to 1 wherever it would otherwise appear as a
	// divisor, rather than raising a division error.
	MaxGridSizes []int
}

func (p DeviceParams) clampedGrid() []int {
	out := make([]int, len(p.MaxGridSizes))

	for i, v := range p.MaxGridSizes {
		out[i] = mathutil.Max(v, 1)
	}

	return out
}

// VirtualSizes is the resolved mapping from a virtual N-D launch request
// onto one device-legal grid. Construct with New.
type VirtualSizes struct {
	params     DeviceParams
	globalSize []int
	localSize  []int

	naiveBoundingGrid []int
	gridParts         [][]int
	grid              []int
	kLocalSize        []int
	kGlobalSize       []int
}

// New validates globalSize/localSize against params and computes the
// device-legal grid decomposition. globalSize and localSize must have
// equal length, between 1 and 3.
func New(params DeviceParams, globalSize, localSize []int) (*VirtualSizes, error) {
	if len(globalSize) != len(localSize) {
		return nil, fmt.Errorf("%w: global/local work sizes have differing dimensions (%d vs %d)",
			ErrInvalidLaunchGeometry, len(globalSize), len(localSize))
	}

	if len(globalSize) == 0 || len(globalSize) > 3 {
		return nil, fmt.Errorf("%w: virtual sizes are supported for 1D to 3D grids only, got %dD",
			ErrInvalidLaunchGeometry, len(globalSize))
	}

	if len(params.MaxGridSizes) == 0 || len(params.MaxGridSizes) > 3 {
		return nil, fmt.Errorf("%w: device max grid sizes must have between 1 and 3 dimensions",
			ErrInvalidLaunchGeometry)
	}

	vs := &VirtualSizes{
		params:     params,
		globalSize: cloneInts(globalSize),
		localSize:  cloneInts(localSize),
	}

	vs.naiveBoundingGrid = make([]int, len(globalSize))
	for i := range globalSize {
		vs.naiveBoundingGrid[i] = minBlocks(globalSize[i], localSize[i])
	}

	if product(localSize) > params.MaxWorkGroupSize {
		return nil, fmt.Errorf("%w: local work size %v exceeds device max work group size %d",
			ErrInvalidLaunchGeometry, localSize, params.MaxWorkGroupSize)
	}

	if product(vs.naiveBoundingGrid) > product(params.clampedGrid()) {
		return nil, fmt.Errorf("%w: required %d work groups exceeds device capacity %d",
			ErrInvalidLaunchGeometry, product(vs.naiveBoundingGrid), product(params.clampedGrid()))
	}

	gridParts, err := vs.rearrangeGrid(vs.naiveBoundingGrid)
	if err != nil {
		return nil, err
	}

	vs.gridParts = gridParts

	gdims := len(params.MaxGridSizes)
	vs.grid = make([]int, gdims)

	for i := 0; i < gdims; i++ {
		col := 1
		for _, row := range gridParts {
			col *= row[i]
		}

		vs.grid[i] = col
	}

	vs.kLocalSize = make([]int, gdims)
	for i := 0; i < gdims; i++ {
		if i < len(localSize) {
			vs.kLocalSize[i] = localSize[i]
		} else {
			vs.kLocalSize[i] = 1
		}
	}

	vs.kGlobalSize = make([]int, gdims)
	for i := 0; i < gdims; i++ {
		vs.kGlobalSize[i] = vs.kLocalSize[i] * vs.grid[i]
	}

	return vs, nil
}

// GetCallSizes returns the physical (global, local) work sizes a kernel
// launch should actually use, in device-grid-dimension order (always
// len(params.MaxGridSizes) long, padded with 1s past the virtual rank).
func (vs *VirtualSizes) GetCallSizes() (global, local []int) {
	return cloneInts(vs.kGlobalSize), cloneInts(vs.kLocalSize)
}

func (vs *VirtualSizes) rearrangeGrid(grid []int) ([][]int, error) {
	maxGrid := vs.params.clampedGrid()

	switch len(grid) {
	case 1:
		return vs.rearrangeGrid1D(grid, maxGrid)
	case 2:
		return vs.rearrangeGrid2D(grid, maxGrid)
	case 3:
		return vs.rearrangeGrid3D(grid, maxGrid)
	default:
		return nil, fmt.Errorf("%w: unsupported grid rank %d", ErrInvalidLaunchGeometry, len(grid))
	}
}

func (vs *VirtualSizes) rearrangeGrid2D(grid, maxGrid []int) ([][]int, error) {
	grid1, err := vs.rearrangeGrid1D([]int{grid[0]}, maxGrid)
	if err != nil {
		return nil, err
	}

	newMaxGrid := make([]int, len(maxGrid))
	for i := range maxGrid {
		newMaxGrid[i] = divFloor(maxGrid[i], grid1[0][i])
	}

	var grid2 [][]int

	if product(newMaxGrid[1:]) >= grid[1] {
		g2, err := vs.rearrangeGrid1D([]int{grid[1]}, newMaxGrid[1:])
		if err != nil {
			return nil, err
		}

		grid2 = [][]int{prepend(1, g2[0])}
	} else {
		g2, err := vs.rearrangeGrid1D([]int{grid[1]}, newMaxGrid)
		if err != nil {
			return nil, err
		}

		grid2 = g2
	}

	return append(grid1, grid2...), nil
}

func (vs *VirtualSizes) rearrangeGrid3D(grid, maxGrid []int) ([][]int, error) {
	grid12, err := vs.rearrangeGrid2D(grid[:2], maxGrid)
	if err != nil {
		return nil, err
	}

	newMaxGrid := make([]int, len(maxGrid))
	for i := range maxGrid {
		newMaxGrid[i] = divFloor(divFloor(maxGrid[i], grid12[0][i]), grid12[1][i])
	}

	var grid2 [][]int

	switch {
	case len(newMaxGrid) > 2 && product(newMaxGrid[2:]) >= grid[2]:
		g2, err := vs.rearrangeGrid1D([]int{grid[2]}, newMaxGrid[2:])
		if err != nil {
			return nil, err
		}

		grid2 = [][]int{prepend(1, prepend(1, g2[0]))}
	case len(newMaxGrid) > 1 && product(newMaxGrid[1:]) >= grid[2]:
		g2, err := vs.rearrangeGrid1D([]int{grid[2]}, newMaxGrid[1:])
		if err != nil {
			return nil, err
		}

		grid2 = [][]int{prepend(1, g2[0])}
	default:
		g2, err := vs.rearrangeGrid1D([]int{grid[2]}, newMaxGrid)
		if err != nil {
			return nil, err
		}

		grid2 = g2
	}

	return append(grid12, grid2...), nil
}

// rearrangeGrid1D decomposes a single grid axis g into a row of factors,
// one per device grid dimension in maxGrid, preserving element order
// (equivalent to a reshape). It tries an exact divisor of g that fits the
// leading dimension first, then falls back to a power-of-two split that
// leaves some threads idle, and finally to using the leading dimension's
// full capacity.
func (vs *VirtualSizes) rearrangeGrid1D(grid, maxGrid []int) ([][]int, error) {
	g := grid[0]

	if g <= maxGrid[0] {
		row := make([]int, len(maxGrid))
		row[0] = g

		for i := 1; i < len(row); i++ {
			row[i] = 1
		}

		return [][]int{row}, nil
	}

	if len(maxGrid) == 1 {
		return nil, fmt.Errorf("%w: %d exceeds the device's only grid dimension capacity %d", ErrInvalidFactoring, g, maxGrid[0])
	}

	f, div, ok := bestExactFactor(g, maxGrid[0])
	if ok && f != 1 && div <= product(maxGrid[1:]) {
		res, err := vs.rearrangeGrid1D([]int{div}, maxGrid[1:])
		if err != nil {
			return nil, err
		}

		return [][]int{prepend(f, res[0])}, nil
	}

	for p := 1; p <= log2(maxGrid[len(maxGrid)-1]); p++ {
		f := 1 << safeconv.MustIntToUint(p)
		remainder := minBlocks(g, f)

		if remainder <= product(maxGrid[:len(maxGrid)-1]) {
			res, err := vs.rearrangeGrid1D([]int{remainder}, maxGrid[:len(maxGrid)-1])
			if err != nil {
				return nil, err
			}

			return [][]int{append(append([]int{}, res[0]...), f)}, nil
		}
	}

	f = maxGrid[0]
	remainder := minBlocks(g, f)

	res, err := vs.rearrangeGrid1D([]int{remainder}, maxGrid[1:])
	if err != nil {
		return nil, err
	}

	return [][]int{prepend(f, res[0])}, nil
}

// bestExactFactor returns the largest exact divisor f of n with f <= limit,
// along with n/f, scanning divisor pairs from largest-f downward. ok is
// false only if n itself has no divisor <= limit other than 1 (which still
// succeeds with f=1, div=n — callers check f != 1 themselves, matching the
// original decomposition's fallback order).
func bestExactFactor(n, limit int) (f, div int, ok bool) {
	bestF, bestDiv := 1, n

	for d := 1; d*d <= n; d++ {
		if n%d != 0 {
			continue
		}

		a, b := d, n/d

		if a <= limit && a > bestF {
			bestF, bestDiv = a, b
		}

		if b <= limit && b > bestF {
			bestF, bestDiv = b, a
		}
	}

	return bestF, bestDiv, true
}

func prepend(v int, rest []int) []int {
	out := make([]int, 0, len(rest)+1)
	out = append(out, v)
	out = append(out, rest...)

	return out
}

func minBlocks(x, y int) int {
	if y <= 0 {
		return x
	}

	return (x + y - 1) / y
}

func divFloor(a, b int) int {
	if b <= 0 {
		return a
	}

	return a / b
}

func product(xs []int) int {
	p := 1
	for _, x := range xs {
		p *= x
	}

	return p
}

func log2(n int) int {
	if n <= 1 {
		return 0
	}

	l := 0
	for n > 1 {
		n >>= 1
		l++
	}

	return l
}

func cloneInts(xs []int) []int {
	out := make([]int, len(xs))
	copy(out, xs)

	return out
}

// RenderVSizeFuncs renders the GPU helper functions a kernel body uses to
// recover its virtual (user-requested) ids from the physical grid this
// VirtualSizes computed: virtual_global_id, virtual_local_id,
// virtual_local_size, virtual_group_id, virtual_global_flat_id, and
// virtual_skip_threads
// (an early-return guard for the idle threads a power-of-two fallback
// split may introduce).
func (vs *VirtualSizes) RenderVSizeFuncs() string {
	var sb strings.Builder

	dims := len(vs.naiveBoundingGrid)

	fmt.Fprintf(&sb, "#define VSIZE_DIMS %d\n\n", dims)

	sb.WriteString("INLINE WITHIN_KERNEL int virtual_local_id(int dim)\n{\n")

	for d := 0; d < dims; d++ {
		fmt.Fprintf(&sb, "    if (dim == %d) return get_local_id(%d);\n", d, d)
	}

	sb.WriteString("    return 0;\n}\n\n")

	sb.WriteString("INLINE WITHIN_KERNEL int virtual_local_size(int dim)\n{\n")

	for d := 0; d < dims; d++ {
		fmt.Fprintf(&sb, "    if (dim == %d) return %d;\n", d, vs.localSize[d])
	}

	sb.WriteString("    return 1;\n}\n\n")

	sb.WriteString("INLINE WITHIN_KERNEL int virtual_group_id(int dim)\n{\n")

	for d := 0; d < dims; d++ {
		expr := groupIDExpr(vs.gridParts, d)
		fmt.Fprintf(&sb, "    if (dim == %d) return %s;\n", d, expr)
	}

	sb.WriteString("    return 0;\n}\n\n")

	sb.WriteString("INLINE WITHIN_KERNEL int virtual_global_id(int dim)\n{\n")
	sb.WriteString("    if (dim < 0 || dim >= VSIZE_DIMS) return 0;\n")
	sb.WriteString("    return virtual_group_id(dim) * virtual_local_size(dim) + virtual_local_id(dim);\n}\n\n")

	sb.WriteString("INLINE WITHIN_KERNEL int virtual_global_flat_id()\n{\n    int id = 0;\n    int stride = 1;\n")

	for d := 0; d < dims; d++ {
		fmt.Fprintf(&sb, "    id += virtual_global_id(%d) * stride;\n    stride *= %d;\n", d, vs.globalSize[d])
	}

	sb.WriteString("    return id;\n}\n\n")

	sb.WriteString("INLINE WITHIN_KERNEL bool virtual_skip_threads()\n{\n")

	for d := 0; d < dims; d++ {
		fmt.Fprintf(&sb, "    if (virtual_global_id(%d) >= %d) return true;\n", d, vs.globalSize[d])
	}

	sb.WriteString("    return false;\n}\n")

	return sb.String()
}

// groupIDExpr renders the C expression recovering virtual grid dimension d
// from the physical get_group_id()s, given how rearrangeGrid split that
// axis across one or more physical grid dimensions in gridParts.
func groupIDExpr(gridParts [][]int, d int) string {
	row := gridParts[d]
	terms := make([]string, 0, len(row))

	for physDim, f := range row {
		if f == 1 {
			continue
		}

		// Virtual dims before d occupy the low digits of this physical axis.
		below := 1
		for k := 0; k < d; k++ {
			below *= gridParts[k][physDim]
		}

		var term string
		if below == 1 {
			term = fmt.Sprintf("(get_group_id(%d) %% %d)", physDim, f)
		} else {
			term = fmt.Sprintf("((get_group_id(%d) / %d) %% %d)", physDim, below, f)
		}

		terms = append(terms, fmt.Sprintf("%s * %d", term, rowStrideBefore(gridParts, d, physDim)))
	}

	if len(terms) == 0 {
		return "0"
	}

	return strings.Join(terms, " + ")
}

// rowStrideBefore returns the product of every factor this virtual
// dimension d was split into at physical dims earlier than upTo, i.e. the
// stride the upTo'th physical-dim contribution must be multiplied by to
// land in the right place in the flattened virtual index.
func rowStrideBefore(gridParts [][]int, d, upTo int) int {
	stride := 1

	for physDim := 0; physDim < upTo; physDim++ {
		stride *= gridParts[d][physDim]
	}

	return stride
}
