package config

// Exported default values, mirrored from setDefaults, for callers that want
// to construct a Config without going through LoadConfig.
const (
	DefaultRenderWorkers    = defaultRenderWorkers
	DefaultMaxWorkGroupSize = defaultMaxWorkGroupSize
	DefaultServerPort       = defaultPort
	DefaultServerHost       = defaultHost
)

// DefaultMaxGridSizes returns a fresh copy of the default grid-size limits,
// so callers cannot mutate the package-level default.
func DefaultMaxGridSizes() []int {
	sizes := make([]int, len(defaultMaxGridSizes))
	copy(sizes, defaultMaxGridSizes)

	return sizes
}
