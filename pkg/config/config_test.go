package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerngraph/kerngraph/pkg/config"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, config.DefaultRenderWorkers, cfg.Render.Workers)
	assert.Equal(t, config.DefaultMaxWorkGroupSize, cfg.Device.MaxWorkGroupSize)
	assert.Equal(t, config.DefaultMaxGridSizes(), cfg.Device.MaxGridSizes)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	configContent := `
server:
  port: 9000
  host: "127.0.0.1"

device:
  max_work_group_size: 1024
  max_grid_sizes: [4096, 4096]

render:
  workers: 12
  output_dir: "/tmp/test-kernels"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-config-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	tmpFile.Close()

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 1024, cfg.Device.MaxWorkGroupSize)
	assert.Equal(t, []int{4096, 4096}, cfg.Device.MaxGridSizes)
	assert.Equal(t, 12, cfg.Render.Workers)
	assert.Equal(t, "/tmp/test-kernels", cfg.Render.OutputDir)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("KERNGRAPH_SERVER_PORT", "9090")
	t.Setenv("KERNGRAPH_RENDER_WORKERS", "6")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Render.Workers)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Positive(t, cfg.Render.Workers)
	assert.Positive(t, cfg.Device.MaxWorkGroupSize)
}

func TestValidateConfig_RejectsInvalidPort(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	tmpFile, err := os.CreateTemp(tmpDir, "test-badport-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString("server:\n  port: 0\n")
	require.NoError(t, writeErr)
	tmpFile.Close()

	_, loadErr := config.LoadConfig(tmpFile.Name())
	require.ErrorIs(t, loadErr, config.ErrInvalidPort)
}

func TestValidateConfig_RejectsNonPositiveGridSize(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	tmpFile, err := os.CreateTemp(tmpDir, "test-badgrid-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString("device:\n  max_grid_sizes: [0, 10]\n")
	require.NoError(t, writeErr)
	tmpFile.Close()

	_, loadErr := config.LoadConfig(tmpFile.Name())
	require.ErrorIs(t, loadErr, config.ErrInvalidGridSize)
}

func TestTimeDurationParsing(t *testing.T) {
	t.Parallel()

	configContent := `
server:
  read_timeout: "15s"
  write_timeout: "30s"
  idle_timeout: "2m"
`

	tmpDir := t.TempDir()

	tmpFile, err := os.CreateTemp(tmpDir, "test-duration-*.yaml")
	require.NoError(t, err)

	_, writeErr := tmpFile.WriteString(configContent)
	require.NoError(t, writeErr)

	tmpFile.Close()

	cfg, loadErr := config.LoadConfig(tmpFile.Name())
	require.NoError(t, loadErr)

	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Server.IdleTimeout)
}
