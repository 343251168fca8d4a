package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_ProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()

	hujsonBody := `{
		// project override, trailing commas and comments are fine
		"segment": {
			"max_store_bytes": 2048,
		},
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(hujsonBody), 0644))

	cfg, err := LoadConfig(dir, "", nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2048), cfg.Segment.MaxStoreBytes)
	require.Equal(t, DefaultConfig().Segment.MaxIndexBytes, cfg.Segment.MaxIndexBytes)
}

func TestLoadConfig_ExplicitPathWinsOverProject(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"segment": {"max_store_bytes": 2048}}`), 0644))

	explicit := filepath.Join(dir, "override.hujson")
	require.NoError(t, os.WriteFile(explicit, []byte(`{"segment": {"max_store_bytes": 4096}}`), 0644))

	cfg, err := LoadConfig(dir, explicit, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), cfg.Segment.MaxStoreBytes)
}

func TestLoadConfig_GlobalFileFromXDG(t *testing.T) {
	xdg := t.TempDir()
	globalDir := filepath.Join(xdg, "kafka3.3")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, ConfigFileName), []byte(`{"segment": {"max_index_bytes": 4096}}`), 0644))

	dir := t.TempDir()
	env := []string{"XDG_CONFIG_HOME=" + xdg}

	cfg, err := LoadConfig(dir, "", env)
	require.NoError(t, err)
	require.Equal(t, uint64(4096), cfg.Segment.MaxIndexBytes)
}

func TestLoadConfig_RejectsUndersizedIndex(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "bad.hujson")
	require.NoError(t, os.WriteFile(explicit, []byte(`{"segment": {"max_index_bytes": 4}}`), 0644))

	_, err := LoadConfig(dir, explicit, nil)
	require.Error(t, err)
}

func TestLoadConfig_MissingOptionalFilesAreFine(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir, "", []string{"XDG_CONFIG_HOME=" + filepath.Join(dir, "nonexistent")})
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}
