package mlconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minileaf/minileaf/pkg/mlconfig"
)

func TestLoadFile_ParsesJSONCWithComments(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "minileaf.jsonc")

	content := `{
		// data directory for all collections
		"data_dir": "/var/lib/minileaf",
		"cache_size": 2048,
		"sync_on_write": false,
	}`

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := mlconfig.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/minileaf", cfg.DataDir)
	require.Equal(t, 2048, cfg.CacheSize)
	require.False(t, cfg.SyncOnWriteOrDefault())
}

func TestLoadFile_MissingFileErrors(t *testing.T) {
	t.Parallel()

	_, err := mlconfig.LoadFile(filepath.Join(t.TempDir(), "nope.jsonc"))
	require.Error(t, err)
}

func TestConfig_SyncOnWriteDefaultsToTrue(t *testing.T) {
	t.Parallel()

	var cfg mlconfig.Config
	require.True(t, cfg.SyncOnWriteOrDefault())
}

func TestConfig_WithDefaultsFillsZeroFields(t *testing.T) {
	t.Parallel()

	cfg := mlconfig.Config{}.WithDefaults()
	require.Equal(t, mlconfig.DefaultAutosaveInterval, cfg.AutosaveInterval)
	require.Equal(t, mlconfig.DefaultSnapshotInterval, cfg.SnapshotInterval)
	require.Equal(t, int64(mlconfig.DefaultWALMaxBytesBeforeSnapshot), cfg.WALMaxBytesBeforeSnapshot)
	require.Equal(t, mlconfig.DefaultCacheSize, cfg.CacheSize)
	require.NotNil(t, cfg.Logger)
}
