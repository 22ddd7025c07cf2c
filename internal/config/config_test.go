package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constfold.yaml")
	content := `
fold:
  prefix: CF
  parallelism: 4
  materialize_shapes: false
storage:
  db_path: /tmp/runs.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONSTFOLD_PARALLELISM", "8")
	t.Setenv("CONSTFOLD_LOG_FORMAT", "json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "CF", cfg.Fold.Prefix)
	assert.Equal(t, 8, cfg.Fold.Parallelism)
	assert.False(t, cfg.Fold.MaterializeShapes)
	assert.Equal(t, 10<<20, cfg.Fold.MaxConstantBytes)
	assert.Equal(t, "/tmp/runs.db", cfg.Storage.DBPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_BoolOverride(t *testing.T) {
	t.Setenv("CONSTFOLD_MATERIALIZE_SHAPES", "false")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, cfg.Fold.MaterializeShapes)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fold: [unclosed"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
