package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctxindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "context_chunks", cfg.Qdrant.Collection)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, 16, cfg.Embedding.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Embedding.BatchDelay)
	assert.Equal(t, 2000, cfg.Chunking.MaxSize)
	assert.Equal(t, 20, cfg.Chunking.OverlapWords)
	assert.Equal(t, "hybrid", cfg.Search.DefaultMode)
	assert.InDelta(t, 0.7, cfg.Search.SemanticWeight, 1e-9)
}

func TestLoad_FileAndRelativePaths(t *testing.T) {
	path := writeConfig(t, `
content:
  root: ./docs
  tracking_file: /var/lib/ctxindex/tracking.json
embedding:
  dimension: 256
  batch_delay: 1s
chunking:
  max_size: 800
search:
  default_mode: keyword
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "docs"), cfg.Content.Root)
	assert.Equal(t, "/var/lib/ctxindex/tracking.json", cfg.Content.TrackingFile)
	assert.Equal(t, 256, cfg.Embedding.Dimension)
	assert.Equal(t, time.Second, cfg.Embedding.BatchDelay)
	assert.Equal(t, 800, cfg.Chunking.MaxSize)
	assert.Equal(t, "keyword", cfg.Search.DefaultMode)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "qdrant:\n  host: from-file\n")
	t.Setenv("QDRANT_HOST", "from-env")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("EMBEDDING_DIMENSION", "512")
	t.Setenv("SERVER_MODE", "true")
	t.Setenv("CTXINDEX_SERVER_WATCH", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Qdrant.Host)
	assert.Equal(t, 7000, cfg.Qdrant.Port)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.True(t, cfg.Server.HTTP)
	assert.True(t, cfg.Server.Watch)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("bad env integer", func(t *testing.T) {
		t.Setenv("QDRANT_PORT", "abc")
		_, err := Load("")
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "qdrant: [unclosed"))
		assert.ErrorIs(t, err, ErrInvalid)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := Load(writeConfig(t, "chunking:\n  max_size: 50\n  min_size: 80\nsearch:\n  default_mode: fuzzy\n"))
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "min_size")
		assert.Contains(t, err.Error(), "default_mode")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
