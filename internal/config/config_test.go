package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/pkg/types"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "data/index", cfg.Storage.Root)
	assert.Equal(t, "db", cfg.Corpus.Source)
	assert.Equal(t, ":8001", cfg.Server.Addr)
	assert.Empty(t, cfg.Server.APIKey)
	assert.Equal(t, embedder.ProviderNone, cfg.Embedding.Provider)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, types.DefaultHybridWeight, cfg.Search.HybridWeight)
	assert.Equal(t, types.DefaultFieldWeights, cfg.Search.FieldWeights)
	assert.True(t, cfg.Search.Cache)
	assert.Equal(t, filepath.Join("data/index", "skillindex.db"), cfg.DatabasePath())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SKILLINDEX_SERVER_API_KEY", "s3cret")
	t.Setenv("SKILLINDEX_EMBEDDING_PROVIDER", "local")
	t.Setenv("SKILLINDEX_EMBEDDING_TIMEOUT", "5s")
	t.Setenv("SKILLINDEX_SEARCH_FIELD_WEIGHTS_NAME", "0.9")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Server.APIKey)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.InDelta(t, 0.9, cfg.Search.FieldWeights[types.FieldName], 1e-9)
	assert.InDelta(t, 0.3, cfg.Search.FieldWeights[types.FieldDescription], 1e-9)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SKILLINDEX_CORPUS_SOURCE=skills.json\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SKILLINDEX_CORPUS_SOURCE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "skills.json", cfg.Corpus.Source)
}

func TestLoad_ConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  root: /var/lib/skillindex
embedding:
  provider: openai
  model: text-embedding-3-small
search:
  hybrid_weight: 0.5
  field_weights:
    excerpt: 0.2
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/skillindex", cfg.Storage.Root)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 0.5, cfg.Search.HybridWeight)
	assert.InDelta(t, 0.2, cfg.Search.FieldWeights[types.FieldExcerpt], 1e-9)
	assert.InDelta(t, 0.6, cfg.Search.FieldWeights[types.FieldName], 1e-9)

	ec := cfg.EmbedderConfig()
	assert.Equal(t, "openai", ec.Provider)
	assert.Equal(t, "text-embedding-3-small", ec.Model)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string // substrings expected in the warnings
	}{
		{
			name: "clean",
			cfg: Config{
				Server:    ServerConfig{APIKey: "k"},
				Embedding: EmbeddingConfig{Provider: "local"},
				Search:    SearchConfig{HybridWeight: 0.7},
			},
		},
		{
			name: "missing admin key",
			cfg:  Config{Search: SearchConfig{HybridWeight: 0.7}},
			want: []string{"server.api_key"},
		},
		{
			name: "remote provider without key",
			cfg: Config{
				Server:    ServerConfig{APIKey: "k"},
				Embedding: EmbeddingConfig{Provider: "jina"},
				Search:    SearchConfig{HybridWeight: 0.7},
			},
			want: []string{"api_key is empty"},
		},
		{
			name: "bad weights",
			cfg: Config{
				Server: ServerConfig{APIKey: "k"},
				Search: SearchConfig{HybridWeight: 1.5, FieldWeights: map[string]float64{"name": -1}},
			},
			want: []string{"hybrid_weight", "field_weights.name"},
		},
		{
			name: "unknown provider",
			cfg: Config{
				Server:    ServerConfig{APIKey: "k"},
				Embedding: EmbeddingConfig{Provider: "sbert"},
				Search:    SearchConfig{HybridWeight: 0.7},
			},
			want: []string{"unknown embedding provider"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			warnings := tt.cfg.Validate()
			assert.Len(t, warnings, len(tt.want))
			joined := strings.Join(warnings, "\n")
			for _, w := range tt.want {
				assert.Contains(t, joined, w)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Log: LogConfig{Level: "warn", Format: "json"}}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}
