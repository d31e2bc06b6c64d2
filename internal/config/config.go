package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/skillindex/internal/corpus"
	"github.com/dshills/skillindex/internal/embedder"
	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/pkg/types"
)

// EnvPrefix is prepended to every environment variable, e.g. SKILLINDEX_SERVER_API_KEY
const EnvPrefix = "SKILLINDEX"

// Config holds all application configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Server    ServerConfig    `mapstructure:"server"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Search    SearchConfig    `mapstructure:"search"`
	Log       LogConfig       `mapstructure:"log"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type CorpusConfig struct {
	Source   string `mapstructure:"source"`   // "db" or a JSON file path
	Database string `mapstructure:"database"` // registry database read by the "db" source
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

type EmbeddingConfig struct {
	Provider  string        `mapstructure:"provider"` // openai, jina, local or none
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Dimension int           `mapstructure:"dimension"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Rate      float64       `mapstructure:"rate"` // requests per second, 0 = unlimited
	Burst     int           `mapstructure:"burst"`
	CacheSize int           `mapstructure:"cache_size"`
}

type SearchConfig struct {
	FieldWeights map[string]float64 `mapstructure:"field_weights"`
	HybridWeight float64            `mapstructure:"hybrid_weight"`
	Cache        bool               `mapstructure:"cache"`
	CacheTTL     time.Duration      `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

// setDefaults registers every key so environment variables can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "data/index")
	v.SetDefault("corpus.source", corpus.SourceDatabase)
	v.SetDefault("corpus.database", "data/registry.db")
	v.SetDefault("server.addr", ":8001")
	v.SetDefault("server.api_key", "")

	v.SetDefault("embedding.provider", embedder.ProviderNone)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.rate", 0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("embedding.cache_size", 10000)

	for field, w := range types.DefaultFieldWeights {
		v.SetDefault("search.field_weights."+field, w)
	}
	v.SetDefault("search.hybrid_weight", types.DefaultHybridWeight)
	v.SetDefault("search.cache", true)
	v.SetDefault("search.cache_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional config file, a .env
// file in the working directory and the environment, in increasing priority.
// An empty path searches for skillindex.{yaml,json,toml} in the working
// directory; a missing file is not an error unless path names one.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("skillindex")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Server.APIKey == "" {
		warnings = append(warnings, "server.api_key is empty; index rebuild and update are disabled")
	}

	switch p := strings.ToLower(c.Embedding.Provider); p {
	case embedder.ProviderOpenAI, embedder.ProviderJina:
		if c.Embedding.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", p))
		}
	case "", embedder.ProviderNone, embedder.ProviderLocal:
	default:
		warnings = append(warnings, fmt.Sprintf("unknown embedding provider '%s'; dense search disabled", p))
	}

	if h := c.Search.HybridWeight; math.IsNaN(h) || h < 0 || h > 1 {
		warnings = append(warnings, fmt.Sprintf("search.hybrid_weight %.2f is outside [0, 1]", h))
	}

	for field, w := range c.Search.FieldWeights {
		if w < 0 {
			warnings = append(warnings, fmt.Sprintf("search.field_weights.%s is negative", field))
		}
	}

	return warnings
}

// DatabasePath is the index database inside the storage root
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Storage.Root, storage.DatabaseFile)
}

// EmbedderConfig converts the embedding section for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		Model:             c.Embedding.Model,
		APIKey:            c.Embedding.APIKey,
		BaseURL:           c.Embedding.BaseURL,
		Dimension:         c.Embedding.Dimension,
		CacheSize:         c.Embedding.CacheSize,
		Timeout:           c.Embedding.Timeout,
		RequestsPerSecond: c.Embedding.Rate,
		Burst:             c.Embedding.Burst,
	}
}

// NewLogger builds the structured logger described by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
