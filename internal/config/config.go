// Package config loads vectorindex configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// VECTORINDEX_* environment variables. Each section is validated by the
// package that consumes it.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/embeddings"
	"github.com/fyrsmithlabs/vectorindex/internal/indexconfig"
	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/similarity"
	"github.com/fyrsmithlabs/vectorindex/internal/store/qdrant"
	"github.com/fyrsmithlabs/vectorindex/internal/store/sqlite"
	"github.com/fyrsmithlabs/vectorindex/internal/telemetry"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config holds the complete vectorindex configuration.
type Config struct {
	Index      indexconfig.Config `koanf:"index" json:"index"`
	Pool       pool.Config        `koanf:"pool" json:"pool"`
	Store      StoreConfig        `koanf:"store" json:"store"`
	Embeddings EmbeddingsConfig   `koanf:"embeddings" json:"embeddings"`
	Logging    logging.Config     `koanf:"logging" json:"logging"`
	Telemetry  telemetry.Config   `koanf:"telemetry" json:"telemetry"`
	HTTP       HTTPConfig         `koanf:"http" json:"http"`
}

// StoreConfig selects the backend.
type StoreConfig struct {
	Backend string        `koanf:"backend" json:"backend"`
	SQLite  sqlite.Config `koanf:"sqlite" json:"sqlite"`
	Qdrant  QdrantConfig  `koanf:"qdrant" json:"qdrant"`
}

// QdrantConfig is the file form of qdrant.Config.
type QdrantConfig struct {
	Host             string   `koanf:"host" json:"host"`
	Port             int      `koanf:"port" json:"port"`
	UseTLS           bool     `koanf:"use_tls" json:"use_tls"`
	APIKey           Secret   `koanf:"api_key" json:"api_key"`
	MaxMessageSize   int      `koanf:"max_message_size" json:"max_message_size"`
	DialTimeout      Duration `koanf:"dial_timeout" json:"dial_timeout"`
	RequestTimeout   Duration `koanf:"request_timeout" json:"request_timeout"`
	HybridCandidates int      `koanf:"hybrid_candidates" json:"hybrid_candidates"`
}

// Backend converts the section into a qdrant.Config. The API key is copied
// into a fresh credential on every call.
func (q QdrantConfig) Backend() qdrant.Config {
	return qdrant.Config{
		Host:             q.Host,
		Port:             q.Port,
		UseTLS:           q.UseTLS,
		APIKey:           q.APIKey.Credential(),
		MaxMessageSize:   q.MaxMessageSize,
		DialTimeout:      q.DialTimeout.Duration(),
		RequestTimeout:   q.RequestTimeout.Duration(),
		HybridCandidates: q.HybridCandidates,
	}
}

// EmbeddingsConfig is the file form of embeddings.Config.
type EmbeddingsConfig struct {
	Provider       string   `koanf:"provider" json:"provider"`
	Model          string   `koanf:"model" json:"model"`
	BaseURL        string   `koanf:"base_url" json:"base_url"`
	APIKey         Secret   `koanf:"api_key" json:"api_key"`
	Dimensions     int      `koanf:"dimensions" json:"dimensions"`
	CacheDir       string   `koanf:"cache_dir" json:"cache_dir"`
	MaxLength      int      `koanf:"max_length" json:"max_length"`
	InstallRuntime bool     `koanf:"install_runtime" json:"install_runtime"`
	RateLimit      float64  `koanf:"rate_limit" json:"rate_limit"`
	Burst          int      `koanf:"burst" json:"burst"`
	Timeout        Duration `koanf:"timeout" json:"timeout"`
}

// ModelConfig converts the section into an embeddings.Config.
func (e EmbeddingsConfig) ModelConfig() embeddings.Config {
	return embeddings.Config{
		Provider:       e.Provider,
		Model:          e.Model,
		BaseURL:        e.BaseURL,
		APIKey:         e.APIKey.Credential(),
		Dimensions:     e.Dimensions,
		CacheDir:       e.CacheDir,
		MaxLength:      e.MaxLength,
		InstallRuntime: e.InstallRuntime,
		RateLimit:      e.RateLimit,
		Burst:          e.Burst,
		Timeout:        e.Timeout.Duration(),
	}
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Host            string   `koanf:"host" json:"host"`
	Port            int      `koanf:"port" json:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	// BodyLimit is an echo size string such as "4M".
	BodyLimit string `koanf:"body_limit" json:"body_limit"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// Default returns the built-in configuration: a local SQLite file, a
// cosine HNSW index over 384-dimensional fastembed vectors and a disabled
// telemetry exporter.
func Default() *Config {
	emb := embeddings.DefaultConfig()
	q := qdrant.DefaultConfig()
	return &Config{
		Index: indexconfig.New(
			"vectors",
			"embedding",
			similarity.Cosine,
			indexconfig.IndexType{Kind: indexconfig.KindHNSW},
			384,
			100_000,
		),
		Pool: pool.DefaultConfig(),
		Store: StoreConfig{
			Backend: BackendSQLite,
			SQLite:  sqlite.DefaultConfig("vectorindex.db"),
			Qdrant: QdrantConfig{
				Host:             q.Host,
				Port:             q.Port,
				MaxMessageSize:   q.MaxMessageSize,
				DialTimeout:      Duration(q.DialTimeout),
				RequestTimeout:   Duration(q.RequestTimeout),
				HybridCandidates: q.HybridCandidates,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  emb.Provider,
			Model:     emb.Model,
			MaxLength: emb.MaxLength,
			Timeout:   Duration(emb.Timeout),
		},
		Logging:   *logging.NewDefaultConfig(),
		Telemetry: *telemetry.NewDefaultConfig(),
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            8420,
			ShutdownTimeout: Duration(10 * time.Second),
			BodyLimit:       "4M",
		},
	}
}

// Validate checks every section, stopping at the first failure.
func (c *Config) Validate() error {
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Pool.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case BackendSQLite:
		if err := c.Store.SQLite.Validate(); err != nil {
			return err
		}
	case BackendQdrant:
		if err := c.Store.Qdrant.Backend().Validate(); err != nil {
			return err
		}
	default:
		return vecerr.Config("store.backend", "must be %q or %q, got %q", BackendSQLite, BackendQdrant, c.Store.Backend)
	}
	if err := c.Embeddings.ModelConfig().Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return vecerr.Config("http.port", "must be between 0 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return vecerr.Config("http.shutdown_timeout", "must be positive")
	}
	return nil
}
