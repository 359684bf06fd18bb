package qdrant

import (
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/credential"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Config configures the Qdrant gRPC backend.
type Config struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334
	Port int

	// UseTLS enables TLS encryption for the gRPC connection.
	UseTLS bool

	// APIKey authenticates against Qdrant Cloud or a secured server. It
	// is revealed only while building the client.
	APIKey *credential.Credential

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// DialTimeout bounds the initial health check.
	// Default: 5 seconds
	DialTimeout time.Duration

	// RequestTimeout bounds each individual request.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// HybridCandidates is how many vector hits are fetched before lexical
	// scoring in hybrid mode. Qdrant cannot score metadata text itself.
	// Default: 1000
	HybridCandidates int
}

// DefaultConfig returns a Config for a local Qdrant instance.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             6334,
		MaxMessageSize:   50 * 1024 * 1024,
		DialTimeout:      5 * time.Second,
		RequestTimeout:   30 * time.Second,
		HybridCandidates: 1000,
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.HybridCandidates == 0 {
		c.HybridCandidates = d.HybridCandidates
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return vecerr.Config("store.qdrant.host", "is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return vecerr.Config("store.qdrant.port", "must be in 1..65535, got %d", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return vecerr.Config("store.qdrant.max_message_size", "must be positive")
	}
	if c.DialTimeout <= 0 {
		return vecerr.Config("store.qdrant.dial_timeout", "must be positive")
	}
	if c.RequestTimeout <= 0 {
		return vecerr.Config("store.qdrant.request_timeout", "must be positive")
	}
	if c.HybridCandidates <= 0 {
		return vecerr.Config("store.qdrant.hybrid_candidates", "must be positive")
	}
	if c.APIKey != nil && c.APIKey.IsSet() {
		if err := c.APIKey.Validate(); err != nil {
			return vecerr.Config("store.qdrant.api_key", "%v", err)
		}
	}
	return nil
}
