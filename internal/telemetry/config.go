package telemetry

import (
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Export protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http/protobuf"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool   `koanf:"enabled" json:"enabled"`
	Endpoint       string `koanf:"endpoint" json:"endpoint"`
	Protocol       string `koanf:"protocol" json:"protocol"`
	ServiceName    string `koanf:"service_name" json:"service_name"`
	ServiceVersion string `koanf:"service_version" json:"service_version"`
	// Insecure disables TLS. Only allowed for loopback endpoints.
	Insecure      bool           `koanf:"insecure" json:"insecure"`
	TLSSkipVerify bool           `koanf:"tls_skip_verify" json:"tls_skip_verify"`
	Sampling      SamplingConfig `koanf:"sampling" json:"sampling"`
	Metrics       MetricsConfig  `koanf:"metrics" json:"metrics"`
	Shutdown      ShutdownConfig `koanf:"shutdown" json:"shutdown"`
}

type SamplingConfig struct {
	// Rate is the fraction of root traces kept, in [0, 1].
	Rate float64 `koanf:"rate" json:"rate"`
}

type MetricsConfig struct {
	Enabled        bool          `koanf:"enabled" json:"enabled"`
	ExportInterval time.Duration `koanf:"export_interval" json:"export_interval"`
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

// NewDefaultConfig returns a disabled configuration pointing at a local
// collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       ProtocolGRPC,
		ServiceName:    "vectorindex",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		Sampling:       SamplingConfig{Rate: 1.0},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: 15 * time.Second,
		},
		Shutdown: ShutdownConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks the configuration. A disabled configuration is always
// valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return vecerr.Config("telemetry.endpoint", "is required when telemetry is enabled")
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		return vecerr.Config("telemetry.protocol", "must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol)
	}
	if c.ServiceName == "" {
		return vecerr.Config("telemetry.service_name", "is required when telemetry is enabled")
	}
	if c.Insecure && !isLoopback(c.Endpoint) {
		return vecerr.Config("telemetry.insecure", "plaintext export is only allowed to a loopback endpoint, got %q", c.Endpoint)
	}
	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return vecerr.Config("telemetry.sampling.rate", "must be between 0 and 1, got %g", c.Sampling.Rate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval <= 0 {
		return vecerr.Config("telemetry.metrics.export_interval", "must be positive when metrics are enabled")
	}
	if c.Shutdown.Timeout <= 0 {
		return vecerr.Config("telemetry.shutdown.timeout", "must be positive")
	}
	return nil
}

// isLoopback reports whether endpoint, with or without scheme and port,
// names a loopback host.
func isLoopback(endpoint string) bool {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// stripScheme removes an http:// or https:// prefix. The exporters expect
// host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
