package embeddings

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/credential"
	"github.com/fyrsmithlabs/vectorindex/internal/logging"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderTEI       = "tei"
	ProviderFastEmbed = "fastembed"
)

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is one of "openai", "tei" or "fastembed".
	Provider string

	// Model is the provider's model name.
	Model string

	// BaseURL is the server address for openai and tei.
	BaseURL string

	// APIKey authenticates against openai-compatible endpoints.
	APIKey *credential.Credential

	// Dimensions overrides the vector length detected from the model name.
	Dimensions int

	// CacheDir holds downloaded fastembed models.
	CacheDir string

	// MaxLength is the fastembed input sequence limit.
	MaxLength int

	// InstallRuntime downloads the ONNX runtime for fastembed when it is
	// not found.
	InstallRuntime bool

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64

	// Burst is the rate limiter bucket size. Defaults to 1.
	Burst int

	// Timeout bounds each HTTP request for tei.
	Timeout time.Duration
}

// DefaultConfig returns a fastembed configuration for bge-small.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderFastEmbed,
		Model:     "BAAI/bge-small-en-v1.5",
		MaxLength: 512,
		Timeout:   30 * time.Second,
	}
}

// Validate checks the configuration without contacting the provider.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderTEI, ProviderFastEmbed:
	default:
		return vecerr.Config("embeddings.provider", "unknown provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return vecerr.Config("embeddings.model", "model is required")
	}
	if c.Provider == ProviderTEI && c.BaseURL == "" {
		return vecerr.Config("embeddings.base_url", "base url is required for tei")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return vecerr.Config("embeddings.base_url", "invalid url %q", c.BaseURL)
		}
	}
	if c.APIKey != nil {
		if err := c.APIKey.Validate(); err != nil {
			return vecerr.Config("embeddings.api_key", "%v", err)
		}
	}
	if c.Provider == ProviderOpenAI && !c.APIKey.IsSet() && c.BaseURL == "" {
		return vecerr.Config("embeddings.api_key", "api key is required for the public openai endpoint")
	}
	if c.Dimensions < 0 {
		return vecerr.Config("embeddings.dimensions", "must not be negative, got %d", c.Dimensions)
	}
	if c.RateLimit < 0 {
		return vecerr.Config("embeddings.rate_limit", "must not be negative, got %v", c.RateLimit)
	}
	if c.Burst < 0 {
		return vecerr.Config("embeddings.burst", "must not be negative, got %d", c.Burst)
	}
	if c.Timeout < 0 {
		return vecerr.Config("embeddings.timeout", "must not be negative, got %s", c.Timeout)
	}
	return nil
}

// dimensions returns the configured or detected vector length.
func (c Config) dimensions() int {
	if c.Dimensions > 0 {
		return c.Dimensions
	}
	return DetectDimensions(c.Model)
}

// New builds the configured provider, wrapped with rate limiting when
// RateLimit is set and with metrics.
func New(cfg Config, logger *zap.Logger) (Model, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		m   Model
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		m, err = NewOpenAI(cfg)
	case ProviderTEI:
		m, err = NewTEI(cfg)
	case ProviderFastEmbed:
		m, err = NewFastEmbed(cfg, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedder: %w", cfg.Provider, err)
	}

	if cfg.RateLimit > 0 {
		m = RateLimited(m, cfg.RateLimit, cfg.Burst)
	}
	logger.Info("embedding model ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", m.Dimensions()),
		logging.Credential("api_key", cfg.APIKey),
	)
	return Instrumented(m, cfg.Model, NewMetrics(logger)), nil
}
