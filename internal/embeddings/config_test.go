package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/vectorindex/internal/credential"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

func TestConfig_Validate(t *testing.T) {
	wiped := credential.New("secret")
	wiped.Wipe()

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"default", DefaultConfig(), ""},
		{"unknown provider", Config{Provider: "cohere", Model: "m"}, "embeddings.provider"},
		{"no model", Config{Provider: ProviderTEI, BaseURL: "http://tei"}, "embeddings.model"},
		{"tei without url", Config{Provider: ProviderTEI, Model: "m"}, "embeddings.base_url"},
		{"bad url", Config{Provider: ProviderTEI, Model: "m", BaseURL: "tei:8080"}, "embeddings.base_url"},
		{"openai without key", Config{Provider: ProviderOpenAI, Model: "m"}, "embeddings.api_key"},
		{"openai compatible server", Config{Provider: ProviderOpenAI, Model: "m", BaseURL: "http://llm:8000/v1"}, ""},
		{"wiped key", Config{Provider: ProviderOpenAI, Model: "m", APIKey: wiped}, "embeddings.api_key"},
		{"negative dimensions", Config{Provider: ProviderTEI, Model: "m", BaseURL: "http://tei", Dimensions: -1}, "embeddings.dimensions"},
		{"negative rate", Config{Provider: ProviderTEI, Model: "m", BaseURL: "http://tei", RateLimit: -1}, "embeddings.rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, vecerr.ErrConfiguration)
			var fe *vecerr.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestNew_TEI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[[1,0,0,0]]`))
	}))
	defer srv.Close()

	m, err := New(Config{
		Provider:   ProviderTEI,
		Model:      "acme/encoder",
		BaseURL:    srv.URL,
		Dimensions: 4,
		RateLimit:  100,
	}, zap.NewNop())
	require.NoError(t, err)
	defer Close(m)

	assert.Equal(t, 4, m.Dimensions())
	v, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 0}, v)
	_, ok := m.(BatchModel)
	assert.True(t, ok)
}

func TestNew_LogsKeyLengthOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[[1,0,0,0]]`))
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	m, err := New(Config{
		Provider:   ProviderTEI,
		Model:      "acme/encoder",
		BaseURL:    srv.URL,
		Dimensions: 4,
		APIKey:     credential.New("tei-secret"),
	}, zap.New(core))
	require.NoError(t, err)
	defer Close(m)

	entries := logs.FilterMessage("embedding model ready").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "[REDACTED:10]", entries[0].ContextMap()["api_key"])
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Provider: "nope"}, nil)
	assert.ErrorIs(t, err, vecerr.ErrConfiguration)
}
