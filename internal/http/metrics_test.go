package http

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s := setupTestServer(t, WithMetrics(NewHTTPMetrics(mp, nil)))

	do(t, s, http.MethodGet, "/health", nil)
	do(t, s, http.MethodGet, "/api/v1/records/a", nil)
	do(t, s, http.MethodGet, "/api/v1/records/b", nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	statuses := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "vectorindex.http.requests_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				endpoint, _ := dp.Attributes.Value("endpoint")
				status, _ := dp.Attributes.Value("status")
				counts[endpoint.AsString()] += dp.Value
				statuses[endpoint.AsString()] = status.AsInt64()
			}
		}
	}

	assert.Equal(t, int64(1), counts["/health"])
	// Record ids are folded into the route pattern.
	assert.Equal(t, int64(2), counts["/api/v1/records/:id"])
	assert.Equal(t, int64(http.StatusNotFound), statuses["/api/v1/records/:id"])
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/search", routeLabel("/api/v1/search"))
}
