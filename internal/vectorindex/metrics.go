package vectorindex

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

const metricsNamespace = "vectorindex"

// MetricsObserver exports operation metrics to Prometheus.
//
// Metrics:
//   - vectorindex_requests_total{operation,outcome}
//   - vectorindex_operation_duration_seconds{operation}
//   - vectorindex_retries_total{operation,kind}
//   - vectorindex_batch_rollbacks_total{operation}
type MetricsObserver struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	retries   *prometheus.CounterVec
	rollbacks *prometheus.CounterVec
}

// NewMetricsObserver registers the index metrics on reg.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	f := promauto.With(reg)
	return &MetricsObserver{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Index operations by outcome (ok or error kind).",
		}, []string{"operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of index operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retries_total",
			Help:      "Retries of store or embedding calls after retryable failures.",
		}, []string{"operation", "kind"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batch_rollbacks_total",
			Help:      "Batch mutations rolled back.",
		}, []string{"operation"}),
	}
}

func (m *MetricsObserver) RequestIssued(ctx context.Context, _ Operation, _ string) context.Context {
	return ctx
}

func (m *MetricsObserver) RetryAttempted(_ context.Context, op Operation, _ int, _ time.Duration, err error) {
	m.retries.WithLabelValues(string(op), string(vecerr.KindOf(err))).Inc()
}

func (m *MetricsObserver) BatchRolledBack(_ context.Context, op Operation, _ string, _ int, _ error) {
	m.rollbacks.WithLabelValues(string(op)).Inc()
}

func (m *MetricsObserver) OperationFinished(_ context.Context, op Operation, _ string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(vecerr.KindOf(err))
	}
	m.requests.WithLabelValues(string(op), outcome).Inc()
	m.duration.WithLabelValues(string(op)).Observe(elapsed.Seconds())
}

// PoolCollector exports pool.Stats as Prometheus metrics at scrape time.
type PoolCollector struct {
	stats func() pool.Stats

	maxSize  *prometheus.Desc
	inUse    *prometheus.Desc
	idle     *prometheus.Desc
	waits    *prometheus.Desc
	waitTime *prometheus.Desc
	dialed   *prometheus.Desc
	evicted  *prometheus.Desc
	timeouts *prometheus.Desc
}

var _ prometheus.Collector = (*PoolCollector)(nil)

// NewPoolCollector reads stats on every scrape.
func NewPoolCollector(stats func() pool.Stats) *PoolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "pool", name), help, nil, nil)
	}
	return &PoolCollector{
		stats:    stats,
		maxSize:  desc("max_size", "Maximum concurrent connections."),
		inUse:    desc("in_use", "Connections currently checked out."),
		idle:     desc("idle", "Idle connections held by the pool."),
		waits:    desc("waits_total", "Get calls that had to wait for a slot."),
		waitTime: desc("wait_seconds_total", "Total time spent waiting for a slot."),
		dialed:   desc("dialed_total", "Connections opened."),
		evicted:  desc("evicted_total", "Idle connections closed for age or idleness."),
		timeouts: desc("timeouts_total", "Get calls that timed out."),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxSize
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waits
	ch <- c.waitTime
	ch <- c.dialed
	ch <- c.evicted
	ch <- c.timeouts
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(s.MaxSize))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, s.WaitDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.dialed, prometheus.CounterValue, float64(s.Dialed))
	ch <- prometheus.MustNewConstMetric(c.evicted, prometheus.CounterValue, float64(s.Evicted))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(s.Timeouts))
}
