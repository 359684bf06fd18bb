// Command generate_metrics serves synthetic vectorindex metrics so Grafana
// dashboards can be built without a live index.
//
// The series come from the real MetricsObserver and PoolCollector, so names
// and labels match a running server exactly.
//
//	go run ./grafana/testdata/generate_metrics.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/vectorindex/internal/pool"
	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

var (
	operations = []vectorindex.Operation{
		vectorindex.OpTopN,
		vectorindex.OpTopNIDs,
		vectorindex.OpHybridSearch,
		vectorindex.OpCreate,
		vectorindex.OpRead,
		vectorindex.OpUpdate,
		vectorindex.OpDelete,
		vectorindex.OpUpdateBatch,
		vectorindex.OpDeleteBatch,
		vectorindex.OpAddDocuments,
	}
	tables = []string{"vectors", "docs", "notes"}

	// Failures weighted towards the kinds a real deployment sees most.
	failures = []error{
		vecerr.Invalid("query", "must not be empty"),
		vecerr.Invalid("n", "must not be negative, got -1"),
		&vecerr.MissingIDError{Table: "docs", ID: "doc-17"},
		&vecerr.DimensionError{Expected: 384, Actual: 768},
		vecerr.Transient("search", errors.New("database is locked")),
		vecerr.Connection("dial", errors.New("connection refused")),
	}
)

// fakePool tracks a pool that drifts between idle and busy.
type fakePool struct {
	stats pool.Stats
}

func (p *fakePool) Stats() pool.Stats { return p.stats }

func (p *fakePool) tick() {
	p.stats.InUse = rand.Intn(p.stats.MaxSize + 1)
	p.stats.Idle = rand.Intn(p.stats.MaxSize - p.stats.InUse + 1)
	if p.stats.InUse == p.stats.MaxSize {
		p.stats.WaitCount++
		p.stats.WaitDuration += time.Duration(rand.Intn(50)) * time.Millisecond
	}
	if rand.Float64() > 0.9 {
		p.stats.Dialed++
	}
	if rand.Float64() > 0.95 {
		p.stats.Evicted++
	}
	if rand.Float64() > 0.98 {
		p.stats.Timeouts++
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	reg := prometheus.NewRegistry()
	obs := vectorindex.NewMetricsObserver(reg)
	fp := &fakePool{stats: pool.Stats{MaxSize: 10, Dialed: 2}}
	reg.MustRegister(vectorindex.NewPoolCollector(fp.Stats))

	generateSampleData(obs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go generateContinuousData(ctx, obs, fp)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'vectorindex-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func generateSampleData(obs vectorindex.Observer) {
	for i := 0; i < 500; i++ {
		emit(context.Background(), obs)
	}
}

func generateContinuousData(ctx context.Context, obs vectorindex.Observer, fp *fakePool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := rand.Intn(20); i >= 0; i-- {
				emit(ctx, obs)
			}
			fp.tick()
		}
	}
}

// emit reports one synthetic operation, sometimes with retries or a
// rolled back batch.
func emit(ctx context.Context, obs vectorindex.Observer) {
	op := operations[rand.Intn(len(operations))]
	table := tables[rand.Intn(len(tables))]
	ctx = obs.RequestIssued(ctx, op, table)

	var err error
	if rand.Float64() > 0.9 {
		err = failures[rand.Intn(len(failures))]
	}
	if vecerr.Retryable(err) || rand.Float64() > 0.97 {
		delay := 100 * time.Millisecond
		for attempt := 1; attempt <= 1+rand.Intn(3); attempt++ {
			obs.RetryAttempted(ctx, op, attempt, delay, vecerr.Transient("search", errors.New("database is locked")))
			delay *= 2
		}
	}
	if err != nil && (op == vectorindex.OpUpdateBatch || op == vectorindex.OpDeleteBatch || op == vectorindex.OpAddDocuments) {
		obs.BatchRolledBack(ctx, op, table, 1+rand.Intn(64), err)
	}

	elapsed := time.Duration(rand.ExpFloat64()*float64(20*time.Millisecond)) + time.Millisecond
	if op == vectorindex.OpAddDocuments {
		elapsed *= 10
	}
	obs.OperationFinished(ctx, op, table, elapsed, err)
}
