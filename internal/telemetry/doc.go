// Package telemetry sets up OpenTelemetry tracing and metrics.
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	observer := vectorindex.NewTraceObserver(tel.TracerProvider())
//
// Spans and metrics are exported over OTLP (gRPC or HTTP/protobuf). A
// disabled configuration yields the global no-op providers. Exporter setup
// failures do not fail startup; the instance reports itself degraded.
package telemetry
