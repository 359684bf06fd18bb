// Package embeddings turns text into vectors for the index.
//
// Every provider implements Model. Providers are chosen at runtime by New:
// an OpenAI-compatible API through langchaingo, a HuggingFace
// text-embeddings-inference server over HTTP, or FastEmbed running ONNX
// models in-process (cgo builds only). New wraps the provider with a rate
// limiter when one is configured and always with OpenTelemetry metrics.
package embeddings
