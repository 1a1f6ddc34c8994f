// Package observability provides the zap logger factory and the Prometheus
// metrics recorded by the sync pipelines.
package observability
