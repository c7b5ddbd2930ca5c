// Package telemetry provides the ambient logging, metrics, and tracing
// used throughout the sidecar: structured logging via zap, metrics
// collection via prometheus/client_golang behind the collaborators.
// MetricsSink interface, and distributed tracing via the OpenTelemetry SDK
// exporting through OTLP/gRPC.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log *zap.Logger = zap.NewNop()
)

// ConfigureLogging installs the process-wide logger. level is parsed with
// zapcore's usual names ("debug", "info", "warn", "error"); an unrecognized
// level defaults to info. json selects JSON encoding over caddy's
// human-readable console encoding for local development.
func ConfigureLogging(level string, json bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !json {
		cfg = zap.NewDevelopmentConfig()
	}
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level.SetLevel(zapLevelDefault().Level())
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	log = l
	mu.Unlock()
	return l, nil
}

func zapLevelDefault() zap.AtomicLevel {
	return zap.NewAtomicLevel()
}

// Log returns the process-wide logger. Safe to call before
// ConfigureLogging; it returns a no-op logger until configured, matching
// caddy's Log() convention of always returning a usable logger.
func Log() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Named returns a child logger scoped to name, for per-component logging
// (e.g. telemetry.Named("balancer")).
func Named(name string) *zap.Logger {
	return Log().Named(name)
}
