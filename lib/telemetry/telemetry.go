// Package telemetry sets up process wide logging and OpenTelemetry export.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"ppbverify/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry holds the providers installed by Setup, either may be nil when
// its endpoint is not configured.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Setup installs global tracer and meter providers exporting to the
// collectors named in config.
func Setup(ctx context.Context, serviceName, version string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	r, err := newResource(serviceName, version)
	if err != nil {
		return Telemetry{}, err
	}

	var out Telemetry
	if config.Otlp.Traces.configured() {
		out.TracerProvider, err = newTraceProvider(ctx, r, config.Otlp.Traces)
		if err != nil {
			return Telemetry{}, fmt.Errorf("trace provider: %w", err)
		}
		otel.SetTracerProvider(out.TracerProvider)
	}
	if config.Otlp.Metrics.configured() {
		interval := 5 * time.Second
		if config.Otlp.MetricInterval != "" {
			interval, err = time.ParseDuration(config.Otlp.MetricInterval)
			if err != nil {
				return Telemetry{}, fmt.Errorf("metric interval: %w", err)
			}
		}
		out.MeterProvider, err = newMetricProvider(ctx, r, config.Otlp.Metrics, interval)
		if err != nil {
			return Telemetry{}, fmt.Errorf("meter provider: %w", err)
		}
		otel.SetMeterProvider(out.MeterProvider)
	}
	return out, nil
}

// SetupFromFile reads a json5 telemetry config (merged with its .local
// sibling) and calls Setup with it.
func SetupFromFile(ctx context.Context, serviceName, version, path string) (Telemetry, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil {
		return Telemetry{}, fmt.Errorf("read telemetry config: %w", err)
	}
	return Setup(ctx, serviceName, version, config)
}

// ParseLevel accepts the level names used in the environment, WARNING
// included.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger builds a logger writing json or text records to w.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// InitSlog installs the default logger on stderr.
func InitSlog(level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	logger := NewLogger(os.Stderr, lvl, format)
	slog.SetDefault(logger)
	return logger, err
}
