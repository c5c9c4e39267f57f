// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package observability wires OpenTelemetry tracing around ingestion,
// grouping, and auto-grading dispatch, trimmed from the teacher's
// pkg/observability manager/recorder split to the single concern this
// domain needs: per-request spans. Metrics are covered separately by
// pkg/tracepipeline/httpapi's direct prometheus/client_golang counters,
// since an OTel metrics pipeline on top of that would just re-measure
// the same HTTP requests through a second abstraction.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether tracing is enabled and how spans are sampled,
// following the shape of the teacher's observability.Config.Tracing
// section.
type Config struct {
	TracingEnabled bool
	ServiceName    string
	SamplingRate   float64
}

// NewTracerProvider builds a TracerProvider and installs it as the
// process-wide default via otel.SetTracerProvider, so every package that
// calls otel.Tracer(name) - exactly the pattern
// pkg/tracepipeline/ingest, pkg/tracepipeline/grouping, and
// pkg/tracepipeline/autograde each use - picks it up without any
// constructor wiring. Returns a shutdown func that flushes and closes the
// exporter; callers defer it from main.
//
// When tracing is disabled, the global no-op provider already installed
// by the otel package is left in place and shutdown is a no-op.
func NewTracerProvider(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.TracingEnabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout span exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer from whatever provider is currently
// installed - the no-op default, or the one NewTracerProvider installed.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
