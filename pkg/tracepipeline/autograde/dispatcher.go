// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package autograde schedules grader-execution jobs for traces that land
// on a Task with an EvaluationConfig (§4.G). Grading logic itself is out
// of scope; the dispatcher only decides whether a trace is sampled and
// fans out one job per configured grader.
package autograde

import (
	"context"
	"log/slog"
	"math/rand"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

// tracer emits spans around Dispatch. See ingest's tracer var for why
// this is a package-level otel.Tracer rather than a constructor
// dependency.
var tracer = otel.Tracer("github.com/kadirpekel/r4u-trace/pkg/tracepipeline/autograde")

// Job is one grader-execution request handed to a JobRunner.
type Job struct {
	Trace    model.Trace
	GraderID int64
}

// JobRunner executes a single grading job. The real grading logic lives
// outside this module; a no-op or logging runner is a legal default.
type JobRunner interface {
	Run(ctx context.Context, job Job)
}

// LoggingRunner is the default JobRunner: it logs the job instead of
// executing it, since actual grader execution is explicitly out of
// scope (spec.md Non-goals).
type LoggingRunner struct {
	Log *slog.Logger
}

func (r LoggingRunner) Run(ctx context.Context, job Job) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("auto-grading job scheduled", "trace_id", job.Trace.ID, "grader_id", job.GraderID)
}

// Dispatcher admits a sampled fraction of traces and schedules one job
// per configured grader id, running each in its own goroutine so
// dispatch never blocks the caller (§4.G "ordering: no inter-job
// ordering requirement").
type Dispatcher struct {
	runner JobRunner
	rand   func() float64
}

// NewDispatcher builds a Dispatcher. runner may be nil, in which case a
// LoggingRunner is used.
func NewDispatcher(runner JobRunner) *Dispatcher {
	if runner == nil {
		runner = LoggingRunner{}
	}
	return &Dispatcher{runner: runner, rand: rand.Float64}
}

// Dispatch admits trace with probability cfg.TraceEvaluationPercentage/100,
// decided once per call, and on admission schedules one job per grader id
// in cfg.GraderIDs (§4.G).
func (d *Dispatcher) Dispatch(ctx context.Context, trace model.Trace, cfg model.EvaluationConfig) {
	ctx, span := tracer.Start(ctx, "autograde.Dispatch",
		oteltrace.WithAttributes(
			attribute.Int64("trace_id", trace.ID),
			attribute.Float64("evaluation_percentage", cfg.TraceEvaluationPercentage),
		))
	defer span.End()

	if !d.admit(cfg.TraceEvaluationPercentage) {
		span.SetAttributes(attribute.Bool("admitted", false))
		return
	}
	span.SetAttributes(attribute.Bool("admitted", true), attribute.Int("grader_count", len(cfg.GraderIDs)))
	for _, graderID := range cfg.GraderIDs {
		job := Job{Trace: trace, GraderID: graderID}
		go d.runner.Run(ctx, job)
	}
}

// admit is the sampling gate: a single Bernoulli draw per call, at
// probability percentage/100. This is deliberately a plain random draw
// rather than the ratelimit package's multi-window counters - a rate
// limiter answers "how many events in a period", this question is "what
// fraction of events", and forcing the former to express the latter
// would need synthetic window/limit pairs with no natural meaning here.
func (d *Dispatcher) admit(percentage float64) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	return d.rand() < percentage/100
}
