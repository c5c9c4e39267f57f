// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package ingest implements the trace ingestion service: persisting a
// normalized trace, attempting best-effort linkage to an existing
// Implementation, enqueueing background grouping, and dispatching
// sampling-gated auto-grading.
package ingest

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/parsers"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/template"
)

// tracer emits spans around Ingest. It resolves to a no-op tracer until
// observability.NewTracerProvider installs a real provider from main, so
// this package never needs a constructor-injected dependency on it.
var tracer = otel.Tracer("github.com/kadirpekel/r4u-trace/pkg/tracepipeline/ingest")

// GradingDispatcher schedules auto-grading jobs for a matched trace. The
// concrete implementation lives in pkg/tracepipeline/autograde; this
// interface exists so ingest doesn't need to import it back (grading
// logic itself is out of scope here, only the trigger is).
type GradingDispatcher interface {
	Dispatch(ctx context.Context, trace model.Trace, cfg model.EvaluationConfig)
}

// Service is the trace ingestion entrypoint (§4.D).
type Service struct {
	store   *storage.Store
	queue   *grouping.Queue
	grading GradingDispatcher
	log     *slog.Logger
}

// NewService builds a Service. grading may be nil, in which case
// auto-grading dispatch is skipped entirely.
func NewService(store *storage.Store, queue *grouping.Queue, grading GradingDispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, queue: queue, grading: grading, log: logger}
}

// Ingest persists rec as a Trace, attempts matcher-based linkage,
// enqueues grouping, and dispatches auto-grading - in that order, with
// every step after persistence best-effort (§4.D "order of effects").
func (s *Service) Ingest(ctx context.Context, rec parsers.TraceRecord, httpTraceID *int64) (model.Trace, error) {
	ctx, span := tracer.Start(ctx, "ingest.Ingest",
		oteltrace.WithAttributes(
			attribute.String("project", rec.Project),
			attribute.String("model", rec.Model),
		))
	defer span.End()

	project, err := s.store.GetOrCreateProject(ctx, rec.Project)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "resolve project", err)
	}

	trace := buildTrace(rec, project.ID, httpTraceID)

	trace, err = s.store.CreateTrace(ctx, trace)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "persist trace", err)
	}
	span.SetAttributes(attribute.Int64("trace_id", trace.ID))

	if trace.ImplementationID == nil {
		s.attemptMatch(ctx, &trace, project.ID)
	}

	s.enqueueGrouping(trace)
	s.dispatchGrading(ctx, trace)

	return trace, nil
}

// buildTrace maps a parsed TraceRecord onto a persistable model.Trace,
// assigning contiguous 0-based positions to its input items (I4).
func buildTrace(rec parsers.TraceRecord, projectID int64, httpTraceID *int64) model.Trace {
	items := make([]model.TraceInputItem, len(rec.Input))
	for i, in := range rec.Input {
		items[i] = model.TraceInputItem{
			Position:  i,
			Type:      in.Type,
			Role:      in.Role,
			Content:   in.Content,
			CallID:    in.CallID,
			Name:      in.Name,
			Arguments: in.Arguments,
			Result:    in.Result,
		}
	}

	return model.Trace{
		ProjectID:         projectID,
		ImplementationID:  rec.ImplementationID,
		Path:              rec.Path,
		Model:             rec.Model,
		StartedAt:         rec.StartedAt,
		CompletedAt:       rec.CompletedAt,
		Instructions:      rec.Instructions,
		Prompt:            rec.Prompt,
		InputItems:        items,
		Tools:             rec.Tools,
		ToolChoice:        rec.ToolChoice,
		PromptTokens:      rec.PromptTokens,
		CompletionTokens:  rec.CompletionTokens,
		TotalTokens:       rec.TotalTokens,
		CachedTokens:      rec.CachedTokens,
		ReasoningTokens:   rec.ReasoningTokens,
		FinishReason:      rec.FinishReason,
		Result:            rec.Result,
		Error:             rec.Error,
		HTTPTraceID:       httpTraceID,
		TraceMetadata:     rec.TraceMetadata,
		Temperature:       rec.Temperature,
		MaxTokens:         rec.MaxTokens,
		ResponseSchema:    rec.ResponseSchema,
		Reasoning:         rec.Reasoning,
		SystemFingerprint: rec.SystemFingerprint,
	}
}

// attemptMatch runs the matcher against every candidate Implementation in
// stable id order, stopping at the first hit (§4.D step 4). When nothing
// matches, the trace stays unmatched; a storage error is logged at warn
// and swallowed. Neither case fails ingestion.
func (s *Service) attemptMatch(ctx context.Context, trace *model.Trace, projectID int64) {
	instructions, ok := model.ExtractInstructions(trace.InputItems)
	if !ok {
		return
	}

	candidates, err := s.store.ListImplementationsByProjectAndModel(ctx, projectID, trace.Model)
	if err != nil {
		s.log.Warn("matching lookup failed, trace remains unmatched", "trace_id", trace.ID, "error", err)
		return
	}

	for _, impl := range candidates {
		matched, bindings := template.Match(impl.Prompt, instructions)
		if !matched {
			continue
		}
		if err := s.store.AssignTraceMatch(ctx, trace.ID, impl.ID, bindings); err != nil {
			s.log.Warn("failed to persist trace match", "trace_id", trace.ID, "implementation_id", impl.ID, "error", err)
			return
		}
		trace.ImplementationID = &impl.ID
		trace.PromptVariables = bindings
		return
	}
}

// enqueueGrouping is fire-and-forget: Queue.Enqueue never blocks and
// never returns an error, so there's nothing to swallow beyond what the
// queue already logs on a full channel.
func (s *Service) enqueueGrouping(trace model.Trace) {
	if s.queue == nil {
		return
	}
	s.queue.Enqueue(trace.ProjectID, trace.Path, trace.ID)
}

// dispatchGrading schedules auto-grading for trace's matched Task, if
// any, gated by that Task's EvaluationConfig and its sampling rate
// (§4.G). Absence of an EvaluationConfig, or any lookup failure, is
// swallowed - grading is strictly optional.
func (s *Service) dispatchGrading(ctx context.Context, trace model.Trace) {
	if s.grading == nil || trace.ImplementationID == nil {
		return
	}

	impl, err := s.store.GetImplementation(ctx, *trace.ImplementationID)
	if err != nil {
		s.log.Warn("grading dispatch: implementation lookup failed", "trace_id", trace.ID, "error", err)
		return
	}

	cfg, err := s.store.GetEvaluationConfigByTask(ctx, impl.TaskID)
	if err != nil {
		if apierr.KindOf(err) != apierr.KindNotFound {
			s.log.Warn("grading dispatch: evaluation config lookup failed", "trace_id", trace.ID, "error", err)
		}
		return
	}

	s.grading.Dispatch(ctx, trace, cfg)
}
