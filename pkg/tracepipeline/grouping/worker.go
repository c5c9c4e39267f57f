// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package grouping

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/template"
)

// tracer emits spans around performGrouping. See ingest's tracer var for
// why this is a package-level otel.Tracer rather than a constructor
// dependency.
var tracer = otel.Tracer("github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping")

// Namer derives a Task's name and description from its seed template.
// The zero value is not usable; use NewWorker's default, which never
// calls out to anything external (real LLM-backed naming is "outside
// the critical path" per spec and left as a seam here, not wired to a
// live model, since executing LLM calls is explicitly out of scope).
type Namer interface {
	Name(template string) (name, description string)
}

// fallbackNamer derives a short, deterministic name/description from the
// template's own text, used whenever no richer Namer is supplied.
type fallbackNamer struct{}

func (fallbackNamer) Name(tpl string) (string, string) {
	return fallbackTaskName(tpl), "Auto-discovered task grouping"
}

// fallbackTaskName takes the first few meaningful words of a template's
// literal text as its name, collapsing placeholders out of the way.
func fallbackTaskName(tpl string) string {
	var b strings.Builder
	for _, tok := range strings.Fields(tpl) {
		if strings.Contains(tok, "{{") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
		if len(b.String()) > 60 {
			break
		}
	}
	if b.Len() == 0 {
		return "Untitled task"
	}
	return b.String()
}

// Config tunes the worker's clustering thresholds (§4.F).
type Config struct {
	MinClusterSize         int // minimum unmatched traces before clustering is attempted
	MinMatchingTraces      int // minimum traces with extractable prompts, and group()'s m
	MinSegmentWords        int // k: minimum literal anchor length in word tokens
	DefaultMaxOutputTokens int
}

// DefaultConfig mirrors the original service's defaults.
func DefaultConfig() Config {
	return Config{
		MinClusterSize:         2,
		MinMatchingTraces:      2,
		MinSegmentWords:        3,
		DefaultMaxOutputTokens: 1000,
	}
}

// Worker is the single cooperative consumer of a Queue (§4.F). It must
// not process two requests for the same (project_id, path) concurrently;
// this implementation never tries, by construction, since Run drains the
// queue one request at a time.
type Worker struct {
	queue *Queue
	store *storage.Store
	cfg   Config
	namer Namer
	log   *slog.Logger
}

// NewWorker builds a Worker. namer may be nil, in which case the
// deterministic fallback namer is used for every cluster.
func NewWorker(queue *Queue, store *storage.Store, cfg Config, namer Namer, logger *slog.Logger) *Worker {
	if namer == nil {
		namer = fallbackNamer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{queue: queue, store: store, cfg: cfg, namer: namer, log: logger}
}

// Run drains the queue until ctx is cancelled, processing one request at
// a time. It recovers from panics in request processing so one bad
// request cannot take the worker down (§4.F "uncaught exceptions
// log-and-continue, never kill the worker").
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("grouping worker started")
	w.queue.setWorkerAlive(true)
	defer w.queue.setWorkerAlive(false)
	defer w.log.Info("grouping worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.queue.dequeue():
			w.processSafely(ctx, req)
		}
	}
}

func (w *Worker) processSafely(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("grouping worker recovered from panic", "trace_id", req.TraceID, "panic", r)
		}
	}()
	w.process(ctx, req)
}

func (w *Worker) process(ctx context.Context, req Request) {
	if w.queue.isSuperseded(req) {
		w.log.Info("skipping superseded grouping request", "trace_id", req.TraceID, "project_id", req.ProjectID, "path", req.Path)
		return
	}

	start := time.Now()
	result, err := w.performGrouping(ctx, req.ProjectID, req.Path)
	if err != nil {
		w.log.Error("grouping request failed", "trace_id", req.TraceID, "error", err)
		return
	}

	if result != nil {
		w.log.Info("grouping request completed",
			"trace_id", req.TraceID, "tasks_created", result.TasksCreated,
			"traces_grouped", result.TracesGrouped, "elapsed", time.Since(start))
	} else {
		w.log.Info("grouping request produced no groups", "trace_id", req.TraceID, "elapsed", time.Since(start))
	}

	w.queue.clearIfCurrent(req)
}

// Result summarizes one performGrouping run.
type Result struct {
	TasksCreated  int
	TracesGrouped int
}

// performGrouping is the LOADING → PROMPT EXTRACTION → GROUPING →
// PERSISTING → ASSIGNING pipeline of §4.F.
func (w *Worker) performGrouping(ctx context.Context, projectID int64, path string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "grouping.performGrouping",
		oteltrace.WithAttributes(
			attribute.Int64("project_id", projectID),
			attribute.String("path", path),
		))
	defer span.End()

	// LOADING
	traces, err := w.store.ListUnmatchedTracesByPath(ctx, projectID, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load unmatched traces: %w", err)
	}
	if len(traces) < w.cfg.MinClusterSize {
		return nil, nil
	}

	// PROMPT EXTRACTION
	var prompts []string
	var tracesWithPrompt []model.Trace
	for _, t := range traces {
		if s, ok := model.ExtractInstructions(t.InputItems); ok && s != "" {
			prompts = append(prompts, s)
			tracesWithPrompt = append(tracesWithPrompt, t)
		}
	}
	if len(prompts) < w.cfg.MinMatchingTraces {
		return nil, nil
	}

	// GROUPING
	groups := template.Group(prompts, w.cfg.MinSegmentWords, w.cfg.MinMatchingTraces)
	if len(groups) == 0 {
		return nil, nil
	}

	// Deterministic cluster processing order.
	templates := make([]string, 0, len(groups))
	for tpl := range groups {
		templates = append(templates, tpl)
	}
	sort.Strings(templates)

	result := &Result{}
	for _, tpl := range templates {
		indices := groups[tpl]
		grouped, err := w.persistAndAssignCluster(ctx, projectID, path, tpl, indices, prompts, tracesWithPrompt)
		if err != nil {
			// One bad cluster doesn't abort the others (§4.F failure semantics).
			w.log.Error("failed to persist grouping cluster", "path", path, "error", err)
			continue
		}
		result.TasksCreated++
		result.TracesGrouped += grouped
	}

	span.SetAttributes(
		attribute.Int("tasks_created", result.TasksCreated),
		attribute.Int("traces_grouped", result.TracesGrouped),
	)
	return result, nil
}

// persistAndAssignCluster is the PERSISTING + ASSIGNING steps for one
// cluster: create a Task/Implementation from the representative trace,
// then re-match every clustered trace against the new template.
func (w *Worker) persistAndAssignCluster(
	ctx context.Context,
	projectID int64,
	path string,
	tpl string,
	indices []int,
	prompts []string,
	traces []model.Trace,
) (int, error) {
	if len(indices) == 0 {
		return 0, nil
	}
	representative := traces[indices[0]]

	name, description := w.namer.Name(tpl)

	task, err := w.store.CreateTask(ctx, model.Task{
		ProjectID:   projectID,
		Path:        path,
		Name:        name,
		Description: description,
	})
	if err != nil {
		return 0, fmt.Errorf("create task: %w", err)
	}

	maxTokens := w.cfg.DefaultMaxOutputTokens
	if representative.MaxTokens != nil {
		maxTokens = *representative.MaxTokens
	}

	impl, err := w.store.CreateImplementation(ctx, model.Implementation{
		TaskID:          task.ID,
		Prompt:          tpl,
		Model:           representative.Model,
		Temperature:     representative.Temperature,
		MaxOutputTokens: maxTokens,
		Tools:           representative.Tools,
		ToolChoice:      representative.ToolChoice,
		Reasoning:       representative.Reasoning,
		Temp:            true,
	})
	if err != nil {
		return 0, fmt.Errorf("create implementation: %w", err)
	}

	if err := w.store.SetProductionVersion(ctx, task.ID, impl.ID); err != nil {
		return 0, fmt.Errorf("set production version: %w", err)
	}

	grouped := 0
	for _, idx := range indices {
		ok, bindings := template.Match(tpl, prompts[idx])
		if !ok {
			continue
		}
		if err := w.store.AssignTraceMatch(ctx, traces[idx].ID, impl.ID, bindings); err != nil {
			w.log.Error("failed to assign trace to new implementation", "trace_id", traces[idx].ID, "error", err)
			continue
		}
		grouped++
	}
	return grouped, nil
}
