// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package grouping implements the background grouping queue and worker:
// clustering a project's unmatched traces into new tasks and
// implementations, and back-assigning matched traces to them.
package grouping

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Request is one grouping trigger: a newly ingested trace nudging the
// worker to re-cluster its (project, path) scope.
type Request struct {
	ProjectID  int64
	Path       string
	TraceID    int64
	EnqueuedAt time.Time
}

type requestKey struct {
	ProjectID int64
	Path      string
}

// Queue is a bounded, explicitly-constructed request queue (§9 "global
// queue singleton" redesign: callers own one Queue instance and pass it
// around rather than reaching for a package-level singleton).
//
// It holds two parallel structures matching the original design: an
// ordered channel the worker drains, and a latestRequest map the worker
// re-reads before acting on a dequeued request, so a newer request for
// the same (project, path) always supersedes an older, still-queued one.
type Queue struct {
	ch       chan Request
	mu       sync.Mutex
	latest   map[requestKey]Request
	log      *slog.Logger
	workerUp atomic.Bool
}

// DefaultCapacity is the queue's default bound (§4.E).
const DefaultCapacity = 1000

// NewQueue constructs a Queue with the given bounded capacity. A
// capacity of 0 uses DefaultCapacity.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		ch:     make(chan Request, capacity),
		latest: make(map[requestKey]Request),
		log:    logger,
	}
}

// Enqueue submits a grouping request. It never blocks: if the queue is
// full, the request is dropped and logged (§4.E: "must never block the
// ingestion path").
func (q *Queue) Enqueue(projectID int64, path string, traceID int64) {
	req := Request{ProjectID: projectID, Path: path, TraceID: traceID, EnqueuedAt: time.Now()}
	key := requestKey{ProjectID: projectID, Path: path}

	q.mu.Lock()
	q.latest[key] = req
	q.mu.Unlock()

	select {
	case q.ch <- req:
		q.log.Info("enqueued grouping request", "trace_id", traceID, "project_id", projectID, "path", path)
	default:
		q.log.Error("grouping queue full, dropping request", "trace_id", traceID, "project_id", projectID, "path", path)
	}
}

// dequeue blocks on the channel; the caller (the worker's run loop)
// handles context cancellation around the select itself.
func (q *Queue) dequeue() <-chan Request {
	return q.ch
}

// isSuperseded reports whether req is no longer the latest request for
// its key - i.e. a newer request for the same (project_id, path) has
// since been enqueued.
func (q *Queue) isSuperseded(req Request) bool {
	key := requestKey{ProjectID: req.ProjectID, Path: req.Path}
	q.mu.Lock()
	defer q.mu.Unlock()
	latest, ok := q.latest[key]
	return ok && latest.TraceID != req.TraceID
}

// clearIfCurrent removes req's key from latestRequest only if it still
// holds exactly req (§4.F step 6 DONE).
func (q *Queue) clearIfCurrent(req Request) {
	key := requestKey{ProjectID: req.ProjectID, Path: req.Path}
	q.mu.Lock()
	defer q.mu.Unlock()
	if latest, ok := q.latest[key]; ok && latest.TraceID == req.TraceID {
		delete(q.latest, key)
	}
}

// Len returns the approximate number of requests currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// PendingKey identifies one (project, path) scope with an outstanding
// latest request.
type PendingKey struct {
	ProjectID int64
	Path      string
}

// PendingKeys returns the (project_id, path) keys with an outstanding
// latest request.
func (q *Queue) PendingKeys() []PendingKey {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]PendingKey, 0, len(q.latest))
	for k := range q.latest {
		keys = append(keys, PendingKey{ProjectID: k.ProjectID, Path: k.Path})
	}
	return keys
}

// setWorkerAlive marks whether a Worker is actively running Run() against
// this queue. Called by Worker.Run on entry/exit.
func (q *Queue) setWorkerAlive(alive bool) {
	q.workerUp.Store(alive)
}

// WorkerAlive reports whether a Worker is currently consuming this queue,
// for the /api/internal/queue debug endpoint.
func (q *Queue) WorkerAlive() bool {
	return q.workerUp.Load()
}
