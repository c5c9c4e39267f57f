// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package grouping

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := storage.NewStore(db, "sqlite")
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedUnmatchedTrace(t *testing.T, s *storage.Store, ctx context.Context, projectID int64, path, instructions string) model.Trace {
	t.Helper()
	tr, err := s.CreateTrace(ctx, model.Trace{
		ProjectID: projectID,
		Path:      path,
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		InputItems: []model.TraceInputItem{
			{Type: model.ItemMessage, Role: model.RoleSystem, Content: instructions},
			{Type: model.ItemMessage, Role: model.RoleUser, Content: "hi"},
		},
	})
	require.NoError(t, err)
	return tr
}

func TestWorker_ClustersAndAssignsTraces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)

	seedUnmatchedTrace(t, s, ctx, proj.ID, "/chat", "You are a helpful assistant for Alice")
	seedUnmatchedTrace(t, s, ctx, proj.ID, "/chat", "You are a helpful assistant for Bob")

	q := NewQueue(10, nil)
	w := NewWorker(q, s, DefaultConfig(), nil, nil)

	result, err := w.performGrouping(ctx, proj.ID, "/chat")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 1, result.TasksCreated)
	require.Equal(t, 2, result.TracesGrouped)

	tasks, err := s.ListTasksByProject(ctx, proj.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].ProductionVersionID)

	remaining, err := s.ListUnmatchedTracesByPath(ctx, proj.ID, "/chat")
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestWorker_BelowMinClusterSizeIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)

	seedUnmatchedTrace(t, s, ctx, proj.ID, "/chat", "You are a helpful assistant for Alice")

	q := NewQueue(10, nil)
	w := NewWorker(q, s, DefaultConfig(), nil, nil)

	result, err := w.performGrouping(ctx, proj.ID, "/chat")
	require.NoError(t, err)
	require.Nil(t, result)

	tasks, err := s.ListTasksByProject(ctx, proj.ID)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestWorker_ProcessSkipsSupersededRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)

	tr1 := seedUnmatchedTrace(t, s, ctx, proj.ID, "/chat", "You are a helpful assistant for Alice")
	seedUnmatchedTrace(t, s, ctx, proj.ID, "/chat", "You are a helpful assistant for Bob")

	q := NewQueue(10, nil)
	w := NewWorker(q, s, DefaultConfig(), nil, nil)

	stale := Request{ProjectID: proj.ID, Path: "/chat", TraceID: tr1.ID, EnqueuedAt: time.Now()}
	q.Enqueue(proj.ID, "/chat", tr1.ID+1) // newer request supersedes stale

	w.process(ctx, stale)

	tasks, err := s.ListTasksByProject(ctx, proj.ID)
	require.NoError(t, err)
	require.Empty(t, tasks, "superseded request must not trigger clustering")
}

func TestWorker_RunReportsAliveWhileActive(t *testing.T) {
	s := newTestStore(t)
	q := NewQueue(10, nil)
	w := NewWorker(q, s, DefaultConfig(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.False(t, q.WorkerAlive())

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, q.WorkerAlive, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
	require.False(t, q.WorkerAlive())
}

func TestFallbackTaskName_StripsPlaceholders(t *testing.T) {
	name := fallbackTaskName("You are a helpful assistant for {{var_0}} located in {{var_1}}")
	require.Equal(t, "You are a helpful assistant for located in", name)
}
