// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package ingest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/grouping"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/parsers"
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

func TestIngest_PersistsUnmatchedTraceAndEnqueues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := grouping.NewQueue(10, nil)
	svc := NewService(s, q, nil, nil)

	rec := parsers.TraceRecord{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Path:      "/chat",
		Input: []parsers.InputItemRecord{
			{Type: model.ItemMessage, Role: model.RoleSystem, Content: "You are a helpful assistant"},
			{Type: model.ItemMessage, Role: model.RoleUser, Content: "hi"},
		},
		Result: "hello!",
	}

	trace, err := svc.Ingest(ctx, rec, nil)
	require.NoError(t, err)
	require.NotZero(t, trace.ID)
	require.Nil(t, trace.ImplementationID)
	require.Len(t, trace.InputItems, 2)
	require.Equal(t, 0, trace.InputItems[0].Position)
	require.Equal(t, 1, trace.InputItems[1].Position)

	require.Equal(t, 1, q.Len())
}

func TestIngest_MatchesExistingImplementation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := grouping.NewQueue(10, nil)
	svc := NewService(s, q, nil, nil)

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, model.Task{ProjectID: proj.ID, Name: "greeter"})
	require.NoError(t, err)
	impl, err := s.CreateImplementation(ctx, model.Implementation{
		TaskID:          task.ID,
		Prompt:          "Say hello to {{var_0}}",
		Model:           "gpt-4o",
		MaxOutputTokens: 256,
	})
	require.NoError(t, err)

	rec := parsers.TraceRecord{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Input: []parsers.InputItemRecord{
			{Type: model.ItemMessage, Role: model.RoleSystem, Content: "Say hello to Alice"},
		},
	}

	trace, err := svc.Ingest(ctx, rec, nil)
	require.NoError(t, err)
	require.NotNil(t, trace.ImplementationID)
	require.Equal(t, impl.ID, *trace.ImplementationID)
	require.Equal(t, map[string]string{"var_0": "Alice"}, trace.PromptVariables)
}

func TestIngest_DispatchesGradingWhenConfigured(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := grouping.NewQueue(10, nil)

	dispatched := false
	var gotPercentage float64
	disp := dispatcherFunc(func(_ context.Context, _ model.Trace, cfg model.EvaluationConfig) {
		dispatched = true
		gotPercentage = cfg.TraceEvaluationPercentage
	})
	svc := NewService(s, q, disp, nil)

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, model.Task{ProjectID: proj.ID, Name: "greeter"})
	require.NoError(t, err)
	impl, err := s.CreateImplementation(ctx, model.Implementation{
		TaskID: task.ID, Prompt: "Say hello to {{var_0}}", Model: "gpt-4o", MaxOutputTokens: 256,
	})
	require.NoError(t, err)
	_, err = s.UpsertEvaluationConfig(ctx, model.EvaluationConfig{
		TaskID: task.ID, GraderIDs: []int64{1}, TraceEvaluationPercentage: 100,
	})
	require.NoError(t, err)

	rec := parsers.TraceRecord{
		Project:   "acme",
		Model:     "gpt-4o",
		StartedAt: time.Now(),
		Input: []parsers.InputItemRecord{
			{Type: model.ItemMessage, Role: model.RoleSystem, Content: "Say hello to Alice"},
		},
	}
	trace, err := svc.Ingest(ctx, rec, nil)
	require.NoError(t, err)
	require.Equal(t, impl.ID, *trace.ImplementationID)
	require.True(t, dispatched)
	require.Equal(t, float64(100), gotPercentage)
}

type dispatcherFunc func(ctx context.Context, trace model.Trace, cfg model.EvaluationConfig)

func (f dispatcherFunc) Dispatch(ctx context.Context, trace model.Trace, cfg model.EvaluationConfig) {
	f(ctx, trace, cfg)
}
