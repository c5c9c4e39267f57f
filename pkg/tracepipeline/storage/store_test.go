// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db, "sqlite")
	require.NoError(t, s.migrate(context.Background()))
	return s
}

func TestGetOrCreateProject_CreatesOnceThenReuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	require.NotZero(t, p1.ID)

	p2, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, p1.ID, p2.ID)
}

func TestTaskAndImplementationCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)

	task, err := s.CreateTask(ctx, model.Task{ProjectID: proj.ID, Name: "greeter"})
	require.NoError(t, err)
	require.NotZero(t, task.ID)

	temp := 0.7
	impl, err := s.CreateImplementation(ctx, model.Implementation{
		TaskID:      task.ID,
		Prompt:      "Say hello to {{var_0}}",
		Model:       "gpt-4o",
		Temperature: &temp,
		Tools: []model.ToolDefinition{
			{Type: "function", Function: model.ToolFunction{Name: "lookup"}},
		},
	})
	require.NoError(t, err)
	require.NotZero(t, impl.ID)

	got, err := s.GetImplementation(ctx, impl.ID)
	require.NoError(t, err)
	require.Equal(t, "Say hello to {{var_0}}", got.Prompt)
	require.Equal(t, 0.7, *got.Temperature)
	require.Len(t, got.Tools, 1)
	require.Equal(t, "lookup", got.Tools[0].Function.Name)

	require.NoError(t, s.SetProductionVersion(ctx, task.ID, impl.ID))
	updated, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.ProductionVersionID)
	require.Equal(t, impl.ID, *updated.ProductionVersionID)
}

func TestCreateAndGetTrace_RoundTripsInputItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)

	trace := model.Trace{
		ProjectID: proj.ID,
		Model:     "gpt-4o",
		Result:    "hi there",
		InputItems: []model.TraceInputItem{
			{Type: model.ItemMessage, Role: model.RoleUser, Content: "hello"},
			{Type: model.ItemFunctionCall, CallID: "fc_1", Name: "lookup", Arguments: map[string]any{"q": "weather"}},
		},
	}
	created, err := s.CreateTrace(ctx, trace)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := s.GetTrace(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.InputItems, 2)
	require.Equal(t, 0, got.InputItems[0].Position)
	require.Equal(t, "hello", got.InputItems[0].Content)
	require.Equal(t, 1, got.InputItems[1].Position)
	require.Equal(t, "weather", got.InputItems[1].Arguments["q"])
}

func TestAssignTraceMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.GetOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, model.Task{ProjectID: proj.ID, Name: "greeter"})
	require.NoError(t, err)
	impl, err := s.CreateImplementation(ctx, model.Implementation{TaskID: task.ID, Prompt: "Say hello to {{var_0}}", Model: "gpt-4o"})
	require.NoError(t, err)
	trace, err := s.CreateTrace(ctx, model.Trace{ProjectID: proj.ID, Model: "gpt-4o", Prompt: "Say hello to Dave"})
	require.NoError(t, err)

	require.NoError(t, s.AssignTraceMatch(ctx, trace.ID, impl.ID, map[string]string{"var_0": "Dave"}))

	got, err := s.GetTrace(ctx, trace.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ImplementationID)
	require.Equal(t, impl.ID, *got.ImplementationID)
	require.Equal(t, "Dave", got.PromptVariables["var_0"])
}

func TestGetTask_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask(context.Background(), 9999)
	require.Error(t, err)
	require.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}
