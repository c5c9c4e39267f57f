// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/apierr"
	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

// CreateImplementation inserts a new Implementation.
func (s *Store) CreateImplementation(ctx context.Context, impl model.Implementation) (model.Implementation, error) {
	toolsJSON, err := toJSON(impl.Tools)
	if err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "encode tools", err)
	}
	toolChoiceJSON, err := toJSON(impl.ToolChoice)
	if err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "encode tool_choice", err)
	}
	reasoningJSON, err := toJSON(impl.Reasoning)
	if err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "encode reasoning", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO implementations (task_id, prompt, model, temperature, max_output_tokens, tools_json, tool_choice_json, reasoning_json, is_temp)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))
	id, err := s.insertReturningID(ctx, query,
		impl.TaskID, impl.Prompt, impl.Model, nullFloat(impl.Temperature), impl.MaxOutputTokens,
		toolsJSON, toolChoiceJSON, reasoningJSON, impl.Temp)
	if err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "insert implementation", err)
	}
	impl.ID = id
	return impl, nil
}

// GetImplementation looks up an Implementation by id.
func (s *Store) GetImplementation(ctx context.Context, id int64) (model.Implementation, error) {
	query := fmt.Sprintf(
		`SELECT id, task_id, prompt, model, temperature, max_output_tokens, tools_json, tool_choice_json, reasoning_json, is_temp
		 FROM implementations WHERE id = %s`, s.ph(1))
	return s.scanImplementation(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) scanImplementation(row *sql.Row) (model.Implementation, error) {
	var impl model.Implementation
	var temperature sql.NullFloat64
	var toolsJSON, toolChoiceJSON, reasoningJSON sql.NullString

	err := row.Scan(&impl.ID, &impl.TaskID, &impl.Prompt, &impl.Model, &temperature, &impl.MaxOutputTokens,
		&toolsJSON, &toolChoiceJSON, &reasoningJSON, &impl.Temp)
	if err == sql.ErrNoRows {
		return model.Implementation{}, apierr.NotFound("implementation not found")
	}
	if err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "query implementation", err)
	}

	impl.Temperature = ptrFromNullFloat(temperature)
	if err := fromJSON(toolsJSON, &impl.Tools); err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "decode tools", err)
	}
	if err := fromJSON(toolChoiceJSON, &impl.ToolChoice); err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "decode tool_choice", err)
	}
	if err := fromJSON(reasoningJSON, &impl.Reasoning); err != nil {
		return model.Implementation{}, apierr.Wrap(apierr.KindInternal, "decode reasoning", err)
	}
	return impl, nil
}

// ListImplementationsByProjectAndModel returns every Implementation whose
// Task belongs to projectID and whose model matches modelName, in stable
// id order (§4.D step 4: "candidate Implementations are traversed in
// stable id order").
func (s *Store) ListImplementationsByProjectAndModel(ctx context.Context, projectID int64, modelName string) ([]model.Implementation, error) {
	query := fmt.Sprintf(
		`SELECT i.id, i.task_id, i.prompt, i.model, i.temperature, i.max_output_tokens, i.tools_json, i.tool_choice_json, i.reasoning_json, i.is_temp
		 FROM implementations i
		 JOIN tasks t ON t.id = i.task_id
		 WHERE t.project_id = %s AND i.model = %s
		 ORDER BY i.id`, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, query, projectID, modelName)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query implementations", err)
	}
	defer rows.Close()

	var out []model.Implementation
	for rows.Next() {
		var impl model.Implementation
		var temperature sql.NullFloat64
		var toolsJSON, toolChoiceJSON, reasoningJSON sql.NullString
		if err := rows.Scan(&impl.ID, &impl.TaskID, &impl.Prompt, &impl.Model, &temperature, &impl.MaxOutputTokens,
			&toolsJSON, &toolChoiceJSON, &reasoningJSON, &impl.Temp); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "scan implementation", err)
		}
		impl.Temperature = ptrFromNullFloat(temperature)
		_ = fromJSON(toolsJSON, &impl.Tools)
		_ = fromJSON(toolChoiceJSON, &impl.ToolChoice)
		_ = fromJSON(reasoningJSON, &impl.Reasoning)
		out = append(out, impl)
	}
	return out, rows.Err()
}

// ListImplementationsByTask returns every Implementation of a Task, newest last.
func (s *Store) ListImplementationsByTask(ctx context.Context, taskID int64) ([]model.Implementation, error) {
	query := fmt.Sprintf(
		`SELECT id, task_id, prompt, model, temperature, max_output_tokens, tools_json, tool_choice_json, reasoning_json, is_temp
		 FROM implementations WHERE task_id = %s ORDER BY id`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query implementations", err)
	}
	defer rows.Close()

	var out []model.Implementation
	for rows.Next() {
		var impl model.Implementation
		var temperature sql.NullFloat64
		var toolsJSON, toolChoiceJSON, reasoningJSON sql.NullString
		if err := rows.Scan(&impl.ID, &impl.TaskID, &impl.Prompt, &impl.Model, &temperature, &impl.MaxOutputTokens,
			&toolsJSON, &toolChoiceJSON, &reasoningJSON, &impl.Temp); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "scan implementation", err)
		}
		impl.Temperature = ptrFromNullFloat(temperature)
		_ = fromJSON(toolsJSON, &impl.Tools)
		_ = fromJSON(toolChoiceJSON, &impl.ToolChoice)
		_ = fromJSON(reasoningJSON, &impl.Reasoning)
		out = append(out, impl)
	}
	return out, rows.Err()
}
