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

// CreateTrace inserts a Trace and its ordered TraceInputItems in a single
// transaction, so a trace is never visible with a partial item list.
func (s *Store) CreateTrace(ctx context.Context, t model.Trace) (model.Trace, error) {
	toolsJSON, err := toJSON(t.Tools)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode tools", err)
	}
	toolChoiceJSON, err := toJSON(t.ToolChoice)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode tool_choice", err)
	}
	promptVarsJSON, err := toJSON(t.PromptVariables)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode prompt_variables", err)
	}
	metadataJSON, err := toJSON(t.TraceMetadata)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode trace_metadata", err)
	}
	responseSchemaJSON, err := toJSON(t.ResponseSchema)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode response_schema", err)
	}
	reasoningJSON, err := toJSON(t.Reasoning)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "encode reasoning", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "begin transaction", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		`INSERT INTO traces (project_id, implementation_id, path, model, started_at, completed_at, instructions, prompt,
			tools_json, tool_choice_json, prompt_tokens, completion_tokens, total_tokens, cached_tokens, reasoning_tokens,
			finish_reason, result, error, prompt_variables_json, http_trace_id, trace_metadata_json, temperature,
			max_tokens, response_schema_json, reasoning_json, system_fingerprint)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12),
		s.ph(13), s.ph(14), s.ph(15), s.ph(16), s.ph(17), s.ph(18), s.ph(19), s.ph(20), s.ph(21), s.ph(22), s.ph(23),
		s.ph(24), s.ph(25), s.ph(26))

	id, err := s.insertReturningIDTx(ctx, tx, query,
		t.ProjectID, nullInt64(t.ImplementationID), t.Path, t.Model, t.StartedAt, nullTime(t.CompletedAt),
		t.Instructions, t.Prompt, toolsJSON, toolChoiceJSON, nullInt(t.PromptTokens), nullInt(t.CompletionTokens),
		nullInt(t.TotalTokens), nullInt(t.CachedTokens), nullInt(t.ReasoningTokens), string(t.FinishReason),
		t.Result, t.Error, promptVarsJSON, nullInt64(t.HTTPTraceID), metadataJSON, nullFloat(t.Temperature),
		nullInt(t.MaxTokens), responseSchemaJSON, reasoningJSON, t.SystemFingerprint)
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "insert trace", err)
	}
	t.ID = id

	for i := range t.InputItems {
		t.InputItems[i].Position = i
		if err := s.insertInputItemTx(ctx, tx, id, t.InputItems[i]); err != nil {
			return model.Trace{}, apierr.Wrap(apierr.KindInternal, "insert trace_input_item", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "commit transaction", err)
	}
	return t, nil
}

func (s *Store) insertInputItemTx(ctx context.Context, tx *sql.Tx, traceID int64, item model.TraceInputItem) error {
	argsJSON, err := toJSON(item.Arguments)
	if err != nil {
		return err
	}
	resultJSON, err := toJSON(item.Result)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		`INSERT INTO trace_input_items (trace_id, position, type, role, content, call_id, name, arguments_json, result_json, media_url, media_data, mime_type)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12))
	_, err = tx.ExecContext(ctx, query,
		traceID, item.Position, string(item.Type), string(item.Role), item.Content, item.CallID, item.Name,
		argsJSON, resultJSON, item.MediaURL, item.MediaData, item.MimeType)
	return err
}

// insertReturningIDTx is insertReturningID's transaction-scoped twin.
func (s *Store) insertReturningIDTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	if s.dialect == "postgres" {
		var id int64
		if err := tx.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetTrace looks up a Trace along with its ordered TraceInputItems.
func (s *Store) GetTrace(ctx context.Context, id int64) (model.Trace, error) {
	t, err := s.scanTraceByID(ctx, id)
	if err != nil {
		return model.Trace{}, err
	}
	items, err := s.listInputItems(ctx, id)
	if err != nil {
		return model.Trace{}, err
	}
	t.InputItems = items
	return t, nil
}

func (s *Store) scanTraceByID(ctx context.Context, id int64) (model.Trace, error) {
	query := fmt.Sprintf(`SELECT %s FROM traces WHERE id = %s`, traceColumns, s.ph(1))
	return scanTrace(s.db.QueryRowContext(ctx, query, id))
}

const traceColumns = `id, project_id, implementation_id, path, model, started_at, completed_at, instructions, prompt,
	tools_json, tool_choice_json, prompt_tokens, completion_tokens, total_tokens, cached_tokens, reasoning_tokens,
	finish_reason, result, error, prompt_variables_json, http_trace_id, trace_metadata_json, temperature,
	max_tokens, response_schema_json, reasoning_json, system_fingerprint`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (model.Trace, error) {
	var t model.Trace
	var implID, httpTraceID sql.NullInt64
	var completedAt sql.NullTime
	var toolsJSON, toolChoiceJSON, promptVarsJSON, metadataJSON, responseSchemaJSON, reasoningJSON sql.NullString
	var promptTokens, completionTokens, totalTokens, cachedTokens, reasoningTokens, maxTokens sql.NullInt64
	var temperature sql.NullFloat64
	var finishReason string

	err := row.Scan(&t.ID, &t.ProjectID, &implID, &t.Path, &t.Model, &t.StartedAt, &completedAt, &t.Instructions, &t.Prompt,
		&toolsJSON, &toolChoiceJSON, &promptTokens, &completionTokens, &totalTokens, &cachedTokens, &reasoningTokens,
		&finishReason, &t.Result, &t.Error, &promptVarsJSON, &httpTraceID, &metadataJSON, &temperature,
		&maxTokens, &responseSchemaJSON, &reasoningJSON, &t.SystemFingerprint)
	if err == sql.ErrNoRows {
		return model.Trace{}, apierr.NotFound("trace not found")
	}
	if err != nil {
		return model.Trace{}, apierr.Wrap(apierr.KindInternal, "query trace", err)
	}

	t.ImplementationID = ptrFromNullInt64(implID)
	t.CompletedAt = ptrFromNullTime(completedAt)
	t.HTTPTraceID = ptrFromNullInt64(httpTraceID)
	t.PromptTokens = ptrFromNullInt(promptTokens)
	t.CompletionTokens = ptrFromNullInt(completionTokens)
	t.TotalTokens = ptrFromNullInt(totalTokens)
	t.CachedTokens = ptrFromNullInt(cachedTokens)
	t.ReasoningTokens = ptrFromNullInt(reasoningTokens)
	t.MaxTokens = ptrFromNullInt(maxTokens)
	t.Temperature = ptrFromNullFloat(temperature)
	t.FinishReason = model.FinishReason(finishReason)
	_ = fromJSON(toolsJSON, &t.Tools)
	_ = fromJSON(toolChoiceJSON, &t.ToolChoice)
	_ = fromJSON(promptVarsJSON, &t.PromptVariables)
	_ = fromJSON(metadataJSON, &t.TraceMetadata)
	_ = fromJSON(responseSchemaJSON, &t.ResponseSchema)
	_ = fromJSON(reasoningJSON, &t.Reasoning)
	return t, nil
}

func (s *Store) listInputItems(ctx context.Context, traceID int64) ([]model.TraceInputItem, error) {
	query := fmt.Sprintf(
		`SELECT position, type, role, content, call_id, name, arguments_json, result_json, media_url, media_data, mime_type
		 FROM trace_input_items WHERE trace_id = %s ORDER BY position`, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query trace_input_items", err)
	}
	defer rows.Close()

	var items []model.TraceInputItem
	for rows.Next() {
		var item model.TraceInputItem
		var itemType, role string
		var argsJSON, resultJSON sql.NullString
		if err := rows.Scan(&item.Position, &itemType, &role, &item.Content, &item.CallID, &item.Name,
			&argsJSON, &resultJSON, &item.MediaURL, &item.MediaData, &item.MimeType); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "scan trace_input_item", err)
		}
		item.Type = model.InputItemType(itemType)
		item.Role = model.Role(role)
		_ = fromJSON(argsJSON, &item.Arguments)
		_ = fromJSON(resultJSON, &item.Result)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListTracesByProject returns every Trace belonging to projectID with its
// prompt text only (no input items loaded), oldest first. Used by the
// grouping worker, which only needs Trace.Prompt plus identifying fields.
func (s *Store) ListTracesByProject(ctx context.Context, projectID int64) ([]model.Trace, error) {
	query := fmt.Sprintf(`SELECT %s FROM traces WHERE project_id = %s ORDER BY started_at`, traceColumns, s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query traces", err)
	}
	defer rows.Close()

	var out []model.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListUnmatchedTracesByPath returns every Trace in projectID at path with
// no implementation_id yet assigned, along with their input items, oldest
// first (§4.F step 1 LOADING).
func (s *Store) ListUnmatchedTracesByPath(ctx context.Context, projectID int64, path string) ([]model.Trace, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM traces WHERE project_id = %s AND path = %s AND implementation_id IS NULL ORDER BY started_at`,
		traceColumns, s.ph(1), s.ph(2))
	rows, err := s.db.QueryContext(ctx, query, projectID, path)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query unmatched traces", err)
	}
	defer rows.Close()

	var out []model.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := s.listInputItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].InputItems = items
	}
	return out, nil
}

// AssignTraceMatch records that a trace was matched to implementationID
// with the given placeholder bindings (I2: a matched trace always carries
// both an implementation id and prompt variables).
func (s *Store) AssignTraceMatch(ctx context.Context, traceID, implementationID int64, bindings map[string]string) error {
	bindingsJSON, err := toJSON(bindings)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, "encode prompt_variables", err)
	}
	query := fmt.Sprintf(
		`UPDATE traces SET implementation_id = %s, prompt_variables_json = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3))
	if _, err := s.db.ExecContext(ctx, query, implementationID, bindingsJSON, traceID); err != nil {
		return apierr.Wrap(apierr.KindInternal, "update trace match", err)
	}
	return nil
}
