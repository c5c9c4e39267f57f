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

// UpsertEvaluationConfig inserts or replaces a Task's auto-grading policy.
func (s *Store) UpsertEvaluationConfig(ctx context.Context, cfg model.EvaluationConfig) (model.EvaluationConfig, error) {
	graderIDsJSON, err := toJSON(cfg.GraderIDs)
	if err != nil {
		return model.EvaluationConfig{}, apierr.Wrap(apierr.KindInternal, "encode grader_ids", err)
	}

	existing, err := s.GetEvaluationConfigByTask(ctx, cfg.TaskID)
	if err == nil {
		query := fmt.Sprintf(
			`UPDATE evaluation_configs SET grader_ids_json = %s, trace_evaluation_percentage = %s WHERE task_id = %s`,
			s.ph(1), s.ph(2), s.ph(3))
		if _, err := s.db.ExecContext(ctx, query, graderIDsJSON, cfg.TraceEvaluationPercentage, cfg.TaskID); err != nil {
			return model.EvaluationConfig{}, apierr.Wrap(apierr.KindInternal, "update evaluation_config", err)
		}
		cfg.ID = existing.ID
		return cfg, nil
	}
	if apierr.KindOf(err) != apierr.KindNotFound {
		return model.EvaluationConfig{}, err
	}

	query := fmt.Sprintf(
		`INSERT INTO evaluation_configs (task_id, grader_ids_json, trace_evaluation_percentage) VALUES (%s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3))
	id, err := s.insertReturningID(ctx, query, cfg.TaskID, graderIDsJSON, cfg.TraceEvaluationPercentage)
	if err != nil {
		return model.EvaluationConfig{}, apierr.Wrap(apierr.KindInternal, "insert evaluation_config", err)
	}
	cfg.ID = id
	return cfg, nil
}

// GetEvaluationConfigByTask looks up a Task's auto-grading policy.
func (s *Store) GetEvaluationConfigByTask(ctx context.Context, taskID int64) (model.EvaluationConfig, error) {
	query := fmt.Sprintf(
		`SELECT id, task_id, grader_ids_json, trace_evaluation_percentage FROM evaluation_configs WHERE task_id = %s`,
		s.ph(1))
	var cfg model.EvaluationConfig
	var graderIDsJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, taskID).Scan(&cfg.ID, &cfg.TaskID, &graderIDsJSON, &cfg.TraceEvaluationPercentage)
	if err == sql.ErrNoRows {
		return model.EvaluationConfig{}, apierr.NotFound("evaluation config for task %d not found", taskID)
	}
	if err != nil {
		return model.EvaluationConfig{}, apierr.Wrap(apierr.KindInternal, "query evaluation_config", err)
	}
	_ = fromJSON(graderIDsJSON, &cfg.GraderIDs)
	return cfg, nil
}
