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

// CreateTask inserts a new Task.
func (s *Store) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	query := fmt.Sprintf(
		`INSERT INTO tasks (project_id, path, name, description, production_version_id) VALUES (%s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	id, err := s.insertReturningID(ctx, query, t.ProjectID, t.Path, t.Name, t.Description, nullInt64(t.ProductionVersionID))
	if err != nil {
		return model.Task{}, apierr.Wrap(apierr.KindInternal, "insert task", err)
	}
	t.ID = id
	return t, nil
}

// GetTask looks up a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, project_id, path, name, description, production_version_id FROM tasks WHERE id = %s`, s.ph(1))
	return s.scanTask(s.db.QueryRowContext(ctx, query, id))
}

// FindTaskByPath looks up a task by its (project, path) pair. Path is
// optional on a Task, so callers must not rely on this for path-less tasks.
func (s *Store) FindTaskByPath(ctx context.Context, projectID int64, path string) (model.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, project_id, path, name, description, production_version_id FROM tasks WHERE project_id = %s AND path = %s`,
		s.ph(1), s.ph(2))
	return s.scanTask(s.db.QueryRowContext(ctx, query, projectID, path))
}

func (s *Store) scanTask(row *sql.Row) (model.Task, error) {
	var t model.Task
	var prodVersion sql.NullInt64
	err := row.Scan(&t.ID, &t.ProjectID, &t.Path, &t.Name, &t.Description, &prodVersion)
	if err == sql.ErrNoRows {
		return model.Task{}, apierr.NotFound("task not found")
	}
	if err != nil {
		return model.Task{}, apierr.Wrap(apierr.KindInternal, "query task", err)
	}
	t.ProductionVersionID = ptrFromNullInt64(prodVersion)
	return t, nil
}

// ListTasksByProject returns every Task in a project, ordered by id.
func (s *Store) ListTasksByProject(ctx context.Context, projectID int64) ([]model.Task, error) {
	query := fmt.Sprintf(
		`SELECT id, project_id, path, name, description, production_version_id FROM tasks WHERE project_id = %s ORDER BY id`,
		s.ph(1))
	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "query tasks", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var prodVersion sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Path, &t.Name, &t.Description, &prodVersion); err != nil {
			return nil, apierr.Wrap(apierr.KindInternal, "scan task", err)
		}
		t.ProductionVersionID = ptrFromNullInt64(prodVersion)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetProductionVersion points a Task's production_version_id at one of its
// own Implementations (I5).
func (s *Store) SetProductionVersion(ctx context.Context, taskID, implementationID int64) error {
	impl, err := s.GetImplementation(ctx, implementationID)
	if err != nil {
		return err
	}
	if impl.TaskID != taskID {
		return apierr.BadRequest("implementation %d does not belong to task %d", implementationID, taskID)
	}
	query := fmt.Sprintf(`UPDATE tasks SET production_version_id = %s WHERE id = %s`, s.ph(1), s.ph(2))
	if _, err := s.db.ExecContext(ctx, query, implementationID, taskID); err != nil {
		return apierr.Wrap(apierr.KindInternal, "update task production version", err)
	}
	return nil
}
