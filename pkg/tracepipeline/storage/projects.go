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

// GetOrCreateProject returns the project named name, creating it on first
// reference (I1: projects are never destroyed and auto-create on first use).
func (s *Store) GetOrCreateProject(ctx context.Context, name string) (model.Project, error) {
	p, err := s.GetProjectByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if apierr.KindOf(err) != apierr.KindNotFound {
		return model.Project{}, err
	}

	query := fmt.Sprintf(`INSERT INTO projects (name) VALUES (%s)`, s.ph(1))
	id, err := s.insertReturningID(ctx, query, name)
	if err != nil {
		// Lost the race to create it concurrently; fetch the winner's row.
		if existing, getErr := s.GetProjectByName(ctx, name); getErr == nil {
			return existing, nil
		}
		return model.Project{}, apierr.Wrap(apierr.KindInternal, "insert project", err)
	}
	return model.Project{ID: id, Name: name}, nil
}

// GetProjectByName looks up a project by its unique name.
func (s *Store) GetProjectByName(ctx context.Context, name string) (model.Project, error) {
	query := fmt.Sprintf(`SELECT id, name FROM projects WHERE name = %s`, s.ph(1))
	var p model.Project
	err := s.db.QueryRowContext(ctx, query, name).Scan(&p.ID, &p.Name)
	if err == sql.ErrNoRows {
		return model.Project{}, apierr.NotFound("project %q not found", name)
	}
	if err != nil {
		return model.Project{}, apierr.Wrap(apierr.KindInternal, "query project", err)
	}
	return p, nil
}

// GetProject looks up a project by id.
func (s *Store) GetProject(ctx context.Context, id int64) (model.Project, error) {
	query := fmt.Sprintf(`SELECT id, name FROM projects WHERE id = %s`, s.ph(1))
	var p model.Project
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name)
	if err == sql.ErrNoRows {
		return model.Project{}, apierr.NotFound("project %d not found", id)
	}
	if err != nil {
		return model.Project{}, apierr.Wrap(apierr.KindInternal, "query project", err)
	}
	return p, nil
}
