// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the dialect-aware persistence layer for every entity in the
// trace pipeline. One Store wraps one *sql.DB; callers share the
// underlying connection across Stores via Pool.
type Store struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

// Open opens (or reuses, via pool) a connection for cfg and returns a
// Store with its schema already migrated.
func Open(ctx context.Context, pool *Pool, cfg *Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	db, err := pool.Get(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, dialect: cfg.Dialect()}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// NewStore wraps an already-open *sql.DB without migrating it. Used by
// tests that open an in-memory sqlite database directly and call Migrate
// themselves.
func NewStore(db *sql.DB, dialect string) *Store {
	return &Store{db: db, dialect: dialect}
}

// Migrate creates the schema if it doesn't already exist. Exposed for
// tests outside this package that build a Store via NewStore.
func (s *Store) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

// ph renders the n-th (1-based) positional placeholder for the store's
// dialect: "$n" for postgres, "?" for mysql and sqlite.
func (s *Store) ph(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// insertReturningID executes an INSERT and returns the generated id,
// using RETURNING on postgres (whose driver doesn't support
// sql.Result.LastInsertId) and LastInsertId elsewhere.
func (s *Store) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect == "postgres" {
		var id int64
		if err := s.db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) idColumn() string {
	switch s.dialect {
	case "postgres":
		return "BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "BIGINT PRIMARY KEY AUTO_INCREMENT"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *Store) migrate(ctx context.Context) error {
	id := s.idColumn()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS projects (
			id %s,
			name VARCHAR(255) NOT NULL UNIQUE
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tasks (
			id %s,
			project_id BIGINT NOT NULL,
			path VARCHAR(1024) NOT NULL DEFAULT '',
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			production_version_id BIGINT
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_tasks_project_id ON tasks(project_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS implementations (
			id %s,
			task_id BIGINT NOT NULL,
			prompt TEXT NOT NULL,
			model VARCHAR(255) NOT NULL,
			temperature DOUBLE PRECISION,
			max_output_tokens INTEGER NOT NULL DEFAULT 0,
			tools_json TEXT,
			tool_choice_json TEXT,
			reasoning_json TEXT,
			is_temp BOOLEAN NOT NULL DEFAULT FALSE
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_implementations_task_id ON implementations(task_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS http_traces (
			id %s,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			status_code INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			request BLOB,
			request_headers_json TEXT,
			response BLOB,
			response_headers_json TEXT,
			request_method VARCHAR(16) NOT NULL DEFAULT '',
			request_path VARCHAR(2048) NOT NULL DEFAULT '',
			metadata_json TEXT,
			call_path VARCHAR(1024) NOT NULL DEFAULT ''
		)`, id),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS traces (
			id %s,
			project_id BIGINT NOT NULL,
			implementation_id BIGINT,
			path VARCHAR(1024) NOT NULL DEFAULT '',
			model VARCHAR(255) NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP,
			instructions TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			tools_json TEXT,
			tool_choice_json TEXT,
			prompt_tokens INTEGER,
			completion_tokens INTEGER,
			total_tokens INTEGER,
			cached_tokens INTEGER,
			reasoning_tokens INTEGER,
			finish_reason VARCHAR(32) NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			prompt_variables_json TEXT,
			http_trace_id BIGINT,
			trace_metadata_json TEXT,
			temperature DOUBLE PRECISION,
			max_tokens INTEGER,
			response_schema_json TEXT,
			reasoning_json TEXT,
			system_fingerprint VARCHAR(255) NOT NULL DEFAULT ''
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_traces_project_id ON traces(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_implementation_id ON traces(implementation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_started_at ON traces(started_at)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS trace_input_items (
			id %s,
			trace_id BIGINT NOT NULL,
			position INTEGER NOT NULL,
			type VARCHAR(32) NOT NULL,
			role VARCHAR(32) NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			call_id VARCHAR(255) NOT NULL DEFAULT '',
			name VARCHAR(255) NOT NULL DEFAULT '',
			arguments_json TEXT,
			result_json TEXT,
			media_url VARCHAR(2048) NOT NULL DEFAULT '',
			media_data TEXT NOT NULL DEFAULT '',
			mime_type VARCHAR(255) NOT NULL DEFAULT ''
		)`, id),
		`CREATE INDEX IF NOT EXISTS idx_trace_input_items_trace_id ON trace_input_items(trace_id)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS evaluation_configs (
			id %s,
			task_id BIGINT NOT NULL UNIQUE,
			grader_ids_json TEXT,
			trace_evaluation_percentage DOUBLE PRECISION NOT NULL DEFAULT 0
		)`, id),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// --- shared JSON/null helpers used by every entity's CRUD file ---

func toJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []any:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func fromJSON(ns sql.NullString, out any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func ptrFromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func ptrFromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func ptrFromNullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func ptrFromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time
	return &v
}
