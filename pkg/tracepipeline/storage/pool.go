// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Pool manages one *sql.DB per distinct DSN, so callers that construct a
// Store per request still share the same connection pool underneath.
type Pool struct {
	mu    sync.Mutex
	byDSN map[string]*sql.DB
}

// NewPool returns an empty connection pool manager.
func NewPool() *Pool {
	return &Pool{byDSN: make(map[string]*sql.DB)}
}

// Get returns the shared *sql.DB for cfg, opening and pinging it on first use.
func (p *Pool) Get(cfg *Config) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dsn := cfg.DSN()
	if db, ok := p.byDSN[dsn]; ok {
		return db, nil
	}

	db, err := p.open(cfg)
	if err != nil {
		return nil, err
	}
	p.byDSN[dsn] = db
	return db, nil
}

func (p *Pool) open(cfg *Config) (*sql.DB, error) {
	driverName := cfg.DriverName()
	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer; serialize on a single connection
	// rather than fight "database is locked" errors under the grouping
	// worker's concurrent writes.
	if driverName == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if driverName == "sqlite3" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("failed to set busy_timeout", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			slog.Warn("failed to enable foreign keys", "error", err)
		}
	}

	return db, nil
}

// Close closes every pooled connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for dsn, db := range p.byDSN {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", dsn, err)
		}
	}
	p.byDSN = make(map[string]*sql.DB)
	return firstErr
}
