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

// CreateHTTPTrace inserts the raw capture, kept immutable for audit/reparse.
func (s *Store) CreateHTTPTrace(ctx context.Context, h model.HTTPTrace) (model.HTTPTrace, error) {
	reqHeaders, err := toJSON(h.RequestHeaders)
	if err != nil {
		return model.HTTPTrace{}, apierr.Wrap(apierr.KindInternal, "encode request headers", err)
	}
	respHeaders, err := toJSON(h.ResponseHeaders)
	if err != nil {
		return model.HTTPTrace{}, apierr.Wrap(apierr.KindInternal, "encode response headers", err)
	}
	metadata, err := toJSON(h.Metadata)
	if err != nil {
		return model.HTTPTrace{}, apierr.Wrap(apierr.KindInternal, "encode metadata", err)
	}

	query := fmt.Sprintf(
		`INSERT INTO http_traces (started_at, completed_at, status_code, error, request, request_headers_json, response, response_headers_json, request_method, request_path, metadata_json, call_path)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12))
	id, err := s.insertReturningID(ctx, query,
		h.StartedAt, nullTime(h.CompletedAt), h.StatusCode, h.Error, h.Request, reqHeaders,
		h.Response, respHeaders, h.RequestMethod, h.RequestPath, metadata, h.CallPath)
	if err != nil {
		return model.HTTPTrace{}, apierr.Wrap(apierr.KindInternal, "insert http_trace", err)
	}
	h.ID = id
	return h, nil
}

// GetHTTPTrace looks up a raw capture by id.
func (s *Store) GetHTTPTrace(ctx context.Context, id int64) (model.HTTPTrace, error) {
	query := fmt.Sprintf(
		`SELECT id, started_at, completed_at, status_code, error, request, request_headers_json, response, response_headers_json, request_method, request_path, metadata_json, call_path
		 FROM http_traces WHERE id = %s`, s.ph(1))

	var h model.HTTPTrace
	var completedAt sql.NullTime
	var reqHeaders, respHeaders, metadata sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&h.ID, &h.StartedAt, &completedAt, &h.StatusCode, &h.Error, &h.Request, &reqHeaders,
		&h.Response, &respHeaders, &h.RequestMethod, &h.RequestPath, &metadata, &h.CallPath)
	if err == sql.ErrNoRows {
		return model.HTTPTrace{}, apierr.NotFound("http_trace %d not found", id)
	}
	if err != nil {
		return model.HTTPTrace{}, apierr.Wrap(apierr.KindInternal, "query http_trace", err)
	}

	h.CompletedAt = ptrFromNullTime(completedAt)
	_ = fromJSON(reqHeaders, &h.RequestHeaders)
	_ = fromJSON(respHeaders, &h.ResponseHeaders)
	_ = fromJSON(metadata, &h.Metadata)
	return h, nil
}
