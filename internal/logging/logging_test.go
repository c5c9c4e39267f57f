// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestGetLogger_InitializesLazily(t *testing.T) {
	defaultLogger = nil
	log := GetLogger()
	require.NotNil(t, log)
	require.Same(t, log, GetLogger())
}
