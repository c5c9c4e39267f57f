// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package main

import (
	"log/slog"
	"os"

	"github.com/kadirpekel/r4u-trace/internal/logging"
)

// LogLevelEnvVar is the environment variable name for log level, used
// when the --log-level flag is not given.
const LogLevelEnvVar = "LOG_LEVEL"

// initLoggerFromCLI initializes the process-wide logger from CLI flags,
// falling back to LOG_LEVEL when logLevel is empty. Returns a cleanup
// func that closes the log file, if one was opened.
func initLoggerFromCLI(logLevel, logFile, logFormat string) (*slog.Logger, func(), error) {
	if logLevel == "" {
		logLevel = os.Getenv(LogLevelEnvVar)
	}
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if logFile != "" {
		f, closeFn, err := logging.OpenLogFile(logFile)
		if err != nil {
			return nil, nil, err
		}
		output = f
		cleanup = closeFn
	}

	logging.Init(level, output, logFormat)
	return logging.GetLogger(), cleanup, nil
}
