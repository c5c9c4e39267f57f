// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Command tracepipeline is the CLI for the trace ingestion and grouping
// pipeline.
//
// Usage:
//
//	tracepipeline serve --config tracepipeline.yaml
//	tracepipeline validate tracepipeline.yaml
//	tracepipeline schema
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the trace ingestion HTTP server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schema for the configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"tracepipeline.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tracepipeline"),
		kong.Description("Trace ingestion, template matching, and auto-grading pipeline."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
