// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

// Package tracepipeline ingests LLM call traces from provider HTTP
// captures, matches them against known prompt templates, groups the
// unmatched remainder into new templates, and dispatches sampled
// auto-grading.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/r4u-trace/cmd/tracepipeline@latest
//
// Start the server against a config file:
//
//	tracepipeline serve --config tracepipeline.yaml
//
// # Architecture
//
//	Provider capture -> parsers.Registry -> ingest.Service -> storage.Store
//	                                              |
//	                                              +-> grouping.Queue -> grouping.Worker
//	                                              +-> autograde.Dispatcher
//
// Capture handling, matching, grouping, and auto-grading are each
// independent packages under pkg/tracepipeline; cmd/tracepipeline wires
// them together from a single YAML configuration.
//
// # License
//
// AGPL-3.0 - See LICENSE.md for details.
package tracepipeline
