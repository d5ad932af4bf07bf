// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package logutil provides the structured logging used by every procsup package.
//
// It wraps the standard library's slog package with a process-wide logger and
// component-scoped loggers that carry supervision context (component, process
// name, pid) on every record.
//
// # Basic Usage
//
//	// Initialize logging (typically in main.go)
//	logutil.SetupLogger(debug, structured)
//
//	log := logutil.NewLogger("supervisor").WithProcess("api", 4242)
//	log.Info("state changed", "from", "running", "to", "stopping")
//
// # Debug Mode
//
// Debug logging can be enabled in two ways:
//   - Pass debug=true to SetupLogger
//   - Set PROCSUP_DEBUG=true environment variable
//
// # Structured Logging
//
// When structured=true is passed to SetupLogger, logs are output as JSON:
//
//	{"time":"2024-01-15T10:30:00Z","level":"INFO","msg":"state changed","component":"supervisor","process":"api","pid":4242}
//
// Otherwise, logs use slog's text format:
//
//	time=2024-01-15T10:30:00Z level=INFO msg="state changed" component=supervisor process=api pid=4242
package logutil
