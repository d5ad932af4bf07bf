// Package cliout provides structured output formatting for CLI commands with
// cross-platform terminal support and multiple output formats.
//
// # Features
//
//   - Human-readable and JSON output formats
//   - ANSI colors, disabled automatically when stdout is not a terminal or NO_COLOR is set
//   - Unicode symbols with ASCII fallbacks for legacy Windows consoles
//   - Tables that align colored cells
//
// # Basic Usage
//
//	cliout.Success("Process %s exited", name)
//	cliout.Error("Process failed: %s", err)
//
// # Output Formats
//
// Set the output format using SetFormat:
//
//	if err := cliout.SetFormat("json"); err != nil {
//	    return err
//	}
//
// Print chooses between the JSON encoding of a value and a formatter:
//
//	cliout.Print(entries, func() {
//	    cliout.Table(headers, rows)
//	})
//
// # Thread Safety
//
// Format, color and writer settings are guarded by a mutex; output functions
// may be called from multiple goroutines.
package cliout
