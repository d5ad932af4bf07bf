// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procwatch

import (
	"fmt"
	"syscall"
	"time"
)

// ExitCodeUnknown marks an exit whose code could not be determined.
const ExitCodeUnknown = -1

// Exit describes how a watched process ended.
type Exit struct {
	PID int
	// Code is the exit status, or ExitCodeUnknown when Known is false.
	Code  int
	Known bool
	// Status is the OS description of the exit, e.g. "signal: killed".
	Status string
	// Signaled is set when the wait status shows the process was ended by Signal.
	Signaled bool
	Signal   syscall.Signal
	// Err records a lookup or wait failure that was normalized into this exit.
	Err  error
	Time time.Time
}

// Success reports whether the process is known to have exited with code 0.
func (e Exit) Success() bool {
	return e.Known && e.Code == 0
}

func (e Exit) String() string {
	switch {
	case e.Known:
		return fmt.Sprintf("pid %d exited with code %d", e.PID, e.Code)
	case e.Status != "":
		return fmt.Sprintf("pid %d exited (%s)", e.PID, e.Status)
	default:
		return fmt.Sprintf("pid %d exited with unknown code", e.PID)
	}
}

func unknownExit(pid int, err error) Exit {
	return Exit{PID: pid, Code: ExitCodeUnknown, Err: err, Time: time.Now()}
}
