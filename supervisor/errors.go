// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOperation is returned when an operation is called in a state
	// that does not allow it, such as calling Start twice.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrKillFailed is returned by Stop when forced termination did not end the process.
	ErrKillFailed = errors.New("forced termination failed")
)

// StartError records why the OS could not launch the child.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
