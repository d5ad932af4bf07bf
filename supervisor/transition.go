// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by Transition for inputs the current state does not accept.
var ErrInvalidTransition = errors.New("invalid state transition")

// Input is an event fed to the state machine.
type Input interface {
	input()
}

// Launched reports that the OS started the process.
type Launched struct{}

// LaunchFailed reports that the OS could not start the process.
type LaunchFailed struct{ Err error }

// StopRequested reports an explicit Stop call.
type StopRequested struct{}

// Exited reports that the process ended. Killed is set when the supervisor
// forced the termination.
type Exited struct {
	Code   int
	Killed bool
}

func (Launched) input()      {}
func (LaunchFailed) input()  {}
func (StopRequested) input() {}
func (Exited) input()        {}

// Transition returns the state that follows current when in occurs.
// It has no side effects.
func Transition(current State, runType RunType, in Input) (State, error) {
	switch current {
	case NotStarted:
		switch in.(type) {
		case Launched:
			return Running, nil
		case LaunchFailed:
			return StartFailed, nil
		}

	case Running:
		switch in := in.(type) {
		case StopRequested:
			return Stopping, nil
		case Exited:
			if runType == NonTerminating {
				return ExitedUnexpectedly, nil
			}
			return classifyExit(in.Code), nil
		}

	case Stopping:
		if in, ok := in.(Exited); ok {
			if in.Killed {
				return ExitedKilled, nil
			}
			return classifyExit(in.Code), nil
		}
	}

	return current, fmt.Errorf("%w: %T in state %s", ErrInvalidTransition, in, current)
}

func classifyExit(code int) State {
	if code == 0 {
		return ExitedSuccessfully
	}
	return ExitedWithError
}
