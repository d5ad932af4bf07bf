// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"fmt"
	"strings"
)

// RunType tells the supervisor whether the child is expected to exit by itself.
type RunType string

const (
	// SelfTerminating children exit on their own; exit code 0 is success.
	SelfTerminating RunType = "self-terminating"
	// NonTerminating children run until stopped; any unsolicited exit is unexpected.
	NonTerminating RunType = "non-terminating"
)

// ParseRunType parses "self-terminating" or "non-terminating" (case-insensitive).
func ParseRunType(s string) (RunType, error) {
	switch RunType(strings.ToLower(strings.TrimSpace(s))) {
	case SelfTerminating:
		return SelfTerminating, nil
	case NonTerminating:
		return NonTerminating, nil
	default:
		return "", fmt.Errorf("invalid run type %q (valid: %s, %s)", s, SelfTerminating, NonTerminating)
	}
}

// State is the lifecycle state of a supervised process.
type State int

const (
	NotStarted State = iota
	Running
	StartFailed
	Stopping
	ExitedSuccessfully
	ExitedWithError
	ExitedUnexpectedly
	ExitedKilled
)

var stateNames = [...]string{
	NotStarted:         "not-started",
	Running:            "running",
	StartFailed:        "start-failed",
	Stopping:           "stopping",
	ExitedSuccessfully: "exited-successfully",
	ExitedWithError:    "exited-with-error",
	ExitedUnexpectedly: "exited-unexpectedly",
	ExitedKilled:       "exited-killed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	switch s {
	case StartFailed, ExitedSuccessfully, ExitedWithError, ExitedUnexpectedly, ExitedKilled:
		return true
	}
	return false
}

// IsFailure reports whether s is a terminal state callers should alert on.
func (s State) IsFailure() bool {
	switch s {
	case StartFailed, ExitedWithError, ExitedUnexpectedly, ExitedKilled:
		return true
	}
	return false
}
