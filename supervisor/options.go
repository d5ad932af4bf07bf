// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"context"
	"time"

	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/shutdown"
)

const (
	// DefaultStopTimeout is used by Stop when the caller passes a non-positive timeout.
	DefaultStopTimeout = 10 * time.Second
	// DefaultKillWait bounds how long Stop waits for the exit after a forced kill.
	DefaultKillWait = 5 * time.Second
)

// ShutdownSignaler asks a running process to exit. *shutdown.Signaler implements it.
type ShutdownSignaler interface {
	SignalExit(ctx context.Context, pid int) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. Process name and pid are added per launch.
func WithLogger(l *logutil.ComponentLogger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.baseLog = l
		}
	}
}

// WithSignaler replaces the cooperative shutdown signaler.
func WithSignaler(sig ShutdownSignaler) Option {
	return func(s *Supervisor) {
		if sig != nil {
			s.signaler = sig
		}
	}
}

// WithCooperativeShutdown controls whether Stop signals the child before
// waiting for the timeout. Enabled by default.
func WithCooperativeShutdown(enabled bool) Option {
	return func(s *Supervisor) {
		s.cooperative = enabled
	}
}

// WithKillWait bounds how long Stop waits for the process to disappear after a forced kill.
func WithKillWait(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.killWait = d
		}
	}
}

// WithMetrics enables Prometheus metrics for this supervisor.
func WithMetrics(enabled bool) Option {
	return func(s *Supervisor) {
		s.metrics.enabled = enabled
	}
}

func defaultSignaler() ShutdownSignaler {
	return shutdown.NewSignaler()
}
