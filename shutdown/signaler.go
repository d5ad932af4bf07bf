// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"fmt"
	"time"

	"github.com/jongio/procsup/logutil"
)

// DefaultConnectTimeout bounds a single connect attempt.
const DefaultConnectTimeout = 2 * time.Second

// SignalOption configures a Signaler.
type SignalOption func(*Signaler)

// WithSignalTransport overrides the transport used to reach the child.
func WithSignalTransport(t Transport) SignalOption {
	return func(s *Signaler) { s.transport = t }
}

// WithConnectTimeout overrides DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) SignalOption {
	return func(s *Signaler) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// Signaler sends shutdown frames to child processes.
type Signaler struct {
	transport      Transport
	connectTimeout time.Duration
	log            *logutil.ComponentLogger
}

// NewSignaler returns a Signaler using the platform transport unless overridden.
func NewSignaler(opts ...SignalOption) *Signaler {
	s := &Signaler{
		connectTimeout: DefaultConnectTimeout,
		log:            logutil.NewLogger("shutdown"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = DefaultTransport()
	}
	return s
}

// SignalExit connects to the shutdown channel of pid and writes the shutdown
// frame. A nil error means the frame was delivered to the channel, not that
// the child acted on it.
//
// Exactly one connect attempt is made. When nothing listens at the address
// the error wraps ErrUnreachable.
func (s *Signaler) SignalExit(ctx context.Context, pid int) error {
	address := Address(pid)
	log := s.log.WithFields("address", address)

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.transport.Connect(connectCtx, address)
	if err != nil {
		log.Debug("shutdown channel not reachable", "error", err)
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	defer conn.Close()

	if deadline, ok := connectCtx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(signalFrame); err != nil {
		return fmt.Errorf("signal pid %d: write: %w", pid, err)
	}

	log.Debug("shutdown signal sent")
	return nil
}

// SignalExit sends the shutdown frame to pid over the platform transport.
func SignalExit(ctx context.Context, pid int, opts ...SignalOption) error {
	return NewSignaler(opts...).SignalExit(ctx, pid)
}
