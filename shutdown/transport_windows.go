//go:build windows
// +build windows

// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
)

const (
	pipePrefix        = `\\.\pipe\`
	staleProbeTimeout = 250 * time.Millisecond
)

// PipeTransport maps channel addresses to Windows named pipes.
type PipeTransport struct{}

// DefaultTransport returns the platform transport: named pipes.
func DefaultTransport() Transport {
	return NewPipeTransport()
}

// NewPipeTransport returns a named-pipe transport.
func NewPipeTransport() *PipeTransport {
	return &PipeTransport{}
}

// Path returns the pipe name backing address.
func (t *PipeTransport) Path(address string) string {
	return pipePrefix + address
}

// Bind creates the first instance of the pipe for address.
func (t *PipeTransport) Bind(address string) (net.Listener, error) {
	path := t.Path(address)

	probeTimeout := staleProbeTimeout
	if conn, err := winio.DialPipe(path, &probeTimeout); err == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrBindConflict, address)
	}

	ln, err := winio.ListenPipe(path, nil)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrBindConflict, address)
		}
		return nil, fmt.Errorf("bind %s: %w", address, err)
	}
	return ln, nil
}

// Connect dials the pipe for address.
func (t *PipeTransport) Connect(ctx context.Context, address string) (net.Conn, error) {
	conn, err := winio.DialPipeContext(ctx, t.Path(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, address, err)
	}
	return conn, nil
}
