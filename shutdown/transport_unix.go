//go:build !windows
// +build !windows

// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// staleProbeTimeout bounds the dial used to tell a live socket from a stale file.
const staleProbeTimeout = 250 * time.Millisecond

// SocketTransport maps channel addresses to Unix domain sockets in a directory.
type SocketTransport struct {
	dir string
}

// DefaultTransport returns the platform transport: Unix domain sockets in os.TempDir.
func DefaultTransport() Transport {
	return NewSocketTransport(os.TempDir())
}

// NewSocketTransport returns a transport that places sockets in dir.
// Both sides of a channel must use the same directory.
func NewSocketTransport(dir string) *SocketTransport {
	return &SocketTransport{dir: dir}
}

// Path returns the socket file backing address.
func (t *SocketTransport) Path(address string) string {
	return filepath.Join(t.dir, address+".sock")
}

// Bind listens on the socket for address. A leftover socket file whose owner
// is gone is removed first; a live one is a conflict.
func (t *SocketTransport) Bind(address string) (net.Listener, error) {
	path := t.Path(address)

	if _, err := os.Lstat(path); err == nil {
		conn, dialErr := net.DialTimeout("unix", path, staleProbeTimeout)
		if dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrBindConflict, address)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		if errors.Is(err, unix.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s", ErrBindConflict, address)
		}
		return nil, fmt.Errorf("bind %s: %w", address, err)
	}
	return ln, nil
}

// Connect dials the socket for address.
func (t *SocketTransport) Connect(ctx context.Context, address string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", t.Path(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, address, err)
	}
	return conn, nil
}
