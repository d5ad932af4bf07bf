//go:build !windows
// +build !windows

// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortTempDir keeps socket paths under the sun_path limit on macOS.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ps")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestSocketTransportSignal(t *testing.T) {
	transport := NewSocketTransport(shortTempDir(t))
	signaled := make(chan struct{})

	l, err := Listen(4242, func() { close(signaled) }, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(transport.Path(Address(4242)))
	require.NoError(t, err, "socket file should exist while bound")

	require.NoError(t, SignalExit(context.Background(), 4242, WithSignalTransport(transport)))

	select {
	case <-signaled:
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not signaled over unix socket")
	}
}

func TestSocketTransportConflict(t *testing.T) {
	transport := NewSocketTransport(shortTempDir(t))

	l, err := Listen(4243, func() {}, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	_, err = Listen(4243, func() {}, WithTransport(transport))
	assert.ErrorIs(t, err, ErrBindConflict)
}

func TestSocketTransportStaleFile(t *testing.T) {
	transport := NewSocketTransport(shortTempDir(t))
	path := transport.Path(Address(4244))

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file should remain")

	l, err := Listen(4244, func() {}, WithTransport(transport))
	require.NoError(t, err, "stale socket file must not block binding")
	require.NoError(t, l.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "closing the listener should remove the socket file")
}

func TestSocketTransportUnreachable(t *testing.T) {
	transport := NewSocketTransport(shortTempDir(t))

	err := SignalExit(context.Background(), 4245, WithSignalTransport(transport))
	assert.ErrorIs(t, err, ErrUnreachable)
}
