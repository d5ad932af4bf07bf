// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress(t *testing.T) {
	assert.Equal(t, "supervisor-shutdown-4242", Address(4242))
	assert.Equal(t, Address(7), Address(7), "address derivation must be deterministic")
	assert.NotEqual(t, Address(1), Address(11))
}

func TestListenAndSignal(t *testing.T) {
	transport := NewMemoryTransport()
	var calls atomic.Int32

	l, err := Listen(100, func() { calls.Add(1) }, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, Address(100), l.Address())
	assert.True(t, transport.Bound(Address(100)))

	err = SignalExit(context.Background(), 100, WithSignalTransport(transport))
	require.NoError(t, err)

	select {
	case <-l.Signaled():
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not signaled")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSignalInvokesCallbackOnce(t *testing.T) {
	transport := NewMemoryTransport()
	var calls atomic.Int32

	l, err := Listen(101, func() { calls.Add(1) }, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	signaler := NewSignaler(WithSignalTransport(transport))
	for i := 0; i < 3; i++ {
		require.NoError(t, signaler.SignalExit(context.Background(), 101))
	}

	<-l.Signaled()
	// Let the remaining handlers finish before counting.
	require.NoError(t, l.Close())
	assert.Equal(t, int32(1), calls.Load())
}

func TestListenBindConflict(t *testing.T) {
	transport := NewMemoryTransport()

	first, err := Listen(102, func() {}, WithTransport(transport))
	require.NoError(t, err)
	defer first.Close()

	_, err = Listen(102, func() {}, WithTransport(transport))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBindConflict)
}

func TestSignalUnboundAddress(t *testing.T) {
	transport := NewMemoryTransport()

	err := SignalExit(context.Background(), 103, WithSignalTransport(transport))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestCloseReleasesAddress(t *testing.T) {
	transport := NewMemoryTransport()

	l, err := Listen(104, func() {}, WithTransport(transport))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "Close must be idempotent")

	assert.False(t, transport.Bound(Address(104)))
	err = SignalExit(context.Background(), 104, WithSignalTransport(transport))
	assert.ErrorIs(t, err, ErrUnreachable)

	again, err := Listen(104, func() {}, WithTransport(transport))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestCloseFromCallback(t *testing.T) {
	transport := NewMemoryTransport()
	released := make(chan error, 1)

	var l *Listener
	l, err := Listen(106, func() { released <- l.Close() }, WithTransport(transport))
	require.NoError(t, err)

	require.NoError(t, SignalExit(context.Background(), 106, WithSignalTransport(transport)))

	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from the shutdown callback did not return")
	}
	<-l.Signaled()
	assert.False(t, transport.Bound(Address(106)))
}

func TestCloseDropsSilentConnection(t *testing.T) {
	transport := NewMemoryTransport()

	l, err := Listen(107, func() {}, WithTransport(transport))
	require.NoError(t, err)

	conn, err := transport.Connect(context.Background(), Address(107))
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	closed := make(chan struct{})
	go func() {
		_ = l.Close()
		close(closed)
	}()

	select {
	case <-closed:
		assert.Less(t, time.Since(start), frameReadTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited for a peer that never sent a frame")
	}
}

func TestUnrecognizedFrameIgnored(t *testing.T) {
	transport := NewMemoryTransport()
	var calls atomic.Int32

	l, err := Listen(105, func() { calls.Add(1) }, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	conn, err := transport.Connect(context.Background(), Address(105))
	require.NoError(t, err)
	_, err = conn.Write([]byte("NOTHING!\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-l.Signaled():
		t.Fatal("garbage frame triggered shutdown")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, SignalExit(context.Background(), 105, WithSignalTransport(transport)))
	<-l.Signaled()
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifyContext(t *testing.T) {
	transport := NewMemoryTransport()

	ctx, stop, err := NotifyContext(context.Background(), 106, WithTransport(transport))
	require.NoError(t, err)
	defer stop()

	assert.NoError(t, ctx.Err())
	require.NoError(t, SignalExit(context.Background(), 106, WithSignalTransport(transport)))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not canceled by shutdown signal")
	}
}

func TestNotifyContextBindConflict(t *testing.T) {
	transport := NewMemoryTransport()

	l, err := Listen(107, func() {}, WithTransport(transport))
	require.NoError(t, err)
	defer l.Close()

	_, _, err = NotifyContext(context.Background(), 107, WithTransport(transport))
	assert.ErrorIs(t, err, ErrBindConflict)
}

func TestConnectRespectsContext(t *testing.T) {
	transport := NewMemoryTransport()

	// Bound but never accepting: the raw listener is not served by Listen.
	ln, err := transport.Bind(Address(108))
	require.NoError(t, err)
	defer ln.Close()

	start := time.Now()
	err = SignalExit(context.Background(), 108,
		WithSignalTransport(transport),
		WithConnectTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Less(t, time.Since(start), time.Second)
}
