// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// MemoryTransport is an in-process Transport backed by net.Pipe.
// Addresses live only as long as the MemoryTransport value.
type MemoryTransport struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}

// NewMemoryTransport returns an empty in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{listeners: make(map[string]*memoryListener)}
}

// Bind registers a listener for address.
func (t *MemoryTransport) Bind(address string) (net.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.listeners[address]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBindConflict, address)
	}
	ln := &memoryListener{
		transport: t,
		address:   address,
		conns:     make(chan net.Conn),
		done:      make(chan struct{}),
	}
	t.listeners[address] = ln
	return ln, nil
}

// Connect hands one end of a new pipe to the listener bound at address.
func (t *MemoryTransport) Connect(ctx context.Context, address string) (net.Conn, error) {
	t.mu.Lock()
	ln, ok := t.listeners[address]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, address)
	}

	client, server := net.Pipe()
	select {
	case ln.conns <- server:
		return client, nil
	case <-ln.done:
		_ = client.Close()
		_ = server.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, address)
	case <-ctx.Done():
		_ = client.Close()
		_ = server.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, address, ctx.Err())
	}
}

// Bound reports whether a listener currently holds address.
func (t *MemoryTransport) Bound(address string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.listeners[address]
	return ok
}

func (t *MemoryTransport) release(ln *memoryListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listeners[ln.address] == ln {
		delete(t.listeners, ln.address)
	}
}

type memoryListener struct {
	transport *MemoryTransport
	address   string
	conns     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *memoryListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *memoryListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.transport.release(l)
	})
	return nil
}

func (l *memoryListener) Addr() net.Addr {
	return memoryAddr(l.address)
}

type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }
