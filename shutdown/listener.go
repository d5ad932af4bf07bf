// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jongio/procsup/logutil"
)

// frameReadTimeout bounds how long a connected peer may take to deliver the frame.
const frameReadTimeout = 5 * time.Second

// ListenOption configures Listen.
type ListenOption func(*listenConfig)

type listenConfig struct {
	transport Transport
	logger    *logutil.ComponentLogger
}

// WithTransport overrides the transport used to bind the channel.
func WithTransport(t Transport) ListenOption {
	return func(c *listenConfig) { c.transport = t }
}

// WithLogger overrides the listener's logger.
func WithLogger(l *logutil.ComponentLogger) ListenOption {
	return func(c *listenConfig) { c.logger = l }
}

// Listener is a bound shutdown channel. The zero value is not usable; create
// one with Listen.
type Listener struct {
	address  string
	ln       net.Listener
	onSignal func()
	log      *logutil.ComponentLogger

	signalOnce sync.Once
	signaled   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds the shutdown channel for pid and waits in the background for
// a shutdown frame. onSignal runs once, on the first frame, and must not block:
// it should only trigger the application's own shutdown path.
//
// The returned Listener keeps the channel bound until Close is called.
func Listen(pid int, onSignal func(), opts ...ListenOption) (*Listener, error) {
	cfg := listenConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transport == nil {
		cfg.transport = DefaultTransport()
	}
	if cfg.logger == nil {
		cfg.logger = logutil.NewLogger("shutdown")
	}

	address := Address(pid)
	ln, err := cfg.transport.Bind(address)
	if err != nil {
		return nil, fmt.Errorf("listen for shutdown: %w", err)
	}

	l := &Listener{
		address:  address,
		ln:       ln,
		onSignal: onSignal,
		log:      cfg.logger.WithFields("address", address),
		signaled: make(chan struct{}),
		closed:   make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()

	l.log.Debug("listening for shutdown signal")
	return l, nil
}

// NotifyContext returns a copy of parent that is canceled when a shutdown
// signal arrives for pid. Calling stop releases the channel.
func NotifyContext(parent context.Context, pid int, opts ...ListenOption) (context.Context, func() error, error) {
	ctx, cancel := context.WithCancel(parent)
	l, err := Listen(pid, cancel, opts...)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	stop := func() error {
		cancel()
		return l.Close()
	}
	return ctx, stop, nil
}

// Address returns the channel address this listener is bound to.
func (l *Listener) Address() string {
	return l.address
}

// Signaled is closed after the shutdown callback has returned.
func (l *Listener) Signaled() <-chan struct{} {
	return l.signaled
}

// Close stops listening, drops connections that have not delivered a frame
// and frees the channel. It is safe to call more than once, including from
// the shutdown callback. Close does not wait for a callback that is running.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.ln.Close()

		l.mu.Lock()
		for conn := range l.conns {
			_ = conn.Close()
		}
		l.mu.Unlock()

		l.wg.Wait()
		l.log.Debug("shutdown listener closed")
	})
	return err
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("accept on shutdown channel failed", "error", err)
			return
		}

		if !l.track(conn) {
			_ = conn.Close()
			return
		}
		l.wg.Add(1)
		go l.handle(conn)
	}
}

// track registers conn so Close can interrupt its read. It reports false
// once the listener is closing.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.closed:
		return false
	default:
	}
	l.conns[conn] = struct{}{}
	return true
}

// handle reads one frame. The callback runs after the connection is released
// so that it may call Close.
func (l *Listener) handle(conn net.Conn) {
	ok := l.readFrame(conn)

	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	_ = conn.Close()
	l.wg.Done()

	if ok {
		l.fire()
	}
}

func (l *Listener) readFrame(conn net.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(frameReadTimeout))

	buf := make([]byte, len(signalFrame))
	if _, err := io.ReadFull(conn, buf); err != nil {
		l.log.Debug("discarding incomplete shutdown frame", "error", err)
		return false
	}
	if !bytes.Equal(buf, signalFrame) {
		l.log.Warn("discarding unrecognized shutdown frame")
		return false
	}
	return true
}

func (l *Listener) fire() {
	l.signalOnce.Do(func() {
		l.log.Info("shutdown signal received")
		if l.onSignal != nil {
			l.onSignal()
		}
		close(l.signaled)
	})
}
