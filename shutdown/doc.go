// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package shutdown implements cooperative shutdown between a supervising
// parent and its child process.
//
// The child binds a per-process channel whose name is derived from its own
// pid (see Address) and waits for a single shutdown frame. The parent derives
// the same name from the child's pid, connects, and writes the frame. There is
// no reply: the parent observes the outcome by watching the child exit.
//
// # Child side
//
//	l, err := shutdown.Listen(os.Getpid(), cancel)
//	if err != nil {
//	    return err
//	}
//	defer l.Close()
//
// # Parent side
//
//	if err := shutdown.SignalExit(ctx, pid); errors.Is(err, shutdown.ErrUnreachable) {
//	    // child never listened or already exited; fall back to a timed kill
//	}
//
// The channel is a Unix domain socket in os.TempDir on Unix-like systems and a
// named pipe on Windows. NewMemoryTransport provides an in-process channel
// with the same bind and connect semantics for tests.
package shutdown
