// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procwatch

import (
	"context"
	"sync"

	"github.com/jongio/procsup/logutil"
)

// Watcher raises exactly one exited notification for its source.
type Watcher struct {
	pid    int
	log    *logutil.ComponentLogger
	cancel context.CancelFunc

	once sync.Once
	done chan struct{}
	exit Exit
}

// Watch attaches a Watcher to src. Canceling ctx, or calling Stop, detaches
// the subscription without raising a notification.
//
// The notification is raised immediately when the process is already gone or
// cannot be found, when the subscription fails, or when the first liveness
// check itself fails; otherwise it is raised by the source's exit event.
func Watch(ctx context.Context, src Source) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		pid:    src.PID(),
		log:    logutil.NewLogger("procwatch").WithFields("pid", src.PID()),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if w.exitedBeforeAttach(ctx, src) {
		return w
	}

	if err := src.SubscribeToExit(ctx, w.raise); err != nil {
		w.log.Debug("exit subscription failed; treating process as exited", "error", err)
		w.raise(unknownExit(w.pid, err))
		return w
	}

	// The process may have exited between the first check and the subscription.
	// A failed check here is left to the subscription.
	if alive, err := src.CheckLiveness(ctx); err != nil {
		w.log.Debug("liveness re-check failed; waiting on subscription", "error", err)
	} else if !alive {
		w.raiseGone(src)
	}
	return w
}

// exitedBeforeAttach raises the notification if src reports the process gone.
func (w *Watcher) exitedBeforeAttach(ctx context.Context, src Source) bool {
	alive, err := src.CheckLiveness(ctx)
	if err != nil {
		w.log.Debug("liveness check failed; treating process as exited", "error", err)
		w.raise(unknownExit(w.pid, err))
		return true
	}
	if alive {
		return false
	}
	w.raiseGone(src)
	return true
}

// raiseGone raises the source's recorded exit status, or an unknown exit.
func (w *Watcher) raiseGone(src Source) {
	if reporter, ok := src.(StatusReporter); ok {
		if exit, ok := reporter.ExitStatus(); ok {
			w.raise(exit)
			return
		}
	}
	w.raise(unknownExit(w.pid, nil))
}

func (w *Watcher) raise(exit Exit) {
	w.once.Do(func() {
		if exit.PID == 0 {
			exit.PID = w.pid
		}
		w.exit = exit
		w.log.Debug("process exited", "code", exit.Code, "known", exit.Known)
		close(w.done)
		w.cancel()
	})
}

// PID returns the watched pid.
func (w *Watcher) PID() int {
	return w.pid
}

// Done is closed when the exited notification is raised.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Exit returns the exit once Done is closed.
func (w *Watcher) Exit() (Exit, bool) {
	select {
	case <-w.done:
		return w.exit, true
	default:
		return Exit{}, false
	}
}

// Wait blocks until the process exits or ctx is done.
func (w *Watcher) Wait(ctx context.Context) (Exit, error) {
	select {
	case <-w.done:
		return w.exit, nil
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

// Stop detaches the watcher. A notification already raised is kept.
func (w *Watcher) Stop() {
	w.cancel()
}
