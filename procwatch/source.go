// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procwatch

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/jongio/procsup/procutil"
)

// DefaultPollInterval is how often PIDSource checks liveness.
const DefaultPollInterval = 250 * time.Millisecond

// Source exposes the two capabilities a Watcher needs.
//
// SubscribeToExit must call fn at most once. A source may fail to subscribe
// (for example when the OS no longer knows the pid); the watcher then treats
// the process as exited.
type Source interface {
	PID() int
	CheckLiveness(ctx context.Context) (bool, error)
	SubscribeToExit(ctx context.Context, fn func(Exit)) error
}

// StatusReporter is implemented by sources that can describe an exit that
// happened before the watcher attached.
type StatusReporter interface {
	ExitStatus() (Exit, bool)
}

// CmdSource watches a command started by this process. It owns the call to
// cmd.Wait; callers must not call Wait themselves.
type CmdSource struct {
	cmd *exec.Cmd

	mu       sync.Mutex
	waiting  bool
	exit     Exit
	finished bool
}

// NewCmdSource returns a source for a started (or failed-to-start) command.
func NewCmdSource(cmd *exec.Cmd) *CmdSource {
	return &CmdSource{cmd: cmd}
}

// PID returns the child's pid, or 0 if the command never started.
func (s *CmdSource) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// CheckLiveness reports false once Wait has returned or if the command never started.
func (s *CmdSource) CheckLiveness(context.Context) (bool, error) {
	if s.cmd.Process == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished, nil
}

// ExitStatus returns the recorded exit once Wait has returned.
func (s *CmdSource) ExitStatus() (Exit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, s.finished
}

// SubscribeToExit starts the single Wait goroutine.
func (s *CmdSource) SubscribeToExit(_ context.Context, fn func(Exit)) error {
	if s.cmd.Process == nil {
		return errors.New("command not started")
	}

	s.mu.Lock()
	if s.waiting {
		s.mu.Unlock()
		return errors.New("already subscribed")
	}
	s.waiting = true
	s.mu.Unlock()

	go func() {
		exit := exitFromWait(s.PID(), s.cmd.Wait(), s.cmd)
		s.mu.Lock()
		s.exit = exit
		s.finished = true
		s.mu.Unlock()
		fn(exit)
	}()
	return nil
}

func exitFromWait(pid int, waitErr error, cmd *exec.Cmd) Exit {
	exit := Exit{PID: pid, Code: ExitCodeUnknown, Time: time.Now()}

	state := cmd.ProcessState
	if state == nil {
		exit.Err = waitErr
		return exit
	}

	exit.Status = state.String()
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		exit.Signaled = true
		exit.Signal = ws.Signal()
	}
	if code := state.ExitCode(); code >= 0 {
		exit.Code = code
		exit.Known = true
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		// e.g. exec.ErrWaitDelay: the process exited but output copying was cut short.
		exit.Err = waitErr
	}
	return exit
}

// PIDSource watches a process this program did not start. Exit is detected by
// polling liveness, so the exit code is never known.
type PIDSource struct {
	pid      int
	interval time.Duration
	check    func(ctx context.Context, pid int) (bool, error)
}

// PIDOption configures a PIDSource.
type PIDOption func(*PIDSource)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) PIDOption {
	return func(s *PIDSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewPIDSource returns a polling source for pid.
func NewPIDSource(pid int, opts ...PIDOption) *PIDSource {
	s := &PIDSource{
		pid:      pid,
		interval: DefaultPollInterval,
		check:    procutil.CheckProcess,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PID returns the watched pid.
func (s *PIDSource) PID() int { return s.pid }

// CheckLiveness reports whether the pid names a live process. Invalid pids
// are reported as not alive rather than as errors.
func (s *PIDSource) CheckLiveness(ctx context.Context) (bool, error) {
	alive, err := s.check(ctx, s.pid)
	if errors.Is(err, procutil.ErrInvalidPID) {
		return false, nil
	}
	return alive, err
}

// SubscribeToExit polls until the process is gone or ctx is done.
func (s *PIDSource) SubscribeToExit(ctx context.Context, fn func(Exit)) error {
	limiter := rate.NewLimiter(rate.Every(s.interval), 1)

	go func() {
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			alive, err := s.CheckLiveness(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if !alive {
				fn(unknownExit(s.pid, nil))
				return
			}
		}
	}()
	return nil
}

// FuncSource adapts plain functions to Source. It is mostly useful in tests
// that need to simulate OS exit notifications.
type FuncSource struct {
	ID        int
	Liveness  func(ctx context.Context) (bool, error)
	Subscribe func(ctx context.Context, fn func(Exit)) error
}

// PID returns ID.
func (s FuncSource) PID() int { return s.ID }

// CheckLiveness calls Liveness; a nil func reports the process as alive.
func (s FuncSource) CheckLiveness(ctx context.Context) (bool, error) {
	if s.Liveness == nil {
		return true, nil
	}
	return s.Liveness(ctx)
}

// SubscribeToExit calls Subscribe; a nil func never notifies.
func (s FuncSource) SubscribeToExit(ctx context.Context, fn func(Exit)) error {
	if s.Subscribe == nil {
		return nil
	}
	return s.Subscribe(ctx, fn)
}
