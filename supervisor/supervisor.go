// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/jongio/procsup/cmdutil"
	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/procutil"
	"github.com/jongio/procsup/procwatch"
)

// Output stream names.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// LaunchSpec describes the child process to supervise.
type LaunchSpec struct {
	// Name identifies the process in logs and metrics. Defaults to the base name of Path.
	Name string
	// Path is the executable, or the command line when Shell is set.
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Shell   bool
	RunType RunType
}

// Event is published once for every state transition.
type Event struct {
	Previous State     `json:"previous"`
	Current  State     `json:"current"`
	Time     time.Time `json:"time"`
	// ExitCode is set on transitions caused by a process exit with a known code.
	ExitCode *int `json:"exitCode,omitempty"`
	// StartErr is set on the transition into StartFailed.
	StartErr error `json:"-"`
}

// OutputLine is one line of child output.
type OutputLine struct {
	Text   string    `json:"text"`
	Stream string    `json:"stream"`
	Time   time.Time `json:"time"`
}

// Supervisor owns one child process. Create it with New.
type Supervisor struct {
	spec        LaunchSpec
	baseLog     *logutil.ComponentLogger
	signaler    ShutdownSignaler
	cooperative bool
	killWait    time.Duration
	metrics     metricsRecorder

	// Process hooks; replaced in tests.
	kill  func(pid int) error
	alive func(pid int) bool

	events *stream[Event]
	output *stream[OutputLine]
	done   chan struct{}

	mu       sync.Mutex
	log      *logutil.ComponentLogger
	state    State
	history  []Event
	pid      int
	exit     procwatch.Exit
	exited   bool
	startErr error
	killed   bool
	waiters  map[State][]chan struct{}
	stop     *stopOp
}

// stopOp is the single in-flight stop shared by concurrent Stop callers.
type stopOp struct {
	done  chan struct{}
	state State
	err   error
}

// New creates a supervisor in NotStarted. Nothing is launched until Start.
func New(spec LaunchSpec, opts ...Option) *Supervisor {
	if spec.RunType == "" {
		spec.RunType = SelfTerminating
	}
	if spec.Name == "" {
		spec.Name = filepath.Base(spec.Path)
	}

	s := &Supervisor{
		spec:        spec,
		baseLog:     logutil.NewLogger("supervisor"),
		cooperative: true,
		killWait:    DefaultKillWait,
		metrics:     metricsRecorder{name: spec.Name},
		kill:        procutil.KillTree,
		alive:       procutil.IsProcessRunning,
		events:      newStream[Event](),
		output:      newStream[OutputLine](),
		done:        make(chan struct{}),
		state:       NotStarted,
		waiters:     make(map[State][]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signaler == nil {
		s.signaler = defaultSignaler()
	}
	s.log = s.baseLog.WithProcess(spec.Name, 0)
	return s
}

// Start launches the child. It fails with ErrInvalidOperation unless the
// supervisor is in NotStarted. A launch failure moves to StartFailed and is
// returned as a *StartError.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return fmt.Errorf("%w: start called in state %s", ErrInvalidOperation, s.state)
	}

	stdout := cmdutil.NewLineWriter(func(line string) { s.publishLine(StreamStdout, line) })
	stderr := cmdutil.NewLineWriter(func(line string) { s.publishLine(StreamStderr, line) })

	cmd, err := s.launch(ctx, stdout, stderr)
	if err != nil {
		s.startErr = &StartError{Path: s.spec.Path, Err: err}
		s.output.close()
		s.applyLocked(LaunchFailed{Err: err}, nil)
		s.log.Error("failed to start process", "error", err)
		return s.startErr
	}

	s.pid = cmd.Process.Pid
	s.log = s.baseLog.WithProcess(s.spec.Name, s.pid)
	s.applyLocked(Launched{}, nil)
	s.log.Info("process started", "path", s.spec.Path, "runType", string(s.spec.RunType))

	w := procwatch.Watch(context.Background(), procwatch.NewCmdSource(cmd))
	go s.awaitExit(w, stdout, stderr)
	return nil
}

func (s *Supervisor) launch(ctx context.Context, stdout, stderr *cmdutil.LineWriter) (*exec.Cmd, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Termination is owned by Stop, so the command is not bound to ctx.
	cmd, err := cmdutil.BuildCommand(context.Background(), cmdutil.Spec{
		Path:  s.spec.Path,
		Args:  s.spec.Args,
		Dir:   s.spec.Dir,
		Env:   s.spec.Env,
		Shell: s.spec.Shell,
	})
	if err != nil {
		return nil, err
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (s *Supervisor) awaitExit(w *procwatch.Watcher, stdout, stderr *cmdutil.LineWriter) {
	<-w.Done()
	exit, _ := w.Exit()

	stdout.Flush()
	stderr.Flush()
	s.output.close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.exit = exit
	s.exited = true
	if exit.Err != nil {
		s.log.Warn("process exit status unavailable", "error", exit.Err)
	}

	var code *int
	if exit.Known {
		c := exit.Code
		code = &c
	}
	killed := s.killed && killedBy(exit)
	if s.killed && !killed {
		s.log.Debug("process exited on its own before the kill landed", "status", exit.String())
	}
	if s.applyLocked(Exited{Code: exit.Code, Killed: killed}, code) == nil {
		s.log.Info("process exited", "status", exit.String(), "state", s.state.String())
	}
}

func (s *Supervisor) publishLine(stream, text string) {
	s.metrics.line(stream)
	s.output.publish(OutputLine{Text: text, Stream: stream, Time: time.Now()})
}

// applyLocked runs the transition function and publishes the result.
// Must be called with s.mu held.
func (s *Supervisor) applyLocked(in Input, exitCode *int) error {
	prev := s.state
	next, err := Transition(prev, s.spec.RunType, in)
	if err != nil {
		s.log.Error("rejected state transition", "error", err)
		return err
	}

	ev := Event{Previous: prev, Current: next, Time: time.Now(), ExitCode: exitCode}
	if _, ok := in.(LaunchFailed); ok {
		ev.StartErr = s.startErr
	}

	s.state = next
	s.history = append(s.history, ev)
	s.metrics.transition(prev, next)
	s.log.Debug("state changed", "from", prev.String(), "to", next.String())

	s.events.publish(ev)
	for _, ch := range s.waiters[next] {
		close(ch)
	}
	delete(s.waiters, next)

	if next.IsTerminal() {
		s.events.close()
		clear(s.waiters)
		close(s.done)
	}
	return nil
}

// Stop ends the child. From Running it moves to Stopping, sends the
// cooperative shutdown signal and waits up to timeout for the exit. If the
// child is still running at the deadline, or ctx is done first, its process
// group is killed and Stop waits for the exit to be observed.
//
// A concurrent Stop shares the outcome of the one in flight. In any other
// state Stop does nothing and returns the current state.
func (s *Supervisor) Stop(ctx context.Context, timeout time.Duration) (State, error) {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	s.mu.Lock()
	switch s.state {
	case Running:
		if err := s.applyLocked(StopRequested{}, nil); err != nil {
			s.mu.Unlock()
			return s.State(), err
		}
		op := &stopOp{done: make(chan struct{})}
		s.stop = op
		pid := s.pid
		s.mu.Unlock()

		op.state, op.err = s.runStop(ctx, pid, timeout)
		close(op.done)
		return op.state, op.err

	case Stopping:
		op := s.stop
		s.mu.Unlock()
		select {
		case <-op.done:
			return op.state, op.err
		case <-ctx.Done():
			return s.State(), ctx.Err()
		}

	default:
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
}

func (s *Supervisor) runStop(ctx context.Context, pid int, timeout time.Duration) (State, error) {
	started := time.Now()
	log := s.currentLog()

	if s.cooperative {
		sigCtx, cancel := context.WithTimeout(ctx, timeout)
		go func() {
			defer cancel()
			if err := s.signaler.SignalExit(sigCtx, pid); err != nil {
				log.Warn("shutdown signal not delivered, waiting for timeout", "error", err)
				return
			}
			log.Debug("shutdown signal delivered")
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		state := s.State()
		s.metrics.stopped("graceful", time.Since(started))
		return state, nil
	case <-timer.C:
		log.Warn("process did not exit in time, killing process group", "timeout", timeout.String())
	case <-ctx.Done():
		log.Warn("stop canceled, killing process group", "error", ctx.Err())
	}

	if err := s.forceKill(pid); err != nil {
		log.Error("forced termination failed", "error", err)
		select {
		case <-s.done:
			s.metrics.stopped("graceful", time.Since(started))
			return s.State(), nil
		default:
		}
		s.metrics.stopped("kill_failed", time.Since(started))
		return Stopping, fmt.Errorf("%w: pid %d: %w", ErrKillFailed, pid, err)
	}

	killTimer := time.NewTimer(s.killWait)
	defer killTimer.Stop()

	select {
	case <-s.done:
		state := s.State()
		outcome := "graceful"
		if state == ExitedKilled {
			outcome = "killed"
		}
		s.metrics.stopped(outcome, time.Since(started))
		return state, nil
	case <-killTimer.C:
		s.metrics.stopped("kill_failed", time.Since(started))
		return Stopping, fmt.Errorf("%w: pid %d still running %s after kill", ErrKillFailed, pid, s.killWait)
	}
}

// forceKill kills the process group unless the exit has already been seen.
// It holds the lock so a concurrent exit is classified after the kill decision.
func (s *Supervisor) forceKill(pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopping || s.exited {
		return nil
	}
	if !s.alive(pid) {
		s.log.Debug("process already gone, skipping kill")
		return nil
	}
	if err := s.kill(pid); err != nil {
		return err
	}
	s.killed = true
	s.metrics.forcedKill()
	return nil
}

// killedBy reports whether exit is consistent with the forced kill. On Unix a
// killed process always reports SIGKILL; a normal exit status there means the
// process finished before the kill reached it. Windows reports no signal, so
// any unsuccessful exit after a kill counts as killed.
func killedBy(exit procwatch.Exit) bool {
	if exit.Signaled {
		return exit.Signal == syscall.SIGKILL
	}
	if exit.Known && runtime.GOOS != "windows" {
		return false
	}
	return !exit.Success()
}

// Wait blocks until the supervisor reaches a terminal state or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
		return s.State(), nil
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}
}

// Subscribe returns every transition so far followed by each later one, in
// order. The channel closes after the terminal transition or when cancel is called.
func (s *Supervisor) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.subscribe(s.history)
}

// Output returns lines written by the child from now on. The channel closes
// once the child's output is drained after exit, or when cancel is called.
func (s *Supervisor) Output() (<-chan OutputLine, func()) {
	return s.output.subscribe(nil)
}

// WhenStateIs returns a channel closed when the supervisor enters target, or
// immediately if it is already there. States are never re-entered, so the
// channel stays open if target was left or cannot be reached.
func (s *Supervisor) WhenStateIs(target State) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{})
	if s.state == target {
		close(ch)
		return ch
	}
	if !s.state.IsTerminal() {
		s.waiters[target] = append(s.waiters[target], ch)
	}
	return ch
}

// Done is closed when a terminal state is reached.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Name returns the process name used in logs and metrics.
func (s *Supervisor) Name() string {
	return s.spec.Name
}

// RunType returns the configured run type.
func (s *Supervisor) RunType() RunType {
	return s.spec.RunType
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the child's pid, or 0 if it was never launched.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// ExitCode returns the exit code once the process has exited with a known code.
func (s *Supervisor) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exited || !s.exit.Known {
		return 0, false
	}
	return s.exit.Code, true
}

// LastExit returns the exit observed for the child, if any.
func (s *Supervisor) LastExit() (procwatch.Exit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit, s.exited
}

// StartErr returns the launch failure, if any.
func (s *Supervisor) StartErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startErr
}

// History returns a copy of all transitions so far.
func (s *Supervisor) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.history...)
}

// Close releases all subscriptions. It never stops the child; call Stop for that.
func (s *Supervisor) Close() {
	s.events.close()
	s.output.close()
}

func (s *Supervisor) currentLog() *logutil.ComponentLogger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}
