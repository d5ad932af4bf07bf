// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/procutil"
	"github.com/jongio/procsup/registry"
	"github.com/jongio/procsup/shutdown"
	"github.com/jongio/procsup/supervisor"
	"github.com/jongio/procsup/testutil"
)

func TestMain(m *testing.M) {
	testutil.RunHelperIfRequested()
	os.Exit(m.Run())
}

// syncBuffer is written by output forwarders while the test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureCLI(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	cliout.SetOutput(buf)
	t.Cleanup(func() {
		cliout.SetOutput(nil)
		_ = cliout.SetFormat("default")
	})
	return buf
}

type helperProc struct {
	name, runType, mode, args string
}

func writeConfig(t *testing.T, procs ...helperProc) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("processes:\n")
	for _, p := range procs {
		fmt.Fprintf(&b, "  - name: %s\n", p.name)
		fmt.Fprintf(&b, "    command: [%q, \"-test.run=^$\"]\n", os.Args[0])
		fmt.Fprintf(&b, "    runType: %s\n", p.runType)
		fmt.Fprintf(&b, "    stopTimeout: 5s\n")
		fmt.Fprintf(&b, "    env:\n")
		fmt.Fprintf(&b, "      %s: %s\n", testutil.EnvHelperMode, p.mode)
		fmt.Fprintf(&b, "      %s: %q\n", testutil.EnvHelperArgs, p.args)
	}
	path := filepath.Join(t.TempDir(), "procsup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestRunConfigSuccess(t *testing.T) {
	out := captureCLI(t)
	path := writeConfig(t, helperProc{"greeter", "self-terminating", testutil.ModeEcho, "hi"})

	code := executeContext(context.Background(), []string{"run", "--no-color", "--config", path})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "[greeter] hi")
	assert.Contains(t, out.String(), "exited-successfully")
}

func TestRunFailureJSON(t *testing.T) {
	out := captureCLI(t)
	path := writeConfig(t,
		helperProc{"ok", "self-terminating", testutil.ModeExit, "0"},
		helperProc{"bad", "self-terminating", testutil.ModeExit, "3"},
	)

	code := executeContext(context.Background(), []string{"run", "-o", "json", "--config", path})
	assert.Equal(t, 1, code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.String()), &entries), out.String())
	require.Len(t, entries, 2)
	assert.Equal(t, "bad", entries[0]["name"])
	assert.Equal(t, "exited-with-error", entries[0]["state"])
	assert.EqualValues(t, 3, entries[0]["exitCode"])
	assert.Equal(t, "exited-successfully", entries[1]["state"])
}

func TestRunSelectsNamedEntry(t *testing.T) {
	out := captureCLI(t)
	path := writeConfig(t,
		helperProc{"ok", "self-terminating", testutil.ModeExit, "0"},
		helperProc{"bad", "self-terminating", testutil.ModeExit, "3"},
	)

	code := executeContext(context.Background(), []string{"run", "-o", "json", "--config", path, "--name", "ok"})
	assert.Equal(t, 0, code)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.String()), &entries), out.String())
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", entries[0]["name"])

	assert.Equal(t, 1, executeContext(context.Background(), []string{"run", "--config", path, "--name", "missing"}))
}

func TestRunPassesRunID(t *testing.T) {
	out := captureCLI(t)
	path := writeConfig(t, helperProc{"env", "self-terminating", testutil.ModeEnv, envRunID})

	require.Equal(t, 0, executeContext(context.Background(), []string{"run", "--no-color", "--config", path}))
	assert.Regexp(t, `\[env\] `+envRunID+`=[0-9a-f-]{36}`, out.String())
}

func TestRunStopsOnInterrupt(t *testing.T) {
	out := captureCLI(t)
	path := writeConfig(t, helperProc{"svc", "non-terminating", testutil.ModeCooperative, ""})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan int, 1)
	go func() {
		result <- executeContext(ctx, []string{"run", "--no-color", "--config", path})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[svc] "+testutil.ReadyLine)
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case code := <-result:
		assert.Equal(t, 0, code)
	case <-time.After(15 * time.Second):
		t.Fatal("run did not return after interrupt")
	}
	assert.Contains(t, out.String(), "exited-successfully")
}

func TestRunCommandLine(t *testing.T) {
	out := captureCLI(t)
	t.Setenv(testutil.EnvHelperMode, testutil.ModeExit)
	t.Setenv(testutil.EnvHelperArgs, "0")

	code := executeContext(context.Background(), []string{
		"run", "--no-color", "--run-type", "non-terminating", "--name", "solo", "--metrics-port", "19377",
		"--", os.Args[0], "-test.run=^$",
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "Metrics at http://localhost:19377/metrics")
	assert.Contains(t, out.String(), "exited-unexpectedly")
	assert.Contains(t, out.String(), "Rerun with --debug")
}

func TestReleaseUnfinishedEndsTracking(t *testing.T) {
	h := testutil.Helper(testutil.ModeStubborn)
	sup := supervisor.New(supervisor.LaunchSpec{
		Name:    "stuck",
		Path:    h.Path,
		Args:    h.Args,
		Env:     h.Env,
		RunType: supervisor.NonTerminating,
	})
	reg := registry.New()
	reg.Track("stuck", sup)
	require.NoError(t, sup.Start(context.Background()))
	t.Cleanup(func() { _ = procutil.KillTree(sup.PID()) })

	stopErr := fmt.Errorf("%w: pid %d", supervisor.ErrKillFailed, sup.PID())
	releaseUnfinished(reg, []*supervisor.Supervisor{sup}, []error{stopErr})

	waited := make(chan struct{})
	go func() {
		reg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("registry still tracking a supervisor that could not be stopped")
	}

	e, ok := reg.Get("stuck")
	require.True(t, ok)
	assert.False(t, e.State.IsTerminal())
	assert.Contains(t, e.Error, "forced termination failed")
}

func TestRunUsageErrors(t *testing.T) {
	captureCLI(t)
	assert.Equal(t, 1, executeContext(context.Background(), []string{"run"}))
	assert.Equal(t, 1, executeContext(context.Background(), []string{"run", "--config", "x.yaml", "--", "ls"}))
	assert.Equal(t, 1, executeContext(context.Background(), []string{"run", "--run-type", "daemon", "--", "ls"}))
	assert.Equal(t, 1, executeContext(context.Background(), []string{"--output", "xml", "version"}))
}

func TestSignalCommand(t *testing.T) {
	out := captureCLI(t)
	pid := 1<<22 + os.Getpid()%10000

	l, err := shutdown.Listen(pid, func() {})
	require.NoError(t, err)
	defer l.Close()

	code := executeContext(context.Background(), []string{"signal", fmt.Sprint(pid)})
	assert.Equal(t, 0, code)
	select {
	case <-l.Signaled():
	case <-time.After(5 * time.Second):
		t.Fatal("listener never signaled")
	}
	assert.Contains(t, out.String(), shutdown.Address(pid))
}

func TestSignalCommandErrors(t *testing.T) {
	captureCLI(t)
	assert.Equal(t, 1, executeContext(context.Background(), []string{"signal", "abc"}))
	assert.Equal(t, 1, executeContext(context.Background(), []string{"signal", "--timeout", "200ms", fmt.Sprint(1<<22 + 4242)}))
}

func TestWatchExitedProcess(t *testing.T) {
	out := captureCLI(t)
	h := testutil.Helper(testutil.ModeExit, "0")
	cmd := exec.Command(h.Path, h.Args...)
	cmd.Env = append(os.Environ(), h.Env...)
	require.NoError(t, cmd.Run())

	code := executeContext(context.Background(), []string{"watch", "--timeout", "5s", fmt.Sprint(cmd.Process.Pid)})
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "exited")
	assert.Contains(t, out.String(), fmt.Sprintf("   pid %d exited", cmd.Process.Pid))
}

func TestWatchTimeout(t *testing.T) {
	captureCLI(t)
	code := executeContext(context.Background(), []string{"watch", "--timeout", "100ms", fmt.Sprint(os.Getpid())})
	assert.Equal(t, 1, code)
}

func TestChildExitsOnSignal(t *testing.T) {
	out := captureCLI(t)
	result := make(chan int, 1)
	go func() {
		result <- executeContext(context.Background(), []string{"child", "--exit-code", "3"})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ready")
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, shutdown.SignalExit(context.Background(), os.Getpid()))

	select {
	case code := <-result:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit after signal")
	}
}

func TestChildExitsWithParent(t *testing.T) {
	captureCLI(t)
	h := testutil.Helper(testutil.ModeExit, "0")
	parent := exec.Command(h.Path, h.Args...)
	parent.Env = append(os.Environ(), h.Env...)
	require.NoError(t, parent.Run())

	code := executeContext(context.Background(), []string{"child", "--parent-pid", fmt.Sprint(parent.Process.Pid)})
	assert.Equal(t, 0, code)
}

func TestVersionCommand(t *testing.T) {
	out := captureCLI(t)
	assert.Equal(t, 0, executeContext(context.Background(), []string{"version", "-q"}))
	assert.NotEmpty(t, strings.TrimSpace(out.String()))
}

func TestLogLevelFlag(t *testing.T) {
	captureCLI(t)
	t.Cleanup(func() { logutil.SetupLogger(false, false) })

	assert.Equal(t, 0, executeContext(context.Background(), []string{"--log-level", "warn", "version", "-q"}))
	assert.Equal(t, logutil.LevelWarn, logutil.GetLevel())
}
