// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package cmdutil builds the exec.Cmd for a supervised child and splits its
// output into lines.
//
// A command is launched either directly (executable path plus argument list)
// or as a command line handed to the platform's default shell.
package cmdutil

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/jongio/procsup/procutil"
)

// Shell type constants for platform-specific shell detection.
const (
	ShellSh         = "sh"
	ShellBash       = "bash"
	ShellPwsh       = "pwsh"
	ShellPowerShell = "powershell"
	ShellCmd        = "cmd"
)

// DefaultWaitDelay bounds how long Wait keeps copying output after the child
// exits, in case a grandchild inherited stdout and keeps it open.
const DefaultWaitDelay = 2 * time.Second

// ErrEmptyCommand is returned when neither an executable nor a command line was given.
var ErrEmptyCommand = errors.New("empty command")

// OutputLineHandler is a callback for processing output lines in real-time.
type OutputLineHandler func(line string)

// Spec describes how to launch a child process.
type Spec struct {
	// Path is the executable, or the full command line when Shell is set.
	Path string
	// Args are passed to Path; ignored when Shell is set.
	Args []string
	// Dir is the working directory. Empty means the parent's directory.
	Dir string
	// Env holds KEY=VALUE entries appended to the parent's environment.
	Env []string
	// Shell runs Path through GetDefaultShell.
	Shell bool
}

// BuildCommand prepares, but does not start, the command described by spec.
// The child becomes the leader of its own process group.
//
// The context only governs the command's lifetime if the caller wants it to;
// supervisors pass context.Background and manage termination themselves.
func BuildCommand(ctx context.Context, spec Spec) (*exec.Cmd, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return nil, ErrEmptyCommand
	}

	var cmd *exec.Cmd
	if spec.Shell {
		cmd = shellCommand(ctx, GetDefaultShell(), spec.Path)
	} else {
		cmd = exec.CommandContext(ctx, spec.Path, spec.Args...)
	}

	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Env, spec.Env...)
	}
	cmd.Stdin = nil
	cmd.WaitDelay = DefaultWaitDelay
	procutil.ConfigureProcessGroup(cmd)

	return cmd, nil
}

// GetDefaultShell returns the default shell for the current platform.
func GetDefaultShell() string {
	if runtime.GOOS == "windows" {
		if _, err := exec.LookPath(ShellPwsh); err == nil {
			return ShellPwsh
		}
		if _, err := exec.LookPath(ShellPowerShell); err == nil {
			return ShellPowerShell
		}
		return ShellCmd
	}
	if _, err := exec.LookPath(ShellBash); err == nil {
		return ShellBash
	}
	return ShellSh
}

// shellCommand wraps a command line for the given shell.
func shellCommand(ctx context.Context, shell, script string) *exec.Cmd {
	shellLower := strings.ToLower(shell)

	switch {
	case strings.Contains(shellLower, "pwsh") || strings.Contains(shellLower, "powershell"):
		wrapped := "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; " + script
		return exec.CommandContext(ctx, shell, "-NoProfile", "-Command", wrapped)
	case strings.Contains(shellLower, "cmd"):
		return exec.CommandContext(ctx, shell, "/c", script)
	default:
		return exec.CommandContext(ctx, shell, "-c", script)
	}
}
