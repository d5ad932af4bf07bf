// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jongio/procsup/shutdown"
)

// Environment variables that switch a test binary into helper mode.
const (
	EnvHelperMode = "PROCSUP_TEST_HELPER"
	EnvHelperArgs = "PROCSUP_TEST_HELPER_ARGS"
)

// ReadyLine is printed by listening helpers once the shutdown channel is bound.
const ReadyLine = "ready"

// Helper behaviors.
const (
	// ModeEcho prints each argument on its own line and exits 0.
	ModeEcho = "echo"
	// ModeEnv prints NAME=value for each environment variable named in the arguments.
	ModeEnv = "env"
	// ModeExit exits with the code given as the first argument.
	ModeExit = "exit"
	// ModeSleep sleeps for the duration given as the first argument, then exits 0.
	ModeSleep = "sleep"
	// ModeCooperative listens for shutdown, prints ReadyLine, and exits with the
	// code given as the first argument (default 0) once signaled.
	ModeCooperative = "cooperative"
	// ModeStubborn listens for shutdown, prints ReadyLine, and never exits on its own.
	ModeStubborn = "stubborn"
)

// HelperSpec is how to launch the current test binary as a helper child.
type HelperSpec struct {
	Path string
	Args []string
	Env  []string
}

// Helper returns the launch description for a helper child running mode.
func Helper(mode string, args ...string) HelperSpec {
	return HelperSpec{
		Path: os.Args[0],
		Args: []string{"-test.run=^$"},
		Env: []string{
			EnvHelperMode + "=" + mode,
			EnvHelperArgs + "=" + strings.Join(args, " "),
		},
	}
}

// RunHelperIfRequested runs the helper behavior and exits when the process was
// launched by Helper. It returns immediately otherwise.
func RunHelperIfRequested() {
	mode := os.Getenv(EnvHelperMode)
	if mode == "" {
		return
	}
	args := strings.Fields(os.Getenv(EnvHelperArgs))
	os.Exit(runHelper(mode, args))
}

func runHelper(mode string, args []string) int {
	switch mode {
	case ModeEcho:
		for _, a := range args {
			fmt.Println(a)
		}
		return 0
	case ModeEnv:
		for _, name := range args {
			fmt.Printf("%s=%s\n", name, os.Getenv(name))
		}
		return 0
	case ModeExit:
		return intArg(args, 0)
	case ModeSleep:
		d, err := time.ParseDuration(firstArg(args, "1h"))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		time.Sleep(d)
		return 0
	case ModeCooperative:
		ctx, stop, err := shutdown.NotifyContext(context.Background(), os.Getpid())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Println(ReadyLine)
		<-ctx.Done()
		_ = stop()
		return intArg(args, 0)
	case ModeStubborn:
		l, err := shutdown.Listen(os.Getpid(), func() {})
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		defer l.Close()
		fmt.Println(ReadyLine)
		select {}
	default:
		fmt.Fprintf(os.Stderr, "unknown helper mode %q\n", mode)
		return 2
	}
}

func firstArg(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

func intArg(args []string, def int) int {
	n, err := strconv.Atoi(firstArg(args, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return n
}
