// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/procwatch"
	"github.com/jongio/procsup/shutdown"
)

type childOptions struct {
	parentPID    int
	exitCode     int
	ignoreSignal bool
}

func newChildCmd() *cobra.Command {
	opts := &childOptions{}
	cmd := &cobra.Command{
		Use:   "child",
		Short: "Run a cooperative child that exits when asked to shut down",
		Long: `Run a long-lived child that listens on its shutdown channel and exits when
signaled, or when the process given by --parent-pid goes away. Useful for
trying out "procsup run" and "procsup signal".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChild(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.parentPID, "parent-pid", 0, "Exit when this process exits")
	f.IntVar(&opts.exitCode, "exit-code", 0, "Exit code to use when shutting down")
	f.BoolVar(&opts.ignoreSignal, "ignore-signal", false, "Receive shutdown signals but keep running")
	return cmd
}

func runChild(cmd *cobra.Command, opts *childOptions) error {
	ctx := cmd.Context()
	log := logutil.NewLogger("cli").WithProcess("child", os.Getpid())

	signaled := make(chan struct{})
	l, err := shutdown.Listen(os.Getpid(), func() {
		if opts.ignoreSignal {
			log.Info("shutdown signal received, ignoring")
			return
		}
		close(signaled)
	})
	if err != nil {
		return err
	}
	defer l.Close()

	parentGone := make(chan struct{})
	if opts.parentPID > 0 {
		w := procwatch.ExitWhenParentExits(ctx, opts.parentPID, func(procwatch.Exit) {
			close(parentGone)
		})
		defer w.Stop()
	}

	cliout.Plain("ready")
	log.Debug("waiting for shutdown", "address", l.Address())

	select {
	case <-signaled:
		log.Info("shutdown requested")
	case <-parentGone:
		log.Info("parent exited", "parentPid", opts.parentPID)
	case <-ctx.Done():
		log.Info("interrupted")
	}

	if opts.exitCode != 0 {
		return &exitCodeError{code: opts.exitCode}
	}
	return nil
}
