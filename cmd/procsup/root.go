// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/version"
)

type globalOptions struct {
	debug          bool
	logLevel       string
	structuredLogs bool
	output         string
	noColor        bool
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.debug, "debug", false, "Enable debug logging (also PROCSUP_DEBUG=true)")
	fs.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.BoolVar(&o.structuredLogs, "structured-logs", false, "Write logs as JSON")
	fs.StringVarP(&o.output, "output", "o", "default", "Output format: default or json")
	fs.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
}

func (o *globalOptions) apply() error {
	debug := o.debug || os.Getenv(logutil.EnvDebug) == "true"
	logutil.SetupLogger(debug, o.structuredLogs)
	if o.logLevel != "" && !debug {
		logutil.SetLevel(logutil.ParseLevel(o.logLevel))
	}
	if err := cliout.SetFormat(o.output); err != nil {
		return err
	}
	if o.noColor {
		cliout.NoColor()
	}
	return nil
}

// exitCodeError ends the process with code without printing anything further.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "procsup",
		Short: "Supervise child processes with cooperative shutdown",
		Long: `procsup launches child processes, tracks them through their lifecycle and
stops them by first asking over a per-process shutdown channel, then killing the
process group if they do not exit in time.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.apply()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.addFlags(root.PersistentFlags())

	root.AddCommand(newRunCmd())
	root.AddCommand(newSignalCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newChildCmd())
	root.AddCommand(version.NewCommand(version.New("procsup")))
	return root
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return executeContext(ctx, os.Args[1:])
}

func executeContext(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 1
}
