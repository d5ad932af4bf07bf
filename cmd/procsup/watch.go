// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/procwatch"
)

type watchResult struct {
	PID    int       `json:"pid"`
	Exited bool      `json:"exited"`
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func newWatchCmd() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <pid>",
		Short: "Wait until a process exits",
		Long: `Wait until the process exits. A pid that does not exist, or has already
exited, is reported as exited immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			w := procwatch.Watch(ctx, procwatch.NewPIDSource(pid, procwatch.WithPollInterval(interval)))
			defer w.Stop()
			exit, err := w.Wait(ctx)
			if err != nil {
				return err
			}

			res := watchResult{PID: pid, Exited: true, Status: exit.String(), Time: exit.Time}
			return cliout.Print(res, func() {
				cliout.Success("Process %d exited", pid)
				cliout.Item("%s", res.Status)
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", procwatch.DefaultPollInterval, "Liveness poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 waits forever)")
	return cmd
}
