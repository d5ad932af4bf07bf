// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/shutdown"
)

type signalResult struct {
	PID       int    `json:"pid"`
	Address   string `json:"address"`
	Delivered bool   `json:"delivered"`
}

func newSignalCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "signal <pid>",
		Short: "Ask a process to exit through its shutdown channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := parsePID(args[0])
			if err != nil {
				return err
			}
			if err := shutdown.SignalExit(cmd.Context(), pid, shutdown.WithConnectTimeout(timeout)); err != nil {
				return err
			}

			res := signalResult{PID: pid, Address: shutdown.Address(pid), Delivered: true}
			return cliout.Print(res, func() {
				cliout.Success("Shutdown signal sent to process %d (%s)", pid, res.Address)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", shutdown.DefaultConnectTimeout, "Time allowed to reach the shutdown channel")
	return cmd
}

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid %q", s)
	}
	return pid, nil
}
