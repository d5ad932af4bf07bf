// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jongio/procsup/cliout"
	"github.com/jongio/procsup/config"
	"github.com/jongio/procsup/logutil"
	"github.com/jongio/procsup/notify"
	"github.com/jongio/procsup/registry"
	"github.com/jongio/procsup/supervisor"
)

type runOptions struct {
	configPath    string
	name          string
	runType       string
	stopTimeout   time.Duration
	killWait      time.Duration
	dir           string
	shell         bool
	noCooperative bool
	notify        bool
	metricsPort   int
}

// plan is one process to supervise.
type plan struct {
	spec        supervisor.LaunchSpec
	opts        []supervisor.Option
	stopTimeout time.Duration
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [flags] [-- command [args...]]",
		Short: "Run and supervise processes until they exit or procsup is interrupted",
		Example: `  procsup run -- ./server --port 8080
  procsup run --run-type non-terminating --stop-timeout 5s -- ./worker
  procsup run --shell -- "npm run build && npm test"
  procsup run --config procsup.yaml --notify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans, err := opts.plans(cmd, args)
			if err != nil {
				return err
			}
			return runPlans(cmd.Context(), opts, plans)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML file listing processes to run")
	f.StringVar(&opts.name, "name", "", "Name for a command line process, or the one config entry to run")
	f.StringVar(&opts.runType, "run-type", string(supervisor.SelfTerminating), "self-terminating or non-terminating")
	f.DurationVar(&opts.stopTimeout, "stop-timeout", config.DefaultStopTimeout, "Time to wait after the shutdown signal before killing")
	f.DurationVar(&opts.killWait, "kill-wait", supervisor.DefaultKillWait, "Time to wait for a killed process to disappear")
	f.StringVar(&opts.dir, "dir", "", "Working directory for a command given on the command line")
	f.BoolVar(&opts.shell, "shell", false, "Run the command line through the platform shell")
	f.BoolVar(&opts.noCooperative, "no-cooperative", false, "Skip the shutdown signal and kill on stop")
	f.BoolVar(&opts.notify, "notify", false, "Show a desktop notification when a process fails")
	f.IntVar(&opts.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")
	return cmd
}

func (o *runOptions) plans(cmd *cobra.Command, args []string) ([]plan, error) {
	if len(args) > 0 && o.configPath != "" {
		return nil, errors.New("give either --config or a command, not both")
	}

	var runType supervisor.RunType
	if cmd.Flags().Changed("run-type") || len(args) > 0 {
		rt, err := supervisor.ParseRunType(o.runType)
		if err != nil {
			return nil, err
		}
		runType = rt
	}

	common := []supervisor.Option{supervisor.WithKillWait(o.killWait), supervisor.WithMetrics(o.metricsPort > 0)}

	if len(args) > 0 {
		spec := supervisor.LaunchSpec{
			Name:    o.name,
			Path:    args[0],
			Args:    args[1:],
			Dir:     o.dir,
			RunType: runType,
		}
		if o.shell {
			spec.Path = strings.Join(args, " ")
			spec.Args = nil
			spec.Shell = true
			if spec.Name == "" {
				spec.Name = filepath.Base(args[0])
			}
		}
		opts := append(common, supervisor.WithCooperativeShutdown(!o.noCooperative))
		return []plan{{spec: spec, opts: opts, stopTimeout: o.stopTimeout}}, nil
	}

	if o.configPath == "" {
		return nil, errors.New("nothing to run: pass a command after -- or --config")
	}
	file, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	entries := file.Processes
	if o.name != "" {
		p, ok := file.Lookup(o.name)
		if !ok {
			return nil, fmt.Errorf("no process named %q in %s", o.name, o.configPath)
		}
		entries = []config.ProcessConfig{p}
	}

	plans := make([]plan, 0, len(entries))
	for _, p := range entries {
		spec := p.LaunchSpec()
		if runType != "" {
			spec.RunType = runType
		}
		timeout := p.StopTimeout
		if cmd.Flags().Changed("stop-timeout") {
			timeout = o.stopTimeout
		}
		opts := append(append([]supervisor.Option(nil), common...), p.Options()...)
		if o.noCooperative {
			opts = append(opts, supervisor.WithCooperativeShutdown(false))
		}
		plans = append(plans, plan{spec: spec, opts: opts, stopTimeout: timeout})
	}
	return plans, nil
}

// envRunID is set in every child's environment so that processes started by
// the same invocation can correlate their logs.
const envRunID = "PROCSUP_RUN_ID"

func runPlans(ctx context.Context, o *runOptions, plans []plan) error {
	runID := uuid.NewString()
	log := logutil.NewLogger("cli").WithFields("run", runID)

	if o.metricsPort > 0 {
		srv := supervisor.CreateMetricsServer(o.metricsPort)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var notifier notify.Notifier
	if o.notify {
		n, err := notify.New(notify.DefaultConfig())
		if err != nil {
			log.Warn("desktop notifications unavailable", "error", err)
		} else {
			notifier = n
			defer n.Close()
		}
	}

	cliout.CommandHeader("run")
	if o.metricsPort > 0 && !cliout.IsJSON() {
		cliout.Info("Metrics at http://localhost:%d/metrics", o.metricsPort)
	}

	reg := registry.New()
	sups := make([]*supervisor.Supervisor, len(plans))
	var forwarders sync.WaitGroup
	for i, p := range plans {
		spec := p.spec
		spec.Env = append(append([]string(nil), spec.Env...), envRunID+"="+runID)
		sup := supervisor.New(spec, p.opts...)
		sups[i] = sup
		reg.Track(sup.Name(), sup)

		lines, cancel := sup.Output()
		forwarders.Add(1)
		go func(name string) {
			defer forwarders.Done()
			defer cancel()
			forwardOutput(name, lines)
		}(sup.Name())

		if err := sup.Start(ctx); err != nil {
			if !cliout.IsJSON() {
				cliout.Error("%s: %v", sup.Name(), err)
			}
			continue
		}
		log.Debug("started", "name", sup.Name(), "pid", sup.PID())
	}

	allDone := make(chan struct{})
	go func() {
		for _, sup := range sups {
			<-sup.Done()
		}
		close(allDone)
	}()

	var stopErrs []error
	select {
	case <-allDone:
	case <-ctx.Done():
		if !cliout.IsJSON() {
			cliout.Warning("Interrupted, stopping %d process(es)", len(sups))
		}
		stopErrs = stopAll(sups, plans)
		releaseUnfinished(reg, sups, stopErrs)
	}

	reg.Wait()
	forwarders.Wait()

	entries := reg.List()
	for _, e := range entries {
		if err := notify.AlertUnexpectedExit(context.Background(), notifier, e.Name, e.State, e.ExitCode); err != nil {
			log.Warn("failed to send notification", "name", e.Name, "error", err)
		}
	}

	if err := cliout.Print(entries, func() { printEntries(entries) }); err != nil {
		return err
	}
	if len(reg.Failed()) > 0 || errors.Join(stopErrs...) != nil {
		return &exitCodeError{code: 1}
	}
	return nil
}

// stopAll stops every supervisor concurrently. Stop is a no-op for those already
// finished. The returned slice holds each supervisor's stop error, if any.
func stopAll(sups []*supervisor.Supervisor, plans []plan) []error {
	log := logutil.NewLogger("cli")
	errs := make([]error, len(sups))
	var wg sync.WaitGroup
	for i, sup := range sups {
		wg.Add(1)
		go func(i int, sup *supervisor.Supervisor, timeout time.Duration) {
			defer wg.Done()
			state, err := sup.Stop(context.Background(), timeout)
			if err != nil {
				log.Error("failed to stop process", "name", sup.Name(), "state", state.String(), "error", err)
				errs[i] = err
			}
		}(i, sup, plans[i].stopTimeout)
	}
	wg.Wait()
	return errs
}

// releaseUnfinished drops the subscriptions of supervisors that could not be
// stopped so that their streams end, and records the failure on their entries.
// Such processes are left in Stopping.
func releaseUnfinished(reg *registry.Registry, sups []*supervisor.Supervisor, errs []error) {
	for i, sup := range sups {
		if i >= len(errs) || errs[i] == nil {
			continue
		}
		sup.Close()
		msg := errs[i].Error()
		_ = reg.Update(sup.Name(), func(e *registry.Entry) { e.Error = msg })
	}
}

func forwardOutput(name string, lines <-chan supervisor.OutputLine) {
	for line := range lines {
		if cliout.IsJSON() {
			logutil.Debug("output", "name", name, "stream", line.Stream, "text", line.Text)
			continue
		}
		cliout.Prefixed(name, line.Text, line.Stream == supervisor.StreamStderr)
	}
}

func printEntries(entries []registry.Entry) {
	cliout.Newline()
	rows := make([]cliout.TableRow, 0, len(entries))
	for _, e := range entries {
		row := cliout.TableRow{
			"NAME":  e.Name,
			"PID":   "-",
			"STATE": cliout.Status(e.State.String()),
			"EXIT":  "-",
			"TIME":  "-",
			"ENDED": "-",
		}
		if e.PID > 0 {
			row["PID"] = strconv.Itoa(e.PID)
		}
		if e.ExitCode != nil {
			row["EXIT"] = strconv.Itoa(*e.ExitCode)
		}
		if !e.StartTime.IsZero() && !e.EndTime.IsZero() {
			row["TIME"] = e.EndTime.Sub(e.StartTime).Round(time.Millisecond).String()
		}
		if !e.EndTime.IsZero() {
			row["ENDED"] = humanize.Time(e.EndTime)
		}
		rows = append(rows, row)
	}
	cliout.Table([]string{"NAME", "PID", "STATE", "EXIT", "TIME", "ENDED"}, rows)

	for _, e := range entries {
		if e.Error != "" {
			cliout.Error("%s: %s", e.Name, e.Error)
		}
	}
	if n := countFailed(entries); n > 0 {
		cliout.Newline()
		cliout.Warning("%d of %d process(es) failed", n, len(entries))
		cliout.Hint("Rerun with --debug for lifecycle logs", "use -o json for exit details")
	}
}

func countFailed(entries []registry.Entry) int {
	n := 0
	for _, e := range entries {
		if e.State.IsFailure() {
			n++
		}
	}
	return n
}
