// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package config loads process definitions for the procsup CLI from YAML.
//
//	processes:
//	  - name: api
//	    command: ["./server", "--port", "8080"]
//	    workingDir: ./svc
//	    env: {LOG_LEVEL: debug}
//	    runType: non-terminating
//	    stopTimeout: 5s
//	    cooperativeShutdown: true
//	  - name: worker
//	    commandLine: ./worker --queue "high priority"
//	  - name: migrate
//	    shell: ./migrate.sh && echo done
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/jongio/procsup/supervisor"
)

// DefaultStopTimeout applies to processes that do not set stopTimeout.
const DefaultStopTimeout = 10 * time.Second

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// File is the top-level configuration document.
type File struct {
	Processes []ProcessConfig `yaml:"processes"`
}

// ProcessConfig describes one supervised process.
type ProcessConfig struct {
	Name string `yaml:"name"`
	// Command is the executable followed by its arguments.
	Command []string `yaml:"command,omitempty"`
	// CommandLine is split into words with shell quoting rules but run without a shell.
	CommandLine string `yaml:"commandLine,omitempty"`
	// Shell is a command line run through the platform shell.
	// Exactly one of Command, CommandLine and Shell is set.
	Shell      string            `yaml:"shell,omitempty"`
	WorkingDir string            `yaml:"workingDir,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	RunType    string            `yaml:"runType,omitempty"`
	// StopTimeout is how long Stop waits after the shutdown signal before killing.
	StopTimeout         time.Duration `yaml:"stopTimeout,omitempty"`
	CooperativeShutdown *bool         `yaml:"cooperativeShutdown,omitempty"`
}

// Load reads and validates the file at path. Relative working directories are
// resolved against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", path, err)
	}
	baseDir := filepath.Dir(absPath)
	for i := range f.Processes {
		p := &f.Processes[i]
		if p.WorkingDir != "" && !filepath.IsAbs(p.WorkingDir) {
			p.WorkingDir = filepath.Join(baseDir, p.WorkingDir)
		}
	}
	return f, nil
}

// Parse decodes a YAML document, applies defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	for i := range f.Processes {
		p := &f.Processes[i]
		if p.RunType == "" {
			p.RunType = string(supervisor.SelfTerminating)
		}
		if p.StopTimeout == 0 {
			p.StopTimeout = DefaultStopTimeout
		}
	}
}

// Validate reports every problem in the file at once.
func (f *File) Validate() error {
	if len(f.Processes) == 0 {
		return fmt.Errorf("%w: no processes defined", ErrInvalidConfig)
	}

	var errs []error
	seen := make(map[string]bool, len(f.Processes))
	for i, p := range f.Processes {
		label := fmt.Sprintf("processes[%d]", i)
		if p.Name != "" {
			label = fmt.Sprintf("process %q", p.Name)
		}

		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", label))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", label))
		}
		seen[p.Name] = true

		sources := 0
		for _, set := range []bool{len(p.Command) > 0, strings.TrimSpace(p.CommandLine) != "", strings.TrimSpace(p.Shell) != ""} {
			if set {
				sources++
			}
		}
		switch {
		case sources > 1:
			errs = append(errs, fmt.Errorf("%s: command, commandLine and shell are mutually exclusive", label))
		case sources == 0:
			errs = append(errs, fmt.Errorf("%s: one of command, commandLine or shell is required", label))
		case strings.TrimSpace(p.Shell) == "":
			argv, err := p.argv()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			} else if strings.TrimSpace(argv[0]) == "" {
				errs = append(errs, fmt.Errorf("%s: command executable is empty", label))
			}
		}

		if p.RunType != "" {
			if _, err := supervisor.ParseRunType(p.RunType); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
		}
		if p.StopTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: stopTimeout must not be negative", label))
		}
		for k := range p.Env {
			if k == "" || strings.Contains(k, "=") {
				errs = append(errs, fmt.Errorf("%s: invalid environment variable name %q", label, k))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Lookup returns the process named name.
func (f *File) Lookup(name string) (ProcessConfig, bool) {
	for _, p := range f.Processes {
		if p.Name == name {
			return p, true
		}
	}
	return ProcessConfig{}, false
}

// Cooperative reports whether Stop should signal the process before killing it.
func (p ProcessConfig) Cooperative() bool {
	return p.CooperativeShutdown == nil || *p.CooperativeShutdown
}

// LaunchSpec converts the entry for supervisor.New. The entry must be valid.
func (p ProcessConfig) LaunchSpec() supervisor.LaunchSpec {
	runType, err := supervisor.ParseRunType(p.RunType)
	if err != nil {
		runType = supervisor.SelfTerminating
	}

	spec := supervisor.LaunchSpec{
		Name:    p.Name,
		Dir:     p.WorkingDir,
		Env:     envList(p.Env),
		RunType: runType,
	}
	if p.Shell != "" {
		spec.Path = p.Shell
		spec.Shell = true
	} else if argv, err := p.argv(); err == nil {
		spec.Path = argv[0]
		spec.Args = append([]string(nil), argv[1:]...)
	}
	return spec
}

// argv returns Command, or CommandLine split into words.
func (p ProcessConfig) argv() ([]string, error) {
	if len(p.Command) > 0 {
		return p.Command, nil
	}
	words, err := shlex.Split(p.CommandLine)
	if err != nil {
		return nil, fmt.Errorf("failed to split commandLine: %w", err)
	}
	if len(words) == 0 {
		return nil, errors.New("commandLine is empty")
	}
	return words, nil
}

// Options returns the supervisor options implied by the entry.
func (p ProcessConfig) Options() []supervisor.Option {
	return []supervisor.Option{supervisor.WithCooperativeShutdown(p.Cooperative())}
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
