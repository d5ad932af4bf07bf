// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package registry keeps an in-memory view of supervised processes.
// NOTE: Nothing is persisted. Entries are only valid while the supervising process runs.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jongio/procsup/supervisor"
)

// Entry is the last known status of one supervised process.
type Entry struct {
	Name      string           `json:"name"`
	PID       int              `json:"pid,omitempty"`
	RunType   string           `json:"runType,omitempty"`
	State     supervisor.State `json:"state"`
	ExitCode  *int             `json:"exitCode,omitempty"` // nil while running or when the code is unknown
	StartTime time.Time        `json:"startTime,omitempty"`
	EndTime   time.Time        `json:"endTime,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Registry holds entries keyed by process name. The zero value is not usable; call New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	wg      sync.WaitGroup
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Register adds or replaces an entry.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := entry
	r.entries[entry.Name] = &e
	slog.Debug("registered process", "name", entry.Name, "state", entry.State.String())
}

// Unregister removes an entry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
	slog.Debug("unregistered process", "name", name)
}

// Update applies fn to the named entry under the registry lock.
func (r *Registry) Update(name string, fn func(*Entry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("process not found: %s", name)
	}
	fn(e)
	e.Name = name
	return nil
}

// Get returns a copy of the named entry.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e), true
}

// List returns copies of all entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failed returns the entries whose final state is a failure.
func (r *Registry) Failed() []Entry {
	var out []Entry
	for _, e := range r.List() {
		if e.State.IsFailure() {
			out = append(out, e)
		}
	}
	return out
}

// Track registers sup under name and mirrors its state transitions until it
// reaches a terminal state. Call Wait to block until all tracked supervisors are done.
func (r *Registry) Track(name string, sup *supervisor.Supervisor) {
	r.Register(Entry{Name: name, RunType: string(sup.RunType()), State: sup.State()})

	events, cancel := sup.Subscribe()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		for ev := range events {
			r.apply(name, sup, ev)
		}
	}()
}

// Wait blocks until every tracked supervisor's event stream has ended.
func (r *Registry) Wait() {
	r.wg.Wait()
}

func (r *Registry) apply(name string, sup *supervisor.Supervisor, ev supervisor.Event) {
	err := r.Update(name, func(e *Entry) {
		e.State = ev.Current
		switch {
		case ev.Current == supervisor.Running:
			e.PID = sup.PID()
			e.StartTime = ev.Time
		case ev.Current == supervisor.StartFailed:
			e.EndTime = ev.Time
			if ev.StartErr != nil {
				e.Error = ev.StartErr.Error()
			}
		case ev.Current.IsTerminal():
			e.EndTime = ev.Time
			if ev.ExitCode != nil {
				code := *ev.ExitCode
				e.ExitCode = &code
			}
		}
	})
	if err != nil {
		slog.Debug("dropping event for untracked process", "name", name, "error", err)
	}
}

func copyEntry(e *Entry) Entry {
	c := *e
	if e.ExitCode != nil {
		code := *e.ExitCode
		c.ExitCode = &code
	}
	return c
}
