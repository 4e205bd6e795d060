// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package walker runs mobile computation over the graph: walkers spawn
// onto elements, traverse along edges, and trigger type-matched entry
// and exit abilities on every element they visit.
//
// A walker is sequential and cooperative. It holds a visit queue and a
// pending-exit stack; abilities steer it by enqueueing further targets
// (Context.Visit), accumulating results (Context.Report), and ending the
// walk (Context.Disengage). Exit abilities unwind call-stack style once
// an element's entire enqueued subtree has completed.
//
// Walker instances are isolated: concurrent spawns share only the store,
// the ability registry, and sealed globals.
package walker

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// State is a walker's lifecycle phase.
type State uint8

const (
	// StateCreated is the phase between instantiation and traversal.
	StateCreated State = iota

	// StateRunning is the traversal phase.
	StateRunning

	// StateDone is terminal: queue drained, disengaged, or aborted.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Walker is one spawned instance of a Spec: its identity, field values,
// and traversal bookkeeping.
//
// Thread Safety: a walker is driven by a single engine goroutine.
// Reports are mutex-guarded because ability tasks may report while their
// owning handler runs; everything else is engine-private.
type Walker struct {
	id     string
	spec   *Spec
	fields map[string]any
	state  State
	logger *slog.Logger

	queue      visitQueue
	stack      []*frame
	path       []graph.Ref
	exited     map[string]bool
	disengaged bool
	steps      int

	reportsMu sync.Mutex
	reports   []any
}

// newWalker instantiates a spec with validated field values.
func newWalker(spec *Spec, fields map[string]any, logger *slog.Logger) *Walker {
	id := uuid.NewString()
	return &Walker{
		id:     id,
		spec:   spec,
		fields: fields,
		state:  StateCreated,
		exited: make(map[string]bool),
		logger: logger.With("walker", spec.Name, "walker_id", id),
	}
}

// ID returns the instance identity.
func (w *Walker) ID() string {
	return w.id
}

// Name returns the spec name.
func (w *Walker) Name() string {
	return w.spec.Name
}

// State returns the lifecycle phase.
func (w *Walker) State() State {
	return w.state
}

// Field returns a walker field value.
func (w *Walker) Field(name string) (any, bool) {
	v, ok := w.fields[name]
	return v, ok
}

// setField updates a declared field. Undeclared names are rejected so
// field access stays aligned with the spec.
func (w *Walker) setField(name string, v any) error {
	if _, ok := w.fields[name]; !ok {
		return NewConfigError(w.spec.Name, name, "unknown field")
	}
	w.fields[name] = v
	return nil
}

// Path returns a copy of the visited element sequence, in entry order.
func (w *Walker) Path() []graph.Ref {
	out := make([]graph.Ref, len(w.path))
	copy(out, w.path)
	return out
}

// Reports returns a copy of the accumulated reports, in call order with
// duplicates preserved.
func (w *Walker) Reports() []any {
	w.reportsMu.Lock()
	defer w.reportsMu.Unlock()
	out := make([]any, len(w.reports))
	copy(out, w.reports)
	return out
}

// addReport appends one report value.
func (w *Walker) addReport(v any) {
	w.reportsMu.Lock()
	defer w.reportsMu.Unlock()
	w.reports = append(w.reports, v)
}

// disengage ends the walk: the queue and pending-exit stack are dropped
// so no further entry or exit handlers fire. Path and reports survive.
func (w *Walker) disengage() {
	w.disengaged = true
	w.queue.clear()
	w.stack = nil
}
