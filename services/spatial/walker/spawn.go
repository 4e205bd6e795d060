// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Coordinator spawns walkers on an engine. Safe for concurrent use;
// concurrent spawns are isolated from each other.
type Coordinator struct {
	eng *Engine
}

// NewCoordinator creates a spawn coordinator.
func NewCoordinator(eng *Engine) *Coordinator {
	return &Coordinator{eng: eng}
}

// Engine returns the underlying traversal engine.
func (c *Coordinator) Engine() *Engine {
	return c.eng
}

// Result is the outcome of one walker run.
type Result struct {
	// WalkerID is the instance identity.
	WalkerID string

	// Reports holds every Context.Report value, in call order with
	// duplicates preserved.
	Reports []any

	// Path lists visited elements in entry order.
	Path []graph.Ref

	// State is the walker's final lifecycle phase.
	State State
}

// Spawn instantiates a spec and runs it to completion.
//
// Description:
//
//	Field values are validated before anything runs: unknown fields,
//	missing required fields, and rule violations produce a ConfigError
//	with no traversal. The queue is then seeded with the targets in
//	order (an edge target seeds the edge immediately followed by its
//	destination node) and the walker runs until the queue drains, it
//	disengages, or it aborts.
//
// Inputs:
//
//	ctx - caller context; cancellation aborts the walk between handler
//	      invocations.
//	spec - the walker type to instantiate.
//	targets - one or more elements to seed the visit queue with.
//	fields - initial field values. May be nil when the spec needs none.
//
// Outputs:
//
//	*Result - the walk's outcome. On a traversal error the partial
//	          result rides alongside: reports and path accumulated
//	          before the failure are preserved. Nil only when
//	          validation rejected the spawn before a walker existed.
//	error - ConfigError from validation, graph.NotFoundError for a
//	        missing target, ctx.Err(), ErrStepLimit, or AbilityError.
//
// Thread Safety: safe for concurrent use.
func (c *Coordinator) Spawn(ctx context.Context, spec *Spec, targets []graph.Ref, fields map[string]any) (*Result, error) {
	name := "?"
	if spec != nil {
		name = spec.Name
	}
	ctx, span := startSpawnSpan(ctx, name, len(targets))
	defer span.End()

	if spec == nil {
		err := NewConfigError("", "", "nil spec")
		recordSpawn(name, 0, 0, err)
		return nil, spanErr(span, err)
	}
	if err := spec.check(); err != nil {
		recordSpawn(name, 0, 0, err)
		return nil, spanErr(span, err)
	}
	if len(targets) == 0 {
		err := NewConfigError(spec.Name, "", "no spawn targets")
		recordSpawn(name, 0, 0, err)
		return nil, spanErr(span, err)
	}
	vals, err := spec.buildFields(fields)
	if err != nil {
		recordSpawn(name, 0, 0, err)
		return nil, spanErr(span, err)
	}

	w := newWalker(spec, vals, c.eng.logger)
	span.SetAttributes(attribute.String("walker_id", w.id))
	if err := c.seed(w, targets); err != nil {
		recordSpawn(name, 0, 0, err)
		return nil, spanErr(span, err)
	}

	runErr := c.eng.run(ctx, w)
	res := &Result{
		WalkerID: w.id,
		Reports:  w.Reports(),
		Path:     w.Path(),
		State:    w.State(),
	}
	recordSpawn(name, w.steps, len(res.Reports), runErr)
	span.SetAttributes(
		attribute.Int("steps", w.steps),
		attribute.Int("reports", len(res.Reports)),
	)
	if runErr != nil {
		return res, spanErr(span, runErr)
	}
	return res, nil
}

// seed fills the walker's queue with the spawn targets, in order. Seeded
// items have no parent frame: a seed whose entry enqueues nothing exits
// immediately after entry.
func (c *Coordinator) seed(w *Walker, targets []graph.Ref) error {
	for _, t := range targets {
		ref, err := c.eng.store.Ref(t.ID)
		if err != nil {
			return err
		}
		switch ref.Kind {
		case graph.KindEdge:
			edge, err := c.eng.store.Edge(ref.ID)
			if err != nil {
				return err
			}
			dst, err := c.eng.store.Ref(edge.Dst)
			if err != nil {
				return err
			}
			w.queue.insert([]queueItem{{ref: ref}, {ref: dst}}, 0, false)
		default:
			w.queue.insert([]queueItem{{ref: ref}}, 0, false)
		}
	}
	return nil
}
