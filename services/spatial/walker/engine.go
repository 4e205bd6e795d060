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
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/config"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/filter"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Engine drives walker traversals over one graph store. Engines are
// cheap, immutable after construction, and shared by every spawn.
type Engine struct {
	store    *graph.Store
	resolver *filter.Resolver
	registry *Registry
	globals  *config.Globals
	logger   *slog.Logger
	maxSteps int
	poolSize int

	filterCacheSize int
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger walkers inherit.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGlobals attaches sealed runtime globals readable through
// Context.Global.
func WithGlobals(g *config.Globals) EngineOption {
	return func(e *Engine) {
		e.globals = g
	}
}

// WithMaxSteps bounds the number of elements a single walker may visit.
// Zero means unlimited.
func WithMaxSteps(n int) EngineOption {
	return func(e *Engine) {
		e.maxSteps = n
	}
}

// WithPoolSize bounds concurrent background tasks per ability
// invocation. Zero means unlimited.
func WithPoolSize(n int) EngineOption {
	return func(e *Engine) {
		e.poolSize = n
	}
}

// WithFilterCacheSize bounds the compiled filter expression cache.
func WithFilterCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.filterCacheSize = n
	}
}

// WithResolver replaces the engine's visit resolver.
func WithResolver(r *filter.Resolver) EngineOption {
	return func(e *Engine) {
		e.resolver = r
	}
}

// NewEngine creates a traversal engine over a store.
//
// Inputs:
//
//	store - the graph store walkers traverse. Required.
//	registry - default ability registry. May be nil; walkers then rely
//	           on per-spec registries, and specs without one trigger no
//	           handlers (a no-op traversal records path only).
//	opts - engine options.
//
// Outputs:
//
//	*Engine - the engine.
//	error - if the store is missing.
func NewEngine(store *graph.Store, registry *Registry, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("walker: engine requires a store")
	}
	e := &Engine{
		store:    store,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = filter.NewResolver(store,
			filter.WithCacheSize(e.filterCacheSize),
			filter.WithLogger(e.logger),
		)
	}
	return e, nil
}

// Store returns the engine's graph store.
func (e *Engine) Store() *graph.Store {
	return e.store
}

// Registry returns the engine's default ability registry, nil if none.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// global reads a sealed runtime global.
func (e *Engine) global(name string) (any, bool) {
	if e.globals == nil {
		return nil, false
	}
	return e.globals.Get(name)
}

// =============================================================================
// Traversal loop
// =============================================================================

// run drives one walker until its queue drains, it disengages, or it
// aborts.
//
// Description:
//
//	Dequeues the front element, appends it to the path, and runs its
//	entry handlers. An entry that enqueued targets defers the element's
//	exit behind a pending-exit frame; an entry that enqueued nothing
//	completes immediately (exit now for parentless seeds, exit during
//	the parent's unwind otherwise). After each element the stack
//	unwinds every frame whose subtree has completed, most recently
//	entered first.
//
//	Elements deleted between scheduling and arrival are skipped
//	silently: no path entry, no handlers, parent bookkeeping still
//	settles.
//
// Outputs:
//
//	error - ctx.Err() on cancellation, ErrStepLimit past the visit
//	        bound, AbilityError on a handler failure. Nil on normal
//	        drain and on disengage.
func (e *Engine) run(ctx context.Context, w *Walker) error {
	w.state = StateRunning
	defer func() { w.state = StateDone }()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, ok := w.queue.pop()
		if !ok {
			return nil
		}
		if e.maxSteps > 0 && w.steps >= e.maxSteps {
			return fmt.Errorf("walker %q: %w (max %d)", w.spec.Name, ErrStepLimit, e.maxSteps)
		}

		node, edge, exists := e.lookup(item.ref)
		if !exists {
			if item.parent != nil {
				item.parent.pending--
			}
			if err := e.tryUnwind(ctx, w); err != nil {
				return err
			}
			continue
		}

		w.steps++
		w.path = append(w.path, item.ref)

		f := &frame{ref: item.ref, parent: item.parent}
		if err := e.runPhase(ctx, w, item.ref, node, edge, f, ability.PhaseEntry); err != nil {
			return err
		}
		if w.disengaged {
			return nil
		}

		if f.pending > 0 {
			w.stack = append(w.stack, f)
		} else if err := e.completeLeaf(ctx, w, item); err != nil {
			return err
		}

		if err := e.tryUnwind(ctx, w); err != nil {
			return err
		}
	}
}

// completeLeaf settles an element whose entry enqueued nothing. With no
// parent frame its exit runs immediately; otherwise the exit defers to
// the parent's unwind, in completion order.
func (e *Engine) completeLeaf(ctx context.Context, w *Walker, item queueItem) error {
	if item.parent == nil {
		return e.runExit(ctx, w, item.ref)
	}
	item.parent.leafExits = append(item.parent.leafExits, item.ref)
	item.parent.pending--
	return nil
}

// tryUnwind pops every ready pending-exit frame. A frame is ready when
// all of its directly enqueued targets have completed; frames unwind
// top-down, so the most recently entered ready element exits first.
func (e *Engine) tryUnwind(ctx context.Context, w *Walker) error {
	for len(w.stack) > 0 {
		top := w.stack[len(w.stack)-1]
		if top.pending > 0 {
			return nil
		}
		for _, ref := range top.leafExits {
			if err := e.runExit(ctx, w, ref); err != nil {
				return err
			}
			if w.disengaged {
				return nil
			}
		}
		if err := e.runExit(ctx, w, top.ref); err != nil {
			return err
		}
		if w.disengaged {
			return nil
		}
		w.stack = w.stack[:len(w.stack)-1]
		if top.parent != nil {
			top.parent.pending--
		}
	}
	return nil
}

// runExit runs an element's exit handlers at most once per walker run;
// later completions of the same element are no-ops. The element is
// re-resolved so handlers see current attributes; a deleted element
// still exits, with the Here accessors reporting absence.
func (e *Engine) runExit(ctx context.Context, w *Walker, ref graph.Ref) error {
	if w.exited[ref.ID] {
		return nil
	}
	w.exited[ref.ID] = true
	node, edge, _ := e.lookup(ref)
	return e.runPhase(ctx, w, ref, node, edge, nil, ability.PhaseExit)
}

// runPhase runs the handlers resolved for one element and phase, in
// resolution order.
//
// Description:
//
//	Each handler gets a fresh Context that expires when the invocation
//	ends; outstanding background tasks are joined before the next
//	handler starts, and a task error becomes the ability's error. The
//	skip sentinel ends the phase, the disengage sentinel ends the walk,
//	anything else aborts with an AbilityError.
func (e *Engine) runPhase(ctx context.Context, w *Walker, ref graph.Ref,
	node *graph.Node, edge *graph.Edge, f *frame, phase ability.Phase) error {

	handlers := e.handlersFor(w, ref.Type, phase)
	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		actx := &Context{
			ctx:        ctx,
			eng:        e,
			w:          w,
			ref:        ref,
			node:       node,
			edge:       edge,
			phase:      phase,
			entryFrame: f,
		}
		actx.active.Store(true)

		stop := startAbilityTimer(phase)
		herr := h(actx)
		terr := actx.finish()
		stop()

		if terr != nil && !errors.Is(terr, ErrSkip) && !errors.Is(terr, ErrDisengaged) {
			return e.abilityErr(w, ref, phase, terr)
		}
		if herr != nil {
			switch {
			case errors.Is(herr, ErrDisengaged):
				// Idempotent when the handler already went through
				// Context.Disengage.
				w.disengage()
				return nil
			case errors.Is(herr, ErrSkip):
				return nil
			default:
				return e.abilityErr(w, ref, phase, herr)
			}
		}
		if w.disengaged {
			return nil
		}
	}
	return nil
}

// handlersFor resolves the handler chain for a type and phase, using the
// spec's registry when it has one.
func (e *Engine) handlersFor(w *Walker, typeName string, phase ability.Phase) []Handler {
	reg := w.spec.Abilities
	if reg == nil {
		reg = e.registry
	}
	if reg == nil {
		return nil
	}
	return reg.Resolve(typeName, phase)
}

// lookup fetches the element behind a ref. ok is false when it no
// longer exists.
func (e *Engine) lookup(ref graph.Ref) (node *graph.Node, edge *graph.Edge, ok bool) {
	switch ref.Kind {
	case graph.KindNode:
		n, err := e.store.Node(ref.ID)
		if err != nil {
			return nil, nil, false
		}
		return &n, nil, true
	case graph.KindEdge:
		ed, err := e.store.Edge(ref.ID)
		if err != nil {
			return nil, nil, false
		}
		return nil, &ed, true
	default:
		return nil, nil, false
	}
}

// abilityErr logs and wraps a handler failure.
func (e *Engine) abilityErr(w *Walker, ref graph.Ref, phase ability.Phase, err error) error {
	w.logger.Warn("ability failed",
		"elem_id", ref.ID,
		"elem_type", ref.Type,
		"phase", phase.String(),
		"error", err,
	)
	return &AbilityError{
		WalkerID: w.id,
		Walker:   w.spec.Name,
		Elem:     ref,
		Phase:    phase,
		Err:      err,
	}
}
