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
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/filter"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Query describes a visit: direction, edge types, filter expression, and
// whether the connecting edges ride along with the matched nodes.
type Query = filter.Query

// VisitOption customizes one Visit call.
type VisitOption func(*visitOpts)

type visitOpts struct {
	index    int
	hasIndex bool
}

// At inserts the visit's targets at the given queue position instead of
// appending. 0 prepends for depth-first traversal; a negative index
// counts from the tail; out-of-range indices clamp.
func At(index int) VisitOption {
	return func(o *visitOpts) {
		o.index = index
		o.hasIndex = true
	}
}

// Context is the scope an ability handler runs in: the walker, the
// element it is standing on, and the operations that steer the walk.
//
// Description:
//
//	One Context is created per handler invocation and expires when the
//	invocation ends (handler returned and background tasks joined).
//	Steering methods called on an expired context return
//	ErrExpiredContext; this is what keeps background tasks from
//	mutating the traversal after their handler is gone.
//
// Thread Safety: the owning handler runs alone; Report and Go are safe
// from the handler's own background tasks while the invocation lasts.
type Context struct {
	ctx   context.Context
	eng   *Engine
	w     *Walker
	ref   graph.Ref
	node  *graph.Node
	edge  *graph.Edge
	phase ability.Phase

	// entryFrame is the prospective pending-exit frame of the current
	// element. Nil during exit phases: targets enqueued from an exit
	// handler are parentless, like spawn seeds.
	entryFrame *frame

	active atomic.Bool

	groupMu sync.Mutex
	group   *errgroup.Group
}

// Ctx returns the spawn's context. Cancellation aborts the walk between
// handler invocations.
func (c *Context) Ctx() context.Context {
	return c.ctx
}

// Self returns the walker instance.
func (c *Context) Self() *Walker {
	return c.w
}

// Phase returns the ability phase this handler is running in.
func (c *Context) Phase() ability.Phase {
	return c.phase
}

// HereRef returns the current element's reference.
func (c *Context) HereRef() graph.Ref {
	return c.ref
}

// HereID returns the current element's ID.
func (c *Context) HereID() string {
	return c.ref.ID
}

// HereType returns the current element's declared type name.
func (c *Context) HereType() string {
	return c.ref.Type
}

// HereNode returns the current element as a node copy. The second result
// is false when the walker stands on an edge, or when the element was
// deleted after being scheduled (deferred exits can outlive a delete).
func (c *Context) HereNode() (graph.Node, bool) {
	if c.node == nil {
		return graph.Node{}, false
	}
	return *c.node, true
}

// HereEdge returns the current element as an edge copy. The second
// result is false when the walker stands on a node or the edge vanished.
func (c *Context) HereEdge() (graph.Edge, bool) {
	if c.edge == nil {
		return graph.Edge{}, false
	}
	return *c.edge, true
}

// Field returns a walker field value, nil when absent.
func (c *Context) Field(name string) any {
	v, _ := c.w.Field(name)
	return v
}

// SetField updates a declared walker field.
func (c *Context) SetField(name string, v any) error {
	if !c.active.Load() {
		return ErrExpiredContext
	}
	return c.w.setField(name, v)
}

// Global returns an immutable runtime global.
func (c *Context) Global(name string) (any, bool) {
	return c.eng.global(name)
}

// Logger returns the walker-scoped structured logger.
func (c *Context) Logger() *slog.Logger {
	return c.w.logger
}

// Visit resolves the query from the current element and schedules the
// matching targets.
//
// Description:
//
//	Targets are resolved through the engine's filter resolver (standing
//	on an edge anchors the query at the edge's destination) and
//	inserted into the visit queue as one contiguous block: appended by
//	default, or at the position given with At. Matched edges ride
//	immediately before their far node when q.Edges is set.
//
//	Targets scheduled during an entry defer the current element's exit
//	until they complete; targets scheduled during an exit are
//	parentless, like spawn seeds.
//
// Inputs:
//
//	q - direction, edge types, filter expression, edge ride-along.
//	opts - At(index) for an explicit queue position.
//
// Outputs:
//
//	error - ErrExpiredContext after the invocation ended, ErrDisengaged
//	        after a disengage, filter.EvalError on a bad expression,
//	        store errors otherwise. Zero matches is not an error.
func (c *Context) Visit(q Query, opts ...VisitOption) error {
	if !c.active.Load() {
		return ErrExpiredContext
	}
	if c.w.disengaged {
		return ErrDisengaged
	}
	var vo visitOpts
	for _, opt := range opts {
		opt(&vo)
	}

	refs, err := c.eng.resolver.ResolveTargets(c.ctx, c.ref, q)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	items := make([]queueItem, len(refs))
	for i, r := range refs {
		items[i] = queueItem{ref: r, parent: c.entryFrame}
	}
	c.w.queue.insert(items, vo.index, vo.hasIndex)
	if c.entryFrame != nil {
		c.entryFrame.pending += len(items)
	}
	return nil
}

// Report appends a value to the walker's report list. Reports accumulate
// in call order, keep duplicates, and survive errors and disengage.
func (c *Context) Report(v any) error {
	if !c.active.Load() {
		return ErrExpiredContext
	}
	c.w.addReport(v)
	return nil
}

// Disengage ends the walk immediately and non-recoverably: the calling
// handler is the last to run, the remaining queue is dropped, and no
// further entry or exit handlers fire. Path and reports are preserved.
//
// Returns ErrDisengaged for the handler to propagate:
//
//	return ctx.Disengage()
func (c *Context) Disengage() error {
	if !c.active.Load() {
		return ErrExpiredContext
	}
	c.w.disengage()
	return ErrDisengaged
}

// Skip ends handler processing for the current element and phase;
// traversal continues with the next queue item.
//
// Returns ErrSkip for the handler to propagate:
//
//	return ctx.Skip()
func (c *Context) Skip() error {
	return ErrSkip
}

// Go launches fn as a background task on the engine's bounded worker
// pool.
//
// Description:
//
//	Tasks parallelize work within the current ability invocation. The
//	engine joins all outstanding tasks when the invocation ends; a task
//	error becomes the ability's error and aborts the walk. Tasks
//	exchange plain values through Task.Wait and must not steer the
//	traversal (steering methods expire with the invocation).
//
// Inputs:
//
//	fn - task body. Receives the spawn's context.
//
// Outputs:
//
//	*Task - handle to join through. Nil after the invocation ended.
func (c *Context) Go(fn TaskFunc) *Task {
	if !c.active.Load() {
		return nil
	}
	t := &Task{done: make(chan struct{})}
	c.taskGroup().Go(func() error {
		defer close(t.done)
		t.val, t.err = fn(c.ctx)
		return t.err
	})
	return t
}

// taskGroup lazily creates the invocation's task group with the engine's
// pool limit.
func (c *Context) taskGroup() *errgroup.Group {
	c.groupMu.Lock()
	defer c.groupMu.Unlock()
	if c.group == nil {
		c.group = &errgroup.Group{}
		if c.eng.poolSize > 0 {
			c.group.SetLimit(c.eng.poolSize)
		}
	}
	return c.group
}

// finish expires the context and joins outstanding tasks. The first task
// error is returned and surfaces as the ability's error.
func (c *Context) finish() error {
	c.active.Store(false)
	c.groupMu.Lock()
	g := c.group
	c.groupMu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}
