// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Query describes one visit-target resolution: which direction to look,
// which edge types to traverse, and an optional filter expression over
// the candidates.
type Query struct {
	// Dir selects outgoing, incoming, or both adjacency directions.
	Dir graph.Direction

	// EdgeTypes restricts traversal to edges of these types or their
	// subtypes. Empty means every edge type.
	EdgeTypes []string

	// Expr is an optional filter expression evaluated per candidate.
	// Empty matches everything.
	Expr string

	// Edges queues the connecting edge immediately before each matched
	// node instead of the node alone.
	Edges bool
}

// Resolver turns visit queries into ordered element references. It owns
// the compiled-filter cache shared by every walker on a store.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	store  *graph.Store
	cache  *Cache
	logger *slog.Logger
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCacheSize bounds the compiled-filter cache.
func WithCacheSize(n int) ResolverOption {
	return func(r *Resolver) {
		r.cache = NewCache(n)
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store *graph.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  NewCache(DefaultCacheSize),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveTargets evaluates a visit query from a source element.
//
// Description:
//
//	Anchors the query at the source node (a source edge anchors at its
//	destination), lists neighbors in adjacency order, applies the
//	query's filter expression to each candidate, and returns the
//	surviving references. With q.Edges set, each matched node is
//	preceded by its connecting edge, preserving pair order.
//
//	A source that no longer exists resolves to no targets rather than
//	an error: walkers race deletions by design, and a vanished element
//	simply has nothing to visit.
//
// Inputs:
//
//	ctx - context for the underlying store reads.
//	source - the element the walker currently occupies.
//	q - direction, edge-type, and filter constraints.
//
// Outputs:
//
//	[]graph.Ref - matched references in adjacency order.
//	error - EvalError on a bad filter expression; store errors otherwise.
//
// Thread Safety: Safe for concurrent use.
func (r *Resolver) ResolveTargets(ctx context.Context, source graph.Ref, q Query) ([]graph.Ref, error) {
	anchor := source.ID
	if source.Kind == graph.KindEdge {
		e, err := r.store.Edge(source.ID)
		if err != nil {
			if errors.Is(err, graph.ErrNotFound) {
				r.logger.DebugContext(ctx, "visit source edge vanished", "edge_id", source.ID)
				return nil, nil
			}
			return nil, err
		}
		anchor = e.Dst
	}

	neighbors, err := r.store.Neighbors(ctx, anchor, q.Dir, q.EdgeTypes...)
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			r.logger.DebugContext(ctx, "visit source vanished", "node_id", anchor)
			return nil, nil
		}
		return nil, err
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	var f *Filter
	if q.Expr != "" {
		f, err = r.cache.GetOrCompile(q.Expr)
		if err != nil {
			return nil, err
		}
	}

	refs := make([]graph.Ref, 0, len(neighbors))
	for _, n := range neighbors {
		if f != nil {
			ok, merr := f.Match(Candidate{Node: n.Node, Edge: n.Edge})
			if merr != nil {
				return nil, merr
			}
			if !ok {
				continue
			}
		}
		if q.Edges {
			refs = append(refs, n.Edge.Ref())
		}
		refs = append(refs, n.Node.Ref())
	}
	return refs, nil
}
