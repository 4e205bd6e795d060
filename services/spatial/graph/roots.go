// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// =============================================================================
// Root lifecycle
// =============================================================================

// CreateRoot creates a root node.
//
// Description:
//
//	A root anchors a persistent subgraph: its own ID is its root ID, and
//	everything transitively connected to it is stamped persistent and
//	pushed to the collaborator. Multiple roots coexist in one store, one
//	per tenant or session; their subgraphs are isolated.
//
// Outputs:
//   - Node: Detached copy of the new root.
//   - error: ErrMaxNodesExceeded at capacity; persistence errors.
func (s *Store) CreateRoot(ctx context.Context) (Node, error) {
	ctx, span := startStoreSpan(ctx, "graph.create_root", RootType)
	defer span.End()

	if s.nodeCount.Add(1) > s.maxNodes {
		s.nodeCount.Add(-1)
		return Node{}, spanErr(span, ErrMaxNodesExceeded)
	}

	rec := &nodeRec{
		id:    uuid.NewString(),
		typ:   RootType,
		attrs: make(map[string]any),
	}
	rec.rootID = rec.id

	st := &s.stripes[s.stripeIndex(rec.id)]
	st.mu.Lock()
	st.nodes[rec.id] = rec
	node := copyNode(rec)
	snap := snapshotNode(rec)
	st.mu.Unlock()

	s.rootsMu.Lock()
	s.roots[rec.id] = true
	s.rootsMu.Unlock()

	if err := s.saveSnapshots(ctx, []Snapshot{snap}); err != nil {
		return Node{}, spanErr(span, err)
	}

	recordNodeCreated(ctx, RootType)
	s.logger.Info("root created", "root_id", rec.id)
	return node, nil
}

// Roots returns the IDs of all roots known to this store, sorted.
func (s *Store) Roots() []string {
	s.rootsMu.RLock()
	defer s.rootsMu.RUnlock()
	out := make([]string, 0, len(s.roots))
	for id := range s.roots {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadRoot returns the root node, faulting its full closure in from the
// persistence collaborator if it is not already in memory.
//
// Description:
//
//	Concurrent loads of the same root are deduplicated: one backend read
//	serves every waiter. Loaded elements keep their stored adjacency
//	order, so traversal order survives a restart.
//
// Inputs:
//   - ctx: Context for the collaborator read.
//   - rootID: The root's ID.
//
// Outputs:
//   - Node: Detached copy of the root node.
//   - error: ErrNoRootStore without a collaborator; NotFoundError for
//     unknown roots; collaborator errors.
func (s *Store) LoadRoot(ctx context.Context, rootID string) (Node, error) {
	ctx, span := startStoreSpan(ctx, "graph.load_root", RootType)
	defer span.End()
	span.SetAttributes(attribute.String("root_id", rootID))

	s.rootsMu.RLock()
	known := s.roots[rootID]
	s.rootsMu.RUnlock()
	if known {
		node, err := s.Node(rootID)
		return node, spanErr(span, err)
	}

	if s.persist == nil {
		return Node{}, spanErr(span, ErrNoRootStore)
	}

	v, err, _ := s.loads.Do(rootID, func() (any, error) {
		done := startRootLoadTimer(ctx)
		snaps, err := s.persist.LoadRoot(ctx, rootID)
		if err != nil {
			done(0)
			return Node{}, err
		}
		root, err := s.materialize(rootID, snaps)
		done(len(snaps))
		return root, err
	})
	if err != nil {
		return Node{}, spanErr(span, fmt.Errorf("load root %s: %w", rootID, err))
	}

	s.logger.Info("root loaded", "root_id", rootID)
	return v.(Node), nil
}

// materialize installs a loaded closure into the element tables and
// registers the root. Elements already in memory are left untouched.
func (s *Store) materialize(rootID string, snaps []Snapshot) (Node, error) {
	var (
		root      Node
		rootFound bool
		newNodes  int64
		newEdges  int64
	)

	for _, snap := range snaps {
		st := &s.stripes[s.stripeIndex(snap.ID)]
		st.mu.Lock()
		switch snap.Kind {
		case KindNode:
			if _, exists := st.nodes[snap.ID]; !exists {
				st.nodes[snap.ID] = &nodeRec{
					id:     snap.ID,
					typ:    snap.Type,
					attrs:  cloneAttrs(snap.Attrs),
					rootID: snap.RootID,
					adj:    append([]string(nil), snap.Edges...),
				}
				newNodes++
			}
			if snap.ID == rootID {
				root = copyNode(st.nodes[snap.ID])
				rootFound = true
			}
		case KindEdge:
			if _, exists := st.edges[snap.ID]; !exists {
				st.edges[snap.ID] = &edgeRec{
					id:       snap.ID,
					typ:      snap.Type,
					attrs:    cloneAttrs(snap.Attrs),
					rootID:   snap.RootID,
					src:      snap.Src,
					dst:      snap.Dst,
					directed: snap.Directed,
				}
				newEdges++
			}
		}
		st.mu.Unlock()
	}

	if !rootFound {
		return Node{}, NewNotFoundError("root", rootID)
	}

	s.rootsMu.Lock()
	s.roots[rootID] = true
	s.rootsMu.Unlock()

	nodes := s.nodeCount.Add(newNodes)
	edges := s.edgeCount.Add(newEdges)
	setElementGauges(nodes, edges)
	return root, nil
}

// =============================================================================
// Closure stamping
// =============================================================================

// stampComponent walks the connected component containing tipID and stamps
// every ephemeral element with rootID, following edges in both
// orientations: persistence reachability ignores direction.
//
// Returns snapshots of the newly stamped elements in discovery order.
// Encountering an element owned by a different root aborts with
// ErrCrossRoot; the caller compensates by removing the bridging edge.
func (s *Store) stampComponent(ctx context.Context, rootID, tipID string) ([]Snapshot, error) {
	var (
		stamped []Snapshot
		queue   = []string{tipID}
		seen    = map[string]bool{tipID: true}
	)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		st := &s.stripes[s.stripeIndex(id)]
		st.mu.Lock()
		if rec, ok := st.nodes[id]; ok {
			switch rec.rootID {
			case "":
				rec.rootID = rootID
				stamped = append(stamped, snapshotNode(rec))
			case rootID:
				// Already in this closure; its neighbors are too.
				st.mu.Unlock()
				continue
			default:
				other := rec.rootID
				st.mu.Unlock()
				return stamped, fmt.Errorf("%w: %s vs %s", ErrCrossRoot, rootID, other)
			}
			for _, eid := range rec.adj {
				if !seen[eid] {
					seen[eid] = true
					queue = append(queue, eid)
				}
			}
		} else if rec, ok := st.edges[id]; ok {
			switch rec.rootID {
			case "":
				rec.rootID = rootID
				stamped = append(stamped, snapshotEdge(rec))
			case rootID:
				st.mu.Unlock()
				continue
			default:
				other := rec.rootID
				st.mu.Unlock()
				return stamped, fmt.Errorf("%w: %s vs %s", ErrCrossRoot, rootID, other)
			}
			for _, end := range []string{rec.src, rec.dst} {
				if !seen[end] {
					seen[end] = true
					queue = append(queue, end)
				}
			}
		}
		st.mu.Unlock()
	}

	recordStamped(ctx, len(stamped))
	return stamped, nil
}

// =============================================================================
// Sweep
// =============================================================================

// Sweep recomputes reachability for the given roots and demotes stamped
// elements that are no longer connected to their root, removing them from
// the persistence collaborator. With no arguments it sweeps every root.
//
// Description:
//
//	Deletions can strand previously persistent elements: cutting the only
//	edge between a root and a component leaves the component stamped but
//	unreachable. Sweep demotes such elements back to ephemeral. Demoted
//	elements stay in memory and addressable; reclaiming them is the
//	caller's explicit Delete.
//
// Outputs:
//   - int: Number of elements demoted.
//   - error: Persistence errors. The sweep stops at the first failure.
func (s *Store) Sweep(ctx context.Context, rootIDs ...string) (int, error) {
	ctx, span := startStoreSpan(ctx, "graph.sweep", "")
	defer span.End()

	if len(rootIDs) == 0 {
		rootIDs = s.Roots()
	}

	demoted := 0
	for _, rootID := range rootIDs {
		n, err := s.sweepRoot(ctx, rootID)
		demoted += n
		if err != nil {
			span.SetAttributes(attribute.Int("demoted", demoted))
			return demoted, spanErr(span, err)
		}
	}

	span.SetAttributes(attribute.Int("demoted", demoted))
	if demoted > 0 {
		s.logger.Warn("sweep demoted unreachable elements", "count", demoted)
	}
	return demoted, nil
}

func (s *Store) sweepRoot(ctx context.Context, rootID string) (int, error) {
	reachable := s.reachableFrom(rootID)

	// Collect stamped-but-unreachable candidates under read locks.
	var candidates []string
	for i := range s.stripes {
		st := &s.stripes[i]
		st.mu.RLock()
		for id, rec := range st.nodes {
			if rec.rootID == rootID && !reachable[id] {
				candidates = append(candidates, id)
			}
		}
		for id, rec := range st.edges {
			if rec.rootID == rootID && !reachable[id] {
				candidates = append(candidates, id)
			}
		}
		st.mu.RUnlock()
	}
	sort.Strings(candidates)

	demoted := 0
	for _, id := range candidates {
		st := &s.stripes[s.stripeIndex(id)]
		st.mu.Lock()
		changed := false
		if rec, ok := st.nodes[id]; ok && rec.rootID == rootID {
			rec.rootID = ""
			changed = true
		} else if rec, ok := st.edges[id]; ok && rec.rootID == rootID {
			rec.rootID = ""
			changed = true
		}
		st.mu.Unlock()

		if !changed {
			continue
		}
		demoted++
		s.logger.Debug("element demoted to ephemeral", "elem_id", id, "root_id", rootID)
		if s.persist != nil {
			if err := s.persist.Delete(ctx, rootID, id); err != nil {
				return demoted, fmt.Errorf("sweep %s: delete %s: %w", rootID, id, err)
			}
		}
	}
	return demoted, nil
}

// reachableFrom returns the IDs of every node and edge connected to the
// root, ignoring edge direction.
func (s *Store) reachableFrom(rootID string) map[string]bool {
	reachable := map[string]bool{rootID: true}
	queue := []string{rootID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		st := &s.stripes[s.stripeIndex(id)]
		st.mu.RLock()
		if rec, ok := st.nodes[id]; ok {
			for _, eid := range rec.adj {
				if !reachable[eid] {
					reachable[eid] = true
					queue = append(queue, eid)
				}
			}
		} else if rec, ok := st.edges[id]; ok {
			for _, end := range []string{rec.src, rec.dst} {
				if !reachable[end] {
					reachable[end] = true
					queue = append(queue, end)
				}
			}
		}
		st.mu.RUnlock()
	}
	return reachable
}
