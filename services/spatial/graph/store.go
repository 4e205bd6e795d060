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
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Default store sizing.
const (
	// DefaultStripeCount is the number of lock stripes. Element IDs hash
	// onto stripes; operations lock only the stripes they touch.
	DefaultStripeCount = 64

	// DefaultMaxNodes caps node count to prevent runaway memory use.
	DefaultMaxNodes = 1_000_000

	// DefaultMaxEdges caps edge count.
	DefaultMaxEdges = 4_000_000
)

// =============================================================================
// Internal records
// =============================================================================

// nodeRec is the stored form of a node. Guarded by its stripe lock.
type nodeRec struct {
	id     string
	typ    string
	attrs  map[string]any
	rootID string

	// adj lists incident edge IDs in creation order, both orientations,
	// self-loops once.
	adj []string
}

// edgeRec is the stored form of an edge. Guarded by its stripe lock.
type edgeRec struct {
	id       string
	typ      string
	attrs    map[string]any
	rootID   string
	src      string
	dst      string
	directed bool
}

// stripe is one lock partition of the element tables.
type stripe struct {
	mu    sync.RWMutex
	nodes map[string]*nodeRec
	edges map[string]*edgeRec
}

// =============================================================================
// Store
// =============================================================================

// Store is the concurrent typed graph store.
//
// Description:
//
//	Store holds nodes and edges in lock-striped tables keyed by element
//	ID. All reads return detached copies; all writes go through Store
//	methods so root-reachable changes reach the persistence collaborator.
//	Adjacency updates are atomic: an edge appears in both endpoints'
//	lists or in neither.
//
// Thread Safety: all methods are safe for concurrent use. Operations on
// disjoint subgraphs proceed in parallel; multi-element operations acquire
// their stripes in ascending index order.
type Store struct {
	schema  *Schema
	stripes []stripe

	persist RootStore
	logger  *slog.Logger

	// loads deduplicates concurrent LoadRoot calls per root ID.
	loads singleflight.Group

	rootsMu sync.RWMutex
	roots   map[string]bool

	nodeCount atomic.Int64
	edgeCount atomic.Int64
	maxNodes  int64
	maxEdges  int64
}

// StoreOption customizes store construction.
type StoreOption func(*Store)

// WithRootStore attaches the persistence collaborator. Without one the
// store is purely in-memory and root closures survive only the process.
func WithRootStore(rs RootStore) StoreOption {
	return func(s *Store) {
		s.persist = rs
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStripeCount sets the number of lock stripes. Values below 1 keep
// the default.
func WithStripeCount(n int) StoreOption {
	return func(s *Store) {
		if n >= 1 {
			s.stripes = make([]stripe, n)
		}
	}
}

// WithMaxNodes caps the node count. Values below 1 keep the default.
func WithMaxNodes(n int) StoreOption {
	return func(s *Store) {
		if n >= 1 {
			s.maxNodes = int64(n)
		}
	}
}

// WithMaxEdges caps the edge count. Values below 1 keep the default.
func WithMaxEdges(n int) StoreOption {
	return func(s *Store) {
		if n >= 1 {
			s.maxEdges = int64(n)
		}
	}
}

// New creates a Store over a frozen schema.
//
// Inputs:
//   - schema: Frozen type table. ErrSchemaOpen if not frozen.
//   - opts: Store options.
//
// Outputs:
//   - *Store: Ready store.
//   - error: ErrSchemaOpen for an unfrozen schema.
func New(schema *Schema, opts ...StoreOption) (*Store, error) {
	if schema == nil || !schema.Frozen() {
		return nil, ErrSchemaOpen
	}

	s := &Store{
		schema:   schema,
		stripes:  make([]stripe, DefaultStripeCount),
		logger:   slog.Default(),
		roots:    make(map[string]bool),
		maxNodes: DefaultMaxNodes,
		maxEdges: DefaultMaxEdges,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.stripes {
		s.stripes[i].nodes = make(map[string]*nodeRec)
		s.stripes[i].edges = make(map[string]*edgeRec)
	}
	initMetrics()
	return s, nil
}

// Schema returns the store's frozen schema.
func (s *Store) Schema() *Schema {
	return s.schema
}

// Counts returns the live node and edge counts.
func (s *Store) Counts() (nodes, edges int64) {
	return s.nodeCount.Load(), s.edgeCount.Load()
}

// =============================================================================
// Striping
// =============================================================================

// stripeIndex hashes an element ID onto a stripe (FNV-1a).
func (s *Store) stripeIndex(id string) int {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= prime32
	}
	return int(h % uint32(len(s.stripes)))
}

// stripeSet returns the unique stripe indexes for a set of IDs, ascending.
// Ascending acquisition order prevents lock cycles between concurrent
// multi-stripe operations.
func (s *Store) stripeSet(ids ...string) []int {
	seen := make(map[int]bool, len(ids))
	idxs := make([]int, 0, len(ids))
	for _, id := range ids {
		i := s.stripeIndex(id)
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	sort.Ints(idxs)
	return idxs
}

func (s *Store) lockAll(idxs []int) {
	for _, i := range idxs {
		s.stripes[i].mu.Lock()
	}
}

func (s *Store) unlockAll(idxs []int) {
	for i := len(idxs) - 1; i >= 0; i-- {
		s.stripes[idxs[i]].mu.Unlock()
	}
}

// =============================================================================
// Creation
// =============================================================================

// CreateNode creates a node of a declared type.
//
// The node starts ephemeral (no owning root) until connected into a root
// closure. Attribute keys must be declared on the type or inherited;
// declared attributes missing from attrs receive their defaults.
//
// Inputs:
//   - ctx: Unused today; creation is memory-only until a root connect.
//   - typeName: Declared node type. The reserved root type is rejected;
//     use CreateRoot.
//   - attrs: Initial attribute overrides. May be nil.
//
// Outputs:
//   - Node: Detached copy of the created node.
//   - error: TypeMismatchError for undeclared types or attributes;
//     ErrMaxNodesExceeded at capacity.
func (s *Store) CreateNode(ctx context.Context, typeName string, attrs map[string]any) (Node, error) {
	if typeName == RootType {
		return Node{}, NewTypeMismatchError(typeName, "roots are created with CreateRoot")
	}
	if !s.schema.Declared(typeName, KindNode) {
		return Node{}, NewTypeMismatchError(typeName, "not a declared node type")
	}
	merged, err := s.mergeAttrs(typeName, attrs)
	if err != nil {
		return Node{}, err
	}

	if s.nodeCount.Add(1) > s.maxNodes {
		s.nodeCount.Add(-1)
		return Node{}, ErrMaxNodesExceeded
	}

	rec := &nodeRec{
		id:    uuid.NewString(),
		typ:   typeName,
		attrs: merged,
	}

	st := &s.stripes[s.stripeIndex(rec.id)]
	st.mu.Lock()
	st.nodes[rec.id] = rec
	node := copyNode(rec)
	st.mu.Unlock()

	recordNodeCreated(ctx, typeName)
	s.logger.Debug("node created", "node_id", rec.id, "node_type", typeName)
	return node, nil
}

// CreateEdge creates an edge between two existing nodes.
//
// Description:
//
//	Adjacency is updated atomically on both endpoints. If exactly one
//	endpoint belongs to a root closure, the other endpoint's whole
//	connected component is stamped into that closure and every newly
//	persistent element is saved; rooted endpoints are re-saved so their
//	stored adjacency includes the new edge. Endpoints in two different
//	closures are rejected: root subgraphs are isolated.
//
// Inputs:
//   - ctx: Context for persistence calls.
//   - typeName: Declared edge type.
//   - srcID, dstID: Endpoint node IDs. With dir == DirIn the stored edge
//     is oriented dst -> src; with DirAny it is bidirectional.
//   - attrs: Initial attribute overrides. May be nil.
//   - dir: Edge orientation at creation.
//
// Outputs:
//   - Edge: Detached copy of the created edge.
//   - error: NotFoundError for missing endpoints; TypeMismatchError for
//     schema violations; ErrCrossRoot for closure bridging;
//     ErrMaxEdgesExceeded at capacity; persistence errors.
func (s *Store) CreateEdge(ctx context.Context, typeName, srcID, dstID string, attrs map[string]any, dir Direction) (Edge, error) {
	ctx, span := startStoreSpan(ctx, "graph.create_edge", typeName)
	defer span.End()

	if !s.schema.Declared(typeName, KindEdge) {
		return Edge{}, spanErr(span, NewTypeMismatchError(typeName, "not a declared edge type"))
	}
	merged, err := s.mergeAttrs(typeName, attrs)
	if err != nil {
		return Edge{}, spanErr(span, err)
	}

	// DirIn flips the stored orientation.
	from, to := srcID, dstID
	directed := dir != DirAny
	if dir == DirIn {
		from, to = dstID, srcID
	}

	if s.edgeCount.Add(1) > s.maxEdges {
		s.edgeCount.Add(-1)
		return Edge{}, spanErr(span, ErrMaxEdgesExceeded)
	}

	rec := &edgeRec{
		id:       uuid.NewString(),
		typ:      typeName,
		attrs:    merged,
		src:      from,
		dst:      to,
		directed: directed,
	}

	var (
		edge     Edge
		toSave   []Snapshot
		stampTip string // unrooted endpoint to stamp from, if any
		root     string
	)

	idxs := s.stripeSet(from, to, rec.id)
	s.lockAll(idxs)
	srcRec, okSrc := s.stripes[s.stripeIndex(from)].nodes[from]
	dstRec, okDst := s.stripes[s.stripeIndex(to)].nodes[to]
	if !okSrc || !okDst {
		s.unlockAll(idxs)
		s.edgeCount.Add(-1)
		missing := from
		if okSrc {
			missing = to
		}
		return Edge{}, spanErr(span, NewNotFoundError("node", missing))
	}

	if err := s.schema.checkEndpoints(typeName, srcRec.typ, dstRec.typ); err != nil {
		if !directed {
			// Bidirectional edges pass if either orientation is allowed.
			err = s.schema.checkEndpoints(typeName, dstRec.typ, srcRec.typ)
		}
		if err != nil {
			s.unlockAll(idxs)
			s.edgeCount.Add(-1)
			return Edge{}, spanErr(span, err)
		}
	}

	switch {
	case srcRec.rootID != "" && dstRec.rootID != "" && srcRec.rootID != dstRec.rootID:
		s.unlockAll(idxs)
		s.edgeCount.Add(-1)
		return Edge{}, spanErr(span, fmt.Errorf("%w: %s vs %s", ErrCrossRoot, srcRec.rootID, dstRec.rootID))
	case srcRec.rootID != "":
		root = srcRec.rootID
		if dstRec.rootID == "" {
			stampTip = to
		}
	case dstRec.rootID != "":
		root = dstRec.rootID
		stampTip = from
	}
	rec.rootID = root

	s.stripes[s.stripeIndex(rec.id)].edges[rec.id] = rec
	srcRec.adj = append(srcRec.adj, rec.id)
	if to != from {
		dstRec.adj = append(dstRec.adj, rec.id)
	}
	edge = copyEdge(rec)
	if root != "" {
		// Re-save rooted endpoints so their stored adjacency includes
		// the new edge; ephemeral endpoints are covered by stamping.
		toSave = append(toSave, snapshotEdge(rec))
		if srcRec.rootID != "" {
			toSave = append(toSave, snapshotNode(srcRec))
		}
		if to != from && dstRec.rootID != "" {
			toSave = append(toSave, snapshotNode(dstRec))
		}
	}
	s.unlockAll(idxs)

	if stampTip != "" {
		stamped, err := s.stampComponent(ctx, root, stampTip)
		if err != nil {
			// A concurrent connect reached the component from another
			// root first. Compensate by removing the new edge.
			_ = s.Delete(ctx, rec.id)
			return Edge{}, spanErr(span, err)
		}
		toSave = append(toSave, stamped...)
	}

	if err := s.saveSnapshots(ctx, toSave); err != nil {
		return Edge{}, spanErr(span, err)
	}

	recordEdgeCreated(ctx, typeName)
	s.logger.Debug("edge created",
		"edge_id", rec.id, "edge_type", typeName,
		"src", from, "dst", to, "directed", directed, "root_id", root)
	return edge, nil
}

// Connect creates an edge between src and dst, propagating persistence.
// It is CreateEdge with the argument shape used by program frontends.
func (s *Store) Connect(ctx context.Context, srcID, dstID, edgeType string, attrs map[string]any, dir Direction) (Edge, error) {
	return s.CreateEdge(ctx, edgeType, srcID, dstID, attrs, dir)
}

// mergeAttrs validates attribute keys against the type declaration and
// overlays them on the declared defaults.
func (s *Store) mergeAttrs(typeName string, attrs map[string]any) (map[string]any, error) {
	for k := range attrs {
		if !s.schema.attrAllowed(typeName, k) {
			return nil, NewTypeMismatchError(typeName, fmt.Sprintf("attribute %q not declared", k))
		}
	}
	merged := s.schema.Defaults(typeName)
	if merged == nil {
		merged = make(map[string]any)
	}
	for k, v := range attrs {
		merged[k] = cloneValue(v)
	}
	return merged, nil
}

// =============================================================================
// Lookups
// =============================================================================

// Node returns a detached copy of a node.
func (s *Store) Node(id string) (Node, error) {
	st := &s.stripes[s.stripeIndex(id)]
	st.mu.RLock()
	defer st.mu.RUnlock()
	rec, ok := st.nodes[id]
	if !ok {
		return Node{}, NewNotFoundError("node", id)
	}
	return copyNode(rec), nil
}

// Edge returns a detached copy of an edge.
func (s *Store) Edge(id string) (Edge, error) {
	st := &s.stripes[s.stripeIndex(id)]
	st.mu.RLock()
	defer st.mu.RUnlock()
	rec, ok := st.edges[id]
	if !ok {
		return Edge{}, NewNotFoundError("edge", id)
	}
	return copyEdge(rec), nil
}

// Ref resolves an ID to an element reference, whichever kind it is.
func (s *Store) Ref(id string) (Ref, error) {
	st := &s.stripes[s.stripeIndex(id)]
	st.mu.RLock()
	defer st.mu.RUnlock()
	if rec, ok := st.nodes[id]; ok {
		return NodeRef(rec.id, rec.typ), nil
	}
	if rec, ok := st.edges[id]; ok {
		return EdgeRef(rec.id, rec.typ), nil
	}
	return Ref{}, NewNotFoundError("element", id)
}

// Attr reads one attribute of a node or edge.
//
// Outputs:
//   - any: The attribute value (deep-copied).
//   - error: NotFoundError for missing elements; TypeMismatchError for
//     attributes the element's type does not declare.
func (s *Store) Attr(id, key string) (any, error) {
	st := &s.stripes[s.stripeIndex(id)]
	st.mu.RLock()
	defer st.mu.RUnlock()

	typ, attrs, err := s.elementLocked(st, id)
	if err != nil {
		return nil, err
	}
	if !s.schema.attrAllowed(typ, key) {
		return nil, NewTypeMismatchError(typ, fmt.Sprintf("attribute %q not declared", key))
	}
	return cloneValue(attrs[key]), nil
}

// elementLocked resolves an ID within an already-locked stripe.
func (s *Store) elementLocked(st *stripe, id string) (typ string, attrs map[string]any, err error) {
	if rec, ok := st.nodes[id]; ok {
		return rec.typ, rec.attrs, nil
	}
	if rec, ok := st.edges[id]; ok {
		return rec.typ, rec.attrs, nil
	}
	return "", nil, NewNotFoundError("element", id)
}

// SetAttr writes one attribute of a node or edge.
//
// Root-reachable elements are saved to the persistence collaborator after
// the write.
//
// Outputs:
//   - error: NotFoundError, TypeMismatchError, or a persistence error.
func (s *Store) SetAttr(ctx context.Context, id, key string, value any) error {
	st := &s.stripes[s.stripeIndex(id)]

	var snap *Snapshot
	st.mu.Lock()
	if rec, ok := st.nodes[id]; ok {
		if !s.schema.attrAllowed(rec.typ, key) {
			st.mu.Unlock()
			return NewTypeMismatchError(rec.typ, fmt.Sprintf("attribute %q not declared", key))
		}
		rec.attrs[key] = cloneValue(value)
		if rec.rootID != "" {
			sn := snapshotNode(rec)
			snap = &sn
		}
	} else if rec, ok := st.edges[id]; ok {
		if !s.schema.attrAllowed(rec.typ, key) {
			st.mu.Unlock()
			return NewTypeMismatchError(rec.typ, fmt.Sprintf("attribute %q not declared", key))
		}
		rec.attrs[key] = cloneValue(value)
		if rec.rootID != "" {
			sn := snapshotEdge(rec)
			snap = &sn
		}
	} else {
		st.mu.Unlock()
		return NewNotFoundError("element", id)
	}
	st.mu.Unlock()

	if snap != nil {
		return s.saveSnapshots(ctx, []Snapshot{*snap})
	}
	return nil
}

// =============================================================================
// Neighbors
// =============================================================================

// Neighbors returns the (edge, far node) pairs incident to a node, in
// edge-creation order.
//
// Description:
//
//	dir selects orientation: DirOut follows edges leaving the node, DirIn
//	edges arriving, DirAny both. Bidirectional edges match every
//	direction from both endpoints. edgeTypes, when given, filters to
//	edges whose type is a subtype of any listed type.
//
//	Each neighbor is read consistently, but the list as a whole is not a
//	global snapshot: elements deleted mid-iteration are skipped.
//
// Outputs:
//   - []Neighbor: Matches in creation order. Empty slice when none.
//   - error: NotFoundError when the node does not exist.
func (s *Store) Neighbors(ctx context.Context, nodeID string, dir Direction, edgeTypes ...string) ([]Neighbor, error) {
	done := startNeighborsTimer(ctx)

	st := &s.stripes[s.stripeIndex(nodeID)]
	st.mu.RLock()
	rec, ok := st.nodes[nodeID]
	if !ok {
		st.mu.RUnlock()
		done(0)
		return nil, NewNotFoundError("node", nodeID)
	}
	adj := append([]string(nil), rec.adj...)
	st.mu.RUnlock()

	out := make([]Neighbor, 0, len(adj))
	for _, eid := range adj {
		est := &s.stripes[s.stripeIndex(eid)]
		est.mu.RLock()
		erec, ok := est.edges[eid]
		if !ok {
			est.mu.RUnlock()
			continue // severed concurrently
		}
		edge := copyEdge(erec)
		est.mu.RUnlock()

		if !edgeMatchesDir(edge, nodeID, dir) {
			continue
		}
		if len(edgeTypes) > 0 && !s.typeMatchesAny(edge.Type, edgeTypes) {
			continue
		}

		farID := edge.Far(nodeID)
		fst := &s.stripes[s.stripeIndex(farID)]
		fst.mu.RLock()
		frec, ok := fst.nodes[farID]
		if !ok {
			fst.mu.RUnlock()
			continue
		}
		far := copyNode(frec)
		fst.mu.RUnlock()

		out = append(out, Neighbor{Edge: edge, Node: far})
	}

	done(len(out))
	return out, nil
}

// edgeMatchesDir reports whether an edge is incident to nodeID in the
// requested orientation.
func edgeMatchesDir(e Edge, nodeID string, dir Direction) bool {
	if !e.Directed {
		return true
	}
	switch dir {
	case DirOut:
		return e.Src == nodeID
	case DirIn:
		return e.Dst == nodeID
	default:
		return true
	}
}

func (s *Store) typeMatchesAny(typ string, wanted []string) bool {
	for _, w := range wanted {
		if s.schema.IsSubtype(typ, w) {
			return true
		}
	}
	return false
}

// =============================================================================
// Deletion
// =============================================================================

// Delete removes a node or edge.
//
// Description:
//
//	Deleting a node atomically severs all incident edges: the node, its
//	edges, and the far endpoints' adjacency entries disappear in one
//	multi-stripe critical section. Deleting an edge removes it from both
//	endpoints. Persistent elements are removed from the collaborator, and
//	surviving rooted endpoints are re-saved with their narrowed
//	adjacency. IDs are never reused; later operations on a deleted ID
//	return NotFoundError.
//
// Outputs:
//   - error: NotFoundError for unknown or already-deleted IDs;
//     persistence errors.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := startStoreSpan(ctx, "graph.delete", "")
	defer span.End()

	st := &s.stripes[s.stripeIndex(id)]
	st.mu.RLock()
	_, isNode := st.nodes[id]
	_, isEdge := st.edges[id]
	st.mu.RUnlock()

	var (
		removed []Snapshot
		updated []Snapshot
		err     error
	)
	switch {
	case isNode:
		removed, updated, err = s.deleteNode(id)
	case isEdge:
		removed, updated, err = s.deleteEdge(id)
	default:
		err = NewNotFoundError("element", id)
	}
	if err != nil {
		return spanErr(span, err)
	}

	for _, snap := range removed {
		if snap.RootID == "" || s.persist == nil {
			continue
		}
		if derr := s.persist.Delete(ctx, snap.RootID, snap.ID); derr != nil {
			return spanErr(span, fmt.Errorf("delete %s %s from root store: %w", snap.Kind, snap.ID, derr))
		}
	}

	// Surviving rooted endpoints keep a narrower adjacency; persist it.
	if err := s.saveSnapshots(ctx, updated); err != nil {
		return spanErr(span, err)
	}

	recordDelete(ctx, len(removed))
	setElementGauges(s.nodeCount.Load(), s.edgeCount.Load())
	s.logger.Debug("element deleted", "elem_id", id, "severed", len(removed)-1)
	return nil
}

// deleteEdge removes one edge from the tables and both endpoints' adjacency.
// The second return holds re-snapshots of surviving rooted endpoints.
func (s *Store) deleteEdge(id string) ([]Snapshot, []Snapshot, error) {
	for {
		st := &s.stripes[s.stripeIndex(id)]
		st.mu.RLock()
		rec, ok := st.edges[id]
		if !ok {
			st.mu.RUnlock()
			return nil, nil, NewNotFoundError("edge", id)
		}
		src, dst := rec.src, rec.dst
		st.mu.RUnlock()

		idxs := s.stripeSet(id, src, dst)
		s.lockAll(idxs)
		rec, ok = s.stripes[s.stripeIndex(id)].edges[id]
		if !ok {
			s.unlockAll(idxs)
			return nil, nil, NewNotFoundError("edge", id)
		}
		if rec.src != src || rec.dst != dst {
			s.unlockAll(idxs)
			continue // endpoints changed between phases, retry
		}

		snap := snapshotEdge(rec)
		var updated []Snapshot
		delete(s.stripes[s.stripeIndex(id)].edges, id)
		if n, ok := s.stripes[s.stripeIndex(src)].nodes[src]; ok {
			n.adj = removeID(n.adj, id)
			if n.rootID != "" {
				updated = append(updated, snapshotNode(n))
			}
		}
		if src != dst {
			if n, ok := s.stripes[s.stripeIndex(dst)].nodes[dst]; ok {
				n.adj = removeID(n.adj, id)
				if n.rootID != "" {
					updated = append(updated, snapshotNode(n))
				}
			}
		}
		s.unlockAll(idxs)

		s.edgeCount.Add(-1)
		return []Snapshot{snap}, updated, nil
	}
}

// deleteNode removes a node and all incident edges in one critical section.
// The second return holds re-snapshots of surviving rooted far endpoints.
func (s *Store) deleteNode(id string) ([]Snapshot, []Snapshot, error) {
	for {
		// Phase 1: snapshot the incident edge set.
		st := &s.stripes[s.stripeIndex(id)]
		st.mu.RLock()
		rec, ok := st.nodes[id]
		if !ok {
			st.mu.RUnlock()
			return nil, nil, NewNotFoundError("node", id)
		}
		adj := append([]string(nil), rec.adj...)
		st.mu.RUnlock()

		// Phase 2: resolve far endpoints of those edges.
		fars := make([]string, 0, len(adj))
		for _, eid := range adj {
			est := &s.stripes[s.stripeIndex(eid)]
			est.mu.RLock()
			if erec, ok := est.edges[eid]; ok {
				fars = append(fars, erec.src, erec.dst)
			}
			est.mu.RUnlock()
		}

		// Phase 3: lock everything, verify the topology is unchanged,
		// then remove node and edges together.
		ids := make([]string, 0, 1+len(adj)+len(fars))
		ids = append(ids, id)
		ids = append(ids, adj...)
		ids = append(ids, fars...)
		idxs := s.stripeSet(ids...)
		s.lockAll(idxs)

		rec, ok = s.stripes[s.stripeIndex(id)].nodes[id]
		if !ok {
			s.unlockAll(idxs)
			return nil, nil, NewNotFoundError("node", id)
		}
		if !sameIDs(rec.adj, adj) {
			s.unlockAll(idxs)
			continue // concurrent edge create/delete, retry
		}

		removed := make([]Snapshot, 0, 1+len(adj))
		removed = append(removed, snapshotNode(rec))
		edgesGone := 0
		touched := make(map[string]bool)
		for _, eid := range adj {
			est := &s.stripes[s.stripeIndex(eid)]
			erec, ok := est.edges[eid]
			if !ok {
				continue
			}
			removed = append(removed, snapshotEdge(erec))
			delete(est.edges, eid)
			edgesGone++
			for _, end := range []string{erec.src, erec.dst} {
				if end == id {
					continue
				}
				if n, ok := s.stripes[s.stripeIndex(end)].nodes[end]; ok {
					n.adj = removeID(n.adj, eid)
					touched[end] = true
				}
			}
		}
		delete(s.stripes[s.stripeIndex(id)].nodes, id)
		var updated []Snapshot
		for end := range touched {
			if n, ok := s.stripes[s.stripeIndex(end)].nodes[end]; ok && n.rootID != "" {
				updated = append(updated, snapshotNode(n))
			}
		}
		s.unlockAll(idxs)

		s.nodeCount.Add(-1)
		s.edgeCount.Add(int64(-edgesGone))
		return removed, updated, nil
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// =============================================================================
// Copies and snapshots
// =============================================================================

func copyNode(rec *nodeRec) Node {
	return Node{
		ID:     rec.id,
		Type:   rec.typ,
		Attrs:  cloneAttrs(rec.attrs),
		RootID: rec.rootID,
		Edges:  append([]string(nil), rec.adj...),
	}
}

func copyEdge(rec *edgeRec) Edge {
	return Edge{
		ID:       rec.id,
		Type:     rec.typ,
		Attrs:    cloneAttrs(rec.attrs),
		RootID:   rec.rootID,
		Src:      rec.src,
		Dst:      rec.dst,
		Directed: rec.directed,
	}
}

func snapshotNode(rec *nodeRec) Snapshot {
	return Snapshot{
		Kind:   KindNode,
		ID:     rec.id,
		Type:   rec.typ,
		RootID: rec.rootID,
		Attrs:  cloneAttrs(rec.attrs),
		Edges:  append([]string(nil), rec.adj...),
	}
}

func snapshotEdge(rec *edgeRec) Snapshot {
	return Snapshot{
		Kind:     KindEdge,
		ID:       rec.id,
		Type:     rec.typ,
		RootID:   rec.rootID,
		Attrs:    cloneAttrs(rec.attrs),
		Src:      rec.src,
		Dst:      rec.dst,
		Directed: rec.directed,
	}
}

// saveSnapshots pushes snapshots to the collaborator, outside any stripe
// lock. Persistence failures propagate to the caller unretried.
func (s *Store) saveSnapshots(ctx context.Context, snaps []Snapshot) error {
	if s.persist == nil || len(snaps) == 0 {
		return nil
	}
	for _, snap := range snaps {
		if err := s.persist.Save(ctx, snap); err != nil {
			return fmt.Errorf("save %s %s: %w", snap.Kind, snap.ID, err)
		}
	}
	return nil
}
