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
)

// RootType is the reserved node type for graph roots. A root's own ID is
// its root ID; every element reachable from it is persistent.
const RootType = "root"

// =============================================================================
// Discriminants
// =============================================================================

// Kind discriminates nodes from edges wherever both travel together
// (queue items, paths, persistence records).
type Kind uint8

const (
	// KindNode is a graph node.
	KindNode Kind = iota

	// KindEdge is a graph edge.
	KindEdge

	// NumKinds is the number of kinds. Keep this last.
	NumKinds
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	default:
		return "unknown"
	}
}

// Direction selects which incident edges a traversal considers, and the
// orientation of a new edge at creation time.
type Direction uint8

const (
	// DirOut selects edges leaving the node. At creation it makes a
	// directed edge src -> dst.
	DirOut Direction = iota

	// DirIn selects edges arriving at the node. At creation it makes a
	// directed edge dst -> src.
	DirIn

	// DirAny selects edges in either orientation. At creation it makes a
	// bidirectional edge.
	DirAny

	// NumDirections is the number of directions. Keep this last.
	NumDirections
)

// String returns the human-readable name of the direction.
func (d Direction) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirIn:
		return "in"
	case DirAny:
		return "any"
	default:
		return "unknown"
	}
}

// =============================================================================
// Elements
// =============================================================================

// Ref is a lightweight element reference: enough to name an element in a
// walker path or queue without pinning its data.
type Ref struct {
	// Kind discriminates node from edge.
	Kind Kind

	// ID is the element's store-unique identity.
	ID string

	// Type is the element's declared type name.
	Type string
}

// NodeRef builds a Ref for a node.
func NodeRef(id, typeName string) Ref {
	return Ref{Kind: KindNode, ID: id, Type: typeName}
}

// EdgeRef builds a Ref for an edge.
func EdgeRef(id, typeName string) Ref {
	return Ref{Kind: KindEdge, ID: id, Type: typeName}
}

// Node is a point-in-time copy of a stored node.
//
// Description:
//
//	Nodes returned from Store methods are detached copies. Mutating the
//	copy does not touch the store; writes go through Store.SetAttr so the
//	persistence collaborator sees every root-reachable change.
type Node struct {
	// ID is the store-unique identity. Never reused, even after Delete.
	ID string

	// Type is the declared node type name.
	Type string

	// Attrs holds the node's attribute values (declared defaults plus
	// per-instance overrides). Deep-copied on read.
	Attrs map[string]any

	// RootID is the owning root's ID, or "" for ephemeral nodes.
	RootID string

	// Edges lists incident edge IDs in creation order, both orientations.
	Edges []string
}

// Ref returns the node's reference.
func (n Node) Ref() Ref {
	return NodeRef(n.ID, n.Type)
}

// IsRoot reports whether this node is a graph root.
func (n Node) IsRoot() bool {
	return n.Type == RootType
}

// Edge is a point-in-time copy of a stored edge.
type Edge struct {
	// ID is the store-unique identity. Never reused, even after Delete.
	ID string

	// Type is the declared edge type name.
	Type string

	// Attrs holds the edge's attribute values. Deep-copied on read.
	Attrs map[string]any

	// RootID is the owning root's ID, or "" for ephemeral edges.
	RootID string

	// Src and Dst are the endpoint node IDs. For bidirectional edges the
	// pair records creation order but carries no orientation.
	Src string
	Dst string

	// Directed is false for bidirectional edges.
	Directed bool
}

// Ref returns the edge's reference.
func (e Edge) Ref() Ref {
	return EdgeRef(e.ID, e.Type)
}

// Far returns the endpoint opposite the given node ID. Returns Dst when
// nodeID is neither endpoint (callers pass an endpoint).
func (e Edge) Far(nodeID string) string {
	if e.Dst == nodeID && e.Src != nodeID {
		return e.Src
	}
	return e.Dst
}

// Neighbor pairs an incident edge with the node at its far end, as
// returned by Store.Neighbors.
type Neighbor struct {
	Edge Edge
	Node Node
}

// =============================================================================
// Persistence collaborator
// =============================================================================

// Snapshot is the persistence-level view of one element: everything a
// collaborator needs to store and restore it, including adjacency order.
type Snapshot struct {
	Kind     Kind           `json:"kind"`
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	RootID   string         `json:"root_id"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Src      string         `json:"src,omitempty"`
	Dst      string         `json:"dst,omitempty"`
	Directed bool           `json:"directed,omitempty"`
	Edges    []string       `json:"edges,omitempty"`
}

// RootStore is the persistence collaborator. The store calls Save whenever
// a root-reachable element is created or mutated, Delete when one is
// removed, and LoadRoot to fault a root's closure back into memory.
//
// Implementations live under services/spatial/storage. A nil RootStore is
// valid and makes the graph purely in-memory.
//
// Thread Safety: implementations must be safe for concurrent use.
type RootStore interface {
	// LoadRoot returns every element of the root's closure, the root node
	// included. Returns an error wrapping ErrNotFound when the root is
	// unknown.
	LoadRoot(ctx context.Context, rootID string) ([]Snapshot, error)

	// Save upserts one element snapshot.
	Save(ctx context.Context, snap Snapshot) error

	// Delete removes one element of the given root.
	Delete(ctx context.Context, rootID, id string) error

	// Close releases backend resources.
	Close() error
}

// =============================================================================
// Attribute helpers
// =============================================================================

// cloneAttrs deep-copies an attribute map. Values are restricted to
// JSON-representable shapes: nil, bool, string, numbers, []any,
// map[string]any. Other values are copied by reference.
func cloneAttrs(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAttrs(val)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}
