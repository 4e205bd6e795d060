// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the typed property graph that spatial walkers
// traverse: schema-declared node and edge types, striped concurrent element
// storage, ordered adjacency, and root-anchored persistence.
//
// Elements are addressed by opaque string IDs, never by pointer, so cyclic
// topologies are ordinary data. Everything transitively reachable from a
// root node is persistent: mutations to root-reachable elements are pushed
// to a pluggable RootStore collaborator, and LoadRoot faults a root's full
// closure back into memory.
//
// The store is safe for concurrent use. Locking is partitioned into stripes
// keyed by element ID, so walkers working disjoint subgraphs do not contend.
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph operations.
var (
	// ErrNotFound indicates the requested element does not exist,
	// including IDs that were valid before a Delete.
	ErrNotFound = errors.New("graph: element not found")

	// ErrTypeMismatch indicates an operation referenced an undeclared
	// type, an undeclared attribute, or violated an edge endpoint rule.
	ErrTypeMismatch = errors.New("graph: type mismatch")

	// ErrCrossRoot indicates a connect would bridge two different root
	// closures. Root subgraphs are isolated; cross-root edges are never
	// created implicitly.
	ErrCrossRoot = errors.New("graph: cross-root connect")

	// ErrMaxNodesExceeded indicates the node limit was reached.
	ErrMaxNodesExceeded = errors.New("graph: maximum node count exceeded")

	// ErrMaxEdgesExceeded indicates the edge limit was reached.
	ErrMaxEdgesExceeded = errors.New("graph: maximum edge count exceeded")

	// ErrSchemaFrozen indicates a declaration arrived after Freeze.
	ErrSchemaFrozen = errors.New("graph: schema is frozen")

	// ErrSchemaOpen indicates a store was built from an unfrozen schema.
	ErrSchemaOpen = errors.New("graph: schema must be frozen before use")

	// ErrBadHierarchy indicates a supertype hierarchy that cannot be
	// linearized (unknown supertype, cycle, or conflicting order).
	ErrBadHierarchy = errors.New("graph: unlinearizable type hierarchy")

	// ErrNoRootStore indicates a root operation needed the persistence
	// collaborator but none is configured.
	ErrNoRootStore = errors.New("graph: no root store configured")
)

// NotFoundError reports a missing element with its ID.
//
// Unwraps to ErrNotFound so callers can match with errors.Is.
type NotFoundError struct {
	// ID is the element ID that failed to resolve.
	ID string
	// Kind is "node", "edge", "element", or "root" depending on the lookup.
	Kind string
}

// NewNotFoundError creates a NotFoundError for the given lookup.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{ID: id, Kind: kind}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("graph: %s %q not found", e.Kind, e.ID)
}

// Unwrap returns ErrNotFound for errors.Is matching.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TypeMismatchError reports a schema violation: an undeclared type or
// attribute, or an edge whose endpoints break a declared endpoint rule.
//
// Unwraps to ErrTypeMismatch so callers can match with errors.Is.
type TypeMismatchError struct {
	// TypeName is the type involved in the violation.
	TypeName string
	// Detail describes what was violated.
	Detail string
}

// NewTypeMismatchError creates a TypeMismatchError.
func NewTypeMismatchError(typeName, detail string) *TypeMismatchError {
	return &TypeMismatchError{TypeName: typeName, Detail: detail}
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("graph: type %q: %s", e.TypeName, e.Detail)
}

// Unwrap returns ErrTypeMismatch for errors.Is matching.
func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}
