// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ability implements the dispatch table that binds handlers to
// graph element types and traversal phases.
//
// The registry is deliberately host-agnostic: it stores an opaque handler
// type H and resolves which handlers fire for a concrete element type by
// walking the type's supertype linearization, exact type first, then each
// supertype in MRO order, then wildcard registrations. The walker package
// instantiates it with its ability function signature; tests can
// instantiate it with plain ints.
package ability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianSpatial/pkg/validation"
)

// Wildcard matches every element type, after all typed registrations.
const Wildcard = "*"

// Phase is the traversal phase a handler is bound to.
type Phase uint8

const (
	// PhaseEntry fires when the walker lands on an element.
	PhaseEntry Phase = iota

	// PhaseExit fires when the element's traversal subtree completes.
	PhaseExit

	// NumPhases is the number of phases. Keep this last.
	NumPhases
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseEntry:
		return "entry"
	case PhaseExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Sentinel errors for registry operations.
var (
	// ErrFrozen indicates a registration arrived after Freeze.
	ErrFrozen = errors.New("ability: registry is frozen")

	// ErrBadPhase indicates a phase outside the declared range.
	ErrBadPhase = errors.New("ability: invalid phase")
)

// Hierarchy supplies supertype linearizations for dispatch. It returns the
// linearization of a type, the type itself first, or nil for unknown
// types. *graph.Schema satisfies this.
type Hierarchy interface {
	MRO(typeName string) []string
}

// key identifies one dispatch slot.
type key struct {
	typ   string
	phase Phase
}

// Registry maps (element type, phase) to ordered handler lists.
//
// Description:
//
//	Handlers register under a declared type name or the wildcard.
//	Resolution for a concrete type concatenates, in order: handlers on
//	the exact type, handlers on each supertype in MRO order, and
//	wildcard handlers; registration order is preserved within each slot.
//	A type with no matches resolves to an empty list, never an error:
//	visiting such an element is a no-op.
//
//	Freeze makes the registry immutable and enables the per-(type, phase)
//	resolution cache. The walker engine only accepts frozen registries.
//
// Thread Safety: safe for concurrent use. Resolution after Freeze is
// read-mostly and cheap.
type Registry[H any] struct {
	mu     sync.RWMutex
	hier   Hierarchy
	frozen bool
	slots  map[key][]H
	cache  map[key][]H
	count  int
}

// New creates a registry over a type hierarchy. A nil hierarchy is valid:
// every type then resolves as if it had no supertypes.
func New[H any](h Hierarchy) *Registry[H] {
	return &Registry[H]{
		hier:  h,
		slots: make(map[key][]H),
		cache: make(map[key][]H),
	}
}

// Register appends handlers for an element type (or the wildcard) and
// phase. Multiple calls accumulate in registration order.
//
// Inputs:
//   - typeName: Declared element type name or Wildcard.
//   - phase: PhaseEntry or PhaseExit.
//   - handlers: Handlers to append.
//
// Outputs:
//   - error: ErrFrozen after Freeze; ErrBadPhase or an identifier error
//     for malformed keys.
func (r *Registry[H]) Register(typeName string, phase Phase, handlers ...H) error {
	if phase >= NumPhases {
		return fmt.Errorf("%w: %d", ErrBadPhase, phase)
	}
	if typeName != Wildcard {
		if err := validation.ValidateIdentifier(typeName); err != nil {
			return fmt.Errorf("ability: register: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	k := key{typ: typeName, phase: phase}
	r.slots[k] = append(r.slots[k], handlers...)
	r.count += len(handlers)
	return nil
}

// Freeze makes the registry immutable. Idempotent.
func (r *Registry[H]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry has been frozen.
func (r *Registry[H]) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Len returns the total number of registered handlers.
func (r *Registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Resolve returns the handlers that fire for a concrete element type in
// the given phase: exact type, supertypes in MRO order, then wildcards.
//
// The returned slice is shared after Freeze; callers must not mutate it.
// An unknown type resolves exactly like a type with no supertypes, so
// wildcard handlers still apply.
func (r *Registry[H]) Resolve(typeName string, phase Phase) []H {
	k := key{typ: typeName, phase: phase}

	r.mu.RLock()
	if r.frozen {
		if out, ok := r.cache[k]; ok {
			r.mu.RUnlock()
			return out
		}
	}
	out := r.resolveLocked(typeName, phase)
	frozen := r.frozen
	r.mu.RUnlock()

	if frozen {
		r.mu.Lock()
		r.cache[k] = out
		r.mu.Unlock()
	}
	return out
}

// resolveLocked computes the handler chain. Caller holds at least the
// read lock.
func (r *Registry[H]) resolveLocked(typeName string, phase Phase) []H {
	chain := []string{typeName}
	if r.hier != nil {
		if mro := r.hier.MRO(typeName); mro != nil {
			chain = mro
		}
	}

	var out []H
	for _, t := range chain {
		out = append(out, r.slots[key{typ: t, phase: phase}]...)
	}
	out = append(out, r.slots[key{typ: Wildcard, phase: phase}]...)
	return out
}
