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
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianSpatial/pkg/validation"
)

// =============================================================================
// Schema
// =============================================================================

// Schema is the declared type table for a store: node and edge types, their
// supertype hierarchies, attribute defaults, and edge endpoint rules.
//
// Description:
//
//	Programs declare types up front, then Freeze the schema and build a
//	Store from it. Freeze computes the C3 linearization (MRO) of every
//	type; ability dispatch and endpoint checks consult the linearization,
//	so a frozen schema makes both lookups deterministic and cheap.
//
// Lifecycle:
//
//	schema := graph.NewSchema()
//	schema.DeclareNode("person", graph.Attr("name", ""))
//	schema.DeclareNode("employee", graph.Extends("person"))
//	schema.DeclareEdge("friend_of", graph.Endpoints("person", "person"))
//	if err := schema.Freeze(); err != nil { ... }
//
// Thread Safety: declarations are guarded by a mutex; after Freeze the
// schema is immutable and safe for lock-free concurrent reads.
type Schema struct {
	mu     sync.Mutex
	frozen bool
	types  map[string]*typeDecl
	order  []string
}

// typeDecl is one declared type.
type typeDecl struct {
	name   string
	kind   Kind
	supers []string

	// attrs holds this type's own attribute defaults; attrOrder keeps
	// declaration order for deterministic default application.
	attrs     map[string]any
	attrOrder []string

	// endpoint rules, edge types only; a rule matches when the source
	// node's type is a subtype of src and the target's a subtype of dst.
	endpoints []endpointRule

	// Computed at Freeze.
	mro      []string
	attrSet  map[string]bool
	defaults map[string]any
}

type endpointRule struct {
	src string
	dst string
}

// TypeOption customizes a type declaration.
type TypeOption func(*typeDecl)

// Extends declares supertypes. Multiple supertypes are allowed; dispatch
// and attribute inheritance follow C3 linearization order.
func Extends(supertypes ...string) TypeOption {
	return func(d *typeDecl) {
		d.supers = append(d.supers, supertypes...)
	}
}

// Attr declares an attribute with its default value. Instances start from
// the default (deep-copied) and may override it at creation.
func Attr(name string, def any) TypeOption {
	return func(d *typeDecl) {
		if _, dup := d.attrs[name]; !dup {
			d.attrOrder = append(d.attrOrder, name)
		}
		d.attrs[name] = def
	}
}

// Endpoints declares an allowed (source, target) node type pair for an
// edge type. May be given multiple times; a connect passes when any pair
// matches, subtypes included. Edge types with no Endpoints option accept
// any endpoints.
func Endpoints(srcType, dstType string) TypeOption {
	return func(d *typeDecl) {
		d.endpoints = append(d.endpoints, endpointRule{src: srcType, dst: dstType})
	}
}

// NewSchema creates an empty schema with the reserved root node type
// already declared.
func NewSchema() *Schema {
	s := &Schema{
		types: make(map[string]*typeDecl),
	}
	s.types[RootType] = &typeDecl{
		name:  RootType,
		kind:  KindNode,
		attrs: make(map[string]any),
	}
	s.order = append(s.order, RootType)
	return s
}

// DeclareNode declares a node type.
//
// Inputs:
//   - name: Type name. Must be a valid identifier and not reserved.
//   - opts: Extends and Attr options.
//
// Outputs:
//   - error: ErrSchemaFrozen after Freeze; validation or duplicate errors.
func (s *Schema) DeclareNode(name string, opts ...TypeOption) error {
	return s.declare(name, KindNode, opts)
}

// DeclareEdge declares an edge type.
//
// Inputs:
//   - name: Type name. Must be a valid identifier and not reserved.
//   - opts: Extends, Attr, and Endpoints options.
//
// Outputs:
//   - error: ErrSchemaFrozen after Freeze; validation or duplicate errors.
func (s *Schema) DeclareEdge(name string, opts ...TypeOption) error {
	return s.declare(name, KindEdge, opts)
}

func (s *Schema) declare(name string, kind Kind, opts []TypeOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("declare %q: %w", name, ErrSchemaFrozen)
	}
	if err := validation.ValidateDeclaredName(name); err != nil {
		return fmt.Errorf("declare: %w", err)
	}
	if _, exists := s.types[name]; exists {
		return NewTypeMismatchError(name, "already declared")
	}

	d := &typeDecl{
		name:  name,
		kind:  kind,
		attrs: make(map[string]any),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, a := range d.attrOrder {
		if err := validation.ValidateIdentifier(a); err != nil {
			return fmt.Errorf("declare %q: attribute: %w", name, err)
		}
	}

	s.types[name] = d
	s.order = append(s.order, name)
	return nil
}

// Freeze validates the hierarchy, computes every type's C3 linearization
// and inherited attribute defaults, and makes the schema immutable.
//
// Outputs:
//   - error: ErrBadHierarchy (wrapped) for unknown supertypes, kind
//     mismatches, cycles, or unlinearizable orders; ErrTypeMismatch for
//     endpoint rules naming unknown node types.
//
// Freeze is idempotent: freezing a frozen schema is a no-op.
func (s *Schema) Freeze() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return nil
	}

	// Supertypes must exist and kind-match before linearization.
	for _, name := range s.order {
		d := s.types[name]
		for _, super := range d.supers {
			sd, ok := s.types[super]
			if !ok {
				return fmt.Errorf("type %q extends unknown type %q: %w", name, super, ErrBadHierarchy)
			}
			if sd.kind != d.kind {
				return fmt.Errorf("type %q (%s) extends %q (%s): %w",
					name, d.kind, super, sd.kind, ErrBadHierarchy)
			}
		}
	}

	memo := make(map[string][]string, len(s.types))
	visiting := make(map[string]bool)
	for _, name := range s.order {
		if _, err := s.linearize(name, memo, visiting); err != nil {
			return err
		}
	}

	for _, name := range s.order {
		d := s.types[name]
		d.mro = memo[name]

		// Merge defaults along the MRO, most-derived last so it wins.
		d.attrSet = make(map[string]bool)
		d.defaults = make(map[string]any)
		for i := len(d.mro) - 1; i >= 0; i-- {
			ancestor := s.types[d.mro[i]]
			for _, a := range ancestor.attrOrder {
				d.attrSet[a] = true
				d.defaults[a] = ancestor.attrs[a]
			}
		}

		for _, rule := range d.endpoints {
			for _, end := range []string{rule.src, rule.dst} {
				ed, ok := s.types[end]
				if !ok || ed.kind != KindNode {
					return NewTypeMismatchError(name,
						fmt.Sprintf("endpoint rule references unknown node type %q", end))
				}
			}
		}
	}

	s.frozen = true
	return nil
}

// linearize computes the C3 linearization of one type:
//
//	L(T) = T + merge(L(S1), ..., L(Sn), [S1, ..., Sn])
func (s *Schema) linearize(name string, memo map[string][]string, visiting map[string]bool) ([]string, error) {
	if mro, done := memo[name]; done {
		return mro, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("type %q: supertype cycle: %w", name, ErrBadHierarchy)
	}
	visiting[name] = true
	defer delete(visiting, name)

	d := s.types[name]
	seqs := make([][]string, 0, len(d.supers)+1)
	for _, super := range d.supers {
		superMRO, err := s.linearize(super, memo, visiting)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, superMRO)
	}
	if len(d.supers) > 0 {
		seqs = append(seqs, append([]string(nil), d.supers...))
	}

	merged, err := c3Merge(seqs)
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", name, err)
	}

	mro := append([]string{name}, merged...)
	memo[name] = mro
	return mro, nil
}

// c3Merge merges linearizations: repeatedly take the first head that
// appears in no other sequence's tail.
func c3Merge(seqs [][]string) ([]string, error) {
	work := make([][]string, 0, len(seqs))
	for _, s := range seqs {
		if len(s) > 0 {
			work = append(work, append([]string(nil), s...))
		}
	}

	var out []string
	for len(work) > 0 {
		var head string
		found := false
		for _, seq := range work {
			candidate := seq[0]
			inTail := false
			for _, other := range work {
				for _, t := range other[1:] {
					if t == candidate {
						inTail = true
						break
					}
				}
				if inTail {
					break
				}
			}
			if !inTail {
				head = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("conflicting supertype order: %w", ErrBadHierarchy)
		}

		out = append(out, head)
		next := work[:0]
		for _, seq := range work {
			if seq[0] == head {
				seq = seq[1:]
			} else {
				seq = dropFirst(seq, head)
			}
			if len(seq) > 0 {
				next = append(next, seq)
			}
		}
		work = next
	}
	return out, nil
}

func dropFirst(seq []string, v string) []string {
	for i, s := range seq {
		if s == v {
			return append(seq[:i:i], seq[i+1:]...)
		}
	}
	return seq
}

// =============================================================================
// Frozen reads
// =============================================================================

// Frozen reports whether the schema has been frozen.
func (s *Schema) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// Declared reports whether a type of the given kind is declared.
func (s *Schema) Declared(name string, kind Kind) bool {
	d, ok := s.types[name]
	return ok && d.kind == kind
}

// MRO returns the C3 linearization of a type: the type itself first, then
// supertypes in resolution order. Returns nil for unknown types or before
// Freeze.
func (s *Schema) MRO(name string) []string {
	d, ok := s.types[name]
	if !ok || d.mro == nil {
		return nil
	}
	return append([]string(nil), d.mro...)
}

// IsSubtype reports whether sub's linearization contains super. Every type
// is a subtype of itself.
func (s *Schema) IsSubtype(sub, super string) bool {
	d, ok := s.types[sub]
	if !ok {
		return false
	}
	for _, t := range d.mro {
		if t == super {
			return true
		}
	}
	return false
}

// Defaults returns the merged attribute defaults for a type, most-derived
// declaration winning. The returned map is a deep copy.
func (s *Schema) Defaults(name string) map[string]any {
	d, ok := s.types[name]
	if !ok {
		return nil
	}
	return cloneAttrs(d.defaults)
}

// attrAllowed reports whether a type declares (or inherits) an attribute.
func (s *Schema) attrAllowed(name, attr string) bool {
	d, ok := s.types[name]
	if !ok {
		return false
	}
	return d.attrSet[attr]
}

// checkEndpoints validates an edge type against its endpoint rules.
func (s *Schema) checkEndpoints(edgeType, srcType, dstType string) error {
	d, ok := s.types[edgeType]
	if !ok || d.kind != KindEdge {
		return NewTypeMismatchError(edgeType, "not a declared edge type")
	}
	if len(d.endpoints) == 0 {
		return nil
	}
	for _, rule := range d.endpoints {
		if s.IsSubtype(srcType, rule.src) && s.IsSubtype(dstType, rule.dst) {
			return nil
		}
	}
	return NewTypeMismatchError(edgeType,
		fmt.Sprintf("no endpoint rule admits (%s -> %s)", srcType, dstType))
}
