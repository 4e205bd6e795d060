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
	"errors"
	"testing"
)

func declare(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
}

// =============================================================================
// Declarations
// =============================================================================

func TestNewSchema_RootPreDeclared(t *testing.T) {
	s := NewSchema()
	if !s.Declared(RootType, KindNode) {
		t.Error("root node type should be pre-declared")
	}
	if err := s.DeclareNode(RootType); err == nil {
		t.Error("re-declaring the root type should fail")
	}
}

func TestDeclare_InvalidNames(t *testing.T) {
	s := NewSchema()
	for _, name := range []string{"", "9lives", "bad-name", "has space", "*"} {
		if err := s.DeclareNode(name); err == nil {
			t.Errorf("DeclareNode(%q) should fail", name)
		}
	}
}

func TestDeclare_Duplicate(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place"))
	err := s.DeclareNode("place")
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
	// Kind does not disambiguate: the namespace is shared.
	if err := s.DeclareEdge("place"); err == nil {
		t.Error("edge with a node type's name should fail")
	}
}

func TestDeclare_AfterFreeze(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place"))
	if err := s.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if err := s.DeclareNode("late"); !errors.Is(err, ErrSchemaFrozen) {
		t.Errorf("err = %v, want ErrSchemaFrozen", err)
	}
}

func TestDeclare_InvalidAttributeName(t *testing.T) {
	s := NewSchema()
	err := s.DeclareNode("place", Attr("bad-attr", 0))
	if err == nil {
		t.Error("invalid attribute name should fail the declaration")
	}
	if s.Declared("place", KindNode) {
		t.Error("failed declaration must not register the type")
	}
}

// =============================================================================
// Freeze and linearization
// =============================================================================

func TestFreeze_Idempotent(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place"))
	if err := s.Freeze(); err != nil {
		t.Fatalf("first Freeze: %v", err)
	}
	if err := s.Freeze(); err != nil {
		t.Errorf("second Freeze: %v", err)
	}
	if !s.Frozen() {
		t.Error("Frozen() should report true")
	}
}

func TestFreeze_UnknownSupertype(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("city", Extends("ghost")))
	if err := s.Freeze(); !errors.Is(err, ErrBadHierarchy) {
		t.Errorf("err = %v, want ErrBadHierarchy", err)
	}
}

func TestFreeze_KindMismatch(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareEdge("road"))
	declare(t, s.DeclareNode("city", Extends("road")))
	if err := s.Freeze(); !errors.Is(err, ErrBadHierarchy) {
		t.Errorf("err = %v, want ErrBadHierarchy", err)
	}
}

func TestFreeze_SupertypeCycle(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("a", Extends("b")))
	declare(t, s.DeclareNode("b", Extends("a")))
	if err := s.Freeze(); !errors.Is(err, ErrBadHierarchy) {
		t.Errorf("err = %v, want ErrBadHierarchy", err)
	}
}

func TestFreeze_DiamondLinearization(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("entity"))
	declare(t, s.DeclareNode("place", Extends("entity")))
	declare(t, s.DeclareNode("settlement", Extends("entity")))
	declare(t, s.DeclareNode("city", Extends("place", "settlement")))
	if err := s.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	want := []string{"city", "place", "settlement", "entity"}
	got := s.MRO("city")
	if len(got) != len(want) {
		t.Fatalf("MRO = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("MRO = %v, want %v", got, want)
		}
	}
}

func TestFreeze_ConflictingOrder(t *testing.T) {
	// y already places x after itself; z asking for x before y cannot be
	// linearized.
	s := NewSchema()
	declare(t, s.DeclareNode("x"))
	declare(t, s.DeclareNode("y", Extends("x")))
	declare(t, s.DeclareNode("z", Extends("x", "y")))
	if err := s.Freeze(); !errors.Is(err, ErrBadHierarchy) {
		t.Errorf("err = %v, want ErrBadHierarchy", err)
	}
}

func TestFreeze_EndpointRuleUnknownType(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareEdge("road", Endpoints("place", "place")))
	if err := s.Freeze(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestFreeze_EndpointRuleEdgeType(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareEdge("way"))
	declare(t, s.DeclareEdge("road", Endpoints("way", "way")))
	if err := s.Freeze(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

// =============================================================================
// Frozen reads
// =============================================================================

func TestMRO_BeforeFreezeAndUnknown(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place"))
	if got := s.MRO("place"); got != nil {
		t.Errorf("MRO before Freeze = %v, want nil", got)
	}
	if err := s.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if got := s.MRO("ghost"); got != nil {
		t.Errorf("MRO of unknown type = %v, want nil", got)
	}
}

func TestIsSubtype(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place"))
	declare(t, s.DeclareNode("city", Extends("place")))
	declare(t, s.DeclareNode("island"))
	if err := s.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	cases := []struct {
		sub, super string
		want       bool
	}{
		{"city", "city", true},
		{"city", "place", true},
		{"place", "city", false},
		{"island", "place", false},
		{"ghost", "place", false},
	}
	for _, c := range cases {
		if got := s.IsSubtype(c.sub, c.super); got != c.want {
			t.Errorf("IsSubtype(%s, %s) = %v, want %v", c.sub, c.super, got, c.want)
		}
	}
}

func TestDefaults_InheritanceAndIsolation(t *testing.T) {
	s := NewSchema()
	declare(t, s.DeclareNode("place", Attr("name", ""), Attr("kind", "generic")))
	declare(t, s.DeclareNode("city", Extends("place"), Attr("kind", "urban"), Attr("population", 0)))
	if err := s.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	d := s.Defaults("city")
	if d["name"] != "" || d["kind"] != "urban" || d["population"] != 0 {
		t.Errorf("defaults = %v, want inherited name, overridden kind, own population", d)
	}

	// The returned map is a copy; mutating it must not leak back.
	d["kind"] = "mutated"
	if again := s.Defaults("city"); again["kind"] != "urban" {
		t.Errorf("defaults after mutation = %v, want urban", again["kind"])
	}

	if got := s.Defaults("ghost"); got != nil {
		t.Errorf("Defaults of unknown type = %v, want nil", got)
	}
}
