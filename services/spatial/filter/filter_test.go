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
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

func cityCandidate() Candidate {
	return Candidate{
		Node: graph.Node{
			ID:   "n1",
			Type: "city",
			Attrs: map[string]any{
				"name":       "adak",
				"population": 171,
				"coastal":    true,
				"rating":     4.5,
				"tags":       []any{"remote", "island"},
				"geo":        map[string]any{"lat": 51.88, "lon": -176.65},
			},
		},
		Edge: graph.Edge{
			ID:       "e1",
			Type:     "road",
			Attrs:    map[string]any{"toll": false, "miles": 12},
			Src:      "n0",
			Dst:      "n1",
			Directed: true,
		},
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile(`type == `)
	if err == nil {
		t.Fatal("expected syntax error")
	}
	if !errors.Is(err, ErrEval) {
		t.Errorf("error does not match ErrEval: %v", err)
	}
	var evalErr *EvalError
	if !errors.As(err, &evalErr) {
		t.Fatalf("error is not *EvalError: %T", err)
	}
	if evalErr.Expr != `type == ` {
		t.Errorf("EvalError.Expr = %q, want original source", evalErr.Expr)
	}
	if len(evalErr.Diags) == 0 {
		t.Error("expected HCL diagnostics on a parse error")
	}
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"empty matches all", ``, true},
		{"type equality", `type == "city"`, true},
		{"type mismatch", `type == "person"`, false},
		{"id equality", `id == "n1"`, true},
		{"string attr", `attrs.name == "adak"`, true},
		{"int comparison", `attrs.population > 100`, true},
		{"int comparison false", `attrs.population > 1000`, false},
		{"float comparison", `attrs.rating >= 4.0`, true},
		{"bool attr", `attrs.coastal`, true},
		{"negation", `!attrs.coastal`, false},
		{"conjunction", `type == "city" && attrs.population > 100`, true},
		{"disjunction", `type == "person" || attrs.coastal`, true},
		{"tuple index", `attrs.tags[0] == "remote"`, true},
		{"nested object", `attrs.geo.lat > 50`, true},
		{"arithmetic", `attrs.population * 2 == 342`, true},
		{"conditional", `attrs.coastal ? attrs.population > 100 : false`, true},
		{"edge type", `edge.type == "road"`, true},
		{"edge attr", `edge.attrs.toll == false`, true},
		{"edge directed", `edge.directed`, true},
		{"edge attr numeric", `edge.attrs.miles < 20`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.expr, err)
			}
			got, err := f.Match(cityCandidate())
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestFilter_MatchErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"unknown variable", `score > 10`},
		{"unknown attribute", `attrs.elevation > 10`},
		{"non-boolean result", `attrs.population`},
		{"non-boolean string", `type`},
		{"type confusion", `attrs.name > 10`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q): %v", tt.expr, err)
			}
			_, err = f.Match(cityCandidate())
			if err == nil {
				t.Fatalf("Match(%q) succeeded, want error", tt.expr)
			}
			if !errors.Is(err, ErrEval) {
				t.Errorf("error does not match ErrEval: %v", err)
			}
		})
	}
}

func TestFilter_NilAttrValue(t *testing.T) {
	cand := cityCandidate()
	cand.Node.Attrs["nickname"] = nil

	f, err := Compile(`attrs.nickname == null`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := f.Match(cand)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if !got {
		t.Error("nil attribute should compare equal to null")
	}
}

func TestFilter_ConcurrentMatch(t *testing.T) {
	f, err := Compile(`attrs.population > 100`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 200; j++ {
				ok, merr := f.Match(cityCandidate())
				if merr != nil {
					done <- merr
					return
				}
				if !ok {
					done <- errors.New("unexpected non-match")
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Match: %v", err)
		}
	}
}

func TestCache_GetOrCompile(t *testing.T) {
	c := NewCache(4)

	f1, err := c.GetOrCompile(`type == "city"`)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	f2, err := c.GetOrCompile(`type == "city"`)
	if err != nil {
		t.Fatalf("GetOrCompile: %v", err)
	}
	if f1 != f2 {
		t.Error("second lookup should return the cached filter")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_CompileErrorNotCached(t *testing.T) {
	c := NewCache(4)

	if _, err := c.GetOrCompile(`type ==`); err == nil {
		t.Fatal("expected compile error")
	}
	if c.Len() != 0 {
		t.Errorf("failed compilations should not be cached, Len = %d", c.Len())
	}
}

func TestCache_Eviction(t *testing.T) {
	c := NewCache(2)

	exprs := []string{`id == "a"`, `id == "b"`, `id == "c"`}
	for _, e := range exprs {
		if _, err := c.GetOrCompile(e); err != nil {
			t.Fatalf("GetOrCompile(%q): %v", e, err)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want capacity 2", c.Len())
	}
	if c.Evictions() != 1 {
		t.Errorf("Evictions = %d, want 1", c.Evictions())
	}
}
