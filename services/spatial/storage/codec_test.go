// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

func TestEncodeDecodeRecord_Node(t *testing.T) {
	snap := graph.Snapshot{
		Kind:   graph.KindNode,
		ID:     "n-1",
		Type:   "City",
		RootID: "root-1",
		Attrs:  map[string]any{"name": "Anchorage", "population": float64(290000)},
		Edges:  []string{"e-1", "e-2"},
	}

	data, err := EncodeRecord(snap)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}

	if got.Kind != graph.KindNode {
		t.Errorf("Kind = %v, want %v", got.Kind, graph.KindNode)
	}
	if got.ID != "n-1" || got.Type != "City" || got.RootID != "root-1" {
		t.Errorf("identity = (%s, %s, %s), want (n-1, City, root-1)", got.ID, got.Type, got.RootID)
	}
	if got.Attrs["name"] != "Anchorage" {
		t.Errorf("Attrs[name] = %v, want Anchorage", got.Attrs["name"])
	}
	if got.Attrs["population"] != float64(290000) {
		t.Errorf("Attrs[population] = %v, want 290000", got.Attrs["population"])
	}
	if len(got.Edges) != 2 || got.Edges[0] != "e-1" || got.Edges[1] != "e-2" {
		t.Errorf("Edges = %v, want [e-1 e-2]", got.Edges)
	}
}

func TestEncodeDecodeRecord_Edge(t *testing.T) {
	snap := graph.Snapshot{
		Kind:     graph.KindEdge,
		ID:       "e-1",
		Type:     "Road",
		RootID:   "root-1",
		Src:      "n-1",
		Dst:      "n-2",
		Directed: true,
		Attrs:    map[string]any{"miles": 12.5},
	}

	data, err := EncodeRecord(snap)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	got, err := DecodeRecord(data)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}

	if got.Kind != graph.KindEdge {
		t.Errorf("Kind = %v, want %v", got.Kind, graph.KindEdge)
	}
	if got.Src != "n-1" || got.Dst != "n-2" {
		t.Errorf("endpoints = (%s, %s), want (n-1, n-2)", got.Src, got.Dst)
	}
	if !got.Directed {
		t.Error("Directed should survive the roundtrip")
	}
	if got.Attrs["miles"] != 12.5 {
		t.Errorf("Attrs[miles] = %v, want 12.5", got.Attrs["miles"])
	}
}

func TestDecodeRecord_InvalidJSON(t *testing.T) {
	_, err := DecodeRecord([]byte("not valid json"))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got: %v", err)
	}
}

func TestDecodeRecord_Truncated(t *testing.T) {
	data, err := EncodeRecord(graph.Snapshot{
		Kind: graph.KindNode, ID: "n-1", Type: "City", RootID: "root-1",
	})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	_, err = DecodeRecord(data[:len(data)/2])
	if err == nil {
		t.Fatal("expected error for truncated record")
	}
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got: %v", err)
	}
}

func TestDecodeRecord_CorruptPayload(t *testing.T) {
	data, err := EncodeRecord(graph.Snapshot{
		Kind: graph.KindNode, ID: "n-1", Type: "Widget", RootID: "root-1",
	})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	// Flip a payload byte without breaking JSON structure.
	corrupted := bytes.Replace(data, []byte("Widget"), []byte("Wodget"), 1)
	if bytes.Equal(corrupted, data) {
		t.Fatal("corruption did not change the record")
	}

	_, err = DecodeRecord(corrupted)
	if err == nil {
		t.Fatal("expected error for corrupt payload")
	}
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got: %v", err)
	}
}

func TestDecodeRecord_VersionMismatch(t *testing.T) {
	data, err := EncodeRecord(graph.Snapshot{
		Kind: graph.KindNode, ID: "n-1", Type: "City", RootID: "root-1",
	})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	rec.Version = "0.0.1"
	modified, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal modified record: %v", err)
	}

	_, err = DecodeRecord(modified)
	if err == nil {
		t.Fatal("expected error for version mismatch")
	}
	if !errors.Is(err, ErrRecordVersion) {
		t.Errorf("expected ErrRecordVersion, got: %v", err)
	}
}

func TestDecodeRecord_TamperedChecksum(t *testing.T) {
	data, err := EncodeRecord(graph.Snapshot{
		Kind: graph.KindNode, ID: "n-1", Type: "City", RootID: "root-1",
	})
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	rec.Checksum = "0000000000000000000000000000000000000000000000000000000000000000"
	modified, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal modified record: %v", err)
	}

	_, err = DecodeRecord(modified)
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got: %v", err)
	}
}
