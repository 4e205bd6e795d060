// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package weaviate

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

func TestOpen_RequiresHost(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")
}

func TestObjectID_Deterministic(t *testing.T) {
	s := &Store{class: DefaultClass}

	first := s.objectID("n-1")
	second := s.objectID("n-1")
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, s.objectID("n-2"))

	// Different classes address different objects.
	other := &Store{class: "OtherClass"}
	assert.NotEqual(t, first, other.objectID("n-1"))
}

func TestParseObjects(t *testing.T) {
	data := map[string]models.JSONObject{
		"Get": map[string]interface{}{
			"SpatialElement": []interface{}{
				map[string]interface{}{"elementId": "n-1", "record": "{}"},
				map[string]interface{}{"elementId": "n-2", "record": "{}"},
				"not-an-object",
			},
		},
	}

	objs := parseObjects(data, "SpatialElement")
	require.Len(t, objs, 2)
	assert.Equal(t, "n-1", objs[0]["elementId"])

	assert.Nil(t, parseObjects(map[string]models.JSONObject{}, "SpatialElement"))
	assert.Nil(t, parseObjects(data, "WrongClass"))
}

// -----------------------------------------------------------------------------
// Integration Tests (require actual Weaviate)
// -----------------------------------------------------------------------------

// These tests require a running Weaviate instance and are skipped in
// short mode or when no server answers.

func integrationStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	host := os.Getenv("SPATIAL_TEST_WEAVIATE_HOST")
	if host == "" {
		host = "localhost:8080"
	}
	store, err := Open(context.Background(), Config{Host: host, Class: "SpatialElementTest"})
	if err != nil {
		t.Skipf("Weaviate not available: %v", err)
	}
	return store
}

func TestIntegration_RoundTrip(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	rootID := fmt.Sprintf("it-%d", time.Now().UnixNano())

	snaps := []graph.Snapshot{
		{Kind: graph.KindNode, ID: rootID, Type: "Root", RootID: rootID, Edges: []string{"e-1"}},
		{Kind: graph.KindNode, ID: "n-1", Type: "City", RootID: rootID, Edges: []string{"e-1"}},
		{Kind: graph.KindEdge, ID: "e-1", Type: "Road", RootID: rootID, Src: rootID, Dst: "n-1"},
	}
	for _, snap := range snaps {
		require.NoError(t, store.Save(ctx, snap))
	}
	t.Cleanup(func() {
		for _, snap := range snaps {
			_ = store.Delete(ctx, rootID, snap.ID)
		}
	})

	loaded, err := store.LoadRoot(ctx, rootID)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	byID := make(map[string]graph.Snapshot, len(loaded))
	for _, snap := range loaded {
		byID[snap.ID] = snap
	}
	assert.Equal(t, "City", byID["n-1"].Type)
	assert.Equal(t, rootID, byID["e-1"].Src)

	// Saving again must replace, not duplicate.
	updated := snaps[1]
	updated.Attrs = map[string]any{"population": float64(1000)}
	require.NoError(t, store.Save(ctx, updated))

	loaded, err = store.LoadRoot(ctx, rootID)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
}

func TestIntegration_LoadRootUnknown(t *testing.T) {
	store := integrationStore(t)

	_, err := store.LoadRoot(context.Background(), "no-such-root")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestIntegration_DeleteUnknown(t *testing.T) {
	store := integrationStore(t)

	assert.NoError(t, store.Delete(context.Background(), "r-1", "ghost"))
}
