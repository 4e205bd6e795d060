// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

func testSnapshot(rootID, id, typ string) graph.Snapshot {
	return graph.Snapshot{
		Kind:   graph.KindNode,
		ID:     id,
		Type:   typ,
		RootID: rootID,
	}
}

// TestOpenInMemory verifies the in-memory store round-trips snapshots.
func TestOpenInMemory(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "r-1", "Root")))
	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "n-1", "City")))

	snaps, err := store.LoadRoot(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

// TestOpenWithPath verifies snapshots survive close and reopen.
func TestOpenWithPath(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(DefaultConfig(dir))
	require.NoError(t, err)

	edge := graph.Snapshot{
		Kind: graph.KindEdge, ID: "e-1", Type: "Road",
		RootID: "r-1", Src: "r-1", Dst: "n-1", Directed: true,
	}
	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "r-1", "Root")))
	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "n-1", "City")))
	require.NoError(t, store.Save(ctx, edge))
	require.NoError(t, store.Close())

	store2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer store2.Close()

	snaps, err := store2.LoadRoot(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	byID := make(map[string]graph.Snapshot, len(snaps))
	for _, snap := range snaps {
		byID[snap.ID] = snap
	}
	assert.Equal(t, "City", byID["n-1"].Type)
	assert.Equal(t, "r-1", byID["e-1"].Src)
	assert.Equal(t, "n-1", byID["e-1"].Dst)
	assert.True(t, byID["e-1"].Directed)
}

// TestOpenRequiresPath verifies that persistent mode requires a path.
func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{InMemory: false, Path: ""})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

// TestConfigFunctions verifies default configurations.
func TestConfigFunctions(t *testing.T) {
	t.Run("DefaultConfig has SyncWrites", func(t *testing.T) {
		cfg := DefaultConfig("/tmp/spatial")
		assert.Equal(t, "/tmp/spatial", cfg.Path)
		assert.True(t, cfg.SyncWrites)
		assert.False(t, cfg.InMemory)
		assert.Equal(t, 1, cfg.NumVersionsToKeep)
		assert.Equal(t, 5*time.Minute, cfg.GCInterval)
	})

	t.Run("InMemoryConfig has InMemory", func(t *testing.T) {
		cfg := InMemoryConfig()
		assert.True(t, cfg.InMemory)
		assert.False(t, cfg.SyncWrites)
		assert.Equal(t, time.Duration(0), cfg.GCInterval) // GC disabled
	})
}

// TestStore_SaveRequiresRoot verifies unstamped snapshots are rejected.
func TestStore_SaveRequiresRoot(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	err = store.Save(context.Background(), graph.Snapshot{
		Kind: graph.KindNode, ID: "n-1", Type: "City",
	})
	assert.Error(t, err)
}

// TestStore_LoadRootUnknown verifies unknown roots surface ErrNotFound.
func TestStore_LoadRootUnknown(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadRoot(context.Background(), "no-such-root")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

// TestStore_Overwrite verifies the latest save wins.
func TestStore_Overwrite(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	first := testSnapshot("r-1", "r-1", "Root")
	first.Attrs = map[string]any{"rev": float64(1)}
	require.NoError(t, store.Save(ctx, first))

	second := testSnapshot("r-1", "r-1", "Root")
	second.Attrs = map[string]any{"rev": float64(2)}
	require.NoError(t, store.Save(ctx, second))

	snaps, err := store.LoadRoot(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, float64(2), snaps[0].Attrs["rev"])
}

// TestStore_Delete verifies element removal and root retirement.
func TestStore_Delete(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "r-1", "Root")))
	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "n-1", "City")))

	require.NoError(t, store.Delete(ctx, "r-1", "n-1"))
	snaps, err := store.LoadRoot(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	// Unknown elements are a no-op.
	require.NoError(t, store.Delete(ctx, "r-1", "ghost"))

	// Deleting the root element retires the root.
	require.NoError(t, store.Delete(ctx, "r-1", "r-1"))
	_, err = store.LoadRoot(ctx, "r-1")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	roots, err := store.Roots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)
}

// TestStore_Roots verifies root enumeration is sorted.
func TestStore_Roots(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for _, rootID := range []string{"r-b", "r-a", "r-c"} {
		require.NoError(t, store.Save(ctx, testSnapshot(rootID, rootID, "Root")))
	}

	roots, err := store.Roots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r-a", "r-b", "r-c"}, roots)
}

// TestStore_ContextCancelled verifies context cancellation short-circuits.
func TestStore_ContextCancelled(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Save(ctx, testSnapshot("r-1", "r-1", "Root"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

// TestStore_KeyPrefixIsolation verifies roots with shared ID prefixes
// do not leak into each other's closures.
func TestStore_KeyPrefixIsolation(t *testing.T) {
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, testSnapshot("r-1", "r-1", "Root")))
	require.NoError(t, store.Save(ctx, testSnapshot("r-10", "r-10", "Root")))
	require.NoError(t, store.Save(ctx, testSnapshot("r-10", "n-1", "City")))

	snaps, err := store.LoadRoot(ctx, "r-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
	assert.Equal(t, "r-1", snaps[0].ID)
}
