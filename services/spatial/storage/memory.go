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
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// Memory is an in-memory graph.RootStore.
//
// Description:
//
//	Memory keeps encoded records per root in process memory. It exists
//	for tests and for runtimes that want persistence semantics (root
//	closures survive store-level eviction and reload) without a durable
//	backend. Records go through the same codec as the durable tiers, so
//	codec regressions surface in fast tests.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	// records maps rootID -> element ID -> encoded record.
	records map[string]map[string][]byte

	// order keeps first-save order per root so LoadRoot is deterministic.
	order map[string][]string
}

// NewMemory creates an empty in-memory root store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string][]byte),
		order:   make(map[string][]string),
	}
}

// LoadRoot returns every stored element of the root's closure in
// first-save order.
//
// Outputs:
//   - []graph.Snapshot: The closure, root node included.
//   - error: graph.ErrNotFound (wrapped) for unknown roots;
//     ErrCorruptRecord if a stored record fails verification.
func (m *Memory) LoadRoot(_ context.Context, rootID string) ([]graph.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elems, ok := m.records[rootID]
	if !ok {
		return nil, graph.NewNotFoundError("root", rootID)
	}

	snaps := make([]graph.Snapshot, 0, len(elems))
	for _, id := range m.order[rootID] {
		data, ok := elems[id]
		if !ok {
			continue
		}
		snap, err := DecodeRecord(data)
		if err != nil {
			return nil, fmt.Errorf("root %s element %s: %w", rootID, id, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Save upserts one element snapshot under its root.
func (m *Memory) Save(_ context.Context, snap graph.Snapshot) error {
	if snap.RootID == "" {
		return fmt.Errorf("storage: snapshot %s has no root", snap.ID)
	}
	data, err := EncodeRecord(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	elems, ok := m.records[snap.RootID]
	if !ok {
		elems = make(map[string][]byte)
		m.records[snap.RootID] = elems
	}
	if _, exists := elems[snap.ID]; !exists {
		m.order[snap.RootID] = append(m.order[snap.RootID], snap.ID)
	}
	elems[snap.ID] = data
	return nil
}

// Delete removes one element of the given root. Unknown elements are a
// no-op; a delete raced by a sweep must not fail.
func (m *Memory) Delete(_ context.Context, rootID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	elems, ok := m.records[rootID]
	if !ok {
		return nil
	}
	if _, exists := elems[id]; !exists {
		return nil
	}
	delete(elems, id)

	order := m.order[rootID]
	for i, oid := range order {
		if oid == id {
			m.order[rootID] = append(order[:i], order[i+1:]...)
			break
		}
	}

	// The root node's record going away retires the root entirely.
	if id == rootID {
		delete(m.records, rootID)
		delete(m.order, rootID)
	}
	return nil
}

// Close releases nothing; it exists to satisfy graph.RootStore.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored elements under a root.
func (m *Memory) Len(rootID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[rootID])
}

// Roots returns the IDs of roots with at least one stored element,
// sorted ascending.
func (m *Memory) Roots() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for id := range m.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
