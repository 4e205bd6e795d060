// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"sort"
	"sync"
)

// Globals is a named-value map the runtime seals before any walker
// runs. Abilities read it through Context.Global; they can never write
// it, and neither can anything else once sealed.
//
// Description:
//
//	Globals carries host-provided values (API clients, tunables,
//	feature switches) into abilities without threading them through
//	walker fields. The build phase is single-writer: populate with
//	Set, call Seal, then hand the map to the engine.
//
// Thread Safety: Set and Seal are guarded by a mutex; after Seal the
// map is immutable and safe for lock-free concurrent reads.
type Globals struct {
	mu     sync.Mutex
	sealed bool
	values map[string]any
}

// NewGlobals creates an empty, unsealed Globals.
func NewGlobals() *Globals {
	return &Globals{values: make(map[string]any)}
}

// Set stores a value under a name. Panics if the map is sealed; a
// sealed Globals is a published contract with running walkers and
// mutating it is a programming error, not a recoverable condition.
func (g *Globals) Set(name string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sealed {
		panic(fmt.Sprintf("config: set %q on sealed globals", name))
	}
	g.values[name] = value
}

// Seal freezes the map. Sealing twice is a no-op.
func (g *Globals) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sealed = true
}

// Sealed reports whether the map has been sealed.
func (g *Globals) Sealed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sealed
}

// Get returns the value under a name and whether it exists.
func (g *Globals) Get(name string) (any, bool) {
	v, ok := g.values[name]
	return v, ok
}

// Names returns the stored names in sorted order.
func (g *Globals) Names() []string {
	names := make([]string, 0, len(g.values))
	for name := range g.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
