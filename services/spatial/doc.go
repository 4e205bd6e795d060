// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spatial assembles the object-spatial runtime: a persistent
// typed graph traversed by mobile walker agents.
//
// The subpackages carry the machinery — graph (typed store, roots,
// persistence closure), ability (phase dispatch), filter (visit target
// resolution), walker (traversal engine and spawning), storage
// (persistence collaborators), config (file/env configuration and
// sealed globals). This package wires them into one Runtime from a
// single Config.
//
// # Lifecycle
//
// A program declares its types, builds a Runtime, registers abilities,
// and spawns walkers:
//
//	schema := graph.NewSchema()
//	schema.DeclareNode("person", graph.Attr("name", ""))
//	schema.DeclareEdge("friend_of")
//
//	rt, err := spatial.New(ctx, schema, config.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	rt.OnEntry("person", func(c *walker.Context) error {
//	    c.Report(c.HereID())
//	    return c.Visit(walker.Query{Dir: graph.DirOut})
//	})
//
//	spec, _ := walker.NewSpec("greeter")
//	res, err := rt.Spawn(ctx, spec, []graph.Ref{node.Ref()}, nil)
//
// Ability registration and global writes are open until the first
// spawn; the first spawn seals both for the life of the runtime.
//
// # Storage backends
//
// The configured backend anchors durability at graph roots: memory
// (process-local), badger (embedded warm tier), redis (shared cache
// tier), weaviate (cold object tier). The graph store itself is always
// the hot tier; collaborators only see root-reachable elements.
package spatial
