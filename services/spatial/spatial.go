// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spatial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianSpatial/pkg/logging"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/ability"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/config"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage/badger"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage/redis"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage/weaviate"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/walker"
)

// =============================================================================
// Options
// =============================================================================

// Option customizes runtime construction.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	rootStore graph.RootStore
	globals   *config.Globals
	registry  *walker.Registry
}

// WithLogger routes runtime logging through the given logger instead of
// one built from the config's logging section. The caller keeps
// ownership of the underlying sinks.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRootStore overrides the persistence backend the config selects.
// The caller keeps ownership: Close does not close a supplied store.
func WithRootStore(rs graph.RootStore) Option {
	return func(o *options) {
		o.rootStore = rs
	}
}

// WithGlobals attaches a pre-populated globals map. The first spawn
// seals it along with the rest of the runtime.
func WithGlobals(g *config.Globals) Option {
	return func(o *options) {
		o.globals = g
	}
}

// WithRegistry attaches a prepared ability registry instead of an empty
// one bound to the schema's hierarchy.
func WithRegistry(r *walker.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// =============================================================================
// Runtime
// =============================================================================

// Runtime assembles a spatial engine from configuration: schema-checked
// graph store, persistence backend, ability registry, globals, and the
// walker engine over them.
//
// Description:
//
//	A Runtime passes through two phases. After New it is open: abilities
//	register through OnEntry and OnExit, globals accumulate through
//	SetGlobal, and the graph may be populated. The first Spawn seals it:
//	the registry freezes, the globals seal, and from then on the runtime
//	only traverses and mutates graph data. There is no unseal.
//
// Thread Safety: all methods are safe for concurrent use. Registration
// racing the first spawn is a programming error; the seal decides which
// side of it each call lands on.
type Runtime struct {
	cfg    config.Config
	schema *graph.Schema

	store     *graph.Store
	rootStore graph.RootStore
	ownsRoots bool

	registry *walker.Registry
	engine   *walker.Engine
	coord    *walker.Coordinator
	globals  *config.Globals

	// logger is the runtime-owned logging pipeline, nil when WithLogger
	// supplied one from outside.
	logger   *logging.Logger
	slogger  *slog.Logger
	sealOnce sync.Once
}

// New assembles a runtime over a schema.
//
// Description:
//
//	The schema is frozen if the caller has not frozen it already, the
//	storage backend named by cfg.Storage.Backend is opened (unless
//	WithRootStore supplies one), and the graph store and walker engine
//	are built over them. The configuration is validated first; nothing
//	is opened on a validation failure.
//
// Inputs:
//   - ctx: Governs backend connection handshakes (redis, weaviate).
//   - schema: Type declarations. Frozen in place; declarations made
//     after New are rejected by the schema itself.
//   - cfg: Runtime configuration, typically config.Load or
//     config.DefaultConfig plus edits.
//   - opts: Construction options.
//
// Outputs:
//   - *Runtime: Ready, unsealed runtime.
//   - error: Invalid config, schema freeze failure, or backend open
//     failure.
func New(ctx context.Context, schema *graph.Schema, cfg config.Config, opts ...Option) (*Runtime, error) {
	if schema == nil {
		return nil, errors.New("spatial: nil schema")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{cfg: cfg, schema: schema}

	if o.logger != nil {
		rt.slogger = o.logger
	} else {
		rt.logger = logging.New(logging.Config{
			Level:   logLevel(cfg.Logging.Level),
			JSON:    cfg.Logging.JSON,
			LogDir:  cfg.Logging.Dir,
			Service: "spatial",
		})
		rt.slogger = rt.logger.Slog()
	}

	if err := schema.Freeze(); err != nil {
		rt.closeOwned()
		return nil, fmt.Errorf("freeze schema: %w", err)
	}

	rt.rootStore = o.rootStore
	rt.ownsRoots = o.rootStore == nil
	if rt.rootStore == nil {
		rs, err := openRootStore(ctx, cfg, rt.slogger)
		if err != nil {
			rt.closeOwned()
			return nil, fmt.Errorf("open %s backend: %w", cfg.Storage.Backend, err)
		}
		rt.rootStore = rs
	}

	store, err := graph.New(schema,
		graph.WithRootStore(rt.rootStore),
		graph.WithLogger(rt.slogger),
		graph.WithStripeCount(cfg.Graph.StripeCount),
		graph.WithMaxNodes(cfg.Graph.MaxNodes),
		graph.WithMaxEdges(cfg.Graph.MaxEdges),
	)
	if err != nil {
		rt.closeOwned()
		return nil, fmt.Errorf("create graph store: %w", err)
	}
	rt.store = store

	rt.registry = o.registry
	if rt.registry == nil {
		rt.registry = walker.NewRegistry(schema)
	}
	rt.globals = o.globals
	if rt.globals == nil {
		rt.globals = config.NewGlobals()
	}

	eng, err := walker.NewEngine(store, rt.registry,
		walker.WithLogger(rt.slogger),
		walker.WithGlobals(rt.globals),
		walker.WithMaxSteps(cfg.Engine.MaxSteps),
		walker.WithPoolSize(cfg.Engine.WorkerPoolSize),
		walker.WithFilterCacheSize(cfg.Engine.FilterCacheSize),
	)
	if err != nil {
		rt.closeOwned()
		return nil, fmt.Errorf("create walker engine: %w", err)
	}
	rt.engine = eng
	rt.coord = walker.NewCoordinator(eng)

	rt.slogger.Info("spatial runtime ready",
		"backend", backendName(cfg, o.rootStore),
		"stripes", cfg.Graph.StripeCount,
	)
	return rt, nil
}

// openRootStore builds the persistence backend the config names,
// translating the config package's plain sections into each backend's
// own config type.
func openRootStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (graph.RootStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "badger":
		var bcfg badger.Config
		if cfg.Storage.Badger.InMemory {
			bcfg = badger.InMemoryConfig()
		} else {
			bcfg = badger.DefaultConfig(cfg.Storage.Badger.Path)
			bcfg.SyncWrites = cfg.Storage.Badger.SyncWrites
			bcfg.GCInterval = cfg.Storage.Badger.GCInterval
		}
		bcfg.Logger = logger
		return badger.Open(bcfg)
	case "redis":
		return redis.Open(ctx, redis.Config{
			URL: cfg.Storage.Redis.URL,
			TTL: cfg.Storage.Redis.TTL,
		})
	case "weaviate":
		return weaviate.Open(ctx, weaviate.Config{
			Host:   cfg.Storage.Weaviate.Host,
			Scheme: cfg.Storage.Weaviate.Scheme,
			APIKey: cfg.Storage.Weaviate.APIKey,
			Class:  cfg.Storage.Weaviate.Class,
		})
	default:
		// Validate rejects unknown names; this is the switch's safety net.
		return nil, fmt.Errorf("spatial: unknown storage backend %q", cfg.Storage.Backend)
	}
}

// backendName labels the persistence tier for the startup log line.
func backendName(cfg config.Config, supplied graph.RootStore) string {
	if supplied != nil {
		return "external"
	}
	return cfg.Storage.Backend
}

// logLevel maps a validated config level string onto the logging
// package's levels.
func logLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// closeOwned releases resources a partially-constructed runtime opened.
func (r *Runtime) closeOwned() {
	if r.ownsRoots && r.rootStore != nil {
		_ = r.rootStore.Close()
	}
	if r.logger != nil {
		_ = r.logger.Close()
	}
}

// =============================================================================
// Registration and globals
// =============================================================================

// OnEntry registers an entry ability for a node or edge type and its
// subtypes. ability.Wildcard matches every type. Registration closes at
// the first spawn; later calls return ability.ErrFrozen.
func (r *Runtime) OnEntry(typeName string, h walker.Handler) error {
	return r.registry.Register(typeName, ability.PhaseEntry, h)
}

// OnExit registers an exit ability for a node or edge type and its
// subtypes.
func (r *Runtime) OnExit(typeName string, h walker.Handler) error {
	return r.registry.Register(typeName, ability.PhaseExit, h)
}

// SetGlobal stores a named value abilities read through Context.Global.
// Returns an error after the first spawn sealed the globals.
func (r *Runtime) SetGlobal(name string, value any) error {
	if r.globals.Sealed() {
		return fmt.Errorf("spatial: set global %q after first spawn", name)
	}
	r.globals.Set(name, value)
	return nil
}

// =============================================================================
// Walker operations
// =============================================================================

// Spawn instantiates a walker spec on the given targets and runs it to
// completion. The first spawn seals the runtime: the ability registry
// freezes and the globals become immutable.
//
// Outputs:
//   - *walker.Result: Reports, path, and final state. On a traversal
//     error the partial result rides alongside.
//   - error: Validation, traversal, or context errors, as documented on
//     walker.Coordinator.Spawn.
func (r *Runtime) Spawn(ctx context.Context, spec *walker.Spec, targets []graph.Ref, fields map[string]any) (*walker.Result, error) {
	r.sealOnce.Do(r.seal)
	return r.coord.Spawn(ctx, spec, targets, fields)
}

// seal closes the registration phase.
func (r *Runtime) seal() {
	r.registry.Freeze()
	r.globals.Seal()
	r.slogger.Debug("runtime sealed",
		"abilities", r.registry.Len(),
		"globals", len(r.globals.Names()),
	)
}

// Sealed reports whether the first spawn has happened.
func (r *Runtime) Sealed() bool {
	return r.registry.Frozen()
}

// =============================================================================
// Graph operations
// =============================================================================

// CreateRoot creates a persistence anchor node.
func (r *Runtime) CreateRoot(ctx context.Context) (graph.Node, error) {
	return r.store.CreateRoot(ctx)
}

// CreateNode creates a typed node. Nodes connected to a root are
// persisted; free-floating nodes live in memory until connected.
func (r *Runtime) CreateNode(ctx context.Context, typeName string, attrs map[string]any) (graph.Node, error) {
	return r.store.CreateNode(ctx, typeName, attrs)
}

// Connect creates a typed edge between two existing nodes.
func (r *Runtime) Connect(ctx context.Context, srcID, dstID, edgeType string, attrs map[string]any, dir graph.Direction) (graph.Edge, error) {
	return r.store.Connect(ctx, srcID, dstID, edgeType, attrs, dir)
}

// LoadRoot materializes a persisted root closure into the store.
func (r *Runtime) LoadRoot(ctx context.Context, rootID string) (graph.Node, error) {
	return r.store.LoadRoot(ctx, rootID)
}

// Sweep demotes persisted elements that deletions have stranded away
// from their root. With no arguments every root is swept. Demoted
// elements stay in memory; their stored records are removed.
func (r *Runtime) Sweep(ctx context.Context, rootIDs ...string) (int, error) {
	return r.store.Sweep(ctx, rootIDs...)
}

// Roots lists the root IDs known to the store, sorted.
func (r *Runtime) Roots() []string {
	return r.store.Roots()
}

// =============================================================================
// Accessors and lifecycle
// =============================================================================

// Store returns the graph store for operations the facade does not
// wrap: attribute access, neighbors, deletes.
func (r *Runtime) Store() *graph.Store {
	return r.store
}

// Schema returns the frozen schema.
func (r *Runtime) Schema() *graph.Schema {
	return r.schema
}

// Registry returns the ability registry.
func (r *Runtime) Registry() *walker.Registry {
	return r.registry
}

// Globals returns the runtime globals map.
func (r *Runtime) Globals() *config.Globals {
	return r.globals
}

// Logger returns the runtime's structured logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.slogger
}

// Close releases the storage backend and the owned logging pipeline.
// Resources supplied through options stay open; they belong to the
// caller.
func (r *Runtime) Close() error {
	var errs []error
	if r.ownsRoots && r.rootStore != nil {
		if err := r.rootStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}
	if r.logger != nil {
		if err := r.logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logging: %w", err))
		}
	}
	return errors.Join(errs...)
}
