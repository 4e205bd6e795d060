// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger implements graph.RootStore on embedded BadgerDB.
//
// BadgerDB is the warm tier of the persistence model:
//
//	Hot (RAM graph) → Warm (BadgerDB) → Cold (Weaviate)
//
// Root closures are stored one record per element under
// "elem:{rootID}:{elementID}", so loading a root is a single prefix
// scan and elements come back in stable (lexicographic ID) order. A
// "root:{rootID}" marker key per root makes persisted roots
// enumerable without scanning element records.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage"
)

const (
	elemPrefix = "elem:"
	rootPrefix = "root:"
)

// elemKey builds the record key for one element of a root's closure.
func elemKey(rootID, id string) []byte {
	return []byte(elemPrefix + rootID + ":" + id)
}

// rootKey builds the enumeration marker key for a root.
func rootKey(rootID string) []byte {
	return []byte(rootPrefix + rootID)
}

// Config holds configuration for the BadgerDB root store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for store and BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// NumVersionsToKeep is the number of versions to keep per key.
	// Default: 1 (records are plain upserts, no MVCC).
	NumVersionsToKeep int

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use at the
// given database path.
func DefaultConfig(path string) Config {
	return Config{
		Path:              path,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing: no disk
// I/O, no sync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		SyncWrites:        false,
		NumVersionsToKeep: 1,
		GCInterval:        0, // disabled
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed graph.RootStore.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions
// provide isolation per call.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
}

// Open creates and opens a BadgerDB root store with the given
// configuration.
//
// Description:
//
//	Opens the database at the configured path (creating the directory
//	if needed) or in memory, and starts the value log GC runner when
//	an interval is configured.
//
// Outputs:
//   - *Store: The opened store. Caller must Close it.
//   - error: Non-nil if the path is missing or the database cannot be
//     opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &Store{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.start()
	}
	return s, nil
}

// Save upserts one element record and the root's enumeration marker in
// a single transaction.
func (s *Store) Save(ctx context.Context, snap graph.Snapshot) error {
	if snap.RootID == "" {
		return fmt.Errorf("badger: snapshot %s has no root", snap.ID)
	}
	data, err := storage.EncodeRecord(snap)
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(elemKey(snap.RootID, snap.ID), data); err != nil {
			return err
		}
		return txn.Set(rootKey(snap.RootID), nil)
	})
}

// LoadRoot returns every stored element of the root's closure.
//
// Outputs:
//   - []graph.Snapshot: The closure in lexicographic ID order, root
//     node included.
//   - error: graph.ErrNotFound (wrapped) for unknown roots;
//     storage.ErrCorruptRecord if a record fails verification.
func (s *Store) LoadRoot(ctx context.Context, rootID string) ([]graph.Snapshot, error) {
	var snaps []graph.Snapshot
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(elemPrefix + rootID + ":")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := item.Value(func(val []byte) error {
				snap, err := storage.DecodeRecord(val)
				if err != nil {
					return fmt.Errorf("root %s key %s: %w", rootID, item.Key(), err)
				}
				snaps = append(snaps, snap)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, graph.NewNotFoundError("root", rootID)
	}
	return snaps, nil
}

// Delete removes one element record. Deleting the root node's own
// record also drops the root's enumeration marker. Unknown elements
// are a no-op.
func (s *Store) Delete(ctx context.Context, rootID, id string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(elemKey(rootID, id)); err != nil {
			return err
		}
		if id == rootID {
			return txn.Delete(rootKey(rootID))
		}
		return nil
	})
}

// Roots returns the IDs of all persisted roots, sorted.
func (s *Store) Roots(ctx context.Context) ([]string, error) {
	var roots []string
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(rootPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			roots = append(roots, strings.TrimPrefix(key, rootPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(roots)
	return roots, nil
}

// Close stops garbage collection and closes the database. Safe to call
// once; the store is unusable afterwards.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// update runs fn in a read-write transaction, committing on success.
// The deferred Discard keeps a panicking fn from leaking the
// transaction.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := s.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// =============================================================================
// Value log GC
// =============================================================================

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

// stop halts garbage collection and waits for the runner to finish.
func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *gcRunner) runGC() {
	// RunValueLogGC returns nil if GC was triggered, ErrNoRewrite if
	// nothing needed collecting.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil {
		if r.logger != nil {
			r.logger.Debug("badger value log GC completed")
		}
	} else if !errors.Is(err, badger.ErrNoRewrite) {
		if r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
	}
}
