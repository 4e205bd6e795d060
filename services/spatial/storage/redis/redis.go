// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redis implements graph.RootStore on a shared Redis instance.
//
// Redis serves deployments where several engine processes share one
// persistence tier, or where root closures should age out on their own:
// a non-zero TTL turns the store into an expiring cache of recently
// active roots.
//
// Layout: one string value per element under
// "spatial:elem:{rootID}:{elementID}", plus a per-root set
// "spatial:root:{rootID}" holding the closure's element IDs so LoadRoot
// is a set read and one MGET rather than a keyspace scan.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage"
)

func elemKey(rootID, id string) string {
	return fmt.Sprintf("spatial:elem:%s:%s", rootID, id)
}

func rootKey(rootID string) string {
	return fmt.Sprintf("spatial:root:%s", rootID)
}

// Config holds configuration for the Redis root store.
type Config struct {
	// URL is a redis connection URL, e.g. "redis://localhost:6379/0".
	// Required.
	URL string

	// TTL expires element records and root sets. Zero means no expiry.
	// Each Save refreshes the TTL, so active roots stay resident and
	// abandoned ones age out.
	TTL time.Duration
}

// Store is a Redis-backed graph.RootStore.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Open connects to Redis and verifies the connection with a ping.
//
// Outputs:
//   - *Store: The connected store. Caller must Close it.
//   - error: Non-nil if the URL is missing or invalid, or Redis is
//     unreachable.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis: url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, ttl: cfg.TTL}, nil
}

// Save upserts one element record and its root-set membership in a
// transactional pipeline, refreshing TTLs when configured.
func (s *Store) Save(ctx context.Context, snap graph.Snapshot) error {
	if snap.RootID == "" {
		return fmt.Errorf("redis: snapshot %s has no root", snap.ID)
	}
	data, err := storage.EncodeRecord(snap)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, elemKey(snap.RootID, snap.ID), data, s.ttl)
	pipe.SAdd(ctx, rootKey(snap.RootID), snap.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, rootKey(snap.RootID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save element %s: %w", snap.ID, err)
	}
	return nil
}

// LoadRoot returns every stored element of the root's closure.
//
// Element records that expired ahead of their set membership are
// skipped; an expired root record surfaces as an unknown root.
//
// Outputs:
//   - []graph.Snapshot: The closure in element ID order.
//   - error: graph.ErrNotFound (wrapped) for unknown or fully expired
//     roots; storage.ErrCorruptRecord on verification failure.
func (s *Store) LoadRoot(ctx context.Context, rootID string) ([]graph.Snapshot, error) {
	ids, err := s.client.SMembers(ctx, rootKey(rootID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load root %s members: %w", rootID, err)
	}
	if len(ids) == 0 {
		return nil, graph.NewNotFoundError("root", rootID)
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = elemKey(rootID, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load root %s records: %w", rootID, err)
	}

	snaps := make([]graph.Snapshot, 0, len(vals))
	for i, val := range vals {
		str, ok := val.(string)
		if !ok {
			continue // record expired out from under its membership
		}
		snap, err := storage.DecodeRecord([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("root %s element %s: %w", rootID, ids[i], err)
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, graph.NewNotFoundError("root", rootID)
	}
	return snaps, nil
}

// Delete removes one element record and its set membership. Deleting
// the root node's own record drops the whole root set. Unknown
// elements are a no-op.
func (s *Store) Delete(ctx context.Context, rootID, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, elemKey(rootID, id))
	if id == rootID {
		pipe.Del(ctx, rootKey(rootID))
	} else {
		pipe.SRem(ctx, rootKey(rootID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete element %s: %w", id, err)
	}
	return nil
}

// Roots returns the IDs of all persisted roots, sorted.
func (s *Store) Roots(ctx context.Context) ([]string, error) {
	var roots []string
	iter := s.client.Scan(ctx, 0, "spatial:root:*", 0).Iterator()
	for iter.Next(ctx) {
		roots = append(roots, strings.TrimPrefix(iter.Val(), "spatial:root:"))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan roots: %w", err)
	}
	sort.Strings(roots)
	return roots, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
