// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage provides graph.RootStore implementations and the record
// codec they share.
//
// Every backend stores elements in the same envelope: a versioned JSON
// record carrying the snapshot payload and a SHA-256 checksum over its
// bytes. Decoding verifies both, so a truncated write or bit rot in any
// tier surfaces as ErrCorruptRecord instead of a silently wrong graph.
//
// The in-memory backend lives here; the durable tiers live in the
// storage/badger, storage/redis, and storage/weaviate subpackages.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
)

// RecordVersion is the current record envelope version (semver).
const RecordVersion = "1.0.0"

// Sentinel errors for record decoding.
var (
	// ErrCorruptRecord indicates a stored record failed checksum or
	// structural verification.
	ErrCorruptRecord = errors.New("storage: corrupt record")

	// ErrRecordVersion indicates a stored record was written by an
	// incompatible envelope version.
	ErrRecordVersion = errors.New("storage: unsupported record version")
)

// record is the stored envelope for one element snapshot. The payload
// stays raw so the checksum covers the exact persisted bytes.
type record struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Version  string          `json:"version"`
	Checksum string          `json:"checksum"`
}

// EncodeRecord serializes a snapshot into the versioned record envelope.
//
// Outputs:
//   - []byte: The envelope, ready for any backend.
//   - error: Non-nil if the snapshot has non-serializable attributes.
func EncodeRecord(snap graph.Snapshot) ([]byte, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}

	hash := sha256.Sum256(payload)
	rec := record{
		Snapshot: payload,
		Version:  RecordVersion,
		Checksum: hex.EncodeToString(hash[:]),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", snap.ID, err)
	}
	return data, nil
}

// DecodeRecord parses a record envelope and verifies its integrity.
//
// Outputs:
//   - graph.Snapshot: The verified snapshot.
//   - error: ErrCorruptRecord on malformed data or checksum mismatch;
//     ErrRecordVersion on an incompatible envelope version.
func DecodeRecord(data []byte) (graph.Snapshot, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return graph.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	if rec.Version != RecordVersion {
		return graph.Snapshot{}, fmt.Errorf("%w: got %s, want %s", ErrRecordVersion, rec.Version, RecordVersion)
	}

	hash := sha256.Sum256(rec.Snapshot)
	if hex.EncodeToString(hash[:]) != rec.Checksum {
		return graph.Snapshot{}, fmt.Errorf("%w: checksum mismatch", ErrCorruptRecord)
	}

	var snap graph.Snapshot
	if err := json.Unmarshal(rec.Snapshot, &snap); err != nil {
		return graph.Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return snap, nil
}
