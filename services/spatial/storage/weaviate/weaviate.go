// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package weaviate implements graph.RootStore on a Weaviate instance.
//
// Weaviate serves as the cold tier: root closures that left RAM and the
// warm store but must survive indefinitely. Each element becomes one
// object of a single class with three text properties: elementId and
// rootId (filterable, keyword-tokenized) and record, the encoded
// snapshot envelope. Vectorization is disabled; the class is a durable
// document store here, not a semantic index.
//
// Object UUIDs are derived deterministically from class and element ID,
// so repeated saves of the same element address the same object.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/AleutianSpatial/services/spatial/graph"
	"github.com/AleutianAI/AleutianSpatial/services/spatial/storage"
)

// DefaultClass is the Weaviate class used when none is configured.
const DefaultClass = "SpatialElement"

// loadPageSize bounds each GraphQL page while loading a closure.
const loadPageSize = 500

// Config holds configuration for the Weaviate root store.
type Config struct {
	// Host is the Weaviate host:port. Required.
	Host string

	// Scheme is "http" or "https". Defaults to "http".
	Scheme string

	// APIKey enables API-key auth when non-empty.
	APIKey string

	// Class is the Weaviate class holding element records. Defaults to
	// DefaultClass.
	Class string
}

// Store is a Weaviate-backed graph.RootStore.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	client *weaviate.Client
	class  string
}

// Open connects to Weaviate and ensures the element class exists.
//
// Outputs:
//   - *Store: The connected store.
//   - error: Non-nil if the host is missing, the client cannot be
//     built, or the schema cannot be ensured.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, errors.New("weaviate: host is required")
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	class := cfg.Class
	if class == "" {
		class = DefaultClass
	}

	wcfg := weaviate.Config{Host: cfg.Host, Scheme: scheme}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	s := &Store{client: client, class: class}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureClass creates the element class if it does not already exist.
func (s *Store) ensureClass(ctx context.Context) error {
	_, err := s.client.Schema().ClassGetter().WithClassName(s.class).Do(ctx)
	if err == nil {
		return nil
	}

	truthy := true
	class := &models.Class{
		Class:       s.class,
		Description: "Persisted spatial graph element",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "elementId",
				DataType:        []string{"text"},
				Description:     "Element identifier",
				IndexFilterable: &truthy,
				Tokenization:    "field",
			},
			{
				Name:            "rootId",
				DataType:        []string{"text"},
				Description:     "Owning root identifier",
				IndexFilterable: &truthy,
				Tokenization:    "field",
			},
			{
				Name:         "record",
				DataType:     []string{"text"},
				Description:  "Encoded snapshot record",
				Tokenization: "word",
			},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", s.class, err)
	}
	return nil
}

// objectID derives the deterministic UUID for an element.
func (s *Store) objectID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.class+":"+id)).String()
}

// Save upserts one element record. Existing objects are replaced so
// the stored record always reflects the latest snapshot.
func (s *Store) Save(ctx context.Context, snap graph.Snapshot) error {
	if snap.RootID == "" {
		return fmt.Errorf("weaviate: snapshot %s has no root", snap.ID)
	}
	data, err := storage.EncodeRecord(snap)
	if err != nil {
		return err
	}

	objID := s.objectID(snap.ID)
	props := map[string]interface{}{
		"elementId": snap.ID,
		"rootId":    snap.RootID,
		"record":    string(data),
	}

	exists, err := s.client.Data().Checker().
		WithClassName(s.class).
		WithID(objID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check element %s: %w", snap.ID, err)
	}

	if exists {
		err = s.client.Data().Updater().
			WithClassName(s.class).
			WithID(objID).
			WithProperties(props).
			Do(ctx)
	} else {
		_, err = s.client.Data().Creator().
			WithClassName(s.class).
			WithID(objID).
			WithProperties(props).
			Do(ctx)
	}
	if err != nil {
		return fmt.Errorf("save element %s: %w", snap.ID, err)
	}
	return nil
}

// LoadRoot pages through every object whose rootId matches and decodes
// the stored records.
//
// Outputs:
//   - []graph.Snapshot: The closure in element ID order.
//   - error: graph.ErrNotFound (wrapped) for unknown roots;
//     storage.ErrCorruptRecord on verification failure.
func (s *Store) LoadRoot(ctx context.Context, rootID string) ([]graph.Snapshot, error) {
	where := filters.Where().
		WithPath([]string{"rootId"}).
		WithOperator(filters.Equal).
		WithValueString(rootID)
	fields := []graphql.Field{{Name: "elementId"}, {Name: "record"}}

	type row struct {
		id     string
		record string
	}
	var rows []row
	for offset := 0; ; offset += loadPageSize {
		result, err := s.client.GraphQL().Get().
			WithClassName(s.class).
			WithFields(fields...).
			WithWhere(where).
			WithLimit(loadPageSize).
			WithOffset(offset).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("load root %s: %w", rootID, err)
		}
		if len(result.Errors) > 0 {
			msgs := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				msgs = append(msgs, e.Message)
			}
			return nil, fmt.Errorf("load root %s: %s", rootID, strings.Join(msgs, "; "))
		}

		page := parseObjects(result.Data, s.class)
		for _, obj := range page {
			id, _ := obj["elementId"].(string)
			rec, _ := obj["record"].(string)
			if rec == "" {
				continue
			}
			rows = append(rows, row{id: id, record: rec})
		}
		if len(page) < loadPageSize {
			break
		}
	}

	if len(rows) == 0 {
		return nil, graph.NewNotFoundError("root", rootID)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	snaps := make([]graph.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := storage.DecodeRecord([]byte(r.record))
		if err != nil {
			return nil, fmt.Errorf("root %s element %s: %w", rootID, r.id, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// parseObjects extracts the per-object property maps from a GraphQL
// Get response, tolerating absent or malformed levels.
func parseObjects(data map[string]models.JSONObject, class string) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	list, ok := get[class].([]interface{})
	if !ok {
		return nil
	}
	objs := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]interface{}); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// Delete removes one element record. Unknown elements are a no-op.
func (s *Store) Delete(ctx context.Context, rootID, id string) error {
	objID := s.objectID(id)
	exists, err := s.client.Data().Checker().
		WithClassName(s.class).
		WithID(objID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("check element %s: %w", id, err)
	}
	if !exists {
		return nil
	}
	if err := s.client.Data().Deleter().
		WithClassName(s.class).
		WithID(objID).
		Do(ctx); err != nil {
		return fmt.Errorf("delete element %s: %w", id, err)
	}
	return nil
}

// Close releases nothing; the underlying HTTP client needs no
// shutdown. It exists to satisfy graph.RootStore.
func (s *Store) Close() error {
	return nil
}
