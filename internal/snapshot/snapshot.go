// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package snapshot captures point-in-time snapshots of the live game store
// for the backup engine.
//
// A snapshot payload carries the backed-up collections plus metadata with a
// SHA-256 checksum computed over the canonical serialization of the
// collections alone. Metadata changes never affect the checksum, so a
// payload can be re-stamped without invalidating it.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/integrity"
)

// FormatVersion identifies the payload layout. Bump on incompatible change.
const FormatVersion = "1.0"

// Bounded collection limits for scheduled snapshots. When a collection
// exceeds its bound the most recently written documents win.
const (
	MaxRoomDocs = 10000
	MaxUserDocs = 50000
)

var collectionBounds = map[string]int{
	gamestore.CollectionRooms: MaxRoomDocs,
	gamestore.CollectionUsers: MaxUserDocs,
}

// Metadata describes a sealed payload.
type Metadata struct {
	FormatVersion string `json:"format_version"`
	Environment   string `json:"environment"`
	SizeBytes     int64  `json:"size_bytes"`
	Checksum      string `json:"checksum"`
}

// Payload is one snapshot of the backed-up collections.
type Payload struct {
	CapturedAt  time.Time                             `json:"captured_at"`
	Collections map[string]map[string]json.RawMessage `json:"collections"`
	Metadata    Metadata                              `json:"metadata"`
}

// CanonicalCollections returns the canonical serialization of the payload's
// collections. Map keys are emitted in sorted order, so two payloads with
// equal collections always serialize identically.
func CanonicalCollections(collections map[string]map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(collections)
	if err != nil {
		return nil, fmt.Errorf("serialize collections: %w", err)
	}
	return data, nil
}

// Seal stamps the payload's metadata with the checksum and size of its
// canonical collection serialization.
func (p *Payload) Seal(environment string) error {
	data, err := CanonicalCollections(p.Collections)
	if err != nil {
		return err
	}
	p.Metadata = Metadata{
		FormatVersion: FormatVersion,
		Environment:   environment,
		SizeBytes:     int64(len(data)),
		Checksum:      integrity.Checksum(data),
	}
	return nil
}

// VerifyIntegrity recomputes the checksum over the payload's collections
// and compares it against the sealed metadata.
func (p *Payload) VerifyIntegrity() (bool, error) {
	data, err := CanonicalCollections(p.Collections)
	if err != nil {
		return false, err
	}
	return integrity.Verify(data, p.Metadata.Checksum), nil
}

// Collector reads snapshots out of the live game store.
type Collector struct {
	store       *gamestore.Store
	environment string
}

// NewCollector returns a Collector over the given store.
func NewCollector(store *gamestore.Store, environment string) *Collector {
	return &Collector{store: store, environment: environment}
}

// CollectBounded captures a snapshot with per-collection document bounds
// applied, keeping the most recently written documents. Used by scheduled
// backups to cap payload size.
func (c *Collector) CollectBounded(ctx context.Context) (*Payload, error) {
	return c.collect(ctx, true)
}

// CollectFull captures an unbounded snapshot of every backed-up collection.
// Used by manual backups requesting complete data.
func (c *Collector) CollectFull(ctx context.Context) (*Payload, error) {
	return c.collect(ctx, false)
}

func (c *Collector) collect(ctx context.Context, bounded bool) (*Payload, error) {
	payload := &Payload{
		CapturedAt:  time.Now().UTC(),
		Collections: make(map[string]map[string]json.RawMessage, len(gamestore.BackedUpCollections)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range gamestore.BackedUpCollections {
		g.Go(func() error {
			limit := 0
			if bounded {
				limit = collectionBounds[name]
			}
			docs, err := c.store.ReadCollection(gctx, name, limit)
			if err != nil {
				return fmt.Errorf("read collection %s: %w", name, err)
			}
			raw := make(map[string]json.RawMessage, len(docs))
			for id, doc := range docs {
				raw[id] = json.RawMessage(doc)
			}
			mu.Lock()
			payload.Collections[name] = raw
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := payload.Seal(c.environment); err != nil {
		return nil, err
	}
	return payload, nil
}
