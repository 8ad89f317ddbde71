// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package snapshot

import (
	"context"
	"fmt"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/gamestore"
)

func newTestStore(t *testing.T) *gamestore.Store {
	t.Helper()

	store, err := gamestore.Open(gamestore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestCanonicalCollectionsDeterministic(t *testing.T) {
	a := map[string]map[string]json.RawMessage{
		"rooms": {"r1": json.RawMessage(`{"code":"ABCD"}`), "r2": json.RawMessage(`{"code":"EFGH"}`)},
		"users": {"u1": json.RawMessage(`{"displayName":"viper"}`)},
	}
	// Same content, populated in a different order.
	b := map[string]map[string]json.RawMessage{
		"users": {"u1": json.RawMessage(`{"displayName":"viper"}`)},
		"rooms": {"r2": json.RawMessage(`{"code":"EFGH"}`), "r1": json.RawMessage(`{"code":"ABCD"}`)},
	}

	da, err := CanonicalCollections(a)
	if err != nil {
		t.Fatalf("serialize a: %v", err)
	}
	db, err := CanonicalCollections(b)
	if err != nil {
		t.Fatalf("serialize b: %v", err)
	}
	if string(da) != string(db) {
		t.Errorf("canonical serialization not deterministic:\n%s\n%s", da, db)
	}
}

func TestSealAndVerify(t *testing.T) {
	p := &Payload{
		Collections: map[string]map[string]json.RawMessage{
			"rooms": {"r1": json.RawMessage(`{"code":"ABCD"}`)},
			"users": {},
		},
	}
	if err := p.Seal("test"); err != nil {
		t.Fatalf("seal: %v", err)
	}

	if p.Metadata.FormatVersion != FormatVersion {
		t.Errorf("format version = %s, want %s", p.Metadata.FormatVersion, FormatVersion)
	}
	if p.Metadata.Environment != "test" {
		t.Errorf("environment = %s", p.Metadata.Environment)
	}
	if p.Metadata.SizeBytes <= 0 {
		t.Errorf("size = %d, want > 0", p.Metadata.SizeBytes)
	}

	ok, err := p.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("sealed payload failed verification")
	}
}

func TestVerifyDetectsMutation(t *testing.T) {
	p := &Payload{
		Collections: map[string]map[string]json.RawMessage{
			"rooms": {"r1": json.RawMessage(`{"code":"ABCD"}`)},
		},
	}
	if err := p.Seal("test"); err != nil {
		t.Fatalf("seal: %v", err)
	}

	p.Collections["rooms"]["r1"] = json.RawMessage(`{"code":"XXXX"}`)

	ok, err := p.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("mutated payload passed verification")
	}
}

func TestVerifyIgnoresMetadataChanges(t *testing.T) {
	p := &Payload{
		Collections: map[string]map[string]json.RawMessage{
			"users": {"u1": json.RawMessage(`{"displayName":"viper"}`)},
		},
	}
	if err := p.Seal("production"); err != nil {
		t.Fatalf("seal: %v", err)
	}

	// Only the collections feed the checksum.
	p.Metadata.Environment = "staging"
	p.Metadata.SizeBytes = 0

	ok, err := p.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("metadata change invalidated the checksum")
	}
}

func TestCollectorCapturesBackedUpCollections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("r%02d", i)
		doc := json.RawMessage(fmt.Sprintf(`{"code":"ROOM%d"}`, i))
		if err := store.Put(ctx, gamestore.CollectionRooms, id, gamestore.Document(doc)); err != nil {
			t.Fatalf("put room: %v", err)
		}
	}
	if err := store.Put(ctx, gamestore.CollectionUsers, "u1", gamestore.Document(`{"displayName":"viper"}`)); err != nil {
		t.Fatalf("put user: %v", err)
	}
	// Games are live state only and never enter a snapshot.
	if err := store.Put(ctx, gamestore.CollectionGames, "g1", gamestore.Document(`{"tick":42}`)); err != nil {
		t.Fatalf("put game: %v", err)
	}

	p, err := NewCollector(store, "test").CollectFull(ctx)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(p.Collections[gamestore.CollectionRooms]) != 3 {
		t.Errorf("captured %d rooms, want 3", len(p.Collections[gamestore.CollectionRooms]))
	}
	if len(p.Collections[gamestore.CollectionUsers]) != 1 {
		t.Errorf("captured %d users, want 1", len(p.Collections[gamestore.CollectionUsers]))
	}
	if _, ok := p.Collections[gamestore.CollectionGames]; ok {
		t.Error("games collection leaked into the snapshot")
	}
	if p.CapturedAt.IsZero() {
		t.Error("captured_at not set")
	}

	ok, err := p.VerifyIntegrity()
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("collected payload failed verification")
	}
}

func TestCollectBoundedSealsPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, gamestore.CollectionRooms, "r1", gamestore.Document(`{"code":"ABCD"}`)); err != nil {
		t.Fatalf("put room: %v", err)
	}

	p, err := NewCollector(store, "test").CollectBounded(ctx)
	if err != nil {
		t.Fatalf("collect bounded: %v", err)
	}
	if p.Metadata.Checksum == "" {
		t.Error("bounded payload not sealed")
	}
	if len(p.Collections[gamestore.CollectionRooms]) != 1 {
		t.Errorf("captured %d rooms, want 1", len(p.Collections[gamestore.CollectionRooms]))
	}
}
