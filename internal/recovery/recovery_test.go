// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/snakepit/internal/alerts"
	"github.com/tomtom215/snakepit/internal/backup"
	"github.com/tomtom215/snakepit/internal/blob"
	"github.com/tomtom215/snakepit/internal/catalog"
	"github.com/tomtom215/snakepit/internal/gamestore"
	"github.com/tomtom215/snakepit/internal/snapshot"
)

type testEnv struct {
	store    *gamestore.Store
	blobs    *blob.MemoryStore
	cat      *catalog.Catalog
	archiver *backup.Archiver
	orch     *Orchestrator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := gamestore.Open(gamestore.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	cat, err := catalog.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() {
		if err := cat.Close(); err != nil {
			t.Errorf("close catalog: %v", err)
		}
	})

	blobs := blob.NewMemoryStore()
	archiver := backup.NewArchiver(blobs, cat)
	gate := NewGate(store)
	sink := alerts.NewSink(cat, store)

	return &testEnv{
		store:    store,
		blobs:    blobs,
		cat:      cat,
		archiver: archiver,
		orch:     NewOrchestrator(store, archiver, cat, gate, sink),
	}
}

func roomDoc(code string, createdAt time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"code":%q,"hostId":"u1","status":"waiting","createdAt":%d}`, code, createdAt.UnixMilli()))
}

func userDoc(name string, createdAt time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"displayName":%q,"createdAt":%d}`, name, createdAt.UnixMilli()))
}

// storeBackup seals and archives a payload built from the given
// collections, pinned to at.
func (e *testEnv) storeBackup(t *testing.T, class backup.Class, at time.Time, collections map[string]map[string]json.RawMessage) *catalog.BackupRecord {
	t.Helper()

	for _, name := range gamestore.BackedUpCollections {
		if collections[name] == nil {
			collections[name] = map[string]json.RawMessage{}
		}
	}
	p := &snapshot.Payload{CapturedAt: at, Collections: collections}
	if err := p.Seal("test"); err != nil {
		t.Fatalf("seal payload: %v", err)
	}

	e.archiver.SetClock(func() time.Time { return at })
	rec, err := e.archiver.Store(context.Background(), p, class)
	if err != nil {
		t.Fatalf("store backup: %v", err)
	}
	return rec
}

func TestExecuteRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
	}{
		{"unknown type", Request{Type: "REWIND"}},
		{"full without backup id", Request{Type: TypeFullRestore}},
		{"partial without backup id", Request{Type: TypePartialRestore, Components: []string{"rooms"}}},
		{"partial without components", Request{Type: TypePartialRestore, BackupID: "daily-1"}},
		{"partial with unknown component", Request{Type: TypePartialRestore, BackupID: "daily-1", Components: []string{"games"}}},
		{"point in time without target", Request{Type: TypePointInTime}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.orch.Execute(ctx, tc.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestFullRestoreReplacesCollections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	rec := env.storeBackup(t, backup.ClassDaily, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": roomDoc("ABCD", backupAt)},
		gamestore.CollectionUsers: {"u1": userDoc("viper", backupAt)},
	})

	// Live state diverged after the backup.
	if err := env.store.Put(ctx, gamestore.CollectionRooms, "r2", gamestore.Document(roomDoc("EFGH", backupAt.Add(time.Hour)))); err != nil {
		t.Fatalf("put live room: %v", err)
	}

	res, err := env.orch.Execute(ctx, Request{Type: TypeFullRestore, BackupID: rec.ID})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.RestoredComponents) != 2 {
		t.Errorf("restored components = %v", res.RestoredComponents)
	}

	rooms, err := env.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		t.Fatalf("read rooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("rooms after restore = %d, want 1", len(rooms))
	}
	if _, ok := rooms["r2"]; ok {
		t.Error("post-backup room survived a full restore")
	}

	// Gate is released after the restore.
	state, err := env.store.GetMaintenance(ctx)
	if err != nil {
		t.Fatalf("get maintenance: %v", err)
	}
	if state != nil {
		t.Errorf("maintenance flag still set: %+v", state)
	}

	// Catalog holds a SUCCESS record.
	op, err := env.cat.GetRecovery(ctx, res.RecoveryID)
	if err != nil {
		t.Fatalf("get recovery op: %v", err)
	}
	if op.Status != catalog.RecoveryStatusSuccess {
		t.Errorf("recorded status = %s", op.Status)
	}
	if op.BackupID != rec.ID {
		t.Errorf("recorded backup id = %s, want %s", op.BackupID, rec.ID)
	}
}

func TestPartialRestoreLeavesOtherCollectionsAndSkipsGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	rec := env.storeBackup(t, backup.ClassManual, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": roomDoc("ABCD", backupAt)},
		gamestore.CollectionUsers: {"u1": userDoc("viper", backupAt)},
	})

	if err := env.store.Put(ctx, gamestore.CollectionUsers, "u2", gamestore.Document(userDoc("cobra", backupAt.Add(time.Hour)))); err != nil {
		t.Fatalf("put live user: %v", err)
	}

	res, err := env.orch.Execute(ctx, Request{
		Type:       TypePartialRestore,
		BackupID:   rec.ID,
		Components: []string{gamestore.CollectionRooms},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.RestoredComponents) != 1 || res.RestoredComponents[0] != gamestore.CollectionRooms {
		t.Errorf("restored components = %v", res.RestoredComponents)
	}

	// Users were not part of the restore and keep their live state.
	users, err := env.store.ReadCollection(ctx, gamestore.CollectionUsers, 0)
	if err != nil {
		t.Fatalf("read users: %v", err)
	}
	if _, ok := users["u2"]; !ok {
		t.Error("partial restore touched an unnamed collection")
	}
}

func TestPartialRestoreSkipsAbsentComponent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	// The payload carries users only; rooms is absent entirely.
	p := &snapshot.Payload{CapturedAt: backupAt, Collections: map[string]map[string]json.RawMessage{
		gamestore.CollectionUsers: {"u1": userDoc("viper", backupAt)},
	}}
	if err := p.Seal("test"); err != nil {
		t.Fatalf("seal payload: %v", err)
	}
	env.archiver.SetClock(func() time.Time { return backupAt })
	rec, err := env.archiver.Store(ctx, p, backup.ClassManual)
	if err != nil {
		t.Fatalf("store backup: %v", err)
	}

	if err := env.store.Put(ctx, gamestore.CollectionRooms, "live", gamestore.Document(roomDoc("LIVE", backupAt))); err != nil {
		t.Fatalf("put live room: %v", err)
	}

	res, err := env.orch.Execute(ctx, Request{
		Type:       TypePartialRestore,
		BackupID:   rec.ID,
		Components: []string{gamestore.CollectionRooms, gamestore.CollectionUsers},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if len(res.RestoredComponents) != 1 || res.RestoredComponents[0] != gamestore.CollectionUsers {
		t.Errorf("restored components = %v, want users only", res.RestoredComponents)
	}

	// The absent component is skipped, never emptied.
	rooms, err := env.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		t.Fatalf("read rooms: %v", err)
	}
	if _, ok := rooms["live"]; !ok {
		t.Error("absent component wiped the live collection")
	}
}

func TestPointInTimeDropsNewerEntities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	target := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	backupAt := target.Add(-2 * time.Hour)
	laterBackupAt := target.Add(3 * time.Hour)

	// Backup contains one room created before the target and one after.
	picked := env.storeBackup(t, backup.ClassDaily, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {
			"old": roomDoc("ABCD", target.Add(-24*time.Hour)),
			"new": roomDoc("EFGH", target.Add(time.Hour)),
		},
		gamestore.CollectionUsers: {"u1": userDoc("viper", target.Add(-time.Hour))},
	})
	// A newer backup exists but lies past the target.
	env.storeBackup(t, backup.ClassDaily, laterBackupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r9": roomDoc("ZZZZ", laterBackupAt)},
	})

	res, err := env.orch.Execute(ctx, Request{Type: TypePointInTime, TargetTime: target})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.BackupID != picked.ID {
		t.Errorf("restored from %s, want %s", res.BackupID, picked.ID)
	}

	rooms, err := env.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		t.Fatalf("read rooms: %v", err)
	}
	if _, ok := rooms["old"]; !ok {
		t.Error("room created before target missing")
	}
	if _, ok := rooms["new"]; ok {
		t.Error("room created after target survived")
	}
}

func TestPointInTimeNoBackupBeforeTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	at := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	env.storeBackup(t, backup.ClassDaily, at, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": roomDoc("ABCD", at)},
	})

	_, err := env.orch.Execute(ctx, Request{Type: TypePointInTime, TargetTime: at.Add(-time.Hour)})
	if !errors.Is(err, catalog.ErrBackupNotFound) {
		t.Errorf("error = %v, want ErrBackupNotFound", err)
	}
}

func TestDryRunMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	rec := env.storeBackup(t, backup.ClassDaily, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": roomDoc("ABCD", backupAt)},
	})
	if err := env.store.Put(ctx, gamestore.CollectionRooms, "live", gamestore.Document(roomDoc("LIVE", backupAt))); err != nil {
		t.Fatalf("put live room: %v", err)
	}

	res, err := env.orch.Execute(ctx, Request{Type: TypeFullRestore, BackupID: rec.ID, DryRun: true})
	if err != nil {
		t.Fatalf("execute dry run: %v", err)
	}
	if !res.Success || !res.DryRun {
		t.Errorf("result = %+v", res)
	}
	if len(res.RestoredComponents) == 0 {
		t.Error("dry run reported no components")
	}

	// Live state untouched.
	rooms, err := env.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		t.Fatalf("read rooms: %v", err)
	}
	if _, ok := rooms["live"]; !ok {
		t.Error("dry run mutated the game store")
	}

	// Gate never taken.
	state, err := env.store.GetMaintenance(ctx)
	if err != nil {
		t.Fatalf("get maintenance: %v", err)
	}
	if state != nil {
		t.Error("dry run raised the maintenance flag")
	}
}

func TestFailedRestoreRecordsFailureAndAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	rec := env.storeBackup(t, backup.ClassDaily, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": roomDoc("ABCD", backupAt)},
	})
	// Corrupt the stored payload so the integrity check trips.
	if err := env.blobs.Corrupt(rec.Filename, 40); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}

	res, err := env.orch.Execute(ctx, Request{Type: TypeFullRestore, BackupID: rec.ID})
	if err == nil {
		t.Fatal("execute succeeded on a corrupted backup")
	}
	if res == nil || res.Success {
		t.Fatalf("result = %+v", res)
	}

	op, err := env.cat.GetRecovery(ctx, res.RecoveryID)
	if err != nil {
		t.Fatalf("get recovery op: %v", err)
	}
	if op.Status != catalog.RecoveryStatusFailed {
		t.Errorf("recorded status = %s", op.Status)
	}
	if op.Message == "" {
		t.Error("failure record has no message")
	}

	critical, err := env.store.ReadFeed(ctx, alerts.FeedCritical, 10)
	if err != nil {
		t.Fatalf("read critical feed: %v", err)
	}
	if len(critical) != 1 {
		t.Errorf("critical feed has %d entries, want 1", len(critical))
	}

	// No maintenance flag left behind.
	state, err := env.store.GetMaintenance(ctx)
	if err != nil {
		t.Fatalf("get maintenance: %v", err)
	}
	if state != nil {
		t.Error("maintenance flag leaked after failure")
	}
}

func TestRestoreRejectsStructurallyInvalidDocs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	backupAt := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)

	rec := env.storeBackup(t, backup.ClassDaily, backupAt, map[string]map[string]json.RawMessage{
		gamestore.CollectionRooms: {"r1": json.RawMessage(`{"code":"ABCD","status":"waiting"}`)},
	})

	if err := env.store.Put(ctx, gamestore.CollectionRooms, "live", gamestore.Document(roomDoc("LIVE", backupAt))); err != nil {
		t.Fatalf("put live room: %v", err)
	}

	_, err := env.orch.Execute(ctx, Request{Type: TypeFullRestore, BackupID: rec.ID})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}

	// Validation runs before any write, so live state survives.
	rooms, err := env.store.ReadCollection(ctx, gamestore.CollectionRooms, 0)
	if err != nil {
		t.Fatalf("read rooms: %v", err)
	}
	if _, ok := rooms["live"]; !ok {
		t.Error("invalid payload was written to the store")
	}

	// The failure happened with the gate held; it must still be released.
	state, err := env.store.GetMaintenance(ctx)
	if err != nil {
		t.Fatalf("get maintenance: %v", err)
	}
	if state != nil {
		t.Errorf("maintenance flag leaked after validation failure: %+v", state)
	}
}

func TestGateLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	gate := NewGate(env.store)

	if err := gate.Acquire(ctx, "recovery-1", "restoring"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	state, err := gate.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if state == nil || !state.Active || state.RecoveryID != "recovery-1" {
		t.Errorf("state = %+v", state)
	}
	if state.StartTime == 0 {
		t.Error("start time not set")
	}

	if err := gate.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	state, err = gate.Status(ctx)
	if err != nil {
		t.Fatalf("status after release: %v", err)
	}
	if state != nil {
		t.Errorf("state after release = %+v", state)
	}

	// Releasing an unheld gate is harmless.
	if err := gate.Release(ctx); err != nil {
		t.Errorf("double release: %v", err)
	}
}
