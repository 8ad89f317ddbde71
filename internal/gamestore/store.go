// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package gamestore provides the primary live data store for Snakepit,
// backed by BadgerDB.
//
// Entities are stored as opaque JSON documents under per-collection key
// prefixes. The backup engine reads collections (bounded or full), and the
// recovery engine overwrites whole collection namespaces. Game logic uses
// the same document API for rooms, users, and game state.
//
// Key layout:
//
//	doc:<collection>:<id>   entity document (JSON)
//	feed:<name>:<seq>       live feed entries (append-only)
//	maintenance             maintenance-mode singleton
package gamestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Collections tracked by the backup engine. Games, feeds, and metrics are
// deliberately excluded from snapshots.
const (
	CollectionRooms = "rooms"
	CollectionUsers = "users"
	CollectionGames = "games"
)

// BackedUpCollections lists the collections included in snapshots, in
// canonical order.
var BackedUpCollections = []string{CollectionRooms, CollectionUsers}

const (
	docKeyPrefix  = "doc:"
	feedKeyPrefix = "feed:"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is an opaque JSON entity document.
type Document = json.RawMessage

// Store is a BadgerDB-backed document store.
type Store struct {
	db *badger.DB
}

// Options configures a Store.
type Options struct {
	// Path is the on-disk location of the Badger value log and LSM tree.
	// Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used in tests and dev mode.
	InMemory bool
}

// Open opens the store, creating it if necessary.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path).
		WithInMemory(opts.InMemory).
		WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open game store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping performs a liveness probe read.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		it.Rewind()
		return nil
	})
}

func docKey(collection, id string) []byte {
	return []byte(docKeyPrefix + collection + ":" + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(docKeyPrefix + collection + ":")
}

// Get retrieves a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", collection, id, err)
		}
		return item.Value(func(val []byte) error {
			doc = append(Document(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Put stores a single document.
func (s *Store) Put(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(collection, id), doc)
	})
}

// Delete removes a single document. Deleting a missing document is not an
// error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(collection, id))
	})
}

// ReadCollection reads documents from a collection. A limit > 0 returns at
// most that many documents, taken from the end of the store's native key
// ordering (the most recently keyed entries). A limit <= 0 reads the whole
// collection.
func (s *Store) ReadCollection(ctx context.Context, collection string, limit int) (map[string]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make(map[string]Document)
	prefix := collectionPrefix(collection)

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		itOpts.Reverse = limit > 0
		it := txn.NewIterator(itOpts)
		defer it.Close()

		seek := prefix
		if itOpts.Reverse {
			// Reverse iteration must seek past the last key in the prefix range.
			seek = append(append([]byte(nil), prefix...), 0xff)
		}

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(docs) >= limit {
				break
			}
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), string(prefix))
			if err := item.Value(func(val []byte) error {
				docs[id] = append(Document(nil), val...)
				return nil
			}); err != nil {
				return fmt.Errorf("read %s/%s: %w", collection, id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// SetCollection overwrites an entire collection namespace with the given
// documents. Existing documents not present in docs are removed.
func (s *Store) SetCollection(ctx context.Context, collection string, docs map[string]Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	existing, err := s.collectionKeys(collection)
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range existing {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("clear %s: %w", collection, err)
		}
	}
	for id, doc := range docs {
		if err := wb.Set(docKey(collection, id), doc); err != nil {
			return fmt.Errorf("write %s/%s: %w", collection, id, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("overwrite %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	prefix := collectionPrefix(collection)
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.IteratorOptions{Prefix: prefix, PrefetchValues: false}
		it := txn.NewIterator(itOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// collectionKeys returns all keys in a collection namespace.
func (s *Store) collectionKeys(collection string) ([][]byte, error) {
	var keys [][]byte
	prefix := collectionPrefix(collection)
	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.IteratorOptions{Prefix: prefix, PrefetchValues: false}
		it := txn.NewIterator(itOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s keys: %w", collection, err)
	}
	return keys, nil
}

// feedSeq disambiguates feed entries written within the same clock tick.
var feedSeq atomic.Uint64

// AppendFeed appends an entry to a named live feed. Feeds are append-only;
// entries are keyed by a monotonic sequence derived from the wall clock so
// readers see them in arrival order.
func (s *Store) AppendFeed(ctx context.Context, feed string, entry json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%s%s:%020d-%06d", feedKeyPrefix, feed, time.Now().UnixNano(), feedSeq.Add(1)%1000000))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, entry)
	})
}

// ReadFeed returns the most recent entries of a named feed, newest first,
// up to limit (limit <= 0 returns all).
func (s *Store) ReadFeed(ctx context.Context, feed string, limit int) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []json.RawMessage
	prefix := []byte(feedKeyPrefix + feed + ":")

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		itOpts.Reverse = true
		it := txn.NewIterator(itOpts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				entries = append(entries, append(json.RawMessage(nil), val...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", feed, err)
	}
	return entries, nil
}
