// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store, used in tests and
// development mode. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject

	// now is swappable so tests can control storage-assigned creation times.
	now func() time.Time
}

type memoryObject struct {
	data        []byte
	contentType string
	tags        map[string]string
	createdAt   time.Time
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
		now:     time.Now,
	}
}

// SetClock replaces the store's clock. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Save stores an object. The creation time of an existing object is reset.
func (s *MemoryStore) Save(ctx context.Context, name string, data []byte, contentType string, tags map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := append([]byte(nil), data...)
	tagCopy := make(map[string]string, len(tags))
	for k, v := range tags {
		tagCopy[k] = v
	}
	s.objects[name] = &memoryObject{
		data:        copied,
		contentType: contentType,
		tags:        tagCopy,
		createdAt:   s.now(),
	}
	return nil
}

// Download returns a copy of the object's content.
func (s *MemoryStore) Download(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrObjectNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// List returns objects with the given name prefix, ordered by name.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var infos []ObjectInfo
	for name, obj := range s.objects {
		if strings.HasPrefix(name, prefix) {
			infos = append(infos, ObjectInfo{
				Name:      name,
				CreatedAt: obj.createdAt,
				Size:      int64(len(obj.data)),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Exists reports whether the named object exists.
func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[name]
	return ok, nil
}

// Delete removes an object. Missing objects are ignored.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, name)
	return nil
}

// Corrupt flips a byte of a stored object's content. Test helper for
// integrity-failure scenarios.
func (s *MemoryStore) Corrupt(name string, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrObjectNotFound)
	}
	if offset < 0 || offset >= len(obj.data) {
		return fmt.Errorf("offset %d out of range for %s", offset, name)
	}
	obj.data[offset] ^= 0x01
	return nil
}
