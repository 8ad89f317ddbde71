// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package blob provides durable object storage for backup payloads.
//
// The production implementation is Google Cloud Storage; an in-memory
// implementation backs tests and development mode. Both satisfy Store,
// which is the only surface the backup engine depends on.
package blob

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound indicates the named object does not exist in storage.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	// Name is the object's filename within the bucket.
	Name string

	// CreatedAt is the storage-assigned creation time.
	CreatedAt time.Time

	// Size is the object's size in bytes.
	Size int64
}

// Store is the durable blob storage contract consumed by the backup engine.
type Store interface {
	// Save writes an object, overwriting any existing object with the
	// same name.
	Save(ctx context.Context, name string, data []byte, contentType string, tags map[string]string) error

	// Download returns the full content of an object.
	// Returns ErrObjectNotFound if the object does not exist.
	Download(ctx context.Context, name string) ([]byte, error)

	// List returns all objects whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
}
