// Package blob defines the object storage boundary the memory system is
// built on: versioned reads, conditional writes, and prefix listing.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists at the key.
var ErrNotFound = errors.New("blob: object not found")

// ErrVersionConflict is returned by Put when the stored object's version
// no longer matches the version the write was conditioned on, or when a
// create-only write finds the key already present.
var ErrVersionConflict = errors.New("blob: version conflict")

// Object is the result of a Get: the payload plus the version token the
// caller must present to replace it.
type Object struct {
	Data    []byte
	Version string
}

// Store is the persistence interface for all memory indexes and analysis
// documents. Writes are whole-object replacements; readers never observe
// a partial write.
type Store interface {
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Object, error)

	// Put writes data at key and returns the new version token.
	// An empty version requires that the key not yet exist; a non-empty
	// version requires that it match the stored object's current version.
	// Either precondition failing yields ErrVersionConflict.
	Put(ctx context.Context, key string, data []byte, version string) (string, error)

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
