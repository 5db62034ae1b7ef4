package store

import "context"

// Store is a collection of named response stores.
// Each named store maps request-identity keys to stored responses.
// Store names are generation-qualified; the engine never opens a bare role name.
//
// Implementations must be thread-safe!
type Store interface {
	// Open returns a handle to the named store.
	// Opening never fails: a store springs into existence on first write.
	// Note that a Put through a handle whose store was deleted recreates
	// the store under the same name.
	Open(name string) Handle
	// ListNames returns the names of all stores that currently hold entries.
	ListNames(ctx context.Context) ([]string, error)
	// Delete removes the named store and all its entries.
	Delete(ctx context.Context, name string) error
	// Close releases the underlying storage.
	Close() error
}

// Handle operates on a single named store.
type Handle interface {
	// Name returns the store name this handle is bound to.
	Name() string
	// Get returns the stored response for the given key, if it exists.
	// The boolean indicates whether retrieval was successful.
	Get(ctx context.Context, key string) (*Record, bool, error)
	// Put stores the given response record under the given key.
	// Last writer wins for concurrent puts on the same key.
	Put(ctx context.Context, key string, rec *Record) error
	// Delete removes the entry for the given key.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys currently present in the store.
	Keys(ctx context.Context) ([]string, error)
}
