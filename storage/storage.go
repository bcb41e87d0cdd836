// Package storage provides the byte-level key-value layer the State Store
// and Session Store are built on (spec §2 "Storage (~5%)"). It knows
// nothing about scopes, versions, or JSON; it stores opaque bytes under
// namespaced string keys and plugs in a persistent implementation beneath
// an in-memory default, mirroring the Store-interface-plus-in-memory-impl
// split in registry/store/memory/memory.go.
package storage

import "context"

type (
	// Backend is the contract every storage implementation satisfies.
	// Implementations must be safe for concurrent use. Get/Put/Delete are
	// atomic per key; List is a snapshot under a single lock acquisition
	// (spec §4.3.1).
	Backend interface {
		// Get returns the raw bytes stored at key. ok is false if the key is
		// absent (not an error).
		Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)

		// Put stores value at key, overwriting any prior value.
		Put(ctx context.Context, namespace, key string, value []byte) error

		// Delete removes key. It is not an error to delete an absent key.
		Delete(ctx context.Context, namespace, key string) error

		// List returns every key in namespace whose raw form begins with
		// prefix, in no particular order. Implementations take this snapshot
		// under a single lock/read so concurrent writers cannot produce a
		// torn view.
		List(ctx context.Context, namespace, prefix string) ([]string, error)

		// Clear deletes every key in namespace.
		Clear(ctx context.Context, namespace string) error
	}
)
