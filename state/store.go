package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/storage"
)

// Entry is the value plus bookkeeping the store guarantees for every
// (scope, key) pair (spec §3 "StateEntry").
type Entry struct {
	Value     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   uint64
}

// Store is the scope-partitioned, versioned key-value layer of spec §4.3.1.
// It is built over a storage.Backend and adds: JSON value semantics, a
// monotonic per-(scope,key) version counter, and a per-scope reader-writer
// lock so writers are exclusive and list_keys is a consistent snapshot
// (spec §5 "Shared resources & locking").
type Store struct {
	backend   storage.Backend
	namespace string

	mu     sync.Mutex // guards the scopeLocks map itself
	scopes map[string]*sync.RWMutex
}

const namespace = "state"

// New constructs a Store over backend.
func New(backend storage.Backend) *Store {
	return &Store{backend: backend, namespace: namespace, scopes: make(map[string]*sync.RWMutex)}
}

func (s *Store) lockFor(scope Scope) *sync.RWMutex {
	key := scope.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.scopes[key]
	if !ok {
		l = &sync.RWMutex{}
		s.scopes[key] = l
	}
	return l
}

// Get returns the current entry for key in scope. ok is false if absent.
func (s *Store) Get(ctx context.Context, scope Scope, key string) (Entry, bool, error) {
	lock := s.lockFor(scope)
	lock.RLock()
	defer lock.RUnlock()

	raw, ok, err := s.backend.Get(ctx, s.namespace, scope.Key(key))
	if err != nil {
		return Entry{}, false, errors.Wrap(errors.Internal, "state get failed", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, errors.Wrap(errors.Internal, "corrupt state entry", err)
	}
	return e, true, nil
}

// Set stores value at key in scope, returning the new version. Concurrent
// writers to the same scope are serialized by the scope's write lock
// (spec §4.3.1 "atomic per (scope, key)").
func (s *Store) Set(ctx context.Context, scope Scope, key string, value json.RawMessage) (uint64, error) {
	if err := ValidateRawKey(key); err != nil {
		return 0, err
	}
	lock := s.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	entry := Entry{Value: value, UpdatedAt: now, Version: 1}
	if raw, ok, err := s.backend.Get(ctx, s.namespace, scope.Key(key)); err != nil {
		return 0, errors.Wrap(errors.Internal, "state get failed", err)
	} else if ok {
		var prev Entry
		if err := json.Unmarshal(raw, &prev); err == nil {
			entry.CreatedAt = prev.CreatedAt
			entry.Version = prev.Version + 1
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, errors.Wrap(errors.Internal, "marshal state entry", err)
	}
	if err := s.backend.Put(ctx, s.namespace, scope.Key(key), raw); err != nil {
		return 0, errors.Wrap(errors.Internal, "state put failed", err)
	}
	return entry.Version, nil
}

// Delete removes key from scope.
func (s *Store) Delete(ctx context.Context, scope Scope, key string) error {
	lock := s.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()
	if err := s.backend.Delete(ctx, s.namespace, scope.Key(key)); err != nil {
		return errors.Wrap(errors.Internal, "state delete failed", err)
	}
	return nil
}

// ListKeys returns every logical key stored in scope, taken as a snapshot
// under the scope's read lock (spec §4.3.1 "Bulk list_keys is a snapshot
// under a single lock acquisition").
func (s *Store) ListKeys(ctx context.Context, scope Scope) ([]string, error) {
	lock := s.lockFor(scope)
	lock.RLock()
	defer lock.RUnlock()

	prefix := scope.Prefix()
	raw, err := s.backend.List(ctx, s.namespace, prefix)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, "state list failed", err)
	}
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		if scope.kind == kindGlobal && !isGlobalOwnedKey(k) {
			continue
		}
		out = append(out, k[len(prefix):])
	}
	return out, nil
}

// ClearScope deletes every key in scope.
func (s *Store) ClearScope(ctx context.Context, scope Scope) error {
	lock := s.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()

	prefix := scope.Prefix()
	keys, err := s.backend.List(ctx, s.namespace, prefix)
	if err != nil {
		return errors.Wrap(errors.Internal, "state list failed", err)
	}
	for _, k := range keys {
		if scope.kind == kindGlobal && !isGlobalOwnedKey(k) {
			continue
		}
		if err := s.backend.Delete(ctx, s.namespace, k); err != nil {
			return errors.Wrap(errors.Internal, "state delete failed", err)
		}
	}
	return nil
}
