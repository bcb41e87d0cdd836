// Package memimpl is the in-memory storage.Backend used as the runtime's
// default, rewritten from the teacher's in-memory registry store
// (registry/store/memory/memory.go): a mutex-guarded map with ctx.Done()
// checks ahead of every operation, no external dependency required.
package memimpl

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lexlapax/kernelspell/storage"
)

// Store is an in-memory storage.Backend. It is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // namespace -> key -> value
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *Store) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, false, nil
	}
	v, ok := ns[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *Store) Put(ctx context.Context, namespace, key string, value []byte) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	ns[key] = cp
	return nil
}

func (s *Store) Delete(ctx context.Context, namespace, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (s *Store) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.data[namespace]
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(ns))
	for k := range ns {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Clear(ctx context.Context, namespace string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, namespace)
	return nil
}
