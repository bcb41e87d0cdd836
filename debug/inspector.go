package debug

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lexlapax/kernelspell/errors"
)

// VariableReader is how the inspector reads live variables through the
// Bridge, kept as a narrow function type so debug has no import on the
// bridge package (spec §4.4 "Inspection reads from the current execution
// context through the Bridge").
type VariableReader func(ctx context.Context, names []string) (map[string]any, error)

// cachedVar pairs a value with the generation it was read at, so stale
// entries can be distinguished from fresh ones without a separate pass
// over the whole cache.
type cachedVar struct {
	value      any
	generation uint64
}

// Inspector implements spec §4.4's variable inspector: reads flow through
// a VariableReader, results are cached against a monotone generation
// counter so invalidation is an O(1) counter bump, and the cache evicts
// by LRU except for pinned watched variables.
type Inspector struct {
	read VariableReader

	mu            sync.Mutex
	generation    uint64
	cache         *lru.Cache[string, cachedVar]
	watched       map[string]bool
	watchedValues map[string]cachedVar
}

// NewInspector constructs an Inspector with the given LRU capacity
// (golang-lru/v2, promoted from the teacher's indirect dependency list).
func NewInspector(read VariableReader, capacity int) *Inspector {
	if capacity <= 0 {
		capacity = 256
	}
	c, _ := lru.New[string, cachedVar](capacity)
	return &Inspector{read: read, cache: c, watched: make(map[string]bool), watchedValues: make(map[string]cachedVar)}
}

// Invalidate bumps the generation counter, so every previously cached
// value is treated as stale on next access without being walked and
// evicted eagerly (spec §4.4 "invalidation bumps the generation so cached
// values older than the current one are discarded").
func (i *Inspector) Invalidate() {
	i.mu.Lock()
	i.generation++
	i.mu.Unlock()
}

// WatchVariable pins name so it survives LRU eviction: any cached value
// for name moves into the unevictable watched set (spec §4.4 "Cache has
// LRU eviction with watched variables pinned").
func (i *Inspector) WatchVariable(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.watched[name] = true
	if cv, ok := i.cache.Peek(name); ok {
		i.watchedValues[name] = cv
		i.cache.Remove(name)
	}
}

// UnwatchVariable unpins name, returning it to ordinary LRU-managed
// caching.
func (i *Inspector) UnwatchVariable(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.watched, name)
	if cv, ok := i.watchedValues[name]; ok {
		i.cache.Add(name, cv)
		delete(i.watchedValues, name)
	}
}

// InspectVariables returns the current values of names, consulting the
// cache first and falling back to a live read through the Bridge for any
// name whose cached entry is absent or stale.
func (i *Inspector) InspectVariables(ctx context.Context, names []string) (map[string]any, error) {
	i.mu.Lock()
	gen := i.generation
	result := make(map[string]any, len(names))
	var miss []string
	for _, n := range names {
		if cv, ok := i.watchedValues[n]; ok && cv.generation == gen {
			result[n] = cv.value
			continue
		}
		if cv, ok := i.cache.Get(n); ok && cv.generation == gen {
			result[n] = cv.value
			continue
		}
		miss = append(miss, n)
	}
	i.mu.Unlock()

	if len(miss) == 0 {
		return result, nil
	}
	if i.read == nil {
		return nil, errors.New(errors.Internal, "inspector has no variable reader bound")
	}
	fresh, err := i.read(ctx, miss)
	if err != nil {
		return nil, errors.Wrap(errors.Internal, "variable read failed", err)
	}

	i.mu.Lock()
	for n, v := range fresh {
		cv := cachedVar{value: v, generation: gen}
		if i.watched[n] {
			i.watchedValues[n] = cv
		} else {
			i.cache.Add(n, cv)
		}
		result[n] = v
	}
	i.mu.Unlock()
	return result, nil
}

// GetAllCached returns every value currently held in the cache regardless
// of generation, for diagnostic / GetDebugState purposes (spec §4.4
// "get_all_cached").
func (i *Inspector) GetAllCached() map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]any, i.cache.Len()+len(i.watchedValues))
	for _, key := range i.cache.Keys() {
		if cv, ok := i.cache.Peek(key); ok {
			out[key] = cv.value
		}
	}
	for k, cv := range i.watchedValues {
		out[k] = cv.value
	}
	return out
}

// Watched returns the current set of pinned variable names.
func (i *Inspector) Watched() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.watched))
	for n := range i.watched {
		out = append(out, n)
	}
	return out
}
