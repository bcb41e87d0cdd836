package bridge

import "context"

// MemoryRecord is a single episodic memory entry (spec §4.2 "Memory").
type MemoryRecord struct {
	ID        string
	SessionID string
	Content   string
	Metadata  map[string]any
	Score     float64 // relevance score, populated on Search/Query results only
}

// MemoryStore is the narrow contract the Memory global depends on.
// Concrete vector-search/episodic-store backends are an external
// collaborator (spec §1 "memory consolidation and retrieval algorithms"
// are out of scope for this module); this interface is the seam a host
// embedding plugs a real implementation into.
type MemoryStore interface {
	// AddEpisodic appends a raw episodic record and returns its id.
	AddEpisodic(ctx context.Context, sessionID, content string, metadata map[string]any) (string, error)
	// GetEpisodic returns a single episodic record by id.
	GetEpisodic(ctx context.Context, id string) (MemoryRecord, error)
	// SearchEpisodic returns the top-k episodic records relevant to query.
	SearchEpisodic(ctx context.Context, sessionID, query string, k int) ([]MemoryRecord, error)
	// QuerySemantic runs a semantic (embedding/vector) query independent of
	// any one session's episodic log.
	QuerySemantic(ctx context.Context, query string, k int) ([]MemoryRecord, error)
	// Consolidate folds a session's episodic records into longer-lived
	// semantic memory, returning how many records were consolidated.
	Consolidate(ctx context.Context, sessionID string) (int, error)
}

// MemoryGlobal implements the `Memory` namespace of spec §4.2: "episodic
// add/get/search, semantic query, consolidate."
type MemoryGlobal struct {
	store MemoryStore
	async *AsyncBridge
}

func (g *MemoryGlobal) AddEpisodic(ctx context.Context, sessionID, content string, metadata map[string]any) (string, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (string, error) {
		return g.store.AddEpisodic(ctx, sessionID, content, metadata)
	})
}

func (g *MemoryGlobal) GetEpisodic(ctx context.Context, id string) (MemoryRecord, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (MemoryRecord, error) {
		return g.store.GetEpisodic(ctx, id)
	})
}

func (g *MemoryGlobal) SearchEpisodic(ctx context.Context, sessionID, query string, k int) ([]MemoryRecord, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) ([]MemoryRecord, error) {
		return g.store.SearchEpisodic(ctx, sessionID, query, k)
	})
}

func (g *MemoryGlobal) QuerySemantic(ctx context.Context, query string, k int) ([]MemoryRecord, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) ([]MemoryRecord, error) {
		return g.store.QuerySemantic(ctx, query, k)
	})
}

func (g *MemoryGlobal) Consolidate(ctx context.Context, sessionID string) (int, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (int, error) {
		return g.store.Consolidate(ctx, sessionID)
	})
}
