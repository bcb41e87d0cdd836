package bridge

import "context"

// ContextChunk is one retrieved-and-ranked piece of assembled context
// (spec §4.2 "Context.assemble ... -> {chunks, token_count}").
type ContextChunk struct {
	Source   string
	Content  string
	Tokens   int
	Score    float64
	Metadata map[string]any
}

// Assembled is the result of a Context.assemble call.
type Assembled struct {
	Chunks     []ContextChunk
	TokenCount int
}

// StrategyStats reports a single assembly strategy's usage counters (spec
// §4.2 "Context.strategy_stats()").
type StrategyStats struct {
	Strategy       string
	InvocationCount int64
	AvgTokenCount   float64
}

// ContextAssembler is the narrow contract the Context global depends on.
// Concrete retrieval/ranking strategies (recency, semantic similarity,
// hybrid) are an external collaborator (spec §1); this is the seam a host
// embedding plugs a real implementation into.
type ContextAssembler interface {
	// Assemble builds a token-budgeted context window for query using the
	// named strategy, optionally scoped to a session.
	Assemble(ctx context.Context, query, strategy string, tokenBudget int, sessionID string) (Assembled, error)
	// StrategyStats reports usage counters per registered strategy.
	StrategyStats(ctx context.Context) ([]StrategyStats, error)
}

// ContextGlobal implements the `Context` namespace of spec §4.2:
// "assemble(query, strategy, token_budget, session_id?) ->
// {chunks, token_count}; strategy_stats()."
type ContextGlobal struct {
	asm   ContextAssembler
	async *AsyncBridge
}

func (g *ContextGlobal) Assemble(ctx context.Context, query, strategy string, tokenBudget int, sessionID string) (Assembled, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) (Assembled, error) {
		return g.asm.Assemble(ctx, query, strategy, tokenBudget, sessionID)
	})
}

func (g *ContextGlobal) StrategyStats(ctx context.Context) ([]StrategyStats, error) {
	ctx = mustCtx(ctx)
	return CallTyped(ctx, g.async, func(ctx context.Context) ([]StrategyStats, error) {
		return g.asm.StrategyStats(ctx)
	})
}
