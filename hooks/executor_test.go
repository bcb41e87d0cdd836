package hooks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/hooks"
)

func handlerReturning(o hooks.Outcome) hooks.Handler {
	return hooks.HandlerFunc(func(ctx context.Context, hctx hooks.Context) (hooks.Outcome, error) {
		return o, nil
	})
}

func TestSequentialShortCircuitsOnCancel(t *testing.T) {
	r := hooks.NewRegistry(time.Second, 5, time.Minute)
	var secondCalled bool
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Cancel, Reason: "blocked"}))
	r.Register(hooks.ToolBefore, hooks.HandlerFunc(func(ctx context.Context, hctx hooks.Context) (hooks.Outcome, error) {
		secondCalled = true
		return hooks.Outcome{Kind: hooks.Continue}, nil
	}))

	out := r.Sequential(context.Background(), hooks.ToolBefore, hooks.Context{})
	assert.Equal(t, hooks.Cancel, out.Kind)
	assert.False(t, secondCalled, "handler after a Cancel must not run")
}

func TestSequentialAccumulatesModifiedData(t *testing.T) {
	r := hooks.NewRegistry(time.Second, 5, time.Minute)
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Modified, Data: map[string]any{"a": 1}}))
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Modified, Data: map[string]any{"b": 2}}))

	out := r.Sequential(context.Background(), hooks.ToolBefore, hooks.Context{Data: map[string]any{}})
	require.Equal(t, hooks.Modified, out.Kind)
	assert.Equal(t, 1, out.Data["a"])
	assert.Equal(t, 2, out.Data["b"])
}

func TestParallelMergesByPriorityWithRegistrationTieBreak(t *testing.T) {
	r := hooks.NewRegistry(time.Second, 5, time.Minute)
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Modified}))
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Replace, Target: "first-replace"}))
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Replace, Target: "second-replace"}))
	r.Register(hooks.ToolBefore, handlerReturning(hooks.Outcome{Kind: hooks.Continue}))

	out := r.Parallel(context.Background(), hooks.ToolBefore, hooks.Context{})
	require.Equal(t, hooks.Replace, out.Kind)
	assert.Equal(t, "first-replace", out.Target, "equal-priority outcomes break ties by registration order")
}

func TestCircuitBreakerTripsThenAdmitsHalfOpenTrial(t *testing.T) {
	r := hooks.NewRegistry(time.Second, 2, 20*time.Millisecond)
	failing := errors.New("boom")
	calls := 0
	r.Register(hooks.ToolAfter, hooks.HandlerFunc(func(ctx context.Context, hctx hooks.Context) (hooks.Outcome, error) {
		calls++
		if calls <= 2 {
			return hooks.Outcome{}, failing
		}
		return hooks.Outcome{Kind: hooks.Continue}, nil
	}))

	for i := 0; i < 2; i++ {
		out := r.Sequential(context.Background(), hooks.ToolAfter, hooks.Context{})
		assert.Equal(t, hooks.Cancel, out.Kind)
	}

	// breaker now open: a third call is rejected before reaching the handler.
	out := r.Sequential(context.Background(), hooks.ToolAfter, hooks.Context{})
	assert.Equal(t, hooks.Skipped, out.Kind)
	assert.Equal(t, 2, calls, "handler must not run while breaker is open")

	time.Sleep(30 * time.Millisecond)

	out = r.Sequential(context.Background(), hooks.ToolAfter, hooks.Context{})
	assert.Equal(t, hooks.Continue, out.Kind)
	assert.Equal(t, 3, calls, "half-open trial call must reach the handler")
}

func TestPerHookBudgetTimeoutRecordsFailure(t *testing.T) {
	r := hooks.NewRegistry(10*time.Millisecond, 5, time.Minute)
	r.Register(hooks.ToolBefore, hooks.HandlerFunc(func(ctx context.Context, hctx hooks.Context) (hooks.Outcome, error) {
		<-ctx.Done()
		return hooks.Outcome{Kind: hooks.Continue}, ctx.Err()
	}))

	out := r.Sequential(context.Background(), hooks.ToolBefore, hooks.Context{})
	assert.Equal(t, hooks.Skipped, out.Kind)
}
