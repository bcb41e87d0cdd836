// Package replay implements the Replay Engine of spec §2 ("Replay Engine
// (~10%)") and §4.3.3: an append-only hook-execution log keyed by
// correlation id, timeline queries in finish order, and deterministic
// re-execution against a shadow state that never touches committed data.
// It generalizes the chronological append-only Event log of
// agents/runtime/memory/memory.go (a single run's message/tool-call
// history) into a log of hook outcomes keyed by session correlation id.
package replay

import (
	"sort"
	"sync"
	"time"

	"github.com/lexlapax/kernelspell/hooks"
)

// HookExecution is the log record of spec §3: a single hook invocation's
// recorded outcome, ready for comparison against a later replay.
type HookExecution struct {
	ID            string
	CorrelationID string
	HookPoint     hooks.Point
	ComponentType string
	ComponentID   string
	StartedAt     time.Time
	FinishedAt    time.Time
	Outcome       hooks.Outcome
	Context       hooks.Context
	Metadata      map[string]any
	seq           uint64
}

// Log is an append-only store of HookExecution records, partitioned by
// correlation id.
type Log struct {
	mu      sync.Mutex
	nextSeq uint64
	byCorr  map[string][]HookExecution
}

// NewLog constructs an empty Log.
func NewLog() *Log {
	return &Log{byCorr: make(map[string][]HookExecution)}
}

// Append records a hook execution. Sequence numbers are assigned in
// append order and used to break wall-clock ties (spec invariant: "every
// hook execution ... is later retrievable in the order in which the
// hooks finished (wall-clock tie-break uses started_at then a stable
// sequence number)").
func (l *Log) Append(exec HookExecution) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSeq++
	exec.seq = l.nextSeq
	l.byCorr[exec.CorrelationID] = append(l.byCorr[exec.CorrelationID], exec)
}

// CanReplay reports whether correlationID has at least one recorded hook
// execution (spec §4.3.3 "can_replay(session_id) -> bool").
func (l *Log) CanReplay(correlationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byCorr[correlationID]) > 0
}

// Timeline returns every execution recorded against correlationID in
// finish order (spec §4.3.3 "timeline(session_id) -> [HookExecution]
// in finish order").
func (l *Log) Timeline(correlationID string) []HookExecution {
	l.mu.Lock()
	list := make([]HookExecution, len(l.byCorr[correlationID]))
	copy(list, l.byCorr[correlationID])
	l.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].FinishedAt.Equal(list[j].FinishedAt) {
			return list[i].FinishedAt.Before(list[j].FinishedAt)
		}
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.Before(list[j].StartedAt)
		}
		return list[i].seq < list[j].seq
	})
	return list
}
