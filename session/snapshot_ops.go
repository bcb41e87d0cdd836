package session

import (
	"context"
	"encoding/json"

	"github.com/lexlapax/kernelspell/state"
)

// Snapshot builds a full point-in-time Snapshot of sessionID: its metadata,
// every key currently held in its session-scoped state, and its artifact id
// list (spec §4.3.2 "snapshot(id) -> SessionSnapshot").
func (s *Store) Snapshot(ctx context.Context, id string, states *state.Store, artifacts *ArtifactStore, config map[string]any) (Snapshot, error) {
	meta, err := s.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	scope := state.Session(id)
	keys, err := states.ListKeys(ctx, scope)
	if err != nil {
		return Snapshot{}, err
	}
	stateMap := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		entry, ok, err := states.Get(ctx, scope, k)
		if err != nil {
			return Snapshot{}, err
		}
		if ok {
			stateMap[k] = entry.Value
		}
	}
	return Capture(meta, config, stateMap, artifacts), nil
}

// Restore reinstates a session record and its session-scoped state from
// snap, returning the restored session's metadata (spec §4.3.2
// "restore(snapshot) -> session"). Artifact content is not re-appended:
// artifacts are immutable, content-addressed, append-only records that are
// expected to already live in the artifact backend snap.ArtifactIDs
// references; restore only reconstructs the session record and its state.
func (s *Store) Restore(ctx context.Context, snap Snapshot, states *state.Store) (Metadata, error) {
	migrated, err := Migrate(snap)
	if err != nil {
		return Metadata{}, err
	}

	m := migrated.Metadata
	s.mu.Lock()
	cp := m
	s.sessions[m.ID] = &cp
	s.mu.Unlock()

	scope := state.Session(m.ID)
	for k, v := range migrated.State {
		if _, err := states.Set(ctx, scope, k, v); err != nil {
			return Metadata{}, err
		}
	}
	return m, nil
}
