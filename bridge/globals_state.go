package bridge

import (
	"context"
	"encoding/json"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/session"
	"github.com/lexlapax/kernelspell/state"
)

// StateGlobal implements the `State` namespace of spec §4.2:
// "{save(scope, key, value), load(scope, key) -> value | nil,
// delete(scope, key), keys(scope) -> list}."
type StateGlobal struct {
	store *state.Store
}

func (g *StateGlobal) Save(ctx context.Context, scope, key string, value Value) error {
	sc, err := state.ParseScope(scope)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(errors.Validation, "state value is not JSON-encodable", err)
	}
	_, err = g.store.Set(mustCtx(ctx), sc, key, raw)
	return err
}

// Load returns the stored value, or Nil() with ok=false if absent (spec
// §4.2 "load(scope, key) -> value | nil").
func (g *StateGlobal) Load(ctx context.Context, scope, key string) (Value, bool, error) {
	sc, err := state.ParseScope(scope)
	if err != nil {
		return Value{}, false, err
	}
	entry, ok, err := g.store.Get(mustCtx(ctx), sc, key)
	if err != nil || !ok {
		return Value{}, false, err
	}
	var v Value
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		return Value{}, false, errors.Wrap(errors.Internal, "corrupt stored state value", err)
	}
	return v, true, nil
}

func (g *StateGlobal) Delete(ctx context.Context, scope, key string) error {
	sc, err := state.ParseScope(scope)
	if err != nil {
		return err
	}
	return g.store.Delete(mustCtx(ctx), sc, key)
}

func (g *StateGlobal) Keys(ctx context.Context, scope string) ([]string, error) {
	sc, err := state.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	return g.store.ListKeys(mustCtx(ctx), sc)
}

// SessionGlobal implements the `Session` namespace: "create/get/list/
// suspend/resume/complete; get_current()/set_current(id|nil)."
type SessionGlobal struct {
	bridge *Bridge
}

func (g *SessionGlobal) Create(ctx context.Context, name, description string, tags []string) (session.Metadata, error) {
	return g.bridge.Sessions.Create(mustCtx(ctx), name, description, tags, "", "")
}

func (g *SessionGlobal) Get(ctx context.Context, id string) (session.Metadata, error) {
	return g.bridge.Sessions.Get(mustCtx(ctx), id)
}

func (g *SessionGlobal) List(ctx context.Context, status session.Status) []session.Metadata {
	return g.bridge.Sessions.List(mustCtx(ctx), status)
}

func (g *SessionGlobal) Suspend(ctx context.Context, id string) (session.Metadata, error) {
	return g.bridge.Sessions.Suspend(mustCtx(ctx), id)
}

func (g *SessionGlobal) Resume(ctx context.Context, id string) (session.Metadata, error) {
	return g.bridge.Sessions.Resume(mustCtx(ctx), id)
}

func (g *SessionGlobal) Complete(ctx context.Context, id string) (session.Metadata, error) {
	return g.bridge.Sessions.Complete(mustCtx(ctx), id)
}

// GetCurrent returns the per-process current-session cell (spec §9).
func (g *SessionGlobal) GetCurrent() (string, bool) {
	return g.bridge.CurrentSession()
}

// SetCurrent sets (or clears, with id == "") the current-session cell.
func (g *SessionGlobal) SetCurrent(id string) {
	g.bridge.SetCurrentSession(id)
}

// Save captures id's current metadata, session-scoped state, and artifact
// id list into a session.Snapshot (spec §4.3.2 "snapshot(id) ->
// SessionSnapshot", wired to the Session adapter's "save" wire command).
func (g *SessionGlobal) Save(ctx context.Context, id string) (session.Snapshot, error) {
	return g.bridge.Sessions.Snapshot(mustCtx(ctx), id, g.bridge.State, g.bridge.Artifacts, nil)
}

// Load restores a session record and its session-scoped state from snap
// (spec §4.3.2 "restore(snapshot) -> session", wired to the Session
// adapter's "load" wire command).
func (g *SessionGlobal) Load(ctx context.Context, snap session.Snapshot) (session.Metadata, error) {
	return g.bridge.Sessions.Restore(mustCtx(ctx), snap, g.bridge.State)
}

// ArtifactGlobal implements the `Artifact` namespace: "store(session_id,
// type_str, name, content, metadata?) -> id; get/list/delete;
// storeFile(session_id, path, type_str, metadata?)."
type ArtifactGlobal struct {
	store *session.ArtifactStore
}

func (g *ArtifactGlobal) Store(ctx context.Context, sessionID, typeStr, name string, content []byte, metadata map[string]any) (session.ArtifactID, error) {
	art, err := g.store.Append(mustCtx(ctx), sessionID, name, session.ArtifactType(typeStr), "", content, metadata, "")
	if err != nil {
		return session.ArtifactID{}, err
	}
	return art.ID, nil
}

func (g *ArtifactGlobal) Get(ctx context.Context, sessionID string, sequence int) (session.Artifact, error) {
	return g.store.Get(mustCtx(ctx), sessionID, sequence)
}

func (g *ArtifactGlobal) List(ctx context.Context, sessionID string) []session.Artifact {
	return g.store.List(mustCtx(ctx), sessionID)
}

// StoreFile reads path's bytes from a FileReader (dependency-injected so
// the bridge package itself has no concrete filesystem collaborator,
// matching spec §1's exclusion of "filesystem ... tool implementations")
// and stores them as an artifact.
func (g *ArtifactGlobal) StoreFile(ctx context.Context, sessionID, path, typeStr string, metadata map[string]any, read func(path string) ([]byte, error)) (session.ArtifactID, error) {
	content, err := read(path)
	if err != nil {
		return session.ArtifactID{}, errors.Wrap(errors.Internal, "read artifact file", err)
	}
	return g.Store(ctx, sessionID, typeStr, path, content, metadata)
}
