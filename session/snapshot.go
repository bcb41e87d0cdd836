package session

import (
	"encoding/json"
	"time"

	"github.com/lexlapax/kernelspell/errors"
)

// CurrentSnapshotVersion is the version stamped on every snapshot this
// build produces.
const CurrentSnapshotVersion = 1

// Snapshot is the serializable capture of a session's full state (spec §3
// "SessionSnapshot"), consumed by the Replay Engine and by session
// suspend/restore.
type Snapshot struct {
	Metadata    Metadata
	Config      map[string]any
	State       map[string]json.RawMessage
	ArtifactIDs []ArtifactID
	SnapshotAt  time.Time
	Version     int
}

// Capture builds a Snapshot of the given session from its current
// metadata, state map, and artifact store contents.
func Capture(meta Metadata, config map[string]any, state map[string]json.RawMessage, artifacts *ArtifactStore) Snapshot {
	return Snapshot{
		Metadata:    meta,
		Config:      config,
		State:       state,
		ArtifactIDs: artifacts.IDs(meta.ID),
		SnapshotAt:  time.Now().UTC(),
		Version:     CurrentSnapshotVersion,
	}
}

// Migrate normalizes a snapshot decoded from storage: missing (zero)
// versions are treated as version 0, per spec §3 "snapshots missing it
// are treated as version 0 for migration". Version 0 snapshots had no
// Config field; nil is normalized to an empty map so callers don't need
// a nil check.
func Migrate(snap Snapshot) (Snapshot, error) {
	if snap.Version > CurrentSnapshotVersion {
		return Snapshot{}, errors.New(errors.UnsupportedSnapshotVersion, "snapshot version is newer than this build supports").
			WithDetails(map[string]any{"version": snap.Version, "supported": CurrentSnapshotVersion})
	}
	if snap.Config == nil {
		snap.Config = make(map[string]any)
	}
	if snap.State == nil {
		snap.State = make(map[string]json.RawMessage)
	}
	return snap, nil
}
