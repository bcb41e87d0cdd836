package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lexlapax/kernelspell/errors"
)

// ArtifactType tags what produced an artifact (spec §3 "Artifact").
type ArtifactType string

const (
	ArtifactToolResult  ArtifactType = "tool_result"
	ArtifactAgentOutput ArtifactType = "agent_output"
	ArtifactUserInput   ArtifactType = "user_input"
)

// CustomArtifactType builds the Custom(str) variant of spec §3's
// artifact_type sum.
func CustomArtifactType(name string) ArtifactType {
	return ArtifactType("custom:" + name)
}

// ArtifactID is the three-part identity of spec §3: "(content_hash,
// session_id, sequence)".
type ArtifactID struct {
	ContentHash string
	SessionID   string
	Sequence    int
}

// Artifact is an immutable, append-only record stored under a session
// (spec §3 "Artifacts are append-only per session; sequence is strictly
// increasing within a session").
type Artifact struct {
	ID           ArtifactID
	Name         string
	ArtifactType ArtifactType
	MimeType     string
	Size         int
	Content      []byte
	Metadata     map[string]any
	CreatedAt    time.Time
	CreatedBy    string
}

// ArtifactStore appends artifacts per session and keeps each session's
// artifact_ids list in lockstep with what is actually stored, satisfying
// the spec invariant "no orphans, no dangling refs".
type ArtifactStore struct {
	sessions *Store

	mu        sync.Mutex
	bySession map[string][]Artifact
	nextSeq   map[string]int
}

// NewArtifactStore binds an ArtifactStore to the session Store whose
// artifact_count/operation_count it keeps updated.
func NewArtifactStore(sessions *Store) *ArtifactStore {
	return &ArtifactStore{
		sessions:  sessions,
		bySession: make(map[string][]Artifact),
		nextSeq:   make(map[string]int),
	}
}

// Append stores a new artifact under sessionID and returns its assigned
// id. The session must exist; appending to an unknown session fails
// rather than silently creating an orphaned artifact.
func (a *ArtifactStore) Append(ctx context.Context, sessionID, name string, artifactType ArtifactType, mimeType string, content []byte, metadata map[string]any, createdBy string) (Artifact, error) {
	if _, err := a.sessions.Get(ctx, sessionID); err != nil {
		return Artifact{}, err
	}

	a.mu.Lock()
	seq := a.nextSeq[sessionID]
	a.nextSeq[sessionID] = seq + 1
	hash := sha256.Sum256(content)
	art := Artifact{
		ID: ArtifactID{
			ContentHash: hex.EncodeToString(hash[:]),
			SessionID:   sessionID,
			Sequence:    seq,
		},
		Name:         name,
		ArtifactType: artifactType,
		MimeType:     mimeType,
		Size:         len(content),
		Content:      content,
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    createdBy,
	}
	a.bySession[sessionID] = append(a.bySession[sessionID], art)
	a.mu.Unlock()

	if err := a.sessions.touch(sessionID, 1, 1); err != nil {
		return Artifact{}, err
	}
	return art, nil
}

// List returns every artifact stored under sessionID in sequence order.
func (a *ArtifactStore) List(ctx context.Context, sessionID string) []Artifact {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.bySession[sessionID]
	out := make([]Artifact, len(list))
	copy(out, list)
	return out
}

// Get returns the artifact stored at a given sequence number.
func (a *ArtifactStore) Get(ctx context.Context, sessionID string, sequence int) (Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, art := range a.bySession[sessionID] {
		if art.ID.Sequence == sequence {
			return art, nil
		}
	}
	return Artifact{}, errors.New(errors.NotFound, "artifact not found")
}

// IDs returns the exact set of artifact ids stored under sessionID, the
// value spec §3 requires a session's artifact_ids field to equal.
func (a *ArtifactStore) IDs(sessionID string) []ArtifactID {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.bySession[sessionID]
	ids := make([]ArtifactID, len(list))
	for i, art := range list {
		ids[i] = art.ID
	}
	return ids
}
