package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/session"
	"github.com/lexlapax/kernelspell/state"
	"github.com/lexlapax/kernelspell/storage/memimpl"
)

func TestCreateStartsActiveWithCorrelationID(t *testing.T) {
	s := session.New()
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, m.Status)
	assert.NotEmpty(t, m.CorrelationID)
	assert.NotEmpty(t, m.ID)
}

func TestLifecycleHappyPath(t *testing.T) {
	s := session.New()
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)

	m, err = s.Suspend(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusSuspended, m.Status)

	m, err = s.Resume(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, m.Status)

	m, err = s.Complete(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, m.Status)
	assert.True(t, m.Status.IsTerminal())
}

func TestIllegalTransitionLeavesRecordUntouched(t *testing.T) {
	s := session.New()
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)
	m, err = s.Complete(context.Background(), m.ID)
	require.NoError(t, err)

	_, err = s.Resume(context.Background(), m.ID)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidStateTransition, errors.KindOf(err))

	after, err := s.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, after.Status)
	assert.Equal(t, m.UpdatedAt, after.UpdatedAt)
}

func TestAnyNonTerminalCanArchive(t *testing.T) {
	s := session.New()
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)
	m, err = s.Archive(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusArchived, m.Status)

	_, err = s.Archive(context.Background(), m.ID)
	assert.Error(t, err, "archiving an already-terminal session is illegal")
}

func TestArtifactsAreAppendOnlyWithIncreasingSequence(t *testing.T) {
	s := session.New()
	artifacts := session.NewArtifactStore(s)
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)

	a1, err := artifacts.Append(context.Background(), m.ID, "first", session.ArtifactUserInput, "text/plain", []byte("hello"), nil, "user")
	require.NoError(t, err)
	a2, err := artifacts.Append(context.Background(), m.ID, "second", session.ArtifactToolResult, "application/json", []byte("{}"), nil, "tool")
	require.NoError(t, err)

	assert.Equal(t, 0, a1.ID.Sequence)
	assert.Equal(t, 1, a2.ID.Sequence)

	ids := artifacts.IDs(m.ID)
	require.Len(t, ids, 2)
	assert.Equal(t, a1.ID, ids[0])
	assert.Equal(t, a2.ID, ids[1])

	after, err := s.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.ArtifactCount)
}

func TestAppendToUnknownSessionFails(t *testing.T) {
	s := session.New()
	artifacts := session.NewArtifactStore(s)
	_, err := artifacts.Append(context.Background(), "missing", "x", session.ArtifactUserInput, "", []byte("x"), nil, "")
	assert.Error(t, err)
}

func TestSnapshotCaptureAndMigrate(t *testing.T) {
	s := session.New()
	artifacts := session.NewArtifactStore(s)
	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)
	_, err = artifacts.Append(context.Background(), m.ID, "a", session.ArtifactUserInput, "", []byte("x"), nil, "")
	require.NoError(t, err)

	snap := session.Capture(m, nil, nil, artifacts)
	assert.Equal(t, session.CurrentSnapshotVersion, snap.Version)
	assert.Len(t, snap.ArtifactIDs, 1)

	migrated, err := session.Migrate(session.Snapshot{Metadata: m})
	require.NoError(t, err)
	assert.NotNil(t, migrated.Config)
	assert.NotNil(t, migrated.State)

	_, err = session.Migrate(session.Snapshot{Version: session.CurrentSnapshotVersion + 1})
	assert.Error(t, err)
}

func TestSnapshotRoundTripPreservesMetadataStateAndArtifacts(t *testing.T) {
	s := session.New()
	artifacts := session.NewArtifactStore(s)
	states := state.New(memimpl.New())

	m, err := s.Create(context.Background(), "demo", "", nil, "", "")
	require.NoError(t, err)
	_, err = artifacts.Append(context.Background(), m.ID, "a", session.ArtifactUserInput, "", []byte("x"), nil, "")
	require.NoError(t, err)
	_, err = states.Set(context.Background(), state.Session(m.ID), "k", []byte(`{"v":1}`))
	require.NoError(t, err)

	snap, err := s.Snapshot(context.Background(), m.ID, states, artifacts, nil)
	require.NoError(t, err)
	assert.Len(t, snap.ArtifactIDs, 1)
	assert.Contains(t, snap.State, "k")

	s2 := session.New()
	restored, err := s2.Restore(context.Background(), snap, states)
	require.NoError(t, err)
	assert.Equal(t, m.ID, restored.ID)
	assert.Equal(t, m.Name, restored.Name)
	assert.Equal(t, m.Status, restored.Status)

	entry, ok, err := states.Get(context.Background(), state.Session(m.ID), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(entry.Value))
}
