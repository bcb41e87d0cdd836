package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexlapax/kernelspell/errors"
	"github.com/lexlapax/kernelspell/telemetry"
)

// Store holds session records and enforces the lifecycle transition table
// of spec §3/§4.3.2 (generalized from
// runtime/agent/runtime/session_lifecycle.go's CreateSession/DeleteSession
// idiom: session identity is explicit). Every Create call mints a new
// session id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Metadata

	logger  telemetry.Logger
	metrics telemetry.Metrics
}

// Option configures optional Store dependencies.
type Option func(*Store)

// WithLogger sets the logger transition reports lifecycle changes and
// rejected transitions through.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics recorder transition increments on every
// status change and on invalid transitions.
func WithMetrics(m telemetry.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New constructs an empty Store. Telemetry dependencies default to
// no-ops when not supplied via Option.
func New(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Metadata),
		logger:   telemetry.NoopLogger{},
		metrics:  telemetry.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a new Active session. A correlation id is minted at
// creation and never changes (spec §C, llmspell-sessions/session.rs).
func (s *Store) Create(ctx context.Context, name, description string, tags []string, parentSessionID, createdBy string) (Metadata, error) {
	now := time.Now().UTC()
	m := &Metadata{
		ID:              uuid.NewString(),
		Name:            name,
		Description:     description,
		Tags:            tags,
		ParentSessionID: parentSessionID,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		Status:          StatusActive,
		CorrelationID:   uuid.NewString(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[m.ID] = m
	return *m, nil
}

// Get returns a copy of the session record for id.
func (s *Store) Get(ctx context.Context, id string) (Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.sessions[id]
	if !ok {
		return Metadata{}, errors.New(errors.NotFound, "session not found: "+id)
	}
	return *m, nil
}

// List returns every session record, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status) []Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Metadata, 0, len(s.sessions))
	for _, m := range s.sessions {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, *m)
	}
	return out
}

// transition applies the status change to on id, failing with
// InvalidStateTransition and leaving the record completely untouched if
// the move is not in the allowed table (spec invariant: "no state field
// changes on such a failure").
func (s *Store) transition(ctx context.Context, id string, to Status) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return Metadata{}, errors.New(errors.NotFound, "session not found: "+id)
	}
	if !CanTransition(m.Status, to) {
		s.metrics.IncCounter("session.invalid_transition", 1, "from", string(m.Status), "to", string(to))
		s.logger.Warn(ctx, "rejected illegal session status transition",
			"session", id, "from", string(m.Status), "to", string(to))
		return Metadata{}, errors.New(errors.InvalidStateTransition, "illegal session status transition").
			WithDetails(map[string]any{"from": string(m.Status), "to": string(to)})
	}

	updated := *m
	updated.Status = to
	updated.UpdatedAt = time.Now().UTC()
	s.sessions[id] = &updated
	s.metrics.IncCounter("session.transition", 1, "from", string(m.Status), "to", string(to))
	s.logger.Info(ctx, "session transitioned",
		"session", id, "from", string(m.Status), "to", string(to))
	return updated, nil
}

// Suspend moves an Active session to Suspended.
func (s *Store) Suspend(ctx context.Context, id string) (Metadata, error) {
	return s.transition(ctx, id, StatusSuspended)
}

// Resume moves a Suspended session back to Active.
func (s *Store) Resume(ctx context.Context, id string) (Metadata, error) {
	return s.transition(ctx, id, StatusActive)
}

// Complete marks a session Completed.
func (s *Store) Complete(ctx context.Context, id string) (Metadata, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// Fail marks a session Failed.
func (s *Store) Fail(ctx context.Context, id string) (Metadata, error) {
	return s.transition(ctx, id, StatusFailed)
}

// Archive moves any non-terminal session to Archived.
func (s *Store) Archive(ctx context.Context, id string) (Metadata, error) {
	return s.transition(ctx, id, StatusArchived)
}

// touch increments the operation counter and bumps UpdatedAt, used by the
// artifact store when it appends a record under this session.
func (s *Store) touch(id string, artifactDelta, operationDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.sessions[id]
	if !ok {
		return errors.New(errors.NotFound, "session not found: "+id)
	}
	m.ArtifactCount += artifactDelta
	m.OperationCount += operationDelta
	m.UpdatedAt = time.Now().UTC()
	return nil
}
