// Package session implements the Session & Artifact Store of spec §2
// ("Session & Artifact Store (~8%)"): the session lifecycle state machine,
// per-session artifact log, and snapshot serialization of spec §3/§4.3.2.
// It generalizes the Run/Status shape of
// agents/runtime/session/session.go (a single durable-workflow run record)
// into a full session record with its own terminal-state table.
package session

import "time"

// Status is the lifecycle state of a session (spec §3 "SessionMetadata").
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusArchived  Status = "archived"
)

// terminal names the states no transition table entry above ever leaves
// (spec §3 "terminal states are {Completed, Failed, Archived}").
var terminal = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusArchived:  true,
}

// IsTerminal reports whether s is a terminal status.
func (s Status) IsTerminal() bool {
	return terminal[s]
}

// allowedTransitions implements spec §3's exact table: "Active↔Suspended;
// Active/Suspended→Completed/Failed; any non-terminal→Archived."
var allowedTransitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusSuspended: true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusArchived:  true,
	},
	StatusSuspended: {
		StatusActive:    true,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusArchived:  true,
	},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	return allowedTransitions[from][to]
}

// Metadata is the session record of spec §3 "SessionMetadata".
type Metadata struct {
	ID              string
	Name            string
	Description     string
	Tags            []string
	ParentSessionID string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Status          Status
	ArtifactCount   int
	OperationCount  int
	CorrelationID   string
}
