// Package state implements the scope-partitioned, typed key-value State
// Store described in spec §3 and §4.3.1: it layers StateScope/StateEntry
// semantics (versioning, atomic per-key ops, snapshot listing) over a
// storage.Backend.
package state

import (
	"fmt"
	"strings"

	"github.com/lexlapax/kernelspell/errors"
)

// Scope is a sum type over the five state partitions spec §3 defines. Every
// state key belongs to exactly one scope; keys in different scopes are
// isolated and serialize to disjoint key prefixes (spec §6).
type Scope struct {
	kind       scopeKind
	workflowID string
	stepName   string
	namespace  string
	sessionID  string
}

type scopeKind int

const (
	kindGlobal scopeKind = iota
	kindWorkflow
	kindStep
	kindCustom
	kindSession
)

// Global is the scope shared by the whole process.
func Global() Scope { return Scope{kind: kindGlobal} }

// Workflow scopes state to a single workflow run.
func Workflow(workflowID string) Scope {
	return Scope{kind: kindWorkflow, workflowID: workflowID}
}

// Step scopes state to a single step within a workflow run.
func Step(workflowID, stepName string) Scope {
	return Scope{kind: kindStep, workflowID: workflowID, stepName: stepName}
}

// Custom scopes state to a caller-chosen namespace.
func Custom(namespace string) Scope {
	return Scope{kind: kindCustom, namespace: namespace}
}

// Session scopes state to a single session.
func Session(sessionID string) Scope {
	return Scope{kind: kindSession, sessionID: sessionID}
}

// reservedPrefixes must never appear as the raw form of a Global or Custom
// key, so scope prefixes stay unambiguous (spec §6).
var reservedPrefixes = []string{"workflow:", "step:", "session:", "artifact:", "hook_metadata:"}

// ValidateRawKey rejects keys whose raw form collides with a reserved scope
// prefix.
func ValidateRawKey(key string) error {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(key, p) {
			return errors.New(errors.Validation, fmt.Sprintf("key %q uses reserved prefix %q", key, p))
		}
	}
	return nil
}

// isGlobalOwnedKey reports whether a raw storage key belongs to the Global
// scope rather than to Workflow/Step/Session (which all serialize under a
// reserved prefix). Global's own prefix is the empty string (spec §6: "no
// colon"), so it shares a raw List/Clear with every other scope unless
// callers filter out the reserved prefixes themselves.
func isGlobalOwnedKey(rawKey string) bool {
	for _, p := range reservedPrefixes {
		if strings.HasPrefix(rawKey, p) {
			return false
		}
	}
	return true
}

// Prefix returns the scope's persisted-key prefix scheme from spec §6.
func (s Scope) Prefix() string {
	switch s.kind {
	case kindGlobal:
		return ""
	case kindWorkflow:
		return fmt.Sprintf("workflow:%s:", s.workflowID)
	case kindStep:
		return fmt.Sprintf("step:%s:%s:", s.workflowID, s.stepName)
	case kindCustom:
		return s.namespace + ":"
	case kindSession:
		return fmt.Sprintf("session:%s:", s.sessionID)
	default:
		return ""
	}
}

// Key renders the fully-qualified storage key for a logical key within s.
func (s Scope) Key(key string) string {
	return s.Prefix() + key
}

// String renders the canonical scope string used on the wire (e.g.
// "global", "workflow:<id>", "step:<wf>:<name>", a bare session id).
func (s Scope) String() string {
	switch s.kind {
	case kindGlobal:
		return "global"
	case kindWorkflow:
		return "workflow:" + s.workflowID
	case kindStep:
		return fmt.Sprintf("step:%s:%s", s.workflowID, s.stepName)
	case kindCustom:
		return s.namespace
	case kindSession:
		return s.sessionID
	default:
		return ""
	}
}

// ParseScope parses the canonical wire string form back into a Scope,
// mirroring the `scope` string contract of the State script global (spec
// §4.2).
func ParseScope(s string) (Scope, error) {
	switch {
	case s == "global":
		return Global(), nil
	case strings.HasPrefix(s, "workflow:"):
		return Workflow(strings.TrimPrefix(s, "workflow:")), nil
	case strings.HasPrefix(s, "step:"):
		rest := strings.TrimPrefix(s, "step:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return Scope{}, errors.New(errors.Validation, fmt.Sprintf("malformed step scope %q", s))
		}
		return Step(parts[0], parts[1]), nil
	case s == "":
		return Scope{}, errors.New(errors.Validation, "empty scope")
	default:
		// Bare session ids and custom namespaces share the same wire shape;
		// the caller (State global) disambiguates via an explicit namespace
		// argument when it isn't a session id. Default to Custom here.
		return Custom(s), nil
	}
}
