// Package registry implements the Component Registry of spec §2
// ("Component Registry (~6%)"): a name-to-descriptor-and-factory map with
// kind and tag filtering, rewritten from the tag/query matching
// of registry/store/memory/memory.go (goadesign-goa-ai) generalized from a
// single "toolset" shape to any agent/tool/workflow descriptor.
package registry

import (
	"github.com/google/uuid"
)

// componentIDNamespace roots the deterministic from-name derivation
// (spec §3 "ComponentId ... name-derived (deterministic from a UTF-8
// name) construction"). A fixed namespace UUID makes the same name
// produce the same id across process restarts, per google/uuid's
// NewSHA1 (UUID v5) contract.
var componentIDNamespace = uuid.MustParse("6ec1a4ac-4b1b-5e4e-9c9e-2f8f0a6c9d41")

// ComponentID is the stable identity of any addressable component (spec
// §3). It wraps a uuid.UUID so the zero value prints as the canonical
// 36-character all-zero form rather than panicking.
type ComponentID struct {
	id uuid.UUID
}

// NewComponentID returns a fresh random identity.
func NewComponentID() ComponentID {
	return ComponentID{id: uuid.New()}
}

// ComponentIDFromName deterministically derives an identity from n: equal
// names always yield equal ids (spec invariant "A ComponentId::from_name(n)
// equals itself for equal n").
func ComponentIDFromName(n string) ComponentID {
	return ComponentID{id: uuid.NewSHA1(componentIDNamespace, []byte(n))}
}

// String renders the 36-character canonical form (spec §3 "Displayed as a
// 36-char canonical form").
func (c ComponentID) String() string {
	return c.id.String()
}

// IsZero reports whether c is the unset identity.
func (c ComponentID) IsZero() bool {
	return c.id == uuid.Nil
}

// Equal reports whether two ids refer to the same component.
func (c ComponentID) Equal(other ComponentID) bool {
	return c.id == other.id
}

// MarshalText implements encoding.TextMarshaler so ComponentID serializes
// as its canonical string form in JSON payloads crossing the bridge.
func (c ComponentID) MarshalText() ([]byte, error) {
	return []byte(c.id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ComponentID) UnmarshalText(text []byte) error {
	id, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	c.id = id
	return nil
}
