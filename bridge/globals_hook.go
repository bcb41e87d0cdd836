package bridge

import (
	"github.com/lexlapax/kernelspell/hooks"
)

// HookGlobal implements the `Hook` namespace of spec §4.2: "register a
// handler at a named point; unregister by handle."
type HookGlobal struct {
	registry *hooks.Registry
}

// Register adds handler at point and returns the Registered handle needed
// to Unregister it later.
func (g *HookGlobal) Register(point hooks.Point, handler hooks.Handler) hooks.Registered {
	return g.registry.Register(point, handler)
}

// RegisterFunc is the common case: register a bare function as a handler.
func (g *HookGlobal) RegisterFunc(point hooks.Point, fn hooks.HandlerFunc) hooks.Registered {
	return g.registry.Register(point, fn)
}

// Unregister removes a previously registered handler.
func (g *HookGlobal) Unregister(h hooks.Registered) {
	g.registry.Unregister(h)
}
