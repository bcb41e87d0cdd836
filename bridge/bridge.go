// Package bridge implements the Scripting Bridge of spec §2 ("Scripting
// Bridge (~18%)") and §4.2: the fixed global namespace
// (Agent/Tool/Workflow/State/Session/Artifact/Memory/Context/Debug/Event/
// Hook) a loaded script sees, the JSON value-marshaling boundary, and the
// synchronous-over-async bridging primitive that lets a script written in
// cooperative/synchronous style call host operations that are themselves
// async.
//
// It is grounded on the per-namespace method contract of
// original_source/llmspell-bridge/src/lua/globals/artifact.rs (a Lua
// table per namespace, each method wrapping an async bridge call through
// a block_on_async helper) and on the namespace-object construction
// pattern of expr/agent and dsl/tool.go (goadesign-goa-ai), generalized
// from DSL-time expression building to runtime script globals.
package bridge

import (
	"context"
	"sync"

	"github.com/lexlapax/kernelspell/debug"
	"github.com/lexlapax/kernelspell/eventbus"
	"github.com/lexlapax/kernelspell/hooks"
	"github.com/lexlapax/kernelspell/registry"
	"github.com/lexlapax/kernelspell/replay"
	"github.com/lexlapax/kernelspell/session"
	"github.com/lexlapax/kernelspell/state"
)

// Bridge owns the interpreter's lifetime and is the sole path by which
// hooks and kernel handlers reach into it (spec §3 Ownership: "the
// Scripting Bridge exclusively owns the interpreter and its lifetime;
// hooks and handlers access the interpreter only via the Bridge's
// synchronous-in-async bridging primitive").
type Bridge struct {
	Components *registry.Registry
	State      *state.Store
	Sessions   *session.Store
	Artifacts  *session.ArtifactStore
	Hooks      *hooks.Registry
	Events     *eventbus.Bus
	ReplayLog  *replay.Log
	Memory     MemoryStore
	ContextAsm ContextAssembler

	async *AsyncBridge

	mu          sync.Mutex
	currentSess string // the single per-process "current session" cell (spec §9)
	debugActive bool
	debugCtl    map[string]*debug.Controller
}

// Config bundles the host services a Bridge wires into its globals. Every
// field is a collaborator named in spec §1/§6; Memory and ContextAsm are
// interfaces because their concrete vector-search/episodic-store
// implementations are external collaborators per spec §1.
type Config struct {
	Components *registry.Registry
	State      *state.Store
	Sessions   *session.Store
	Artifacts  *session.ArtifactStore
	Hooks      *hooks.Registry
	Events     *eventbus.Bus
	ReplayLog  *replay.Log
	Memory     MemoryStore
	ContextAsm ContextAssembler
	// MaxReentranceDepth bounds how many times an async host operation may
	// itself re-enter the interpreter before failing with
	// errors.ResourceLimit (spec §4.2 "ReentranceLimit").
	MaxReentranceDepth int
}

// New constructs a Bridge over the given host services.
func New(cfg Config) *Bridge {
	depth := cfg.MaxReentranceDepth
	if depth <= 0 {
		depth = 8
	}
	return &Bridge{
		Components: cfg.Components,
		State:      cfg.State,
		Sessions:   cfg.Sessions,
		Artifacts:  cfg.Artifacts,
		Hooks:      cfg.Hooks,
		Events:     cfg.Events,
		ReplayLog:  cfg.ReplayLog,
		Memory:     cfg.Memory,
		ContextAsm: cfg.ContextAsm,
		async:      NewAsyncBridge(depth),
		debugCtl:   make(map[string]*debug.Controller),
	}
}

// CurrentSession implements the Session global's get_current()/
// set_current(id|nil) pair: a single, documented per-process cell (spec
// §9 "a single, clearly-documented per-process 'current session' cell is
// acceptable but must be read/written only through the Session global").
func (b *Bridge) CurrentSession() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentSess, b.currentSess != ""
}

// SetCurrentSession sets or clears (id == "") the current-session cell.
func (b *Bridge) SetCurrentSession(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentSess = id
}

// EnableDebug activates debug instrumentation for the named script
// session, returning its Controller. Scripts without an active debug
// session pay no line-hook overhead at all (spec §4.4 performance
// contract).
func (b *Bridge) EnableDebug(scriptSession string, ctl *debug.Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.debugActive = true
	b.debugCtl[scriptSession] = ctl
}

// DisableDebug removes instrumentation for scriptSession.
func (b *Bridge) DisableDebug(scriptSession string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.debugCtl, scriptSession)
	b.debugActive = len(b.debugCtl) > 0
}

// DebugController returns the active Controller for scriptSession, if any.
func (b *Bridge) DebugController(scriptSession string) (*debug.Controller, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.debugCtl[scriptSession]
	return c, ok
}

// Globals builds the fixed namespace object a freshly loaded script sees
// (spec §4.2 "Globals (namespaces injected before user code runs)").
func (b *Bridge) Globals() *Namespace {
	return &Namespace{
		Agent:    &AgentGlobal{registry: b.Components, async: b.async},
		Tool:     &ToolGlobal{registry: b.Components, async: b.async},
		Workflow: &WorkflowGlobal{registry: b.Components, async: b.async},
		State:    &StateGlobal{store: b.State},
		Session:  &SessionGlobal{bridge: b},
		Artifact: &ArtifactGlobal{store: b.Artifacts},
		Memory:   &MemoryGlobal{store: b.Memory, async: b.async},
		Context:  &ContextGlobal{asm: b.ContextAsm, async: b.async},
		Debug:    &DebugGlobal{bridge: b},
		Event:    &EventGlobal{bus: b.Events},
		Hook:     &HookGlobal{registry: b.Hooks},
	}
}

// Namespace is the concrete value injected as the fixed set of globals
// (spec §4.2). Renaming a field is a wire break per spec §9 ("renaming a
// method is a wire break and requires a version bump").
type Namespace struct {
	Agent    *AgentGlobal
	Tool     *ToolGlobal
	Workflow *WorkflowGlobal
	State    *StateGlobal
	Session  *SessionGlobal
	Artifact *ArtifactGlobal
	Memory   *MemoryGlobal
	Context  *ContextGlobal
	Debug    *DebugGlobal
	Event    *EventGlobal
	Hook     *HookGlobal
}

// GlobalsVersion is the Scripting Bridge contract version of spec §9:
// additive changes bump the minor component, renames bump major.
const GlobalsVersion = "1.0.0"

// mustCtx is a defensive helper: every global method contract requires a
// context, but a misbehaving interpreter embedding could pass nil.
func mustCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
