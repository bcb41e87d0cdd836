package debug

import (
	"sync"
	"time"

	"github.com/PaesslerAG/gval"

	"github.com/lexlapax/kernelspell/errors"
)

// Breakpoint is spec §3's Breakpoint record.
type Breakpoint struct {
	ID          string
	Source      string
	Line        int
	Condition   string
	HitCount    int // 0 means "fire every time a match occurs"
	LogMessage  string
	Enabled     bool

	mu          sync.Mutex
	currentHits int
}

// CurrentHits returns the number of matching line-events this breakpoint
// has evaluated, whether or not it fired on them.
func (b *Breakpoint) CurrentHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentHits
}

// matches reports whether bp applies to the given source+line, independent
// of its condition.
func (b *Breakpoint) matches(source string, line int) bool {
	return b.Enabled && b.Source == source && b.Line == line
}

// Evaluate decides whether bp fires for evt, per spec §4.4's breakpoint
// evaluation rule: "increment current_hits; if condition is present,
// evaluate it ...; Evaluation errors are logged and treated as fire
// (fail-safe to pause)." synthetic symbols come from
// original_source/llmspell-debug/src/condition_eval.rs.
func (b *Breakpoint) Evaluate(evt LineEvent) (fire bool, evalErr error) {
	if !b.matches(evt.Source, evt.Line) {
		return false, nil
	}

	b.mu.Lock()
	b.currentHits++
	hits := b.currentHits
	b.mu.Unlock()

	if b.HitCount > 0 && hits < b.HitCount {
		return false, nil
	}

	if b.Condition == "" {
		return true, nil
	}

	env := make(map[string]any, len(evt.Vars)+4)
	for k, v := range evt.Vars {
		env[k] = v
	}
	env["__current_line__"] = evt.Line
	env["__current_file__"] = evt.Source
	env["__execution_count__"] = evt.ExecutionCount
	if evt.FunctionStartedAt != nil {
		env["__function_time_us__"] = evt.FunctionStartedAt()
	} else {
		env["__function_time_us__"] = int64(0)
	}

	result, err := gval.Evaluate(b.Condition, env)
	if err != nil {
		// Fail safe: an unevaluable condition still fires, per spec §4.4.
		return true, errors.Wrap(errors.ScriptError, "breakpoint condition evaluation failed", err)
	}
	truthy, ok := result.(bool)
	if !ok {
		return true, nil
	}
	return truthy, nil
}

// Table holds every registered breakpoint, indexed for the per-line-event
// scan of spec §4.4 ("at each line-event, iterate matching breakpoints by
// source+line").
type Table struct {
	mu    sync.RWMutex
	byID  map[string]*Breakpoint
}

// NewTable constructs an empty breakpoint Table.
func NewTable() *Table {
	return &Table{byID: make(map[string]*Breakpoint)}
}

// Set installs or replaces a breakpoint.
func (t *Table) Set(bp *Breakpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[bp.ID] = bp
}

// Clear removes a breakpoint by id.
func (t *Table) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// ClearSource removes every breakpoint registered against source, used
// when a client re-sends the full SetBreakpoints list for a source (spec
// §6 "Debug: SetBreakpoints{source, breakpoints}").
func (t *Table) ClearSource(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, bp := range t.byID {
		if bp.Source == source {
			delete(t.byID, id)
		}
	}
}

// MatchingAt returns every breakpoint registered at source+line, in no
// particular order.
func (t *Table) MatchingAt(source string, line int) []*Breakpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Breakpoint
	for _, bp := range t.byID {
		if bp.matches(source, line) {
			out = append(out, bp)
		}
	}
	return out
}

// All returns every registered breakpoint.
func (t *Table) All() []*Breakpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Breakpoint, 0, len(t.byID))
	for _, bp := range t.byID {
		out = append(out, bp)
	}
	return out
}

// FireResult is what EvaluateLine reports for a single line-event: the
// breakpoint that fired (if any) plus its log message, satisfying spec
// §4.4's "a breakpoint fires at most once per line-event."
type FireResult struct {
	Fired      bool
	Breakpoint *Breakpoint
	LogMessage string
	At         time.Time
}

// EvaluateLine scans every breakpoint at evt's source+line and returns the
// first one that fires. A breakpoint fires at most once per line-event
// even if multiple breakpoints are registered at the same location; which
// of several firing breakpoints is reported is not defined, and the
// scan stops at the first that fires.
func (t *Table) EvaluateLine(evt LineEvent) FireResult {
	for _, bp := range t.MatchingAt(evt.Source, evt.Line) {
		fire, _ := bp.Evaluate(evt)
		if fire {
			return FireResult{Fired: true, Breakpoint: bp, LogMessage: bp.LogMessage, At: time.Now().UTC()}
		}
	}
	return FireResult{}
}
