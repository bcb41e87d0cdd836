package bridge

import (
	"github.com/lexlapax/kernelspell/debug"
	"github.com/lexlapax/kernelspell/errors"
)

// DebugGlobal implements the `Debug` namespace of spec §4.2/§4.4:
// breakpoint set/clear on a caller-supplied Table, and step/continue/pause
// operations on the script session named in each call.
type DebugGlobal struct {
	bridge *Bridge
}

func (g *DebugGlobal) controller(scriptSession string) (*debug.Controller, error) {
	ctl, ok := g.bridge.DebugController(scriptSession)
	if !ok {
		return nil, errors.New(errors.NotFound, "no active debug session: "+scriptSession)
	}
	return ctl, nil
}

// SetBreakpoint installs or replaces bp in the breakpoint table shared by
// every debug-enabled session (spec §6 "Debug: SetBreakpoints{source,
// breakpoints}").
func (g *DebugGlobal) SetBreakpoint(table *debug.Table, bp *debug.Breakpoint) {
	table.Set(bp)
}

// ClearBreakpoint removes a breakpoint by id.
func (g *DebugGlobal) ClearBreakpoint(table *debug.Table, id string) {
	table.Clear(id)
}

// ClearSource removes every breakpoint registered against source.
func (g *DebugGlobal) ClearSource(table *debug.Table, source string) {
	table.ClearSource(source)
}

// Continue resumes scriptSession (spec §4.4 "Continue: Paused/Stepping ->
// Running").
func (g *DebugGlobal) Continue(scriptSession string) error {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return err
	}
	ctl.Continue()
	return nil
}

// Pause requests scriptSession stop at its next line-event.
func (g *DebugGlobal) Pause(scriptSession string) error {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return err
	}
	ctl.Pause()
	return nil
}

// Step issues a Step Over/In/Out command against scriptSession.
func (g *DebugGlobal) Step(scriptSession string, kind debug.StepKind) error {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return err
	}
	ctl.Step(kind)
	return nil
}

// Stop terminates scriptSession's debug loop.
func (g *DebugGlobal) Stop(scriptSession string) error {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return err
	}
	ctl.Stop()
	return nil
}

// CallStack returns scriptSession's live call stack, innermost first.
func (g *DebugGlobal) CallStack(scriptSession string) ([]debug.Frame, error) {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return nil, err
	}
	return ctl.CallStack(), nil
}

// PausedAt reports the line-event scriptSession is currently paused at, if
// any.
func (g *DebugGlobal) PausedAt(scriptSession string) (debug.LineEvent, bool, error) {
	ctl, err := g.controller(scriptSession)
	if err != nil {
		return debug.LineEvent{}, false, err
	}
	evt, paused := ctl.PausedAt()
	return evt, paused, nil
}
