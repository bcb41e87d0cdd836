// Package envtoggle parses the environment-variable debug toggles of spec
// §6 ("Environment toggles"): DEBUG, DEBUG_LEVEL, DEBUG_OUTPUT, and
// DEBUG_MODULES. It is the only place this module reads process
// environment directly, mirroring how goa.design/clue/debug's own toggle
// parsing is confined to one small surface rather than scattered through
// the codebase.
package envtoggle

import (
	"os"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Level is the DEBUG_LEVEL enum of spec §6.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelOff   Level = "off"
)

// OutputSink is one entry of the comma-separated DEBUG_OUTPUT toggle.
type OutputSink struct {
	Stdout  bool
	Colored bool
	File    string // set when the "file:<path>" form is present
}

// ModuleRule is one entry of the comma-separated DEBUG_MODULES toggle: a
// glob pattern plus whether it enables (+) or disables (-) matching
// modules.
type ModuleRule struct {
	Pattern glob.Glob
	Raw     string
	Enable  bool
}

// Toggles is the fully parsed set of debug environment options.
type Toggles struct {
	Enabled bool
	Level   Level
	Output  OutputSink
	Modules []ModuleRule
}

// Load reads and parses the four recognized environment variables, per
// spec §6 ("Recognized options (enumerated, others ignored)"). Malformed
// or unrecognized tokens are ignored rather than rejected, so an operator
// typo in an unrelated env var never prevents the process from starting.
func Load() Toggles {
	return Toggles{
		Enabled: parseBool(os.Getenv("DEBUG")),
		Level:   parseLevel(os.Getenv("DEBUG_LEVEL")),
		Output:  parseOutput(os.Getenv("DEBUG_OUTPUT")),
		Modules: parseModules(os.Getenv("DEBUG_MODULES")),
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true":
		return true
	default:
		b, err := strconv.ParseBool(s)
		return err == nil && b
	}
}

func parseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelOff:
		return Level(strings.ToLower(strings.TrimSpace(s)))
	default:
		return LevelInfo
	}
}

func parseOutput(s string) OutputSink {
	var out OutputSink
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "stdout":
			out.Stdout = true
		case tok == "colored":
			out.Colored = true
		case strings.HasPrefix(tok, "file:"):
			out.File = strings.TrimPrefix(tok, "file:")
		}
	}
	return out
}

func parseModules(s string) []ModuleRule {
	if s == "" {
		return nil
	}
	var rules []ModuleRule
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if len(tok) < 2 {
			continue
		}
		enable := tok[0] == '+'
		disable := tok[0] == '-'
		if !enable && !disable {
			continue
		}
		pattern := tok[1:]
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			continue
		}
		rules = append(rules, ModuleRule{Pattern: g, Raw: tok, Enable: enable})
	}
	return rules
}

// ModuleEnabled applies the DEBUG_MODULES rule list to a module name:
// rules are evaluated in order and the last matching rule wins, matching
// the "+<glob> enable, -<glob> disable" additive/subtractive convention.
// baseline is the module's state if no rule matches.
func (t Toggles) ModuleEnabled(module string, baseline bool) bool {
	enabled := baseline
	for _, r := range t.Modules {
		if r.Pattern.Match(module) {
			enabled = r.Enable
		}
	}
	return enabled
}
