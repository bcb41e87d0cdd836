package eventbus

import "github.com/gobwas/glob"

// compilePattern compiles a subscription pattern using gobwas/glob, with
// "*" matching one path segment and "**" matching any number of segments
// (spec §4.6 "Topic matching uses glob (`*` and `**` one-segment/many-segment)").
// Segments are delimited by '.', following the dotted-topic convention of
// the teacher's hook event names (e.g. "tool.before.execute").
func compilePattern(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, '.')
}
