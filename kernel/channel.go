// Package kernel implements the Kernel & Protocol Engine of spec §2
// ("Kernel & Protocol Engine (~20%)") and §4.1: the multi-channel message
// router (Shell/Control/IOPub/Stdin/Heartbeat), pluggable Transport, the
// per-protocol adapters that convert wire JSON to/from a UniversalMessage,
// routing strategies, and the IO-context indirection of §4.5. It is
// rewritten from the dispatch-by-method idiom of
// example/cmd/assistant-cli/jsonrpc.go (goadesign-goa-ai), generalized
// from a single JSON-RPC CLI dispatcher to a five-channel kernel with its
// own routing table.
package kernel

// Channel names one of the five logical message streams of spec §4.1.
// Ordering and direction guarantees are documented per-channel there; the
// Router enforces Direct-by-default for Shell/Control and
// always-Broadcast for IOPub.
type Channel string

const (
	Shell     Channel = "shell"
	Control   Channel = "control"
	IOPub     Channel = "iopub"
	Stdin     Channel = "stdin"
	Heartbeat Channel = "heartbeat"
)

// valid reports whether c is one of the five recognized channels.
func (c Channel) valid() bool {
	switch c {
	case Shell, Control, IOPub, Stdin, Heartbeat:
		return true
	default:
		return false
	}
}
