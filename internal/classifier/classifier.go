// Package classifier turns the unstructured text stream of an interactive
// assistant process into coarse lifecycle signals.
//
// Classification is heuristic pattern matching over an incrementally
// streamed, ANSI-stripped window of recent output. It is best-effort by
// nature: new prompt formats from the external CLI can evade the patterns,
// which is why the classifier is an interface the orchestration layer never
// looks behind.
package classifier

import "regexp"

// Signal is a lifecycle cue extracted from raw session output.
type Signal int

const (
	// SignalNone means the chunk carried no recognizable cue.
	SignalNone Signal = iota

	// SignalReady means the assistant is idle at its input prompt. The
	// first occurrence marks startup completion; later occurrences mark
	// turn completion.
	SignalReady

	// SignalWaitingInput means the assistant is blocked on a permission
	// or confirmation prompt and needs a human answer.
	SignalWaitingInput
)

// Classifier maps chunks of raw interactive output to signals.
//
// Contract: Feed is called once per output chunk, in stream order, and
// returns at most one signal per call. Implementations must strip terminal
// control sequences before matching and must be edge-triggered: a prompt
// that already produced a signal must not produce it again until new
// output arrives. Reset discards accumulated matching state, e.g. when a
// new message is sent to the process.
type Classifier interface {
	Feed(chunk []byte) Signal
	Reset()
}

// ansiPattern matches CSI, OSC, DCS/SOS/PM/APC and private mode sequences.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07|\x1b[PX^_][^\x1b]*\x1b\\|\x1b\[\?[0-9]+[hl]|\x1b\(B`)

// StripANSI removes terminal control and color sequences.
func StripANSI(data []byte) []byte {
	return ansiPattern.ReplaceAll(data, nil)
}
