package classifier

import (
	"bytes"
	"regexp"
)

// maxWindowSize bounds the rolling match window. 4KB of cleaned text is
// more than one terminal screen, which is all the patterns ever span.
const maxWindowSize = 4096

// ClaudeClassifier detects the Claude CLI's prompt and permission cues.
type ClaudeClassifier struct {
	// readyPattern matches the idle input prompt: a bare "❯"/">" line
	// (possibly inside the input box border) or the shortcuts hint that
	// renders alongside it.
	readyPattern *regexp.Regexp

	// permissionPattern matches confirmation prompts that block the turn:
	// yes/no questions, the tool permission menu, and explicit
	// proceed/continue cues. Case-insensitive per the protocol contract.
	permissionPattern *regexp.Regexp

	window bytes.Buffer
}

// NewClaudeClassifier creates a classifier tuned to Claude CLI output.
func NewClaudeClassifier() *ClaudeClassifier {
	return &ClaudeClassifier{
		readyPattern:      regexp.MustCompile(`(?m)(\? for shortcuts|^\s*[│|]?\s*[>❯]\s*[│|]?\s*$)`),
		permissionPattern: regexp.MustCompile(`(?i)(\(y/n\)|\(yes/no\)|do you want to .+\?|proceed\?|continue\?|grant permission|allow this)`),
	}
}

// Feed consumes one chunk of raw output and reports the resulting signal.
// Matching runs over the accumulated window, not the chunk alone, so cues
// split across read boundaries are still detected. The window is consumed
// on a match, making signals edge-triggered.
func (c *ClaudeClassifier) Feed(chunk []byte) Signal {
	c.window.Write(StripANSI(chunk))

	if c.window.Len() > maxWindowSize {
		data := c.window.Bytes()
		trimmed := make([]byte, maxWindowSize)
		copy(trimmed, data[len(data)-maxWindowSize:])
		c.window.Reset()
		c.window.Write(trimmed)
	}

	content := c.window.Bytes()

	// Permission prompts win over ready: the permission menu also renders
	// prompt-like characters.
	if c.permissionPattern.Match(content) {
		c.window.Reset()
		return SignalWaitingInput
	}
	if c.readyPattern.Match(content) {
		c.window.Reset()
		return SignalReady
	}
	return SignalNone
}

// Reset discards the rolling window.
func (c *ClaudeClassifier) Reset() {
	c.window.Reset()
}
