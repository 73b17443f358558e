package model

// SessionState represents the observable state of an agent session.
//
// A session starts in StateLoading and becomes StateReady once the first
// ready marker is observed in its output. Sending a message moves it to
// StateWorking; a further ready marker completes the turn and moves it back
// to StateReady. StateWaitingInput is entered whenever the output matches a
// permission or confirmation prompt. StateCompleted and StateError are
// terminal: a session in either state is dead and must be recreated.
type SessionState string

const (
	StateLoading      SessionState = "loading"
	StateReady        SessionState = "ready"
	StateWorking      SessionState = "working"
	StateWaitingInput SessionState = "waiting_input"
	StateCompleted    SessionState = "completed"
	StateError        SessionState = "error"
)

// Terminal reports whether the state is a dead end that requires the
// session to be recreated.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// MasterSessionID is the reserved session identifier routed to the
// persistent planner instead of the agent pool.
const MasterSessionID = "master"

// AgentInfo is a diagnostic snapshot of one live session, as reported by
// the pool's agents_list and debug_pool commands.
type AgentInfo struct {
	ID           string       `json:"id"`
	State        SessionState `json:"state"`
	IsProcessing bool         `json:"isProcessing"`
	IsRunning    bool         `json:"isRunning"`
	QueueLength  int          `json:"queueLength"`
}
