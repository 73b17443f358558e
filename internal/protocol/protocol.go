// Package protocol defines the JSON message envelopes exchanged over the
// control-plane WebSocket. One envelope per text frame.
package protocol

import (
	"encoding/json"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

// Client -> server command types.
const (
	CmdListAgents  = "list_agents"
	CmdDebugPool   = "debug_pool"
	CmdKillAll     = "kill_all"
	CmdCreatePlan  = "create_plan"
	CmdExecutePlan = "execute_plan"
	CmdCancelPlan  = "cancel_plan"
	CmdChat        = "chat"
	CmdReset       = "reset"
	CmdKill        = "kill"
)

// Server -> client event types.
const (
	EvtInfo          = "info"
	EvtPlannerState  = "gekto_state"
	EvtState         = "state"
	EvtOutput        = "output"
	EvtHistory       = "history"
	EvtTool          = "tool"
	EvtPlannerText   = "gekto_text"
	EvtPlanCreated   = "plan_created"
	EvtPlannerChat   = "gekto_chat"
	EvtPlannerRemove = "gekto_remove"
	EvtAgentsList    = "agents_list"
	EvtKillAllResult = "kill_all_result"
	EvtKillResult    = "kill_result"
	EvtError         = "error"
)

// Command is the inbound envelope. Fields beyond Type are populated
// depending on the command.
type Command struct {
	Type     string `json:"type"`
	LizardID string `json:"lizardId,omitempty"`
	Content  string `json:"content,omitempty"`
	PlanID   string `json:"planId,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// ParseCommand decodes one inbound frame.
func ParseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Info is the first message of the resynchronization burst sent to every
// new connection.
type Info struct {
	Type       string `json:"type"`
	WorkingDir string `json:"workingDir"`
}

func NewInfo(workingDir string) Info {
	return Info{Type: EvtInfo, WorkingDir: workingDir}
}

// PlannerState announces a planner lifecycle change. Broadcast to every
// open connection; the planner is a process-wide shared resource.
type PlannerState struct {
	Type  string             `json:"type"`
	State model.SessionState `json:"state"`
}

func NewPlannerState(state model.SessionState) PlannerState {
	return PlannerState{Type: EvtPlannerState, State: state}
}

// State announces a per-session state change.
type State struct {
	Type     string             `json:"type"`
	LizardID string             `json:"lizardId"`
	State    model.SessionState `json:"state"`
}

func NewState(lizardID string, state model.SessionState) State {
	return State{Type: EvtState, LizardID: lizardID, State: state}
}

// Output streams one chunk of raw session output, verbatim and
// independent of state classification.
type Output struct {
	Type     string `json:"type"`
	LizardID string `json:"lizardId"`
	Data     string `json:"data"`
}

func NewOutput(lizardID string, data []byte) Output {
	return Output{Type: EvtOutput, LizardID: lizardID, Data: string(data)}
}

// History replays a live session's cached raw output to a (re)connecting
// client so it can restore its view without replaying the whole turn.
type History struct {
	Type     string `json:"type"`
	LizardID string `json:"lizardId"`
	Data     string `json:"data"`
}

func NewHistory(lizardID string, data []byte) History {
	return History{Type: EvtHistory, LizardID: lizardID, Data: string(data)}
}

// Tool reports one tool invocation performed by the planner (or an agent)
// while servicing a request.
type Tool struct {
	Type      string `json:"type"`
	LizardID  string `json:"lizardId"`
	Status    string `json:"status"` // "running" or "completed"
	Tool      string `json:"tool"`
	Input     string `json:"input,omitempty"`
	FullInput string `json:"fullInput,omitempty"`
}

func NewToolRunning(lizardID, tool, input, fullInput string) Tool {
	return Tool{Type: EvtTool, LizardID: lizardID, Status: "running", Tool: tool, Input: input, FullInput: fullInput}
}

func NewToolCompleted(lizardID, tool string) Tool {
	return Tool{Type: EvtTool, LizardID: lizardID, Status: "completed", Tool: tool}
}

// PlannerText streams incremental planner output for a create_plan call.
type PlannerText struct {
	Type   string `json:"type"`
	PlanID string `json:"planId"`
	Text   string `json:"text"`
}

func NewPlannerText(planID, text string) PlannerText {
	return PlannerText{Type: EvtPlannerText, PlanID: planID, Text: text}
}

// PlanCreated delivers a freshly decomposed execution plan.
type PlanCreated struct {
	Type   string               `json:"type"`
	PlanID string               `json:"planId"`
	Plan   *model.ExecutionPlan `json:"plan"`
}

func NewPlanCreated(plan *model.ExecutionPlan) PlanCreated {
	return PlanCreated{Type: EvtPlanCreated, PlanID: plan.ID, Plan: plan}
}

// PlannerChat delivers a direct conversational planner reply. Timing is
// the elapsed working time in milliseconds, when known.
type PlannerChat struct {
	Type    string `json:"type"`
	PlanID  string `json:"planId"`
	Message string `json:"message"`
	Timing  int64  `json:"timing,omitempty"`
}

func NewPlannerChat(planID, message string, timingMillis int64) PlannerChat {
	return PlannerChat{Type: EvtPlannerChat, PlanID: planID, Message: message, Timing: timingMillis}
}

// PlannerRemove asks the client to withdraw previously proposed agents.
type PlannerRemove struct {
	Type   string   `json:"type"`
	PlanID string   `json:"planId"`
	Agents []string `json:"agents"`
}

func NewPlannerRemove(planID string, agents []string) PlannerRemove {
	return PlannerRemove{Type: EvtPlannerRemove, PlanID: planID, Agents: agents}
}

// AgentsList is the pool snapshot reply.
type AgentsList struct {
	Type   string            `json:"type"`
	Agents []model.AgentInfo `json:"agents"`
}

func NewAgentsList(agents []model.AgentInfo) AgentsList {
	return AgentsList{Type: EvtAgentsList, Agents: agents}
}

// KillAllResult reports how many sessions a kill_all removed.
type KillAllResult struct {
	Type   string `json:"type"`
	Killed int    `json:"killed"`
}

func NewKillAllResult(killed int) KillAllResult {
	return KillAllResult{Type: EvtKillAllResult, Killed: killed}
}

// KillResult reports whether a kill removed a live session.
type KillResult struct {
	Type     string `json:"type"`
	LizardID string `json:"lizardId"`
	Killed   bool   `json:"killed"`
}

func NewKillResult(lizardID string, killed bool) KillResult {
	return KillResult{Type: EvtKillResult, LizardID: lizardID, Killed: killed}
}

// Error is the protocol-error reply. The connection stays open.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: EvtError, Message: message}
}
