package planner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

// streamMessage is one line of the assistant CLI's stream-json output.
// Only the fields the planner cares about are declared.
type streamMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// result fields
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	Message struct {
		Role    string         `json:"role"`
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

// contentBlock is one block of an assistant or user message.
type contentBlock struct {
	Type string `json:"type"` // "text", "tool_use", "tool_result"

	// text blocks
	Text string `json:"text,omitempty"`

	// tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
}

// userInput is the envelope written to the CLI's stdin in stream-json
// input mode.
type userInput struct {
	Type    string `json:"type"`
	Message struct {
		Role    string             `json:"role"`
		Content []userContentBlock `json:"content"`
	} `json:"message"`
}

type userContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newUserInput(text string) userInput {
	var in userInput
	in.Type = "user"
	in.Message.Role = "user"
	in.Message.Content = []userContentBlock{{Type: "text", Text: text}}
	return in
}

// interruptRequest asks the CLI to abort the in-flight turn. Best-effort:
// events already emitted for the turn are not retracted.
type interruptRequest struct {
	Type    string `json:"type"`
	Request struct {
		Subtype string `json:"subtype"`
	} `json:"request"`
}

func newInterruptRequest() interruptRequest {
	var req interruptRequest
	req.Type = "control_request"
	req.Request.Subtype = "interrupt"
	return req
}

// planPayload is the JSON document the planner is instructed to emit when
// a request warrants decomposition or agent removal.
type planPayload struct {
	Tasks []struct {
		ID     string `json:"id,omitempty"`
		Title  string `json:"title"`
		Prompt string `json:"prompt"`
		Agent  string `json:"agent,omitempty"`
	} `json:"tasks,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Outcome is the resolved result of a plan-mode request. Exactly one of
// Tasks, Remove or Chat is populated.
type Outcome struct {
	Tasks  []model.Task
	Remove []string
	Chat   string
}

// resolveOutcome interprets the planner's final text for a plan-mode
// request. A parseable task breakdown wins, then an agent-removal
// directive; anything else falls back to a plain chat message. The
// planner deciding to answer directly is not an error.
func resolveOutcome(text string) Outcome {
	raw := extractJSON(text)
	if raw == "" {
		return Outcome{Chat: text}
	}

	var payload planPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Outcome{Chat: text}
	}

	if len(payload.Tasks) > 0 {
		tasks := make([]model.Task, len(payload.Tasks))
		for i, t := range payload.Tasks {
			tasks[i] = model.Task{ID: t.ID, Title: t.Title, Prompt: t.Prompt, AgentID: t.Agent}
		}
		return Outcome{Tasks: tasks}
	}
	if len(payload.Remove) > 0 {
		return Outcome{Remove: payload.Remove}
	}
	return Outcome{Chat: text}
}

// extractJSON pulls a JSON object out of free-form planner text: a fenced
// block first, then a bare top-level object.
func extractJSON(text string) string {
	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}
	return ""
}
