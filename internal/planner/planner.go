// Package planner runs the persistent triage session: a singleton
// assistant process that either answers a request directly or decomposes
// it into a multi-task execution plan.
//
// Unlike pool sessions, the planner process runs headless in stream-json
// mode: structured messages over plain pipes instead of a PTY, so tool
// invocations and text deltas arrive as typed events rather than
// terminal output.
package planner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
	"github.com/Badaboom1995/gekto-sub001/internal/pty"
)

// Mode selects how a request is handled.
type Mode string

const (
	// ModeDirect asks for a plain conversational reply.
	ModeDirect Mode = "direct"

	// ModePlan asks for task decomposition. The planner may still decide
	// a plan is not warranted and answer directly.
	ModePlan Mode = "plan"
)

// ParseMode maps the wire mode string to a Mode. Empty defaults to plan:
// create_plan exists to produce plans, direct replies are the opt-in.
func ParseMode(s string) Mode {
	if s == string(ModeDirect) {
		return ModeDirect
	}
	return ModePlan
}

// Callbacks receive intermediate events while a Send call is in flight.
// Each may fire zero or more times, in issuance order, before Send
// returns. All fields may be nil.
type Callbacks struct {
	OnToolStart func(tool, input string)
	OnToolEnd   func(tool string)
	OnText      func(text string)
}

// Result is the resolved reply of a Send call. Mode is the mode actually
// used: a plan request that resolved to a chat reply reports ModeDirect.
type Result struct {
	Mode    Mode
	Outcome Outcome
	Elapsed time.Duration
}

// friendlyFailure is the chat-shaped reply used whenever the planner
// fails internally. Send never surfaces errors to its caller.
const friendlyFailure = "I ran into a problem while thinking about that. Give me a moment and try again."

// procIO is the planner's handle on its external process. The default
// implementation wraps exec.Cmd; tests substitute pipes.
type procIO struct {
	stdin  io.WriteCloser
	stdout io.ReadCloser
	kill   func() error
	wait   func() error
}

// Planner owns the singleton triage process.
type Planner struct {
	command string
	args    []string

	// launch starts the external process; replaced in tests.
	launch func(workingDir string) (*procIO, error)

	// sendMu serializes turns: the process answers one request at a time.
	sendMu sync.Mutex

	mu       sync.Mutex
	started  bool
	initErr  error
	killed   bool
	state    model.SessionState
	onState  func(model.SessionState)
	io       *procIO
	pending  *turn
	tools    map[string]string // tool_use id -> tool name
	readyCh  chan struct{}
	readyOne sync.Once
}

// turn tracks one in-flight Send call.
type turn struct {
	cb      Callbacks
	done    chan turnResult
	started time.Time
}

type turnResult struct {
	text    string
	isError bool
}

// New creates a planner around the given assistant command line.
func New(agentCommand string) *Planner {
	if agentCommand == "" {
		agentCommand = "claude"
	}
	parts := pty.SplitCommand(agentCommand)
	if len(parts) == 0 {
		parts = []string{"claude"}
	}
	args := append(parts[1:],
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
	)

	p := &Planner{
		command: parts[0],
		args:    args,
		state:   model.StateLoading,
		tools:   make(map[string]string),
		readyCh: make(chan struct{}),
	}
	p.launch = p.launchProcess
	return p
}

func (p *Planner) launchProcess(workingDir string) (*procIO, error) {
	cmd := exec.Command(p.command, p.args...)
	cmd.Dir = workingDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("planner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("planner: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("planner: start %s: %w", p.command, err)
	}

	return &procIO{
		stdin:  stdin,
		stdout: stdout,
		kill: func() error {
			if cmd.Process == nil {
				return nil
			}
			return cmd.Process.Kill()
		},
		wait: cmd.Wait,
	}, nil
}

// Init spawns the planner process and subscribes onState to its
// lifecycle. Idempotent: only the first call spawns; subsequent calls
// return the original outcome and never start a second process.
func (p *Planner) Init(workingDir string, onState func(model.SessionState)) error {
	p.mu.Lock()
	if p.started {
		err := p.initErr
		p.mu.Unlock()
		return err
	}
	p.started = true
	p.onState = onState
	p.mu.Unlock()

	p.setState(model.StateLoading)

	pio, err := p.launch(workingDir)
	if err != nil {
		p.mu.Lock()
		p.initErr = err
		p.mu.Unlock()
		p.setState(model.StateError)
		// Unblock turn callers; they resolve against the error state.
		p.readyOne.Do(func() { close(p.readyCh) })
		return err
	}

	p.mu.Lock()
	p.io = pio
	p.mu.Unlock()

	go p.readLoop(pio.stdout)
	go p.waitLoop(pio.wait)
	return nil
}

// State returns the planner's lifecycle state.
func (p *Planner) State() model.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Send submits a prompt and blocks until the turn resolves. It never
// returns an error: internal failures resolve to a friendly chat-shaped
// message, so callers need no error branch beyond reading the outcome.
// workers is the current pool snapshot offered to plan-mode requests as
// available task assignees.
func (p *Planner) Send(ctx context.Context, prompt string, mode Mode, workers []model.AgentInfo, cb Callbacks) Result {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	start := time.Now()

	if err := p.awaitReady(ctx); err != nil {
		return failedResult(start)
	}

	text := prompt
	if mode == ModePlan {
		text = planPrompt(prompt, workers)
	}

	t := &turn{cb: cb, done: make(chan turnResult, 1), started: start}

	p.mu.Lock()
	if p.state == model.StateError || p.io == nil {
		p.mu.Unlock()
		return failedResult(start)
	}
	p.pending = t
	stdin := p.io.stdin
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
	}()

	if err := writeLine(stdin, newUserInput(text)); err != nil {
		log.Printf("planner: write turn: %v", err)
		return failedResult(start)
	}

	select {
	case res := <-t.done:
		if res.isError {
			return failedResult(start)
		}
		return p.resolve(mode, res.text, start)
	case <-ctx.Done():
		p.Abort()
		return failedResult(start)
	}
}

// resolve tags the final text with the mode actually used.
func (p *Planner) resolve(mode Mode, text string, start time.Time) Result {
	elapsed := time.Since(start)

	if mode == ModeDirect {
		return Result{Mode: ModeDirect, Outcome: Outcome{Chat: text}, Elapsed: elapsed}
	}

	outcome := resolveOutcome(text)
	used := ModePlan
	if outcome.Chat != "" {
		used = ModeDirect
	}
	return Result{Mode: used, Outcome: outcome, Elapsed: elapsed}
}

func failedResult(start time.Time) Result {
	return Result{Mode: ModeDirect, Outcome: Outcome{Chat: friendlyFailure}, Elapsed: time.Since(start)}
}

// Abort sends a best-effort interrupt for the in-flight turn. Events
// already emitted are not retracted.
func (p *Planner) Abort() {
	p.mu.Lock()
	pio := p.io
	p.mu.Unlock()

	if pio == nil {
		return
	}
	if err := writeLine(pio.stdin, newInterruptRequest()); err != nil {
		log.Printf("planner: abort: %v", err)
	}
}

// Kill terminates the planner process. Used on shutdown; no error state
// is broadcast for an explicit kill.
func (p *Planner) Kill() {
	p.mu.Lock()
	p.killed = true
	pio := p.io
	p.mu.Unlock()

	if pio != nil {
		pio.kill()
	}
}

func (p *Planner) awaitReady(ctx context.Context) error {
	select {
	case <-p.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop parses the process's stream-json output and feeds the
// in-flight turn.
func (p *Planner) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg streamMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			// Non-JSON noise on stdout is ignored, not fatal.
			continue
		}
		p.handleMessage(&msg)
	}
}

func (p *Planner) handleMessage(msg *streamMessage) {
	switch msg.Type {
	case "system":
		if msg.Subtype == "init" {
			p.readyOne.Do(func() { close(p.readyCh) })
			p.setState(model.StateReady)
		}

	case "assistant":
		t := p.currentTurn()
		for _, block := range msg.Message.Content {
			switch block.Type {
			case "text":
				if t != nil && t.cb.OnText != nil && block.Text != "" {
					t.cb.OnText(block.Text)
				}
			case "tool_use":
				p.mu.Lock()
				p.tools[block.ID] = block.Name
				p.mu.Unlock()
				if t != nil && t.cb.OnToolStart != nil {
					t.cb.OnToolStart(block.Name, string(block.Input))
				}
			}
		}

	case "user":
		t := p.currentTurn()
		for _, block := range msg.Message.Content {
			if block.Type != "tool_result" {
				continue
			}
			p.mu.Lock()
			name := p.tools[block.ToolUseID]
			delete(p.tools, block.ToolUseID)
			p.mu.Unlock()
			if t != nil && t.cb.OnToolEnd != nil && name != "" {
				t.cb.OnToolEnd(name)
			}
		}

	case "result":
		if t := p.currentTurn(); t != nil {
			t.done <- turnResult{text: msg.Result, isError: msg.IsError || strings.Contains(msg.Subtype, "error")}
		}
	}
}

func (p *Planner) currentTurn() *turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// waitLoop marks the planner dead when the process exits underneath us.
func (p *Planner) waitLoop(wait func() error) {
	err := wait()

	p.mu.Lock()
	killed := p.killed
	pending := p.pending
	p.mu.Unlock()

	if killed {
		return
	}

	log.Printf("planner: process exited: %v", err)
	p.setState(model.StateError)
	p.readyOne.Do(func() { close(p.readyCh) })
	if pending != nil {
		pending.done <- turnResult{isError: true}
	}
}

// setState broadcasts a lifecycle change exactly once per change.
func (p *Planner) setState(next model.SessionState) {
	p.mu.Lock()
	if p.state == next {
		p.mu.Unlock()
		return
	}
	p.state = next
	onState := p.onState
	p.mu.Unlock()

	if onState != nil {
		onState(next)
	}
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// planPrompt wraps a plan-mode request with the decomposition contract
// and the set of workers currently available for assignment.
func planPrompt(prompt string, workers []model.AgentInfo) string {
	var b strings.Builder
	b.WriteString("Triage the following request.\n\n")
	b.WriteString("If it warrants a multi-step execution plan, reply with a single fenced json block: ")
	b.WriteString(`{"tasks":[{"title":"...","prompt":"...","agent":"<optional worker id>"}]}.` + "\n")
	b.WriteString("If previously proposed agents should be withdrawn instead, reply with ")
	b.WriteString(`{"remove":["<agent id>", ...]}.` + "\n")
	b.WriteString("Otherwise just answer the request directly in plain text.\n")

	if len(workers) > 0 {
		b.WriteString("\nAvailable workers:\n")
		for _, w := range workers {
			fmt.Fprintf(&b, "- %s (%s)\n", w.ID, w.State)
		}
	}

	b.WriteString("\nRequest: ")
	b.WriteString(prompt)
	return b.String()
}
