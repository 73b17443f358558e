package planner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

// fakeProc stands in for the assistant CLI: the test reads what the
// planner writes to stdin and scripts the stream-json replies on stdout.
type fakeProc struct {
	stdinR  *io.PipeReader
	stdoutW *io.PipeWriter
	lines   chan string
	waitCh  chan error
	killCh  chan struct{}
}

func (f *fakeProc) readStdin() {
	scanner := bufio.NewScanner(f.stdinR)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		f.lines <- scanner.Text()
	}
	close(f.lines)
}

// emit writes one stream-json line on the fake process's stdout.
func (f *fakeProc) emit(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(f.stdoutW, line+"\n")
	require.NoError(t, err)
}

// exit ends the fake process with the given error.
func (f *fakeProc) exit(err error) {
	f.waitCh <- err
	f.stdoutW.Close()
}

// recv returns the next line the planner wrote to stdin.
func (f *fakeProc) recv(t *testing.T) string {
	t.Helper()
	select {
	case line, ok := <-f.lines:
		require.True(t, ok, "stdin closed before a line arrived")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stdin line")
		return ""
	}
}

func startTestPlanner(t *testing.T) (*Planner, *fakeProc, chan model.SessionState) {
	t.Helper()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	fp := &fakeProc{
		stdinR:  stdinR,
		stdoutW: stdoutW,
		lines:   make(chan string, 16),
		waitCh:  make(chan error, 1),
		killCh:  make(chan struct{}),
	}
	go fp.readStdin()

	p := New("claude")
	p.launch = func(string) (*procIO, error) {
		return &procIO{
			stdin:  stdinW,
			stdout: stdoutR,
			kill: func() error {
				close(fp.killCh)
				fp.exit(errors.New("killed"))
				return nil
			},
			wait: func() error { return <-fp.waitCh },
		}, nil
	}

	states := make(chan model.SessionState, 8)
	require.NoError(t, p.Init(t.TempDir(), func(s model.SessionState) { states <- s }))
	return p, fp, states
}

func waitState(t *testing.T, states chan model.SessionState, want model.SessionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func initLine() string { return `{"type":"system","subtype":"init"}` }

func textLine(text string) string {
	return fmt.Sprintf(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":%q}]}}`, text)
}

func toolUseLine(id, name, input string) string {
	return fmt.Sprintf(`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":%q,"name":%q,"input":%s}]}}`, id, name, input)
}

func toolResultLine(toolUseID string) string {
	return fmt.Sprintf(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":%q}]}}`, toolUseID)
}

func resultLine(text string) string {
	return fmt.Sprintf(`{"type":"result","subtype":"success","result":%q}`, text)
}

func TestInitBecomesReadyOnInitMessage(t *testing.T) {
	p, fp, states := startTestPlanner(t)
	defer p.Kill()

	waitState(t, states, model.StateLoading)
	fp.emit(t, initLine())
	waitState(t, states, model.StateReady)
	assert.Equal(t, model.StateReady, p.State())
}

func TestInitIsIdempotent(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	spawns := 0
	p.launch = func(string) (*procIO, error) {
		spawns++
		return nil, errors.New("should not be called")
	}
	require.NoError(t, p.Init(t.TempDir(), nil))
	require.NoError(t, p.Init(t.TempDir(), nil))
	assert.Zero(t, spawns)
}

func TestSendDirectTurn(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	sent := make(chan string, 1)
	go func() {
		line := fp.recv(t)
		sent <- line
		fp.emit(t, textLine("thinking"))
		fp.emit(t, resultLine("the answer is 42"))
	}()

	var streamed []string
	res := p.Send(context.Background(), "what is the answer?", ModeDirect, nil, Callbacks{
		OnText: func(text string) { streamed = append(streamed, text) },
	})

	assert.Equal(t, ModeDirect, res.Mode)
	assert.Equal(t, "the answer is 42", res.Outcome.Chat)
	assert.Equal(t, []string{"thinking"}, streamed)
	assert.Contains(t, <-sent, "what is the answer?")
}

func TestSendPlanResolvesTasks(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	sent := make(chan string, 1)
	go func() {
		sent <- fp.recv(t)
		fp.emit(t, resultLine("```json\n{\"tasks\":[{\"title\":\"write tests\",\"prompt\":\"add unit tests\",\"agent\":\"lizard-1\"}]}\n```"))
	}()

	workers := []model.AgentInfo{{ID: "lizard-1", State: model.StateReady}}
	res := p.Send(context.Background(), "cover the parser with tests", ModePlan, workers, Callbacks{})

	assert.Equal(t, ModePlan, res.Mode)
	require.Len(t, res.Outcome.Tasks, 1)
	assert.Equal(t, "write tests", res.Outcome.Tasks[0].Title)
	assert.Equal(t, "lizard-1", res.Outcome.Tasks[0].AgentID)

	// the plan request carries the worker roster
	assert.Contains(t, <-sent, "lizard-1")
}

func TestSendPlanFallsBackToChat(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	go func() {
		fp.recv(t)
		fp.emit(t, resultLine("that is a one-liner, no plan needed"))
	}()

	res := p.Send(context.Background(), "rename a variable", ModePlan, nil, Callbacks{})
	assert.Equal(t, ModeDirect, res.Mode)
	assert.Equal(t, "that is a one-liner, no plan needed", res.Outcome.Chat)
	assert.Empty(t, res.Outcome.Tasks)
}

func TestToolCallbacksPairUpByID(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	go func() {
		fp.recv(t)
		fp.emit(t, toolUseLine("tu-1", "Read", `{"file_path":"main.go"}`))
		fp.emit(t, toolResultLine("tu-1"))
		fp.emit(t, resultLine("done"))
	}()

	var events []string
	p.Send(context.Background(), "read main.go", ModeDirect, nil, Callbacks{
		OnToolStart: func(tool, input string) { events = append(events, "start:"+tool+":"+input) },
		OnToolEnd:   func(tool string) { events = append(events, "end:"+tool) },
	})

	assert.Equal(t, []string{`start:Read:{"file_path":"main.go"}`, "end:Read"}, events)
}

func TestSendResolvesFriendlyOnProcessDeath(t *testing.T) {
	p, fp, states := startTestPlanner(t)
	fp.emit(t, initLine())

	go func() {
		fp.recv(t)
		fp.exit(errors.New("exit status 1"))
	}()

	res := p.Send(context.Background(), "hello", ModeDirect, nil, Callbacks{})
	assert.Equal(t, friendlyFailure, res.Outcome.Chat)
	waitState(t, states, model.StateError)

	// further turns resolve without blocking
	res = p.Send(context.Background(), "still there?", ModeDirect, nil, Callbacks{})
	assert.Equal(t, friendlyFailure, res.Outcome.Chat)
}

func TestSendCancelSendsInterrupt(t *testing.T) {
	p, fp, _ := startTestPlanner(t)
	defer p.Kill()
	fp.emit(t, initLine())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		fp.recv(t) // the turn itself
		cancel()
	}()

	res := p.Send(ctx, "long running request", ModeDirect, nil, Callbacks{})
	assert.Equal(t, friendlyFailure, res.Outcome.Chat)
	assert.Contains(t, fp.recv(t), "interrupt")
}

func TestKillSuppressesErrorState(t *testing.T) {
	p, fp, states := startTestPlanner(t)
	fp.emit(t, initLine())
	waitState(t, states, model.StateReady)

	p.Kill()
	<-fp.killCh

	select {
	case s := <-states:
		t.Fatalf("unexpected state %q after explicit kill", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestResolveOutcome(t *testing.T) {
	t.Run("fenced tasks", func(t *testing.T) {
		out := resolveOutcome("here you go:\n```json\n{\"tasks\":[{\"title\":\"a\",\"prompt\":\"b\"}]}\n```")
		require.Len(t, out.Tasks, 1)
		assert.Equal(t, "a", out.Tasks[0].Title)
		assert.Empty(t, out.Chat)
	})

	t.Run("bare removal object", func(t *testing.T) {
		out := resolveOutcome(`{"remove":["lizard-3","lizard-7"]}`)
		assert.Equal(t, []string{"lizard-3", "lizard-7"}, out.Remove)
	})

	t.Run("tasks win over removal", func(t *testing.T) {
		out := resolveOutcome(`{"tasks":[{"title":"a","prompt":"b"}],"remove":["lizard-1"]}`)
		assert.Len(t, out.Tasks, 1)
		assert.Empty(t, out.Remove)
	})

	t.Run("prose is chat", func(t *testing.T) {
		out := resolveOutcome("just do it by hand")
		assert.Equal(t, "just do it by hand", out.Chat)
	})

	t.Run("broken json is chat, not an error", func(t *testing.T) {
		out := resolveOutcome("```json\n{\"tasks\": [oops\n```")
		assert.Equal(t, "```json\n{\"tasks\": [oops\n```", out.Chat)
	})
}
