// Package agent implements the session state machine and the pool that
// orchestrates concurrent assistant sessions.
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/Badaboom1995/gekto-sub001/internal/buffer"
	"github.com/Badaboom1995/gekto-sub001/internal/classifier"
	"github.com/Badaboom1995/gekto-sub001/internal/logger"
	"github.com/Badaboom1995/gekto-sub001/internal/model"
)

const (
	// historySize is the per-session raw output cache used for client
	// resynchronization.
	historySize = 64 * 1024

	readBufferSize = 4096

	// submitTerminator is appended to every message so the CLI treats it
	// as a submitted input line.
	submitTerminator = "\r"
)

// processHandle is the slice of a PTY process the session needs. The
// real implementation is *pty.Process; tests substitute a fake.
type processHandle interface {
	io.ReadWriter
	Kill() error
	Wait() (int, error)
	Close() error
}

// sessionObservers are the callbacks a session owner registers at
// creation time. All of them may be nil.
type sessionObservers struct {
	// onState fires exactly once per state change. No event is emitted
	// for a no-op transition to the current state.
	onState func(id string, state model.SessionState)

	// onOutput receives every raw output chunk verbatim, independent of
	// state classification.
	onOutput func(id string, chunk []byte)

	// onExit fires after the process has exited and the terminal state
	// transition was applied. Not called for explicit kills.
	onExit func(id string, exitCode int)
}

// Session wraps one external assistant process and interprets its raw
// interactive output as a state machine. The process handle is owned
// exclusively by the session and never shared.
type Session struct {
	id  string
	cls classifier.Classifier

	mu         sync.Mutex
	state      model.SessionState
	proc       processHandle
	killed     bool
	observers  sessionObservers
	history    *buffer.RingBuffer
	transcript *logger.Transcript

	readyOnce sync.Once
	readyCh   chan struct{}
}

// newSession wraps an already started process and begins interpreting
// its output. The session starts in the loading state.
func newSession(id string, proc processHandle, cls classifier.Classifier, obs sessionObservers, transcript *logger.Transcript) *Session {
	s := &Session{
		id:         id,
		cls:        cls,
		state:      model.StateLoading,
		proc:       proc,
		observers:  obs,
		history:    buffer.NewRingBuffer(historySize),
		transcript: transcript,
		readyCh:    make(chan struct{}),
	}

	go s.readLoop()
	go s.waitLoop()

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the underlying process is still alive.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.killed && !s.state.Terminal()
}

// History returns the cached raw output for client resynchronization.
func (s *Session) History() []byte {
	return s.history.Bytes()
}

// WaitReady blocks until the first ready marker is observed or the
// context is done.
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes a message followed by the submit terminator and transitions
// the session to working. The output classifier is reset so the next turn
// starts from a clean slate.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.killed || s.state.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", s.id, model.ErrSessionDead)
	}
	proc := s.proc
	s.mu.Unlock()

	s.cls.Reset()
	if err := s.writeInput(proc, text); err != nil {
		return err
	}

	s.setState(model.StateWorking)
	return nil
}

// Respond writes an answer to an in-flight prompt. Unlike Send it does
// not reset the classifier; the turn in progress continues.
func (s *Session) Respond(text string) error {
	s.mu.Lock()
	if s.killed || s.state.Terminal() {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", s.id, model.ErrSessionDead)
	}
	proc := s.proc
	s.mu.Unlock()

	if err := s.writeInput(proc, text); err != nil {
		return err
	}

	s.setState(model.StateWorking)
	return nil
}

func (s *Session) writeInput(proc processHandle, text string) error {
	payload := []byte(text + submitTerminator)
	if _, err := proc.Write(payload); err != nil {
		return fmt.Errorf("session %s: write input: %w", s.id, err)
	}
	if s.transcript != nil {
		s.transcript.Input(payload)
	}
	return nil
}

// ForceReady discards classification state and forces the session back to
// ready without touching the process. Used by the pool's reset operation.
func (s *Session) ForceReady() {
	s.cls.Reset()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.setState(model.StateReady)
}

// Kill terminates the process and releases all resources. State observers
// do not fire for the exit caused by an explicit kill.
func (s *Session) Kill() {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return
	}
	s.killed = true
	proc := s.proc
	s.mu.Unlock()

	if err := proc.Kill(); err != nil {
		log.Printf("session %s: kill: %v", s.id, err)
	}
	proc.Close()
	if s.transcript != nil {
		s.transcript.Close()
	}
}

// readLoop forwards raw output to observers and feeds the classifier.
func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.consumeOutput(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) consumeOutput(chunk []byte) {
	s.history.Write(chunk)
	if s.transcript != nil {
		s.transcript.Output(chunk)
	}

	s.mu.Lock()
	onOutput := s.observers.onOutput
	s.mu.Unlock()

	if onOutput != nil {
		onOutput(s.id, chunk)
	}

	switch s.cls.Feed(chunk) {
	case classifier.SignalReady:
		s.readyOnce.Do(func() { close(s.readyCh) })
		s.setState(model.StateReady)
	case classifier.SignalWaitingInput:
		s.setState(model.StateWaitingInput)
	}
}

// waitLoop applies the terminal state once the process exits. A clean
// exit completes the session; anything else is an error. Either way the
// session is dead and must be recreated, never resumed.
func (s *Session) waitLoop() {
	exitCode, err := s.proc.Wait()

	s.mu.Lock()
	killed := s.killed
	onExit := s.observers.onExit
	s.mu.Unlock()

	if killed {
		return
	}

	if err != nil || exitCode != 0 {
		s.setState(model.StateError)
	} else {
		s.setState(model.StateCompleted)
	}

	// Unblock any creation-time ready waiter.
	s.readyOnce.Do(func() { close(s.readyCh) })

	if s.transcript != nil {
		s.transcript.Close()
	}
	if onExit != nil {
		onExit(s.id, exitCode)
	}
}

// setState applies a transition and notifies the state observer exactly
// once per change. Terminal states are sticky.
func (s *Session) setState(next model.SessionState) {
	s.mu.Lock()
	if s.killed || s.state == next || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = next
	onState := s.observers.onState
	s.mu.Unlock()

	if onState != nil {
		onState(s.id, next)
	}
}
