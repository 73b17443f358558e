package agent

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Badaboom1995/gekto-sub001/internal/classifier"
	"github.com/Badaboom1995/gekto-sub001/internal/logger"
	"github.com/Badaboom1995/gekto-sub001/internal/model"
	"github.com/Badaboom1995/gekto-sub001/internal/protocol"
	"github.com/Badaboom1995/gekto-sub001/internal/pty"
)

// EventSink receives control-plane events for the sessions a client is
// subscribed to. Implemented by the ws connection; sessions themselves
// never see sinks.
type EventSink interface {
	// SendEvent queues one event envelope for delivery.
	SendEvent(v any)

	// Alive reports whether the sink can still accept events. Dead sinks
	// are skipped during fan-out and pruned lazily.
	Alive() bool
}

// Recorder persists session and plan lifecycle records for diagnostics.
// All methods are best-effort; implementations log their own failures.
type Recorder interface {
	RecordSessionState(id string, state model.SessionState)
	RecordPlan(plan *model.ExecutionPlan)
	RecordPlanStatus(id string, status model.PlanStatus)
}

// Config configures a Pool.
type Config struct {
	// WorkingDir is the filesystem root all sessions are spawned in.
	WorkingDir string

	// AgentCommand is the assistant command line, e.g. "claude".
	AgentCommand string

	// LogDir enables per-session transcripts when non-empty.
	LogDir string

	// NewClassifier builds the output classifier for each new session.
	// Defaults to the Claude CLI classifier.
	NewClassifier func() classifier.Classifier

	// Records persists lifecycle records when non-nil.
	Records Recorder
}

// Pool is the registry of live agent sessions, keyed by session id. It is
// the sole mutator of the registry; every mutation happens behind the pool
// mutex (single-writer discipline).
type Pool struct {
	cfg     Config
	command string
	args    []string

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	plans   map[string]*model.ExecutionPlan

	// spawn is the process factory; replaced in tests.
	spawn func(id string) (processHandle, error)
}

// entry couples a session with its pending input queue and subscribed
// client sinks.
type entry struct {
	sess  *Session
	queue []string
	subs  []EventSink
}

// NewPool creates a session pool.
func NewPool(cfg Config) *Pool {
	if cfg.AgentCommand == "" {
		cfg.AgentCommand = "claude"
	}
	if cfg.NewClassifier == nil {
		cfg.NewClassifier = func() classifier.Classifier { return classifier.NewClaudeClassifier() }
	}

	parts := pty.SplitCommand(cfg.AgentCommand)
	if len(parts) == 0 {
		parts = []string{"claude"}
	}
	p := &Pool{
		cfg:     cfg,
		command: parts[0],
		args:    parts[1:],
		entries: make(map[string]*entry),
		plans:   make(map[string]*model.ExecutionPlan),
	}
	p.spawn = p.spawnProcess
	return p
}

// WorkingDir returns the shared spawn root.
func (p *Pool) WorkingDir() string {
	return p.cfg.WorkingDir
}

func (p *Pool) spawnProcess(id string) (processHandle, error) {
	proc, err := pty.Start(pty.StartOptions{
		Command: p.command,
		Args:    p.args,
		Dir:     p.cfg.WorkingDir,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("pool: session %s started (pid %d)", id, proc.PID())
	return proc, nil
}

// SendMessage forwards a message to the session for id, creating the
// session (and its process) if none exists. Downstream events for the
// session are pushed to sink. Messages sent while a turn is in flight are
// queued and dispatched in submission order.
func (p *Pool) SendMessage(id, content string, sink EventSink) error {
	p.mu.Lock()
	e, err := p.ensureEntryLocked(id)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.subscribeLocked(e, sink)
	sess := e.sess
	state := sess.State()

	switch state {
	case model.StateReady:
		p.mu.Unlock()
		return sess.Send(content)
	case model.StateWaitingInput:
		p.mu.Unlock()
		return sess.Respond(content)
	default:
		// loading or mid-turn: dispatch when the ready marker arrives.
		e.queue = append(e.queue, content)
		p.mu.Unlock()
		return nil
	}
}

// ResetSession discards queued input and forces the session back to ready
// without killing the process. If no session exists for id, a fresh one is
// created instead; the return value reports whether a session existed.
func (p *Pool) ResetSession(id string) bool {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok {
		e.queue = nil
		sess := e.sess
		p.mu.Unlock()
		sess.ForceReady()
		return true
	}

	if _, err := p.ensureEntryLocked(id); err != nil {
		log.Printf("pool: reset %s: recreate failed: %v", id, err)
	}
	p.mu.Unlock()
	return false
}

// KillSession kills and removes one session. It reports whether a live
// session existed for id; unknown ids are a no-op.
func (p *Pool) KillSession(id string) bool {
	p.mu.Lock()
	e, ok := p.entries[id]
	if ok {
		p.removeLocked(id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	e.sess.Kill()
	return true
}

// KillAllSessions kills and removes every session, returning the ids that
// were live immediately beforehand, in registration order.
func (p *Pool) KillAllSessions() []string {
	p.mu.Lock()
	ids := make([]string, len(p.order))
	copy(ids, p.order)
	victims := make([]*Session, 0, len(ids))
	for _, id := range ids {
		victims = append(victims, p.entries[id].sess)
	}
	p.entries = make(map[string]*entry)
	p.order = nil
	p.mu.Unlock()

	for _, sess := range victims {
		sess.Kill()
	}
	return ids
}

// ActiveSessions returns a diagnostic snapshot of every live session, in
// registration order.
func (p *Pool) ActiveSessions() []model.AgentInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	agents := make([]model.AgentInfo, 0, len(p.order))
	for _, id := range p.order {
		e := p.entries[id]
		state := e.sess.State()
		agents = append(agents, model.AgentInfo{
			ID:           id,
			State:        state,
			IsProcessing: state == model.StateWorking || len(e.queue) > 0,
			IsRunning:    e.sess.IsRunning(),
			QueueLength:  len(e.queue),
		})
	}
	return agents
}

// AttachWebSocket re-subscribes a (re)connecting client to future events
// of every currently active session and replays each session's cached
// raw output so the client restores its view without waiting for the
// next turn.
func (p *Pool) AttachWebSocket(sink EventSink) {
	if sink == nil {
		return
	}

	type replay struct {
		id   string
		data []byte
	}

	p.mu.Lock()
	var replays []replay
	for _, id := range p.order {
		e := p.entries[id]
		p.subscribeLocked(e, sink)
		if h := e.sess.History(); len(h) > 0 {
			replays = append(replays, replay{id: id, data: h})
		}
	}
	p.mu.Unlock()

	for _, r := range replays {
		sink.SendEvent(protocol.NewHistory(r.id, r.data))
	}
}

// Close kills every session. Used on process shutdown.
func (p *Pool) Close() {
	p.KillAllSessions()
}

// ensureEntryLocked returns the live entry for id, creating it (and its
// process) when missing. A session in a terminal state is torn down and
// replaced: a process-backed resource has at most one live process per id.
func (p *Pool) ensureEntryLocked(id string) (*entry, error) {
	if e, ok := p.entries[id]; ok {
		if !e.sess.State().Terminal() {
			return e, nil
		}
		e.sess.Kill()
		p.removeLocked(id)
	}

	proc, err := p.spawn(id)
	if err != nil {
		return nil, fmt.Errorf("pool: spawn session %s: %w", id, err)
	}

	var transcript *logger.Transcript
	if p.cfg.LogDir != "" {
		path := filepath.Join(p.cfg.LogDir, id+".cast")
		if transcript, err = logger.NewTranscript(path, 80, 24); err != nil {
			log.Printf("pool: transcript for %s disabled: %v", id, err)
			transcript = nil
		}
	}

	obs := sessionObservers{
		onState:  p.handleSessionState,
		onOutput: p.handleSessionOutput,
		onExit:   p.handleSessionExit,
	}
	e := &entry{sess: newSession(id, proc, p.cfg.NewClassifier(), obs, transcript)}
	p.entries[id] = e
	p.order = append(p.order, id)

	if p.cfg.Records != nil {
		p.cfg.Records.RecordSessionState(id, model.StateLoading)
	}
	return e, nil
}

func (p *Pool) subscribeLocked(e *entry, sink EventSink) {
	if sink == nil {
		return
	}
	kept := make([]EventSink, 0, len(e.subs)+1)
	for _, s := range e.subs {
		if s == sink {
			return
		}
		if s.Alive() {
			kept = append(kept, s)
		}
	}
	e.subs = append(kept, sink)
}

func (p *Pool) removeLocked(id string) {
	delete(p.entries, id)
	for i, other := range p.order {
		if other == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// handleSessionState fans a state change out to the session's subscribers
// and dispatches the next queued message when a turn completes.
func (p *Pool) handleSessionState(id string, state model.SessionState) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return
	}

	sinks := make([]EventSink, len(e.subs))
	copy(sinks, e.subs)

	var next string
	var dispatch bool
	if state == model.StateReady && len(e.queue) > 0 {
		next, e.queue = e.queue[0], e.queue[1:]
		dispatch = true
	}
	sess := e.sess
	p.mu.Unlock()

	if p.cfg.Records != nil {
		p.cfg.Records.RecordSessionState(id, state)
	}

	evt := protocol.NewState(id, state)
	for _, sink := range sinks {
		if sink.Alive() {
			sink.SendEvent(evt)
		}
	}

	if dispatch {
		if err := sess.Send(next); err != nil {
			log.Printf("pool: dispatch queued message to %s: %v", id, err)
		}
	}
}

// handleSessionOutput forwards raw output verbatim to the session's
// subscribers, independent of classification.
func (p *Pool) handleSessionOutput(id string, chunk []byte) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	sinks := make([]EventSink, len(e.subs))
	copy(sinks, e.subs)
	p.mu.Unlock()

	evt := protocol.NewOutput(id, chunk)
	for _, sink := range sinks {
		if sink.Alive() {
			sink.SendEvent(evt)
		}
	}
}

// handleSessionExit prunes an exited session from the registry. The
// terminal state event has already been delivered by handleSessionState.
func (p *Pool) handleSessionExit(id string, exitCode int) {
	log.Printf("pool: session %s exited with code %d", id, exitCode)
	p.mu.Lock()
	p.removeLocked(id)
	p.mu.Unlock()
}

// BindPlan registers an execution plan for planID, binding each task to a
// worker session id. Idle sessions are reused in registration order;
// remaining tasks get freshly generated ids. The server only tracks plan
// status; spawning workers per task is owned by the client.
func (p *Pool) BindPlan(planID string, tasks []model.Task) *model.ExecutionPlan {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idle []string
	for _, id := range p.order {
		if p.entries[id].sess.State() == model.StateReady {
			idle = append(idle, id)
		}
	}

	bound := make([]model.Task, len(tasks))
	for i, task := range tasks {
		if task.ID == "" {
			task.ID = fmt.Sprintf("task-%d", i+1)
		}
		if task.AgentID == "" {
			if len(idle) > 0 {
				task.AgentID, idle = idle[0], idle[1:]
			} else {
				task.AgentID = "lizard-" + uuid.NewString()[:8]
			}
		}
		bound[i] = task
	}

	plan := &model.ExecutionPlan{
		ID:        planID,
		Tasks:     bound,
		Status:    model.PlanStatusCreated,
		CreatedAt: time.Now(),
	}
	p.plans[planID] = plan

	if p.cfg.Records != nil {
		p.cfg.Records.RecordPlan(plan)
	}
	return plan
}

// ExecutePlan flips the named plan to executing. Task execution itself is
// delegated to the connected client.
func (p *Pool) ExecutePlan(planID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, model.ErrPlanNotFound)
	}
	plan.Status = model.PlanStatusExecuting

	if p.cfg.Records != nil {
		p.cfg.Records.RecordPlanStatus(planID, plan.Status)
	}
	return nil
}

// CancelPlan marks the named plan failed and removes it from the registry.
func (p *Pool) CancelPlan(planID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, ok := p.plans[planID]
	if !ok {
		return fmt.Errorf("plan %s: %w", planID, model.ErrPlanNotFound)
	}
	plan.Status = model.PlanStatusFailed
	delete(p.plans, planID)

	if p.cfg.Records != nil {
		p.cfg.Records.RecordPlanStatus(planID, plan.Status)
	}
	return nil
}

// Plan returns the registered plan for planID.
func (p *Pool) Plan(planID string) (*model.ExecutionPlan, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	plan, ok := p.plans[planID]
	return plan, ok
}
