package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Badaboom1995/gekto-sub001/internal/agent"
	"github.com/Badaboom1995/gekto-sub001/internal/model"
	"github.com/Badaboom1995/gekto-sub001/internal/planner"
	"github.com/Badaboom1995/gekto-sub001/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Prompts ride in these
	// frames, so the limit is generous.
	maxMessageSize = 256 * 1024

	// toolInputPreview is how much of a tool's input is shown inline;
	// the full input travels alongside for expansion on demand.
	toolInputPreview = 80
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The proxy fronts arbitrary upstream origins, so the widget's origin
	// is whatever page it was injected into.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PlanRunner is the planner surface the handler drives. Satisfied by
// *planner.Planner; faked in tests.
type PlanRunner interface {
	Init(workingDir string, onState func(model.SessionState)) error
	State() model.SessionState
	Send(ctx context.Context, prompt string, mode planner.Mode, workers []model.AgentInfo, cb planner.Callbacks) planner.Result
	Abort()
	Kill()
}

// Handler owns the control-plane endpoint: it upgrades connections,
// replays current state to newcomers and dispatches their commands to
// the pool and the planner.
type Handler struct {
	pool     *agent.Pool
	planner  PlanRunner
	registry *Registry

	// planMu serializes create_plan flows so the working/ready state
	// bracket around each planner turn never interleaves.
	planMu sync.Mutex
}

// NewHandler creates a control-plane handler.
func NewHandler(pool *agent.Pool, pr PlanRunner, registry *Registry) *Handler {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Handler{pool: pool, planner: pr, registry: registry}
}

// Registry exposes the connection registry, for shutdown.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// InitPlanner spawns the persistent planner and wires its lifecycle to
// the broadcast channel. Safe to call more than once.
func (h *Handler) InitPlanner() {
	err := h.planner.Init(h.pool.WorkingDir(), func(s model.SessionState) {
		h.registry.Broadcast(protocol.NewPlannerState(s))
	})
	if err != nil {
		log.Printf("ws: planner init: %v", err)
	}
}

// HandleConnection upgrades the request and services the connection
// until the peer goes away. Every new connection gets a resync burst:
// current working dir, planner state and the state of every live
// session, so a reloaded page reconstructs its widgets without asking.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}

	client := newClient(conn)
	h.registry.Register(client)

	client.SendEvent(protocol.NewInfo(h.pool.WorkingDir()))
	client.SendEvent(protocol.NewPlannerState(h.planner.State()))
	for _, info := range h.pool.ActiveSessions() {
		client.SendEvent(protocol.NewState(info.ID, info.State))
	}
	h.pool.AttachWebSocket(client)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump pumps commands from the peer into the dispatcher.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.registry.Unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			break
		}
		h.dispatch(client, message)
	}
}

// writePump pumps queued frames to the peer, one JSON envelope per
// WebSocket frame.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame. Protocol errors answer with an
// error envelope and leave the connection open.
func (h *Handler) dispatch(client *Client, raw []byte) {
	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		client.SendEvent(protocol.NewError("malformed command: " + err.Error()))
		return
	}

	switch cmd.Type {
	case protocol.CmdChat:
		h.handleChat(client, cmd)
	case protocol.CmdReset:
		h.handleReset(client, cmd)
	case protocol.CmdKill:
		h.handleKill(client, cmd)
	case protocol.CmdKillAll:
		h.handleKillAll(client)
	case protocol.CmdListAgents, protocol.CmdDebugPool:
		client.SendEvent(protocol.NewAgentsList(h.pool.ActiveSessions()))
	case protocol.CmdCreatePlan:
		h.handleCreatePlan(client, cmd)
	case protocol.CmdExecutePlan:
		if err := h.pool.ExecutePlan(cmd.PlanID); err != nil {
			client.SendEvent(protocol.NewError(err.Error()))
		}
	case protocol.CmdCancelPlan:
		if err := h.pool.CancelPlan(cmd.PlanID); err != nil {
			client.SendEvent(protocol.NewError(err.Error()))
		}
	default:
		client.SendEvent(protocol.NewError("unknown command type: " + cmd.Type))
	}
}

// handleChat routes a message to a pool session, or to the planner when
// addressed to the reserved master id.
func (h *Handler) handleChat(client *Client, cmd *protocol.Command) {
	if cmd.LizardID == "" || cmd.Content == "" {
		client.SendEvent(protocol.NewError("chat requires lizardId and content"))
		return
	}

	if cmd.LizardID == model.MasterSessionID {
		go h.plannerChat(cmd.Content)
		return
	}

	if err := h.pool.SendMessage(cmd.LizardID, cmd.Content, client); err != nil {
		client.SendEvent(protocol.NewError(err.Error()))
	}
}

// plannerChat runs a direct conversational turn with the planner and
// broadcasts the reply. The planner is shared, so every tab sees it.
func (h *Handler) plannerChat(content string) {
	h.planMu.Lock()
	defer h.planMu.Unlock()

	h.InitPlanner()
	h.registry.Broadcast(protocol.NewPlannerState(model.StateWorking))

	res := h.planner.Send(context.Background(), content, planner.ModeDirect, nil, planner.Callbacks{
		OnToolStart: func(tool, input string) {
			h.registry.Broadcast(protocol.NewToolRunning(model.MasterSessionID, tool, truncate(input, toolInputPreview), input))
		},
		OnToolEnd: func(tool string) {
			h.registry.Broadcast(protocol.NewToolCompleted(model.MasterSessionID, tool))
		},
	})

	h.registry.Broadcast(protocol.NewPlannerChat("", res.Outcome.Chat, res.Elapsed.Milliseconds()))
	h.registry.Broadcast(protocol.NewPlannerState(model.StateReady))
}

func (h *Handler) handleReset(client *Client, cmd *protocol.Command) {
	if cmd.LizardID == "" {
		client.SendEvent(protocol.NewError("reset requires lizardId"))
		return
	}
	if cmd.LizardID == model.MasterSessionID {
		h.planner.Abort()
		return
	}
	h.pool.ResetSession(cmd.LizardID)
}

func (h *Handler) handleKill(client *Client, cmd *protocol.Command) {
	if cmd.LizardID == "" {
		client.SendEvent(protocol.NewError("kill requires lizardId"))
		return
	}
	if cmd.LizardID == model.MasterSessionID {
		// The planner process survives; only the in-flight turn dies.
		h.planner.Abort()
		client.SendEvent(protocol.NewKillResult(cmd.LizardID, true))
		return
	}
	killed := h.pool.KillSession(cmd.LizardID)
	client.SendEvent(protocol.NewKillResult(cmd.LizardID, killed))
}

// handleKillAll tears down every session. Each formerly live id gets a
// final ready broadcast so widgets bound to it reset cleanly.
func (h *Handler) handleKillAll(client *Client) {
	ids := h.pool.KillAllSessions()
	for _, id := range ids {
		h.registry.Broadcast(protocol.NewState(id, model.StateReady))
	}
	client.SendEvent(protocol.NewKillAllResult(len(ids)))
}

// handleCreatePlan runs a triage turn: the planner answers with a task
// breakdown, an agent-removal directive or a plain reply, and the
// outcome broadcasts to every connection bracketed by planner state.
func (h *Handler) handleCreatePlan(client *Client, cmd *protocol.Command) {
	if cmd.Prompt == "" {
		client.SendEvent(protocol.NewError("create_plan requires prompt"))
		return
	}
	planID := cmd.PlanID
	if planID == "" {
		planID = uuid.NewString()
	}
	mode := planner.ParseMode(cmd.Mode)

	go func() {
		h.planMu.Lock()
		defer h.planMu.Unlock()

		h.InitPlanner()
		h.registry.Broadcast(protocol.NewPlannerState(model.StateWorking))

		res := h.planner.Send(context.Background(), cmd.Prompt, mode, h.pool.ActiveSessions(), planner.Callbacks{
			OnText: func(text string) {
				h.registry.Broadcast(protocol.NewPlannerText(planID, text))
			},
			OnToolStart: func(tool, input string) {
				h.registry.Broadcast(protocol.NewToolRunning(model.MasterSessionID, tool, truncate(input, toolInputPreview), input))
			},
			OnToolEnd: func(tool string) {
				h.registry.Broadcast(protocol.NewToolCompleted(model.MasterSessionID, tool))
			},
		})

		switch {
		case len(res.Outcome.Tasks) > 0:
			plan := h.pool.BindPlan(planID, res.Outcome.Tasks)
			h.registry.Broadcast(protocol.NewPlanCreated(plan))
		case len(res.Outcome.Remove) > 0:
			h.registry.Broadcast(protocol.NewPlannerRemove(planID, res.Outcome.Remove))
		default:
			h.registry.Broadcast(protocol.NewPlannerChat(planID, res.Outcome.Chat, res.Elapsed.Milliseconds()))
		}

		h.registry.Broadcast(protocol.NewPlannerState(model.StateReady))
	}()
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
