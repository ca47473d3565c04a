package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yieldline-labs/copilot/internal/agent"
	"github.com/yieldline-labs/copilot/internal/apperror"
	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// Config bounds the gateway's connection handling (spec §4.H, §5, §6).
type Config struct {
	PingInterval    time.Duration
	MaxConnections  int
	MessageQueueSize int
	CORSOrigin      string
}

// Gateway is the Connection Gateway (spec §4.H): it accepts WebSocket
// connections, demultiplexes inbound frames by session id, and forwards
// CHAT_MESSAGE traffic to the Conversation Orchestrator.
type Gateway struct {
	cfg          Config
	orchestrator *agent.Orchestrator
	logger       *observability.Logger
	metrics      *observability.Metrics
	upgrader     websocket.Upgrader

	mu          sync.Mutex
	connections map[string]*connection

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Gateway bound to orchestrator for traffic dispatch.
func New(cfg Config, orchestrator *agent.Orchestrator, logger *observability.Logger, metrics *observability.Metrics) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 1000
	}
	if cfg.MessageQueueSize <= 0 {
		cfg.MessageQueueSize = 1000
	}

	gw := &Gateway{
		cfg:          cfg,
		orchestrator: orchestrator,
		logger:       logger,
		metrics:      metrics,
		connections:  make(map[string]*connection),
		stopCh:       make(chan struct{}),
	}
	gw.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     gw.checkOrigin,
	}
	go gw.reapLoop()
	return gw
}

func (gw *Gateway) checkOrigin(r *http.Request) bool {
	if gw.cfg.CORSOrigin == "" || gw.cfg.CORSOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range strings.Split(gw.cfg.CORSOrigin, ",") {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades an incoming request to a WebSocket connection,
// enforcing the §4.H/§8 connection limit (rejecting the
// (maxConnections+1)-th connection with close code 1013).
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := gw.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gw.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	gw.mu.Lock()
	overLimit := len(gw.connections) >= gw.cfg.MaxConnections
	gw.mu.Unlock()
	if overLimit {
		msg := websocket.FormatCloseMessage(CloseServerOverloaded, ReasonServerOverloaded)
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	sessionID := uuid.NewString()
	conn := newConnection(sessionID, ws, gw)

	gw.mu.Lock()
	gw.connections[sessionID] = conn
	gw.mu.Unlock()
	if gw.metrics != nil {
		gw.metrics.ActiveConnections.Inc()
	}

	established := Frame{
		Type:      TypeConnectionEstablished,
		Payload:   mustMarshal(ConnectionEstablishedPayload{SessionID: sessionID}),
		Timestamp: time.Now(),
	}
	conn.enqueue(established)

	go conn.writeLoop(gw.cfg.PingInterval)
	conn.readLoop(context.Background())
}

func (gw *Gateway) removeConnection(c *connection) {
	gw.mu.Lock()
	_, existed := gw.connections[c.sessionID]
	delete(gw.connections, c.sessionID)
	gw.mu.Unlock()
	if existed && gw.metrics != nil {
		gw.metrics.ActiveConnections.Dec()
	}
	c.close(CloseNormal, "")
}

// handleFrame dispatches one inbound frame (spec §4.H): PING replies
// PONG; CHAT_MESSAGE invokes the orchestrator; any other type is
// dropped with a warning and no reply.
func (gw *Gateway) handleFrame(ctx context.Context, c *connection, frame Frame) {
	switch frame.Type {
	case TypePing:
		c.enqueue(Frame{Type: TypePong, ID: frame.ID, Timestamp: time.Now()})

	case TypeChatMessage:
		gw.handleChatMessage(ctx, c, frame)

	default:
		gw.logger.Warn("dropping frame of unknown type", "type", frame.Type, "sessionId", c.sessionID)
	}
}

func (gw *Gateway) handleChatMessage(ctx context.Context, c *connection, frame Frame) {
	var payload ChatMessagePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		gw.sendError(c, frame.ID, apperror.InvalidMessage("malformed CHAT_MESSAGE payload"))
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		gw.sendError(c, frame.ID, apperror.InvalidMessage("message must not be empty"))
		return
	}

	if respID, dup := c.duplicateIdempotencyKey(payload.IdempotencyKey, frame.ID); dup {
		gw.logger.Info("duplicate idempotency key, skipping re-invocation", "sessionId", c.sessionID, "key", payload.IdempotencyKey, "originalFrameId", respID)
		return
	}

	sessionID := c.sessionID
	if payload.SessionID != "" {
		sessionID = payload.SessionID
	}

	var history []models.Message
	if len(payload.History) > 0 {
		_ = json.Unmarshal(payload.History, &history)
	}

	roundCtx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)
	defer func() {
		c.clearCancel()
		cancel()
	}()

	reply, err := gw.orchestrator.ProcessStream(roundCtx, sessionID, payload.Message, history, func(chunk agent.StreamChunk) {
		if chunk.Kind != agent.ChunkContent || chunk.Delta == "" {
			return
		}
		c.enqueue(Frame{
			Type: TypeStreamChunk,
			ID:   frame.ID,
			Payload: mustMarshal(StreamChunkPayload{
				Delta:     chunk.Delta,
				SessionID: sessionID,
			}),
			Timestamp: time.Now(),
		})
	})
	if err != nil {
		gw.sendError(c, frame.ID, err)
		return
	}

	end := Frame{
		Type: TypeStreamEnd,
		ID:   frame.ID,
		Payload: mustMarshal(StreamEndPayload{
			Message:   reply,
			SessionID: sessionID,
		}),
		Timestamp: time.Now(),
	}
	c.enqueue(end)
}

func (gw *Gateway) sendError(c *connection, frameID string, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.InvalidMessage(err.Error())
	}
	code, message, category, severity, retryable, actions := appErr.Descriptor()

	payload := ErrorPayload{}
	payload.Error.Type = code
	payload.Error.Message = message
	payload.Error.Classification = ErrorClassification{Category: category, Severity: severity, Retryable: retryable}
	payload.Error.SuggestedActions = actions

	c.enqueue(Frame{
		Type:      TypeError,
		ID:        frameID,
		Payload:   mustMarshal(payload),
		Timestamp: time.Now(),
	})
}

func (gw *Gateway) reapLoop() {
	ticker := time.NewTicker(gw.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gw.stopCh:
			return
		case <-ticker.C:
			gw.reapStale()
		}
	}
}

func (gw *Gateway) reapStale() {
	threshold := 2 * gw.cfg.PingInterval
	gw.mu.Lock()
	stale := make([]*connection, 0)
	for _, c := range gw.connections {
		if c.idleFor() > threshold {
			stale = append(stale, c)
		}
	}
	gw.mu.Unlock()

	for _, c := range stale {
		c.close(CloseNormal, ReasonInactiveConnection)
		gw.removeConnection(c)
	}
}

// Shutdown stops accepting reaper work and closes every open connection
// with the "Server shutting down" reason (spec SPEC_FULL.md supplemented
// feature #3).
func (gw *Gateway) Shutdown(ctx context.Context) error {
	gw.stopOnce.Do(func() { close(gw.stopCh) })

	gw.mu.Lock()
	conns := make([]*connection, 0, len(gw.connections))
	for _, c := range gw.connections {
		conns = append(conns, c)
	}
	gw.mu.Unlock()

	for _, c := range conns {
		c.close(CloseNormal, ReasonServerShuttingDown)
		gw.removeConnection(c)
	}
	return nil
}

// ActiveConnections returns the current connection count, for the §6
// metrics snapshot.
func (gw *Gateway) ActiveConnections() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return len(gw.connections)
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
