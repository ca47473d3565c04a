package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// connection is one accepted client WebSocket, one-to-one with a session
// for its lifetime (spec §3 "Connection").
type connection struct {
	sessionID string
	ws        *websocket.Conn
	gw        *Gateway

	send chan Frame

	limiter *rate.Limiter

	mu           sync.Mutex
	lastActivity time.Time
	closed       bool

	idemMu sync.Mutex
	idemID map[string]string // idempotency key -> original response frame id

	cancelMu sync.Mutex
	cancel   context.CancelFunc // in-flight orchestrator round, for close-triggered cancellation
}

func newConnection(sessionID string, ws *websocket.Conn, gw *Gateway) *connection {
	return &connection{
		sessionID:    sessionID,
		ws:           ws,
		gw:           gw,
		send:         make(chan Frame, gw.cfg.MessageQueueSize),
		limiter:      rate.NewLimiter(rate.Limit(gw.cfg.MessageQueueSize), gw.cfg.MessageQueueSize),
		lastActivity: time.Now(),
		idemID:       make(map[string]string),
	}
}

func (c *connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *connection) idleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivity)
}

func (c *connection) enqueue(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false // buffer full: backpressure overflow (spec §5)
	}
}

func (c *connection) setCancel(cancel context.CancelFunc) {
	c.cancelMu.Lock()
	c.cancel = cancel
	c.cancelMu.Unlock()
}

func (c *connection) clearCancel() {
	c.setCancel(nil)
}

func (c *connection) cancelInFlight() {
	c.cancelMu.Lock()
	cancel := c.cancel
	c.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// duplicateIdempotencyKey reports whether key has already been seen on
// this connection, recording it on first sight (spec SPEC_FULL.md
// supplemented feature #2).
func (c *connection) duplicateIdempotencyKey(key, responseFrameID string) (string, bool) {
	if key == "" {
		return "", false
	}
	c.idemMu.Lock()
	defer c.idemMu.Unlock()
	if existing, ok := c.idemID[key]; ok {
		return existing, true
	}
	c.idemID[key] = responseFrameID
	return "", false
}

func (c *connection) readLoop(ctx context.Context) {
	defer c.gw.removeConnection(c)

	c.ws.SetReadLimit(MaxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.gw.cfg.PingInterval))
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.gw.cfg.PingInterval))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		if !c.limiter.Allow() {
			c.gw.logger.Warn("connection exceeded message rate, dropping", "sessionId", c.sessionID)
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.gw.logger.Warn("dropping malformed frame", "sessionId", c.sessionID, "error", err.Error())
			continue
		}

		c.gw.handleFrame(ctx, c, frame)
	}
}

func (c *connection) writeLoop(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancelInFlight()

	deadline := time.Now().Add(2 * time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.ws.Close()
	close(c.send)
}
