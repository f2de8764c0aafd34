package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	realtimeHeartbeatInterval = 25 * time.Second
	websocketWriteTimeout     = 10 * time.Second
	websocketReadLimit        = 512
)

var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

type realtimeEnvelope struct {
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func envelope(message RealtimeMessage) realtimeEnvelope {
	return realtimeEnvelope{
		Type:      message.EventType,
		Source:    realtimeSource,
		Timestamp: message.Timestamp.UTC(),
		Data:      message.Payload,
	}
}

// handleEventStream serves the live feed as server-sent events. A session
// token, when supplied, adds the caller's private events to the broadcasts.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	viewerID := h.viewerID(c)
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), viewerID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent(realtimeEventHeartbeat, realtimeEnvelope{Type: realtimeEventHeartbeat, Source: realtimeSource, Timestamp: time.Now().UTC()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEnvelope{Type: realtimeEventHeartbeat, Source: realtimeSource, Timestamp: time.Now().UTC()})
			return true
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, envelope(message))
			return true
		}
	})
}

// handleWebSocket serves the same live feed over a WebSocket. Clients only
// receive; anything they send is read and discarded to notice disconnects.
func (h *httpHandler) handleWebSocket(c *gin.Context) {
	viewerID := h.viewerID(c)
	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), viewerID)
	defer cleanup()

	closed := make(chan struct{})
	conn.SetReadLimit(websocketReadLimit)
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-closed:
			return
		case <-heartbeat.C:
			deadline := time.Now().Add(websocketWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case message, open := <-stream:
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteJSON(envelope(message)); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
