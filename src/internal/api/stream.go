package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ait-main/src/internal/gateway"
)

// wsConn serialises writes; gorilla allows one concurrent writer per conn.
type wsConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ws.WriteJSON(v)
}

type wsRequest struct {
	Type  string `json:"type"`
	Query string `json:"query"`
}

func (s *Server) handleWebsocket(c *gin.Context) {
	gw := c.MustGet("gateway").(*gateway.Gateway)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if _, ok := c.Get("ait_ws_key"); ok {
		// echo the offered subprotocols back or browsers drop the socket
		parts := strings.Split(c.GetHeader("Sec-WebSocket-Protocol"), ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		upgrader.Subprotocols = parts
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	conn := &wsConn{ws: ws}
	s.addConn(sessionID, conn)
	defer func() {
		s.removeConn(sessionID)
		ws.Close()
	}()
	slog.Info("ws connected", "session", sessionID)

	if err := conn.writeJSON(gin.H{"type": "hello", "session_id": sessionID, "experiences": gw.History.Len()}); err != nil {
		return
	}

	for {
		var req wsRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("ws read ended", "session", sessionID, "error", err)
			}
			return
		}

		switch req.Type {
		case "", "ask":
			ans, err := gw.Agent.Ask(c.Request.Context(), req.Query)
			if err != nil {
				_ = conn.writeJSON(gin.H{"type": "error", "error": err.Error()})
				continue
			}
			if err := conn.writeJSON(gin.H{"type": "answer", "answer": ans}); err != nil {
				return
			}
			s.broadcastExcept(sessionID, gin.H{"type": "pushed", "id": ans.ID.String(), "rank": ans.Rank})
		case "ping":
			if err := conn.writeJSON(gin.H{"type": "pong"}); err != nil {
				return
			}
		default:
			_ = conn.writeJSON(gin.H{"type": "error", "error": "unknown message type: " + req.Type})
		}
	}
}

func (s *Server) addConn(id string, c *wsConn) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if old, ok := s.wsConns[id]; ok {
		old.ws.Close()
	}
	s.wsConns[id] = c
}

func (s *Server) removeConn(id string) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	delete(s.wsConns, id)
}

func (s *Server) broadcast(event any) {
	s.broadcastExcept("", event)
}

func (s *Server) broadcastExcept(skip string, event any) {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	for id, c := range s.wsConns {
		if id == skip {
			continue
		}
		if err := c.writeJSON(event); err != nil {
			slog.Debug("ws broadcast failed", "session", id, "error", err)
		}
	}
}

func (s *Server) closeWebsockets() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	for id, c := range s.wsConns {
		c.ws.Close()
		delete(s.wsConns, id)
	}
}
