package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ait-main/src/internal/gateway"
)

const (
	headerServerKey = "X-Server-Key"
	headerRequestID = "X-Request-ID"
	wsKeyLabel      = "ait-key"
)

type Server struct {
	Gateway *gateway.Gateway
	Engine  *gin.Engine

	wsMu    sync.RWMutex
	wsConns map[string]*wsConn
}

func NewServer(gw *gateway.Gateway) *Server {
	e := gin.Default()
	s := &Server{
		Gateway: gw,
		Engine:  e,
		wsConns: make(map[string]*wsConn),
	}
	s.Engine.Use(s.corsMiddleware())
	s.Engine.Use(s.requestIDMiddleware())
	s.Engine.Use(s.injectMiddleware())
	s.Engine.Use(s.authMiddleware())
	s.setupRoutesRest()
	s.setupRoutesWebSocket()
	return s
}

func (s *Server) setupRoutesRest() {
	s.Engine.GET("/health", s.handleHealth)

	v1 := s.Engine.Group("/api/v1")
	{
		v1.POST("/experiences", s.handlePush)
		v1.GET("/experiences", s.handleListExperiences)
		v1.GET("/experiences/:id", s.handleGetExperience)
		v1.DELETE("/experiences/:id", s.handleDeleteExperience)
		v1.POST("/experiences/:id/feedback", s.handleFeedback)
		v1.POST("/related", s.handleRelated)
		v1.POST("/ask", s.handleAsk)
		v1.GET("/stats", s.handleStats)
		v1.GET("/graph", s.handleGraph)
	}
}

func (s *Server) setupRoutesWebSocket() {
	s.Engine.GET("/ws", s.handleWebsocket)
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Server-Key, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware echoes the caller's X-Request-ID or assigns a new one.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) injectMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("gateway", s.Gateway)
		c.Next()
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		gw := c.MustGet("gateway").(*gateway.Gateway)
		key := gw.Config.Server.Key
		if key == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(headerServerKey)

		// browsers cannot set headers on a websocket handshake, so the key may
		// also come as ?token= or as the subprotocol pair "ait-key, <key>"
		if provided == "" && isWebSocket(c.Request) {
			if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
				c.Set("ait_ws_key", protocol)
			}
			provided = c.Query("token")
			if provided == "" {
				provided = keyFromProtocol(c.GetHeader("Sec-WebSocket-Protocol"))
			}
		}

		if provided != key {
			slog.Warn("unauthorized request", "path", c.Request.URL.Path, "remote", c.ClientIP(), "provided", provided != "")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing server key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func keyFromProtocol(protocol string) string {
	parts := strings.Split(protocol, ",")
	for i, p := range parts {
		if strings.TrimSpace(p) == wsKeyLabel && i+1 < len(parts) {
			return strings.TrimSpace(parts[i+1])
		}
	}
	return ""
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 60 * time.Second,
		ReadTimeout:       600 * time.Second,
		WriteTimeout:      600 * time.Second,
		IdleTimeout:       1200 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down server...")

	ctxShut, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.closeWebsockets()
	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server graceful shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}
