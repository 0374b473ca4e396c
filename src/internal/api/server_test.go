package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ait-main/src/internal/config"
	"ait-main/src/internal/embedder"
	"ait-main/src/internal/gateway"
	"ait-main/src/internal/llm"
	"ait-main/src/internal/storage"
)

const testKey = "test-server-key"

type echoChat struct{}

func (echoChat) ChatCompletion(_ context.Context, msgs []llm.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		StorageDir: dir,
		Agent:      config.AgentConfig{ContextSize: 3},
		Embeddings: config.EmbeddingsConfig{Type: "hash", Dims: 16},
		History:    config.HistoryConfig{Key: "ait_history", Backend: "file"},
		Server:     config.ServerConfig{Addr: "127.0.0.1:0", Key: testKey},
	}
	kv, err := storage.NewFileKV(dir)
	if err != nil {
		t.Fatal(err)
	}
	gw, err := gateway.NewWith(context.Background(), cfg, kv, embedder.NewHash(16), echoChat{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gw.Close(context.Background()) })
	return NewServer(gw)
}

func TestOptionsAuthorized(t *testing.T) {
	s := setupTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, "/api/v1/ask", nil)
	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Errorf("Expected 204 No Content for OPTIONS request, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin: *, got %s", resp.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestAuth(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"health is open", "/health", "", http.StatusOK},
		{"missing key", "/api/v1/stats", "", http.StatusUnauthorized},
		{"wrong key", "/api/v1/stats", "nope", http.StatusUnauthorized},
		{"valid key", "/api/v1/stats", testKey, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set(headerServerKey, tt.key)
			}
			resp := httptest.NewRecorder()
			s.Engine.ServeHTTP(resp, req)
			if resp.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	s := setupTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, req)
	if resp.Header().Get(headerRequestID) == "" {
		t.Error("expected a generated request id")
	}

	req, _ = http.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "abc")
	resp = httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, req)
	if got := resp.Header().Get(headerRequestID); got != "abc" {
		t.Errorf("expected the caller's request id to be echoed, got %q", got)
	}
}

func TestKeyFromProtocol(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ait-key, secret", "secret"},
		{"chat,ait-key,secret", "secret"},
		{"ait-key", ""},
		{"", ""},
		{"other, secret", ""},
	}
	for _, tt := range tests {
		if got := keyFromProtocol(tt.in); got != tt.want {
			t.Errorf("keyFromProtocol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
