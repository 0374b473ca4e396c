package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ait-main/src/internal/memory"
)

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerServerKey, testKey)
	resp := httptest.NewRecorder()
	s.Engine.ServeHTTP(resp, req)
	return resp
}

func unit(i int) []float64 {
	v := make([]float64, 16)
	v[i] = 1
	return v
}

func TestExperienceLifecycle(t *testing.T) {
	s := setupTestServer(t)

	resp := do(t, s, http.MethodPost, "/api/v1/experiences", map[string]any{
		"query": "q1", "response": "r1", "embedding": unit(0),
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("push: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var pushed struct {
		ID   string `json:"id"`
		Rank uint32 `json:"rank"`
	}
	json.Unmarshal(resp.Body.Bytes(), &pushed)
	if want := memory.NewTextID("q1", "r1").String(); pushed.ID != want {
		t.Fatalf("expected id %s, got %s", want, pushed.ID)
	}

	resp = do(t, s, http.MethodPost, "/api/v1/experiences", map[string]any{
		"query": "q2", "response": "r2", "embedding": unit(1), "links": []string{pushed.ID},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("push with links: expected 201, got %d", resp.Code)
	}
	second := memory.NewTextID("q2", "r2").String()

	resp = do(t, s, http.MethodGet, "/api/v1/experiences/"+second, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.Code)
	}
	var got experienceJSON
	json.Unmarshal(resp.Body.Bytes(), &got)
	if got.Query != "q2" || got.Rank != 1 || len(got.Links) != 1 || got.Links[0] != pushed.ID {
		t.Errorf("unexpected experience %+v", got)
	}
	if got.Embedding != nil {
		t.Error("embedding should only be returned on request")
	}

	resp = do(t, s, http.MethodGet, "/api/v1/experiences?recent=5", nil)
	var recent []experienceJSON
	json.Unmarshal(resp.Body.Bytes(), &recent)
	if len(recent) != 2 || recent[1].Query != "q2" {
		t.Errorf("expected oldest first, got %+v", recent)
	}

	resp = do(t, s, http.MethodPost, "/api/v1/experiences/"+second+"/feedback", map[string]any{"positive": true})
	if resp.Code != http.StatusOK {
		t.Fatalf("feedback: expected 200, got %d", resp.Code)
	}
	var fb feedbackJSON
	json.Unmarshal(resp.Body.Bytes(), &fb)
	if fb.Positive != 1 || fb.Total != 1 || fb.Score != 1 {
		t.Errorf("unexpected feedback %+v", fb)
	}

	resp = do(t, s, http.MethodDelete, "/api/v1/experiences/"+pushed.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", resp.Code)
	}
	resp = do(t, s, http.MethodGet, "/api/v1/experiences/"+pushed.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.Code)
	}
	resp = do(t, s, http.MethodDelete, "/api/v1/experiences/"+pushed.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", resp.Code)
	}
}

func TestExperienceErrors(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"query not a string", http.MethodPost, "/api/v1/experiences", map[string]any{"query": 5}, http.StatusBadRequest},
		{"wrong width", http.MethodPost, "/api/v1/experiences", map[string]any{"query": "q", "embedding": []float64{1, 2}}, http.StatusBadRequest},
		{"bad link", http.MethodPost, "/api/v1/experiences", map[string]any{"query": "q", "links": []string{"zz"}}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/experiences/xyz", nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/experiences/" + memory.NewTextID("nope").String(), nil, http.StatusNotFound},
		{"bad recent", http.MethodGet, "/api/v1/experiences?recent=-1", nil, http.StatusBadRequest},
		{"feedback unknown", http.MethodPost, "/api/v1/experiences/" + memory.NewTextID("nope").String() + "/feedback", map[string]any{"positive": false}, http.StatusNotFound},
		{"feedback missing flag", http.MethodPost, "/api/v1/experiences/" + memory.NewTextID("nope").String() + "/feedback", map[string]any{}, http.StatusBadRequest},
		{"related without probe", http.MethodPost, "/api/v1/related", map[string]any{"num": 2}, http.StatusBadRequest},
		{"related wrong width", http.MethodPost, "/api/v1/related", map[string]any{"embedding": []float64{1}}, http.StatusBadRequest},
		{"ask empty", http.MethodPost, "/api/v1/ask", map[string]any{}, http.StatusBadRequest},
		{"ask blank", http.MethodPost, "/api/v1/ask", map[string]any{"query": "   "}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, s, tt.method, tt.path, tt.body)
			if resp.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestPushEmptyContent(t *testing.T) {
	s := setupTestServer(t)

	resp := do(t, s, http.MethodPost, "/api/v1/experiences", map[string]any{"embedding": unit(2)})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var pushed struct {
		ID string `json:"id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &pushed)
	if want := memory.NewTextID("", "").String(); pushed.ID != want {
		t.Errorf("expected id %s, got %s", want, pushed.ID)
	}
}

func TestRelated(t *testing.T) {
	s := setupTestServer(t)

	resp := do(t, s, http.MethodPost, "/api/v1/related", map[string]any{"embedding": unit(0)})
	if resp.Code != http.StatusOK || strings.TrimSpace(resp.Body.String()) != "[]" {
		t.Fatalf("expected an empty list on an empty store, got %d %s", resp.Code, resp.Body.String())
	}

	do(t, s, http.MethodPost, "/api/v1/experiences", map[string]any{"query": "a", "response": "1", "embedding": unit(0)})
	do(t, s, http.MethodPost, "/api/v1/experiences", map[string]any{"query": "b", "response": "2", "embedding": unit(1)})

	// the second push has no links, so only it is reachable from the last id
	resp = do(t, s, http.MethodPost, "/api/v1/related", map[string]any{"embedding": unit(0), "num": 5})
	var walked []relatedJSON
	json.Unmarshal(resp.Body.Bytes(), &walked)
	if len(walked) != 1 || walked[0].Query != "b" {
		t.Errorf("expected only the last experience, got %+v", walked)
	}

	resp = do(t, s, http.MethodPost, "/api/v1/related", map[string]any{"embedding": unit(0), "num": int64(math.MaxInt64)})
	if resp.Code != http.StatusOK {
		t.Errorf("huge num: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = do(t, s, http.MethodPost, "/api/v1/related", map[string]any{"embedding": unit(0), "num": 5, "exhaustive": true})
	var all []relatedJSON
	json.Unmarshal(resp.Body.Bytes(), &all)
	if len(all) != 2 || all[0].Query != "a" || all[0].Distance != 0 {
		t.Errorf("expected both experiences nearest first, got %+v", all)
	}

	resp = do(t, s, http.MethodPost, "/api/v1/related", map[string]any{"text": "anything", "num": 1})
	if resp.Code != http.StatusOK {
		t.Errorf("related by text: expected 200, got %d", resp.Code)
	}
}

func TestAskStatsGraph(t *testing.T) {
	s := setupTestServer(t)

	resp := do(t, s, http.MethodPost, "/api/v1/ask", map[string]any{"query": "hello"})
	if resp.Code != http.StatusOK {
		t.Fatalf("ask: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var ans struct {
		ID       string `json:"id"`
		Response string `json:"response"`
	}
	json.Unmarshal(resp.Body.Bytes(), &ans)
	if ans.Response != "echo: hello" {
		t.Errorf("unexpected response %q", ans.Response)
	}

	resp = do(t, s, http.MethodGet, "/api/v1/stats", nil)
	var stats struct {
		Memory memory.Stats `json:"memory"`
		LastID string       `json:"last_id"`
	}
	json.Unmarshal(resp.Body.Bytes(), &stats)
	if stats.Memory.Experiences != 1 || stats.Memory.Dims != 16 || stats.LastID != ans.ID {
		t.Errorf("unexpected stats %s", resp.Body.String())
	}

	resp = do(t, s, http.MethodGet, "/api/v1/graph", nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "digraph") {
		t.Errorf("expected a DOT document, got %d %s", resp.Code, resp.Body.String())
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/vnd.graphviz") {
		t.Errorf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
}
