package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"ait-main/src/internal/memory"
)

const testConfig = `embeddings:
  type: hash
  dims: 16
log:
  level: error
server:
  key: super-secret
models:
  providers:
    openai:
      baseUrl: http://127.0.0.1:1
      apiKey: sk-should-not-print
      api: openai-completions
`

func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AIT_STORAGE_DIR", dir)
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	out, err := run(t, cfgPath, args...)
	if err != nil {
		t.Fatalf("ait %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "chat", "ask", "remember", "related", "show", "recent", "rate", "remove", "graph", "stats", "export", "config", "version"} {
		if _, _, err := root.Find([]string{name}); err != nil {
			t.Errorf("missing command %q: %v", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
	related, _, _ := root.Find([]string{"related"})
	if related.Flags().Lookup("exhaustive") == nil {
		t.Error("missing --exhaustive flag")
	}
}

func TestMemoryCommands(t *testing.T) {
	cfg := setupCLI(t)

	var first struct {
		ID   string `json:"id"`
		Rank uint32 `json:"rank"`
	}
	out := mustRun(t, cfg, "--json", "remember", "what is go", "a language")
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("bad json %q: %v", out, err)
	}
	if first.ID != memory.NewTextID("what is go", "a language").String() || first.Rank != 0 {
		t.Fatalf("unexpected push result %+v", first)
	}
	mustRun(t, cfg, "remember", "what is rust", "another language", "--link", first.ID)

	var recent []experienceRow
	json.Unmarshal([]byte(mustRun(t, cfg, "recent", "--json")), &recent)
	if len(recent) != 2 || recent[1].Query != "what is rust" || len(recent[1].Links) != 1 || recent[1].Links[0] != first.ID {
		t.Fatalf("unexpected recent rows %+v", recent)
	}

	if out := mustRun(t, cfg, "show", first.ID); !strings.Contains(out, "# Query\nwhat is go") {
		t.Errorf("unexpected show output %q", out)
	}

	var fb struct {
		Positive uint64 `json:"positive"`
		Total    uint64 `json:"total"`
	}
	json.Unmarshal([]byte(mustRun(t, cfg, "--json", "rate", first.ID, "up")), &fb)
	if fb.Positive != 1 || fb.Total != 1 {
		t.Errorf("unexpected feedback %+v", fb)
	}

	var rows []relatedRow
	json.Unmarshal([]byte(mustRun(t, cfg, "--json", "related", "what is go", "--exhaustive", "-n", "5")), &rows)
	if len(rows) != 2 {
		t.Errorf("expected both experiences from an exhaustive search, got %+v", rows)
	}
	json.Unmarshal([]byte(mustRun(t, cfg, "--json", "related", "what is go", "-n", "5")), &rows)
	if len(rows) != 2 {
		t.Errorf("expected the walk to follow the link back, got %+v", rows)
	}

	if out := mustRun(t, cfg, "graph"); !strings.Contains(out, "digraph") {
		t.Errorf("expected DOT output, got %q", out)
	}

	var stats struct {
		Memory memory.Stats `json:"memory"`
	}
	json.Unmarshal([]byte(mustRun(t, cfg, "--json", "stats")), &stats)
	if stats.Memory.Experiences != 2 || stats.Memory.Links != 1 || stats.Memory.Dims != 16 {
		t.Errorf("unexpected stats %+v", stats.Memory)
	}

	var doc exportDoc
	if err := yaml.Unmarshal([]byte(mustRun(t, cfg, "export")), &doc); err != nil {
		t.Fatalf("export is not yaml: %v", err)
	}
	if len(doc.Experiences) != 2 || doc.Experiences[0].ID != first.ID || doc.Experiences[0].Positive != 1 {
		t.Errorf("unexpected export %+v", doc)
	}
	if doc.Experiences[0].Embedding != nil {
		t.Error("embeddings should be left out by default")
	}

	mustRun(t, cfg, "remove", first.ID)
	if _, err := run(t, cfg, "show", first.ID); !errors.Is(err, errNotFound) {
		t.Errorf("expected not found after remove, got %v", err)
	}
	if _, err := run(t, cfg, "remove", first.ID); !errors.Is(err, errNotFound) {
		t.Errorf("expected not found on second remove, got %v", err)
	}
}

func TestInvalidArguments(t *testing.T) {
	cfg := setupCLI(t)

	if _, err := run(t, cfg, "show", "not-hex"); !errors.Is(err, memory.ErrMalformedIdentifier) {
		t.Errorf("expected a malformed id error, got %v", err)
	}
	id := memory.NewTextID("x").String()
	if _, err := run(t, cfg, "rate", id, "sideways"); err == nil {
		t.Error("expected an invalid rating to fail")
	}
	if _, err := run(t, cfg, "export", "--format", "toml"); err == nil {
		t.Error("expected an unknown export format to fail")
	}
	if _, err := run(t, cfg, "remember", "q", "r", "--link", "abc"); !errors.Is(err, memory.ErrMalformedIdentifier) {
		t.Errorf("expected a malformed link error, got %v", err)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg := setupCLI(t)

	out := mustRun(t, cfg, "config", "show")
	if strings.Contains(out, "super-secret") || strings.Contains(out, "sk-should-not-print") {
		t.Errorf("secrets leaked into config output:\n%s", out)
	}
	if !strings.Contains(out, masked) {
		t.Errorf("expected masked values in:\n%s", out)
	}
}

func TestAcquirePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ait.pid")

	release, err := acquirePIDFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := acquirePIDFile(path); err == nil {
		t.Error("expected a second acquire by a live process to fail")
	}
	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected release to remove the pidfile")
	}

	// a pid that cannot exist is treated as stale
	os.WriteFile(path, []byte("999999999\n"), 0644)
	release, err = acquirePIDFile(path)
	if err != nil {
		t.Fatalf("expected a stale pidfile to be replaced, got %v", err)
	}
	release()
}
