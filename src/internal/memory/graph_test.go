package memory

import (
	"bytes"
	"strings"
	"testing"
)

func TestStats(t *testing.T) {
	h, ids := buildScenario(t)
	island, _ := h.Push("island", "r", Embedding{1, 1}, []TextID{NewTextID("nowhere")})
	_, _ = h.Push("four", "response four", Embedding{1, 2}, nil)

	st, err := h.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Experiences != 5 {
		t.Errorf("expected 5 experiences, got %d", st.Experiences)
	}
	if st.Links != 4 || st.DanglingLinks != 1 {
		t.Errorf("expected 4 links with 1 dangling, got %d/%d", st.Links, st.DanglingLinks)
	}
	if st.Reachable != 4 {
		t.Errorf("expected 4 nodes reachable from %s, got %d", ids[3].Short(), st.Reachable)
	}
	if st.NextRank != 5 || st.Dims != 2 {
		t.Errorf("unexpected next rank %d or dims %d", st.NextRank, st.Dims)
	}

	g, err := h.Graph()
	if err != nil {
		t.Fatalf("Graph failed: %v", err)
	}
	order, _ := g.Order()
	if order != 5 {
		t.Errorf("expected 5 vertices, got %d", order)
	}
	if _, err := g.Edge(ids[3].String(), ids[2].String()); err != nil {
		t.Errorf("expected edge four -> three: %v", err)
	}
	if _, err := g.Edge(island.String(), ids[0].String()); err == nil {
		t.Error("expected no edge from the island")
	}
}

func TestStats_Empty(t *testing.T) {
	st, err := New(2).Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Experiences != 0 || st.Reachable != 0 {
		t.Errorf("expected empty stats, got %+v", st)
	}
}

func TestWriteDOT(t *testing.T) {
	h, ids := buildScenario(t)

	var buf bytes.Buffer
	if err := h.WriteDOT(&buf); err != nil {
		t.Fatalf("WriteDOT failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "digraph") {
		t.Errorf("expected a digraph, got %q", out)
	}
	for _, id := range ids {
		if !strings.Contains(out, id.String()) {
			t.Errorf("expected vertex %s in output", id.Short())
		}
	}
}
