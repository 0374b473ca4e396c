package memory

import (
	"errors"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
	"github.com/m-mizutani/goerr/v2"
)

const labelQueryLen = 32

// Stats summarises the shape of the link graph.
type Stats struct {
	Experiences   int    `json:"experiences"`
	Links         int    `json:"links"`
	DanglingLinks int    `json:"dangling_links"`
	Reachable     int    `json:"reachable"`
	NextRank      uint32 `json:"next_rank"`
	Dims          int    `json:"dims"`
}

// Graph copies the link graph into a directed graph keyed by hex id. Links
// to experiences that are not stored are left out.
func (h *History) Graph() (graph.Graph[string, string], error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graphLocked()
}

func (h *History) graphLocked() (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed())

	for id, le := range h.experiences {
		err := g.AddVertex(id.String(),
			graph.VertexAttribute("label", id.Short()+" "+truncate(le.Query, labelQueryLen)),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "add vertex", goerr.V("id", id.String()))
		}
	}

	for id, le := range h.experiences {
		for _, link := range le.Links {
			if _, ok := h.experiences[link]; !ok {
				continue
			}
			err := g.AddEdge(id.String(), link.String())
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, goerr.Wrap(err, "add edge",
					goerr.V("from", id.String()),
					goerr.V("to", link.String()),
				)
			}
		}
	}
	return g, nil
}

// WriteDOT renders the link graph in Graphviz DOT format.
func (h *History) WriteDOT(w io.Writer) error {
	g, err := h.Graph()
	if err != nil {
		return err
	}
	if err := draw.DOT(g, w, draw.GraphAttribute("label", "ait history")); err != nil {
		return goerr.Wrap(err, "render dot")
	}
	return nil
}

// Stats counts experiences, links and the nodes Related can reach.
func (h *History) Stats() (Stats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{
		Experiences: len(h.experiences),
		NextRank:    h.nextRank,
		Dims:        h.dims,
	}
	for _, le := range h.experiences {
		for _, link := range le.Links {
			st.Links++
			if _, ok := h.experiences[link]; !ok {
				st.DanglingLinks++
			}
		}
	}

	if h.lastID == nil {
		return st, nil
	}
	if _, ok := h.experiences[*h.lastID]; !ok {
		return st, nil
	}

	g, err := h.graphLocked()
	if err != nil {
		return st, err
	}
	err = graph.BFS(g, h.lastID.String(), func(string) bool {
		st.Reachable++
		return false
	})
	if err != nil {
		return st, goerr.Wrap(err, "walk graph")
	}
	return st, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
