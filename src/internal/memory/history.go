package memory

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"

	"github.com/m-mizutani/goerr/v2"
)

// History is the associative store: experiences keyed by content address,
// connected by caller-supplied links, and a pointer to the most recently
// pushed experience which is where every search starts.
//
// All methods are safe for concurrent use; the whole store sits behind one
// lock because Push updates experiences, lastID and nextRank together.
type History struct {
	mu          sync.RWMutex
	experiences map[TextID]*LinkedExperience
	feedback    map[TextID]Feedback
	lastID      *TextID
	nextRank    uint32
	dims        int
}

// New returns an empty History for embeddings of the given width. A width of
// zero is fixed by the first Push.
func New(dims int) *History {
	return &History{
		experiences: make(map[TextID]*LinkedExperience),
		feedback:    make(map[TextID]Feedback),
		dims:        dims,
	}
}

func (h *History) checkDims(e Embedding) error {
	if h.dims > 0 && len(e) != h.dims {
		return goerr.Wrap(ErrDimensionMismatch, "embedding width differs from history",
			goerr.V("dims", len(e)),
			goerr.V("expected", h.dims),
		)
	}
	return nil
}

// Push stores the exchange under NewTextID(query, response) and returns that
// id. Pushing an exchange that is already stored leaves the record and the
// rank counter alone but still makes it the last experience.
func (h *History) Push(query, response string, embedding Embedding, links []TextID) (TextID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.checkDims(embedding); err != nil {
		return TextID{}, err
	}

	id := NewTextID(query, response)
	if _, ok := h.experiences[id]; !ok {
		if h.dims == 0 {
			h.dims = len(embedding)
		}
		h.experiences[id] = &LinkedExperience{
			Experience: Experience{
				ID:        id,
				Embedding: embedding.Clone(),
				Query:     query,
				Response:  response,
				Rank:      h.nextRank,
			},
			Links: slices.Clone(links),
		}
		h.nextRank++
		slog.Debug("pushed experience", "id", id.Short(), "rank", h.nextRank-1, "links", len(links))
	} else {
		slog.Debug("touched existing experience", "id", id.Short())
	}

	h.lastID = &id
	return id, nil
}

// Get returns a copy of the stored experience.
func (h *History) Get(id TextID) (Experience, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	le, ok := h.experiences[id]
	if !ok {
		return Experience{}, false
	}
	exp := le.Experience
	exp.Embedding = exp.Embedding.Clone()
	return exp, true
}

// Links returns the outgoing links recorded for id.
func (h *History) Links(id TextID) ([]TextID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	le, ok := h.experiences[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(le.Links), true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.experiences)
}

// LastID is the entry point of Related. It can name an experience that has
// since been removed.
func (h *History) LastID() (TextID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastID == nil {
		return TextID{}, false
	}
	return *h.lastID, true
}

func (h *History) NextRank() uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextRank
}

func (h *History) Dims() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dims
}

// Remove deletes an experience. Links held by other experiences are left in
// place and become dangling.
func (h *History) Remove(id TextID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.experiences[id]; !ok {
		return false
	}
	delete(h.experiences, id)
	delete(h.feedback, id)
	return true
}

// Recent returns up to num experiences with the highest ranks, oldest first.
func (h *History) Recent(num int) []Experience {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if num <= 0 || len(h.experiences) == 0 {
		return nil
	}

	all := make([]Experience, 0, len(h.experiences))
	for _, le := range h.experiences {
		all = append(all, le.Experience)
	}
	slices.SortFunc(all, func(a, b Experience) int {
		return cmp.Compare(a.Rank, b.Rank)
	})
	if len(all) > num {
		all = all[len(all)-num:]
	}
	for i := range all {
		all[i].Embedding = all[i].Embedding.Clone()
	}
	return all
}

// Rate records one user rating for id.
func (h *History) Rate(id TextID, positive bool) (Feedback, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.experiences[id]; !ok {
		return Feedback{}, false
	}
	fb := h.feedback[id]
	fb.Total++
	if positive {
		fb.Positive++
	}
	h.feedback[id] = fb
	return fb, true
}

func (h *History) Feedback(id TextID) (Feedback, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.experiences[id]; !ok {
		return Feedback{}, false
	}
	return h.feedback[id], true
}
