package memory

import (
	"cmp"
	"container/heap"
	"slices"
)

// Scored is an experience id together with its distance to a probe.
type Scored struct {
	ID       TextID
	Distance float32
}

type candidate struct {
	Scored
	rank uint32
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.rank, b.rank); c != 0 {
		return c
	}
	return a.ID.Compare(b.ID)
}

// frontier is a min-heap of candidates, nearest first.
type frontier []candidate

func (f frontier) Len() int           { return len(f) }
func (f frontier) Less(i, j int) bool { return compareCandidates(f[i], f[j]) < 0 }
func (f frontier) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(candidate)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	c := old[n-1]
	*f = old[:n-1]
	return c
}

// Related returns up to num ids of experiences close to probe, nearest first.
//
// The search only sees the part of the link graph reachable from the last
// pushed experience. It expands the nearest unexplored node first and stops
// as soon as num experiences have been collected, so nodes whose only path
// leads through far away neighbours may never be visited.
func (h *History) Related(probe Embedding, num int) ([]TextID, error) {
	scored, err := h.RelatedScored(probe, num)
	if err != nil {
		return nil, err
	}
	ids := make([]TextID, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids, nil
}

// RelatedScored is Related with the distance of every result.
func (h *History) RelatedScored(probe Embedding, num int) ([]Scored, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.checkDims(probe); err != nil {
		return nil, err
	}
	if num <= 0 || h.lastID == nil {
		return nil, nil
	}
	start, ok := h.experiences[*h.lastID]
	if !ok {
		return nil, nil
	}

	queue := &frontier{h.candidate(start, probe)}
	discovered := map[TextID]struct{}{start.ID: {}}
	result := make([]candidate, 0, min(num, len(h.experiences)))

	for len(result) < num && queue.Len() > 0 {
		next := heap.Pop(queue).(candidate)
		node, ok := h.experiences[next.ID]
		if !ok {
			continue
		}

		pos, _ := slices.BinarySearchFunc(result, next, compareCandidates)
		result = slices.Insert(result, pos, next)

		for _, link := range node.Links {
			if _, seen := discovered[link]; seen {
				continue
			}
			discovered[link] = struct{}{}
			target, ok := h.experiences[link]
			if !ok {
				continue
			}
			heap.Push(queue, h.candidate(target, probe))
		}
	}

	return toScored(result, num), nil
}

// Exhaustive scores every stored experience against probe and returns the
// num nearest. It ignores links and serves as a recall baseline for Related.
func (h *History) Exhaustive(probe Embedding, num int) ([]Scored, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.checkDims(probe); err != nil {
		return nil, err
	}
	if num <= 0 || len(h.experiences) == 0 {
		return nil, nil
	}

	all := make([]candidate, 0, len(h.experiences))
	for _, le := range h.experiences {
		all = append(all, h.candidate(le, probe))
	}
	slices.SortFunc(all, compareCandidates)
	return toScored(all, num), nil
}

func (h *History) candidate(le *LinkedExperience, probe Embedding) candidate {
	return candidate{
		Scored: Scored{ID: le.ID, Distance: le.Embedding.CosineDistance(probe)},
		rank:   le.Rank,
	}
}

func toScored(cs []candidate, num int) []Scored {
	if len(cs) > num {
		cs = cs[:num]
	}
	out := make([]Scored, len(cs))
	for i, c := range cs {
		out[i] = c.Scored
	}
	return out
}
