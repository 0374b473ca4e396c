package memory

import (
	"cmp"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

type wireExperience struct {
	ID        []byte    `msgpack:"id"`
	Query     string    `msgpack:"query"`
	Response  string    `msgpack:"response"`
	Rank      uint32    `msgpack:"rank"`
	Embedding []float32 `msgpack:"embedding"`
	Links     [][]byte  `msgpack:"links,omitempty"`
	Positive  uint64    `msgpack:"positive,omitempty"`
	Total     uint64    `msgpack:"total,omitempty"`
}

type wireHistory struct {
	Version     int              `msgpack:"version"`
	Dims        int              `msgpack:"dims"`
	LastID      []byte           `msgpack:"last_id"`
	NextRank    uint32           `msgpack:"next_rank"`
	Experiences []wireExperience `msgpack:"experiences"`
}

// MarshalBinary encodes the whole store, experiences ordered by rank.
func (h *History) MarshalBinary() ([]byte, error) {
	h.mu.RLock()
	w := wireHistory{
		Version:     snapshotVersion,
		Dims:        h.dims,
		NextRank:    h.nextRank,
		Experiences: make([]wireExperience, 0, len(h.experiences)),
	}
	if h.lastID != nil {
		w.LastID = h.lastID.Bytes()
	}
	for id, le := range h.experiences {
		links := make([][]byte, len(le.Links))
		for i, l := range le.Links {
			links[i] = l.Bytes()
		}
		fb := h.feedback[id]
		w.Experiences = append(w.Experiences, wireExperience{
			ID:        id.Bytes(),
			Query:     le.Query,
			Response:  le.Response,
			Rank:      le.Rank,
			Embedding: []float32(le.Embedding),
			Links:     links,
			Positive:  fb.Positive,
			Total:     fb.Total,
		})
	}
	h.mu.RUnlock()

	slices.SortFunc(w.Experiences, func(a, b wireExperience) int {
		return cmp.Compare(a.Rank, b.Rank)
	})

	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, goerr.Wrap(ErrSerialization, "encode history", goerr.V("cause", err.Error()))
	}
	return data, nil
}

// UnmarshalHistory decodes a blob written by MarshalBinary. Blobs from another
// schema version or with inconsistent records are rejected as a whole.
func UnmarshalHistory(data []byte) (*History, error) {
	var w wireHistory
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, goerr.Wrap(ErrDeserialization, "decode history",
			goerr.V("cause", err.Error()),
			goerr.V("size", len(data)),
		)
	}
	if w.Version != snapshotVersion {
		return nil, goerr.Wrap(ErrDeserialization, "unsupported history version",
			goerr.V("version", w.Version),
			goerr.V("expected", snapshotVersion),
		)
	}
	if w.Dims < 0 {
		return nil, goerr.Wrap(ErrDeserialization, "negative dims", goerr.V("dims", w.Dims))
	}

	h := New(w.Dims)
	h.nextRank = w.NextRank

	if len(w.LastID) > 0 {
		id, err := ParseTextID(w.LastID)
		if err != nil {
			return nil, goerr.Wrap(ErrDeserialization, "invalid last id", goerr.V("cause", err.Error()))
		}
		h.lastID = &id
	}

	for i, we := range w.Experiences {
		le, err := decodeExperience(we, w.Dims, w.NextRank)
		if err != nil {
			return nil, goerr.Wrap(ErrDeserialization, "invalid experience",
				goerr.V("index", i),
				goerr.V("cause", err.Error()),
			)
		}
		if _, dup := h.experiences[le.ID]; dup {
			return nil, goerr.Wrap(ErrDeserialization, "duplicate experience",
				goerr.V("index", i),
				goerr.V("id", le.ID.String()),
			)
		}
		h.experiences[le.ID] = le
		if we.Total > 0 {
			h.feedback[le.ID] = Feedback{Positive: we.Positive, Total: we.Total}
		}
	}

	return h, nil
}

func decodeExperience(we wireExperience, dims int, nextRank uint32) (*LinkedExperience, error) {
	id, err := ParseTextID(we.ID)
	if err != nil {
		return nil, err
	}
	if id != NewTextID(we.Query, we.Response) {
		return nil, goerr.New("id does not match content", goerr.V("id", id.String()))
	}
	if dims > 0 && len(we.Embedding) != dims {
		return nil, goerr.New("embedding width differs from history",
			goerr.V("dims", len(we.Embedding)),
			goerr.V("expected", dims),
		)
	}
	if we.Rank >= nextRank {
		return nil, goerr.New("rank beyond next rank",
			goerr.V("rank", we.Rank),
			goerr.V("next_rank", nextRank),
		)
	}
	if we.Positive > we.Total {
		return nil, goerr.New("more positive ratings than ratings",
			goerr.V("positive", we.Positive),
			goerr.V("total", we.Total),
		)
	}

	links := make([]TextID, len(we.Links))
	for i, raw := range we.Links {
		if links[i], err = ParseTextID(raw); err != nil {
			return nil, err
		}
	}

	return &LinkedExperience{
		Experience: Experience{
			ID:        id,
			Embedding: Embedding(we.Embedding),
			Query:     we.Query,
			Response:  we.Response,
			Rank:      we.Rank,
		},
		Links: links,
	}, nil
}
