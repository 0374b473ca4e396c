package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"ait-main/src/internal/memory"
)

// Hash is a feature-hashing embedder: each token adds ±1 to a bucket chosen
// by its digest. Texts sharing words end up close. Works offline.
type Hash struct {
	dims int
}

func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = defaultHashDims
	}
	return &Hash{dims: dims}
}

func (h *Hash) Embed(_ context.Context, text string) (memory.Embedding, error) {
	vec := make([]float32, h.dims)
	for _, tok := range tokenize(text) {
		sum := sha256.Sum256([]byte(tok))
		bucket := binary.LittleEndian.Uint64(sum[:8]) % uint64(h.dims)
		if sum[8]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}
	normalize(vec)
	return vec, nil
}

func (h *Hash) Dimensions() int {
	return h.dims
}
