package memory

import (
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxDistance is the largest value CosineDistance returns. Vectors with zero
// norm are placed at this distance from everything.
const MaxDistance float32 = 2

// Embedding is a dense vector produced by an embedding model. Its width is
// fixed per History.
type Embedding []float32

func (e Embedding) Dims() int {
	return len(e)
}

func (e Embedding) Norm() float32 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

// CosineDistance returns 1 - cos(e, other), clamped to [0, MaxDistance].
func (e Embedding) CosineDistance(other Embedding) float32 {
	if len(e) != len(other) {
		return MaxDistance
	}

	var dot, na, nb float64
	for i := range e {
		a, b := float64(e[i]), float64(other[i])
		dot += a * b
		na += a * a
		nb += b * b
	}
	if na == 0 || nb == 0 {
		return MaxDistance
	}

	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	switch {
	case math.IsNaN(d):
		return MaxDistance
	case d < 0:
		return 0
	case d > float64(MaxDistance):
		return MaxDistance
	}
	return float32(d)
}

func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// MarshalBinary encodes the vector as a msgpack array of float32.
func (e Embedding) MarshalBinary() ([]byte, error) {
	data, err := msgpack.Marshal([]float32(e))
	if err != nil {
		return nil, goerr.Wrap(ErrMalformedEmbedding, "encode embedding", goerr.V("cause", err.Error()))
	}
	return data, nil
}

// UnmarshalEmbedding decodes a buffer produced by MarshalBinary. When dims is
// positive the decoded vector must have exactly that width.
func UnmarshalEmbedding(data []byte, dims int) (Embedding, error) {
	var vec []float32
	if err := msgpack.Unmarshal(data, &vec); err != nil {
		return nil, goerr.Wrap(ErrMalformedEmbedding, "decode embedding",
			goerr.V("cause", err.Error()),
			goerr.V("size", len(data)),
		)
	}
	if dims > 0 && len(vec) != dims {
		return nil, goerr.Wrap(ErrMalformedEmbedding, "unexpected embedding width",
			goerr.V("dims", len(vec)),
			goerr.V("expected", dims),
		)
	}
	return Embedding(vec), nil
}
