package embedder

import (
	"context"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/vmihailenco/msgpack/v5"

	"ait-main/src/internal/memory"
	"ait-main/src/internal/system"
)

// Static embeds text offline by mean-pooling per-token vectors from a table
// and L2-normalising the result.
type Static struct {
	embeddings map[string][]float32
	dim        int
}

type staticTable struct {
	Dim        int                  `msgpack:"dim"`
	Embeddings map[string][]float64 `msgpack:"embeddings"`
}

// LoadStaticMsgPack reads a table of the form {dim, embeddings: {token: [...]}}.
func LoadStaticMsgPack(path string) (*Static, error) {
	if path == "" {
		return nil, goerr.New("embeddings.static_path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read static table", goerr.V("path", path))
	}
	s, err := LoadStaticFromBytes(data)
	if err != nil {
		return nil, goerr.Wrap(err, "load static table", goerr.V("path", path))
	}
	system.LogMemoryUsage("static_embedder_load", "bytes", len(data))
	return s, nil
}

func LoadStaticFromBytes(data []byte) (*Static, error) {
	var loaded staticTable
	if err := msgpack.Unmarshal(data, &loaded); err != nil {
		return nil, goerr.Wrap(err, "msgpack unmarshal")
	}
	if loaded.Dim <= 0 {
		return nil, goerr.New("static table has no width", goerr.V("dim", loaded.Dim))
	}

	// float32 halves the table in RAM
	embeddings := make(map[string][]float32, len(loaded.Embeddings))
	for k, v := range loaded.Embeddings {
		if len(v) != loaded.Dim {
			return nil, goerr.New("token vector has wrong width",
				goerr.V("token", k),
				goerr.V("dims", len(v)),
				goerr.V("expected", loaded.Dim),
			)
		}
		v32 := make([]float32, len(v))
		for i, f := range v {
			v32[i] = float32(f)
		}
		embeddings[k] = v32
	}

	slog.Info("loaded static embedder", "tokens", len(embeddings), "dim", loaded.Dim)
	return &Static{embeddings: embeddings, dim: loaded.Dim}, nil
}

// Embed returns the zero vector when no token of text is in the table.
func (e *Static) Embed(_ context.Context, text string) (memory.Embedding, error) {
	sum := make([]float32, e.dim)
	count := 0
	for _, tok := range tokenize(text) {
		vec, ok := e.embeddings[tok]
		if !ok {
			continue
		}
		for j, v := range vec {
			sum[j] += v
		}
		count++
	}

	if count > 1 {
		fc := float32(count)
		for j := range sum {
			sum[j] /= fc
		}
	}
	normalize(sum)
	return sum, nil
}

func (e *Static) Dimensions() int {
	return e.dim
}

func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
}
