// Package embedder turns text into memory.Embedding values using a hosted
// model, a static token table, or a local hashing scheme.
package embedder

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/philippgille/chromem-go"

	"ait-main/src/internal/config"
	"ait-main/src/internal/memory"
)

var ErrUpstream = errors.New("embedding provider failed")

type Embedder interface {
	Embed(ctx context.Context, text string) (memory.Embedding, error)
	// Dimensions is the vector width, or 0 when only the provider knows it.
	Dimensions() int
}

const (
	defaultOllamaModel  = "nomic-embed-text"
	defaultLocalAIModel = "bert-cpp-minilm-v6"
	defaultHashDims     = 256
)

// New builds the embedder named by cfg.Type.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	t := strings.ToLower(cfg.Type)
	var fn chromem.EmbeddingFunc

	switch t {
	case "", "openai":
		model := cfg.Model
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		return NewOpenAI(cfg.APIKey, cfg.URL, model, cfg.Dims), nil
	case "static":
		st, err := LoadStaticMsgPack(cfg.StaticPath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "hash":
		dims := cfg.Dims
		if dims == 0 {
			dims = defaultHashDims
		}
		return NewHash(dims), nil
	case "openai-compatible":
		if cfg.URL == "" {
			return nil, goerr.New("embeddings.url is required", goerr.V("type", cfg.Type))
		}
		fn = chromem.NewEmbeddingFuncOpenAICompat(cfg.URL, cfg.APIKey, cfg.Model, nil)
	case "ollama":
		fn = chromem.NewEmbeddingFuncOllama(orDefault(cfg.Model, defaultOllamaModel), cfg.URL)
	case "mistral":
		fn = chromem.NewEmbeddingFuncMistral(cfg.APIKey)
	case "cohere":
		fn = chromem.NewEmbeddingFuncCohere(cfg.APIKey,
			chromem.EmbeddingModelCohere(orDefault(cfg.Model, string(chromem.EmbeddingModelCohereEnglishV3))))
	case "jina":
		fn = chromem.NewEmbeddingFuncJina(cfg.APIKey,
			chromem.EmbeddingModelJina(orDefault(cfg.Model, string(chromem.EmbeddingModelJina2BaseEN))))
	case "mixedbread":
		fn = chromem.NewEmbeddingFuncMixedbread(cfg.APIKey,
			chromem.EmbeddingModelMixedbread(orDefault(cfg.Model, string(chromem.EmbeddingModelMixedbreadLargeV1))))
	case "localai":
		fn = chromem.NewEmbeddingFuncLocalAI(orDefault(cfg.Model, defaultLocalAIModel))
	default:
		return nil, goerr.New("unknown embeddings.type", goerr.V("type", cfg.Type))
	}

	slog.Info("using embedding provider", "type", t, "model", cfg.Model, "dims", cfg.Dims)
	return NewFunc(t, fn, cfg.Dims), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Func adapts a chromem-go embedding function.
type Func struct {
	name string
	fn   chromem.EmbeddingFunc
	dims int
}

func NewFunc(name string, fn chromem.EmbeddingFunc, dims int) *Func {
	return &Func{name: name, fn: fn, dims: dims}
}

func (f *Func) Embed(ctx context.Context, text string) (memory.Embedding, error) {
	vec, err := f.fn(ctx, text)
	if err != nil {
		return nil, goerr.Wrap(ErrUpstream, "embed text",
			goerr.V("provider", f.name),
			goerr.V("cause", err.Error()),
		)
	}
	return checkWidth(f.name, vec, f.dims)
}

func (f *Func) Dimensions() int {
	return f.dims
}

func checkWidth(provider string, vec []float32, dims int) (memory.Embedding, error) {
	if len(vec) == 0 {
		return nil, goerr.Wrap(ErrUpstream, "provider returned an empty vector", goerr.V("provider", provider))
	}
	if dims > 0 && len(vec) != dims {
		return nil, goerr.Wrap(memory.ErrDimensionMismatch, "provider returned unexpected width",
			goerr.V("provider", provider),
			goerr.V("dims", len(vec)),
			goerr.V("expected", dims),
		)
	}
	return memory.Embedding(vec), nil
}
