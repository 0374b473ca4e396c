package embedder

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"

	"ait-main/src/internal/memory"
)

// OpenAI calls the embeddings endpoint of the OpenAI API, or of any server
// speaking it when baseURL is set.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dims   int
}

func NewOpenAI(apiKey, baseURL, model string, dims int) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
		dims:   dims,
	}
}

func (o *OpenAI) Embed(ctx context.Context, text string) (memory.Embedding, error) {
	req := openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: o.model,
	}
	// only the text-embedding-3 family accepts a requested width
	if strings.HasPrefix(string(o.model), "text-embedding-3") {
		req.Dimensions = o.dims
	}

	resp, err := o.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, goerr.Wrap(ErrUpstream, "create embeddings",
			goerr.V("model", o.model),
			goerr.V("cause", err.Error()),
		)
	}
	if len(resp.Data) == 0 {
		return nil, goerr.Wrap(ErrUpstream, "no embedding returned", goerr.V("model", o.model))
	}
	return checkWidth("openai", resp.Data[0].Embedding, o.dims)
}

func (o *OpenAI) Dimensions() int {
	return o.dims
}
