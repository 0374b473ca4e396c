package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"

	"ait-main/src/internal/config"
)

var (
	ErrUpstream = errors.New("chat provider failed")
	ErrModel    = errors.New("invalid model selection")
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant

	apiOpenAICompletions = "openai-completions"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client sends chat completions to the provider named in "provider/model".
type Client struct {
	providers   map[string]config.ProviderConfig
	model       string
	temperature float32
	maxTokens   int

	mu      sync.Mutex
	clients map[string]*openai.Client
}

func New(models config.ModelsConfig, agent config.AgentConfig) *Client {
	return &Client{
		providers:   models.Providers,
		model:       agent.Model,
		temperature: agent.Temperature,
		maxTokens:   agent.MaxTokens,
		clients:     make(map[string]*openai.Client),
	}
}

func (c *Client) Model() string {
	return c.model
}

// ChatCompletion uses the configured default model.
func (c *Client) ChatCompletion(ctx context.Context, messages []Message) (string, error) {
	return c.ChatCompletionModel(ctx, c.model, messages)
}

func (c *Client) ChatCompletionModel(ctx context.Context, modelStr string, messages []Message) (string, error) {
	provider, model, err := ParseModel(modelStr)
	if err != nil {
		return "", err
	}
	client, err := c.client(provider)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	slog.Debug("chat completion", "provider", provider, "model", model, "messages", len(messages))
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", goerr.Wrap(ErrUpstream, "create chat completion",
			goerr.V("provider", provider),
			goerr.V("model", model),
			goerr.V("cause", err.Error()),
		)
	}
	if len(resp.Choices) == 0 {
		return "", goerr.Wrap(ErrUpstream, "no choices returned", goerr.V("provider", provider))
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseModel splits "provider/model". The model part may itself contain
// slashes, as in "openrouter/meta-llama/llama-3-8b".
func ParseModel(s string) (provider, model string, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", goerr.Wrap(ErrModel, "expected provider/model", goerr.V("model", s))
	}
	return parts[0], parts[1], nil
}

func (c *Client) client(provider string) (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.clients[provider]; ok {
		return cl, nil
	}

	prov, ok := c.providers[provider]
	if !ok {
		return nil, goerr.Wrap(ErrModel, "provider not configured", goerr.V("provider", provider))
	}
	if prov.API != "" && prov.API != apiOpenAICompletions {
		return nil, goerr.Wrap(ErrModel, "unsupported provider API",
			goerr.V("provider", provider),
			goerr.V("api", prov.API),
		)
	}

	cfg := openai.DefaultConfig(prov.APIKey)
	if prov.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(prov.BaseURL, "/")
	}
	cl := openai.NewClientWithConfig(cfg)
	c.clients[provider] = cl
	return cl, nil
}
