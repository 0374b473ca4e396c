package agent

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"ait-main/src/internal/config"
	"ait-main/src/internal/embedder"
	"ait-main/src/internal/llm"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/storage"
)

var ErrEmptyQuery = errors.New("empty query")

// Chatter is the part of llm.Client the agent needs.
type Chatter interface {
	ChatCompletion(ctx context.Context, messages []llm.Message) (string, error)
}

// Agent answers queries with the help of past exchanges and remembers every
// answer it gives, linked to the exchanges it was shown.
type Agent struct {
	History  *memory.History
	Embedder embedder.Embedder
	Chat     Chatter
	KV       storage.KV
	Key      string

	contextSize  int
	systemPrompt string

	// held across push and save so the stored blob never goes backwards
	mu sync.Mutex
}

func New(cfg config.AgentConfig, h *memory.History, emb embedder.Embedder, chat Chatter, kv storage.KV, key string) *Agent {
	return &Agent{
		History:      h,
		Embedder:     emb,
		Chat:         chat,
		KV:           kv,
		Key:          key,
		contextSize:  cfg.ContextSize,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Related is a recalled experience with its distance to the query.
type Related struct {
	ID       memory.TextID `json:"id"`
	Distance float32       `json:"distance"`
	Query    string        `json:"query"`
	Response string        `json:"response"`
	Rank     uint32        `json:"rank"`
}

// Recall is the first half of an ask: the embedded query and what it brought
// back from memory.
type Recall struct {
	Query     string           `json:"query"`
	Embedding memory.Embedding `json:"-"`
	Related   []Related        `json:"related"`
}

type Answer struct {
	ID       memory.TextID `json:"id"`
	Query    string        `json:"query"`
	Response string        `json:"response"`
	Rank     uint32        `json:"rank"`
	Related  []Related     `json:"related"`
}

func (a *Agent) Recall(ctx context.Context, query string) (*Recall, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	emb, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := a.History.RelatedScored(emb, a.contextSize)
	if err != nil {
		return nil, err
	}

	rc := &Recall{Query: query, Embedding: emb, Related: make([]Related, 0, len(scored))}
	for _, s := range scored {
		exp, ok := a.History.Get(s.ID)
		if !ok {
			continue
		}
		rc.Related = append(rc.Related, Related{
			ID:       s.ID,
			Distance: s.Distance,
			Query:    exp.Query,
			Response: exp.Response,
			Rank:     exp.Rank,
		})
	}
	slog.Debug("recalled experiences", "query_len", len(query), "related", len(rc.Related))
	return rc, nil
}

// Messages lays out the conversation sent to the model: the system prompt,
// then recalled exchanges as earlier turns with the nearest one last, then
// the query.
func (a *Agent) Messages(rc *Recall) []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(rc.Related)+2)
	if a.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	}
	related := slices.Clone(rc.Related)
	slices.Reverse(related)
	for _, r := range related {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: r.Query},
			llm.Message{Role: llm.RoleAssistant, Content: r.Response},
		)
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: rc.Query})
}

func (a *Agent) Generate(ctx context.Context, rc *Recall) (string, error) {
	resp, err := a.Chat.ChatCompletion(ctx, a.Messages(rc))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

// Remember stores the exchange and persists the store.
func (a *Agent) Remember(ctx context.Context, query, response string, emb memory.Embedding, links []memory.TextID) (memory.TextID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, err := a.History.Push(query, response, emb, links)
	if err != nil {
		return id, err
	}
	if err := a.saveLocked(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// RememberText embeds query before storing it.
func (a *Agent) RememberText(ctx context.Context, query, response string, links []memory.TextID) (memory.TextID, error) {
	emb, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return memory.TextID{}, err
	}
	return a.Remember(ctx, query, response, emb, links)
}

// Ask runs recall, generation and remember in one go. The new experience
// links to every experience that was recalled for it.
func (a *Agent) Ask(ctx context.Context, query string) (*Answer, error) {
	rc, err := a.Recall(ctx, query)
	if err != nil {
		return nil, err
	}
	resp, err := a.Generate(ctx, rc)
	if err != nil {
		return nil, err
	}

	links := make([]memory.TextID, len(rc.Related))
	for i, r := range rc.Related {
		links[i] = r.ID
	}
	id, err := a.Remember(ctx, rc.Query, resp, rc.Embedding, links)
	if err != nil {
		return nil, err
	}

	ans := &Answer{ID: id, Query: rc.Query, Response: resp, Related: rc.Related}
	if exp, ok := a.History.Get(id); ok {
		ans.Rank = exp.Rank
	}
	slog.Info("answered query", "id", id.Short(), "rank", ans.Rank, "related", len(rc.Related))
	return ans, nil
}

// Forget removes an experience and persists the store.
func (a *Agent) Forget(ctx context.Context, id memory.TextID) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.History.Remove(id) {
		return false, nil
	}
	return true, a.saveLocked(ctx)
}

// Rate records feedback and persists the store.
func (a *Agent) Rate(ctx context.Context, id memory.TextID, positive bool) (memory.Feedback, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fb, ok := a.History.Rate(id, positive)
	if !ok {
		return fb, false, nil
	}
	return fb, true, a.saveLocked(ctx)
}

func (a *Agent) Save(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saveLocked(ctx)
}

func (a *Agent) saveLocked(ctx context.Context) error {
	if a.KV == nil {
		return nil
	}
	return storage.SaveHistory(ctx, a.KV, a.Key, a.History)
}
