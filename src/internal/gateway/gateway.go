package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"ait-main/src/internal/agent"
	"ait-main/src/internal/config"
	"ait-main/src/internal/cron"
	"ait-main/src/internal/embedder"
	"ait-main/src/internal/llm"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/storage"
	"ait-main/src/internal/system"
)

// Gateway owns the long lived pieces shared by the API server, the TUI and
// the CLI commands.
type Gateway struct {
	Config   *config.Config
	KV       storage.KV
	History  *memory.History
	Embedder embedder.Embedder
	Agent    *agent.Agent
	cronMgr  *cron.Manager
}

// New opens storage, loads the history and builds the providers named in cfg.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	kv, err := storage.Open(cfg.History.Backend, cfg.StorageDir)
	if err != nil {
		return nil, err
	}

	emb, err := embedder.New(cfg.Embeddings)
	if err != nil {
		kv.Close()
		return nil, err
	}

	gw, err := NewWith(ctx, cfg, kv, emb, llm.New(cfg.Models, cfg.Agent))
	if err != nil {
		kv.Close()
		return nil, err
	}
	return gw, nil
}

// NewWith wires the gateway around already constructed collaborators.
func NewWith(ctx context.Context, cfg *config.Config, kv storage.KV, emb embedder.Embedder, chat agent.Chatter) (*Gateway, error) {
	dims := emb.Dimensions()
	if dims == 0 {
		dims = cfg.Embeddings.Dims
	}

	h, err := storage.LoadHistory(ctx, kv, cfg.History.Key, dims)
	if err != nil {
		return nil, goerr.Wrap(err, "load history", goerr.V("backend", cfg.History.Backend))
	}
	slog.Info("history ready", "key", cfg.History.Key, "experiences", h.Len(), "dims", h.Dims())
	system.LogMemoryUsage("gateway_init", "experiences", h.Len())

	return &Gateway{
		Config:   cfg,
		KV:       kv,
		History:  h,
		Embedder: emb,
		Agent:    agent.New(cfg.Agent, h, emb, chat, kv, cfg.History.Key),
	}, nil
}

// StartCron schedules the snapshot backup when history.backup_schedule is set.
func (gw *Gateway) StartCron() error {
	schedule := gw.Config.History.BackupSchedule
	if schedule == "" {
		return nil
	}

	gw.cronMgr = cron.NewManager()
	err := gw.cronMgr.AddBackup(schedule, gw.KV, gw.Config.History.Key, gw.Config.History.BackupKey, gw.Agent.Save)
	if err != nil {
		return err
	}
	gw.cronMgr.Start()
	slog.Info("history backups scheduled", "schedule", schedule, "dst", gw.Config.History.BackupKey)
	return nil
}

// Jobs lists the scheduled jobs with their next run time.
func (gw *Gateway) Jobs() map[string]time.Time {
	if gw.cronMgr == nil {
		return map[string]time.Time{}
	}
	return gw.cronMgr.Jobs()
}

// Embed resolves text through the configured embedder.
func (gw *Gateway) Embed(ctx context.Context, text string) (memory.Embedding, error) {
	return gw.Embedder.Embed(ctx, text)
}

// Close stops scheduled jobs, writes the store one last time and releases
// the storage backend.
func (gw *Gateway) Close(ctx context.Context) error {
	if gw.cronMgr != nil {
		gw.cronMgr.Stop(ctx)
	}
	saveErr := gw.Agent.Save(ctx)
	if err := gw.KV.Close(); err != nil {
		return goerr.Wrap(err, "close storage")
	}
	return saveErr
}
