package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"

	"ait-main/src/internal/storage"
)

const jobTimeout = 30 * time.Second

// Manager runs housekeeping jobs on cron schedules with a seconds field.
type Manager struct {
	c    *cron.Cron
	jobs map[string]cron.EntryID
	mu   sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		c:    cron.New(cron.WithSeconds()),
		jobs: make(map[string]cron.EntryID),
	}
}

// AddJob schedules fn under id, replacing any job with the same id.
func (m *Manager) AddJob(id, spec string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[id]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, id)
	}

	entryID, err := m.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			slog.Error("cron job failed", "job_id", id, "spec", spec, "error", err)
			return
		}
		slog.Debug("cron job done", "job_id", id, "took", time.Since(start))
	})
	if err != nil {
		return goerr.Wrap(err, "schedule job", goerr.V("job_id", id), goerr.V("spec", spec))
	}
	m.jobs[id] = entryID
	return nil
}

// AddBackup copies the history slot src to dst on schedule. save, when not
// nil, runs first so the copy reflects the live store.
func (m *Manager) AddBackup(spec string, kv storage.KV, src, dst string, save func(ctx context.Context) error) error {
	return m.AddJob("backup-"+dst, spec, func(ctx context.Context) error {
		if save != nil {
			if err := save(ctx); err != nil {
				return err
			}
		}
		return storage.Backup(ctx, kv, src, dst)
	})
}

func (m *Manager) RemoveJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.jobs[id]; ok {
		m.c.Remove(entryID)
		delete(m.jobs, id)
	}
}

// Jobs lists scheduled job ids with their next run.
func (m *Manager) Jobs() map[string]time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time, len(m.jobs))
	for id, entryID := range m.jobs {
		out[id] = m.c.Entry(entryID).Next
	}
	return out
}

func (m *Manager) Start() {
	m.c.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (m *Manager) Stop(ctx context.Context) {
	done := m.c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("cron jobs still running at shutdown")
	}
}
