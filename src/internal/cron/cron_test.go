package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"ait-main/src/internal/storage"
)

func TestAddJob_InvalidSpec(t *testing.T) {
	m := NewManager()
	if err := m.AddJob("bad", "every now and then", func(context.Context) error { return nil }); err == nil {
		t.Error("expected an invalid spec to fail")
	}
	if len(m.Jobs()) != 0 {
		t.Error("expected nothing scheduled")
	}
}

func TestAddJob_Replace(t *testing.T) {
	m := NewManager()
	noop := func(context.Context) error { return nil }

	if err := m.AddJob("a", "0 0 * * * *", noop); err != nil {
		t.Fatal(err)
	}
	if err := m.AddJob("a", "0 30 * * * *", noop); err != nil {
		t.Fatal(err)
	}
	if len(m.Jobs()) != 1 {
		t.Errorf("expected the job to be replaced, got %v", m.Jobs())
	}

	m.RemoveJob("a")
	if len(m.Jobs()) != 0 {
		t.Errorf("expected no jobs, got %v", m.Jobs())
	}
}

func TestAddBackup_Runs(t *testing.T) {
	ctx := context.Background()
	kv, err := storage.NewFileKV(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := kv.Set(ctx, "src", []byte("blob")); err != nil {
		t.Fatal(err)
	}

	var saves atomic.Int32
	m := NewManager()
	err = m.AddBackup("* * * * * *", kv, "src", "dst", func(context.Context) error {
		saves.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	m.Start()
	defer m.Stop(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, err := kv.Get(ctx, "dst"); err == nil && string(got) == "blob" {
			if saves.Load() == 0 {
				t.Error("expected save to run before the copy")
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("backup did not run in time")
}
