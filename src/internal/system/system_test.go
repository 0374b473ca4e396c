package system

import (
	"runtime"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.OS != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("unexpected platform %s/%s", info.OS, info.Arch)
	}
	if info.Goroutines < 1 {
		t.Errorf("expected at least one goroutine, got %d", info.Goroutines)
	}
}

func TestBToMb(t *testing.T) {
	if got := bToMb(3 * 1024 * 1024); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestLogMemoryUsage(t *testing.T) {
	u := LogMemoryUsage("test", "experiences", 3)
	if u.SysMB < u.AllocMB {
		t.Errorf("sys %d below alloc %d", u.SysMB, u.AllocMB)
	}
}
