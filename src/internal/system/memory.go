package system

import (
	"log/slog"
	"runtime"
)

// Usage is a heap snapshot in whole megabytes.
type Usage struct {
	AllocMB      uint64 `json:"alloc_mb"`
	TotalAllocMB uint64 `json:"total_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
}

func ReadUsage() Usage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Usage{
		AllocMB:      bToMb(m.Alloc),
		TotalAllocMB: bToMb(m.TotalAlloc),
		SysMB:        bToMb(m.Sys),
		NumGC:        m.NumGC,
	}
}

// LogMemoryUsage logs heap figures after expensive loads such as a large
// history or a static embedding table. Extra attrs are appended as-is.
func LogMemoryUsage(tag string, attrs ...any) Usage {
	u := ReadUsage()
	args := append([]any{
		"tag", tag,
		"alloc_mb", u.AllocMB,
		"sys_mb", u.SysMB,
		"num_gc", u.NumGC,
	}, attrs...)
	slog.Debug("heap", args...)
	return u
}

func bToMb(b uint64) uint64 {
	return b >> 20
}
