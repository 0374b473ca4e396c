package system

import (
	"runtime"
)

// Info describes the running process for the stats endpoint and CLI.
type Info struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	GoVersion  string `json:"go_version"`
	Goroutines int    `json:"goroutines"`
	CPUs       int    `json:"cpus"`
	Usage
}

func GetInfo() Info {
	return Info{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		Usage:      ReadUsage(),
	}
}
