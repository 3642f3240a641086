package analytics

import (
	"os"
	"runtime"
)

// SystemInfo describes the host running the daemon.
type SystemInfo struct {
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	Hostname   string `json:"hostname"`
	CPUCores   int    `json:"cpu_cores"`
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	Disk       *Disk  `json:"disk,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SystemInfo reports runtime and host details. Disk usage is measured on
// the data directory.
func (a *Analytics) SystemInfo() SystemInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	info := SystemInfo{
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  ms.HeapAlloc,
	}
	if host, err := os.Hostname(); err == nil {
		info.Hostname = host
	}
	total, free, err := diskFree(a.diskPath())
	if err != nil {
		info.Error = err.Error()
		return info
	}
	if total > 0 {
		info.Disk = &Disk{
			TotalBytes:  total,
			FreeBytes:   free,
			UsedPercent: float64(total-free) / float64(total) * 100,
		}
	}
	return info
}
