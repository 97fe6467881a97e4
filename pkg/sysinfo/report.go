// Package sysinfo produces point-in-time device reports from kernel
// statistics. The report backs the local API's device endpoint and the
// snapshot logged at daemon start.
package sysinfo

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/loadavg"
	"github.com/mackerelio/go-osstat/memory"
	"github.com/mackerelio/go-osstat/uptime"
)

// Report is a snapshot of the device the agent runs on.
type Report struct {
	Hostname      string    `json:"hostname"`
	OS            string    `json:"os"`
	Arch          string    `json:"arch"`
	NumCPU        int       `json:"num_cpu"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Load          Load      `json:"load"`
	Memory        Memory    `json:"memory"`
	CPU           CPUTimes  `json:"cpu"`
	CollectedAt   time.Time `json:"collected_at"`

	// Errors lists the subsystems that could not be read. The remaining
	// fields are still populated.
	Errors []string `json:"errors,omitempty"`
}

// Load holds the 1, 5 and 15 minute load averages.
type Load struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// Memory holds physical and swap memory usage in bytes.
type Memory struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	CachedBytes    uint64 `json:"cached_bytes"`
	FreeBytes      uint64 `json:"free_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
	SwapTotalBytes uint64 `json:"swap_total_bytes"`
	SwapUsedBytes  uint64 `json:"swap_used_bytes"`
}

// CPUTimes holds cumulative CPU time counters since boot.
type CPUTimes struct {
	User   uint64 `json:"user"`
	Nice   uint64 `json:"nice"`
	System uint64 `json:"system"`
	Idle   uint64 `json:"idle"`
	Iowait uint64 `json:"iowait"`
	Total  uint64 `json:"total"`
	Count  int    `json:"count"`
}

// Collect gathers a fresh report. Individual subsystem failures are
// recorded in Errors instead of aborting the snapshot.
func Collect() *Report {
	report := &Report{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		NumCPU:      runtime.NumCPU(),
		CollectedAt: time.Now().UTC(),
	}

	hostname, err := os.Hostname()
	if err != nil {
		report.addError("hostname", err)
	} else {
		report.Hostname = hostname
	}

	if up, err := uptime.Get(); err != nil {
		report.addError("uptime", err)
	} else {
		report.UptimeSeconds = up.Seconds()
	}

	if load, err := loadavg.Get(); err != nil {
		report.addError("loadavg", err)
	} else {
		report.Load = Load{
			Load1:  load.Loadavg1,
			Load5:  load.Loadavg5,
			Load15: load.Loadavg15,
		}
	}

	if mem, err := memory.Get(); err != nil {
		report.addError("memory", err)
	} else {
		report.Memory = Memory{
			TotalBytes:     mem.Total,
			UsedBytes:      mem.Used,
			CachedBytes:    mem.Cached,
			FreeBytes:      mem.Free,
			AvailableBytes: mem.Available,
			SwapTotalBytes: mem.SwapTotal,
			SwapUsedBytes:  mem.SwapUsed,
		}
	}

	if times, err := cpu.Get(); err != nil {
		report.addError("cpu", err)
	} else {
		report.CPU = CPUTimes{
			User:   times.User,
			Nice:   times.Nice,
			System: times.System,
			Idle:   times.Idle,
			Iowait: times.Iowait,
			Total:  times.Total,
			Count:  times.CPUCount,
		}
	}

	return report
}

// UsedMemoryPercent returns used memory as a percentage of total, or 0
// when the memory probe failed.
func (r *Report) UsedMemoryPercent() float64 {
	if r.Memory.TotalBytes == 0 {
		return 0
	}
	return float64(r.Memory.UsedBytes) / float64(r.Memory.TotalBytes) * 100
}

func (r *Report) addError(subsystem string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", subsystem, err))
}
