package app

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type healthResponse struct {
	Status    string                    `json:"status"`
	Timestamp time.Time                 `json:"timestamp"`
	Uptime    string                    `json:"uptime"`
	Services  map[string]string         `json:"services"`
	Checks    map[string]healthCheck    `json:"checks"`
}

type healthCheck struct {
	Status string  `json:"status"`
	Detail string  `json:"detail,omitempty"`
	Value  float64 `json:"value,omitempty"`
}

// healthHandler reports per-component status plus resource-pressure
// checks (CPU, memory, disk, open file descriptors), the same surface
// shape the teacher's health endpoint exposes.
func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"scanner":   "healthy",
		"buffer":    "healthy",
		"index":     "healthy",
		"search":    "healthy",
		"retention": "healthy",
		"alarm":     "healthy",
	}

	out := app.router.OutOfSyncShards()
	if len(out) > 0 {
		services["index"] = "degraded"
	}
	for _, store := range app.shardStores {
		if store.Degraded() {
			services["index"] = "critical"
			break
		}
	}
	if app.buf.Utilization() > 0.9 {
		services["buffer"] = "warning"
	}

	checks := map[string]healthCheck{
		"cpu":               checkCPU(),
		"memory":            checkMemory(),
		"disk":              checkDiskSpace(app.config.DataDir),
		"file_descriptors":  checkFileDescriptorUsage(),
		"buffer_utilization": {Status: "healthy", Value: app.buf.Utilization()},
	}

	allHealthy := true
	for _, s := range services {
		if s != "healthy" {
			allHealthy = false
		}
	}
	for _, c := range checks {
		if c.Status != "healthy" {
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(app.startTime).String(),
		Services:  services,
		Checks:    checks,
	})
}

// checkCPU surfaces host CPU pressure, following the teacher's pattern
// of reading gopsutil/v3/cpu once per health check rather than
// maintaining a background sampler.
func checkCPU() healthCheck {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return healthCheck{Status: "healthy", Detail: "cpu stats unavailable"}
	}
	used := percents[0]
	status := "healthy"
	if used > 90 {
		status = "critical"
	} else if used > 75 {
		status = "warning"
	}
	return healthCheck{Status: status, Value: used}
}

func checkMemory() healthCheck {
	v, err := mem.VirtualMemory()
	if err != nil {
		return healthCheck{Status: "healthy", Detail: "memory stats unavailable"}
	}
	status := "healthy"
	if v.UsedPercent > 90 {
		status = "critical"
	} else if v.UsedPercent > 75 {
		status = "warning"
	}
	return healthCheck{Status: status, Value: v.UsedPercent}
}

// checkDiskSpace reports free space pressure on the volume holding path.
func checkDiskSpace(path string) healthCheck {
	usage, err := disk.Usage(path)
	if err != nil {
		return healthCheck{Status: "healthy", Detail: "disk stats unavailable"}
	}
	status := "healthy"
	if usage.UsedPercent > 95 {
		status = "critical"
	} else if usage.UsedPercent > 85 {
		status = "warning"
	}
	return healthCheck{Status: status, Value: usage.UsedPercent}
}

// checkFileDescriptorUsage counts this process's open file descriptors
// via /proc, the same mechanism the teacher's health check uses on Linux.
func checkFileDescriptorUsage() healthCheck {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return healthCheck{Status: "healthy", Detail: "fd stats unavailable"}
	}
	count := len(entries)
	status := "healthy"
	if count > 10000 {
		status = "warning"
	}
	return healthCheck{Status: status, Value: float64(count)}
}
