package report

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemInfo describes the machine that produced a build, since compression
// throughput and audit timings depend on it.
type SystemInfo struct {
	Hostname        string  `json:"hostname" yaml:"hostname"`
	Platform        string  `json:"platform" yaml:"platform"`
	PlatformVersion string  `json:"platform_version" yaml:"platform_version"`
	Arch            string  `json:"arch" yaml:"arch"`
	CPUModel        string  `json:"cpu_model" yaml:"cpu_model"`
	CPUCores        int     `json:"cpu_cores" yaml:"cpu_cores"`
	MemoryTotalGB   float64 `json:"memory_total_gb" yaml:"memory_total_gb"`
}

// CollectSystemInfo gathers host details. Fields that cannot be read are
// left empty.
func CollectSystemInfo(ctx context.Context) *SystemInfo {
	info := &SystemInfo{Arch: runtime.GOARCH}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotalGB = float64(vm.Total) / (1 << 30)
	}

	return info
}
