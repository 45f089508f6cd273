package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

type SystemStats struct {
	CPUPercent    float64
	MemoryPercent float64
	BytesRecv     uint64
	BytesSent     uint64
}

type SystemSampler interface {
	Sample(ctx context.Context) (SystemStats, error)
}

// HostSampler reads host-wide utilisation through gopsutil. CPU percent is
// measured since the previous call, so the first reading after start-up
// covers the interval since process start.
type HostSampler struct{}

func NewHostSampler() *HostSampler {
	return &HostSampler{}
}

func (HostSampler) Sample(ctx context.Context) (SystemStats, error) {
	var stats SystemStats

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("read memory stats: %w", err)
	}
	stats.MemoryPercent = vm.UsedPercent

	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return stats, fmt.Errorf("read cpu stats: %w", err)
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return stats, fmt.Errorf("read network counters: %w", err)
	}
	if len(counters) > 0 {
		stats.BytesRecv = counters[0].BytesRecv
		stats.BytesSent = counters[0].BytesSent
	}
	return stats, nil
}
