package docker

import (
	"context"
	"fmt"
)

// Usage is one container's share of the host.
type Usage struct {
	ContainerID string
	// CPUShare is the fraction of total host CPU time, 0..1.
	CPUShare float64
	MemBytes uint64
}

// NormalizeStats converts a raw stats sample. Page cache is excluded from
// memory the same way `docker stats` does.
func NormalizeStats(id string, s Stats) Usage {
	var share float64
	sysDelta := float64(s.CPUStats.SystemCPUUsage) - float64(s.PreCPUStats.SystemCPUUsage)
	cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage) - float64(s.PreCPUStats.CPUUsage.TotalUsage)
	if sysDelta > 0 && cpuDelta >= 0 {
		share = cpuDelta / sysDelta
	}

	mem := s.MemoryStats.Usage
	cache := s.MemoryStats.Stats["inactive_file"]
	if cache == 0 {
		cache = s.MemoryStats.Stats["total_inactive_file"]
	}
	if cache < mem {
		mem -= cache
	}
	return Usage{ContainerID: id, CPUShare: share, MemBytes: mem}
}

// Totals sums usage across all running containers.
func (c *Client) Totals(ctx context.Context) (cpuShare float64, memBytes uint64, n int, err error) {
	containers, err := c.RunningContainers(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list containers: %w", err)
	}
	for _, ct := range containers {
		s, err := c.Stats(ctx, ct.ID)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("stats %s: %w", ct.ID, err)
		}
		u := NormalizeStats(ct.ID, s)
		cpuShare += u.CPUShare
		memBytes += u.MemBytes
	}
	return cpuShare, memBytes, len(containers), nil
}
