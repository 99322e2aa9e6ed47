package collector

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gomem "github.com/shirou/gopsutil/v4/mem"

	"infrasight/internal/models"
)

// InputSynthesizer produces the utilization inputs the Local source sends for scoring.
type InputSynthesizer interface {
	Synthesize(ctx context.Context) (models.Metrics, error)
}

// RandomInputs draws cpu in [10,60), mem in [20,70) and disk in [10,40), two decimals.
type RandomInputs struct {
	Float64 func() float64
}

func (r RandomInputs) Synthesize(context.Context) (models.Metrics, error) {
	f := r.Float64
	if f == nil {
		f = rand.Float64
	}
	return models.Metrics{
		CPU:  round2(f()*50 + 10),
		Mem:  round2(f()*50 + 20),
		Disk: round2(f()*30 + 10),
	}, nil
}

// System call wrappers for testing
var (
	cpuPercent    = gocpu.PercentWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	diskUsage     = godisk.UsageWithContext
)

// HostInputs reads real utilization of the machine running the engine.
type HostInputs struct {
	DiskPath string
	Window   time.Duration
}

func NewHostInputs() *HostInputs {
	return &HostInputs{DiskPath: "/", Window: time.Second}
}

func (h *HostInputs) Synthesize(ctx context.Context) (models.Metrics, error) {
	percentages, err := cpuPercent(ctx, h.Window, false)
	if err != nil {
		return models.Metrics{}, err
	}
	if len(percentages) == 0 {
		return models.Metrics{}, errors.New("cpu percent unavailable")
	}
	vm, err := virtualMemory(ctx)
	if err != nil {
		return models.Metrics{}, err
	}
	path := h.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := diskUsage(ctx, path)
	if err != nil {
		return models.Metrics{}, err
	}
	return models.Metrics{
		CPU:  round2(clampPct(percentages[0])),
		Mem:  round2(clampPct(vm.UsedPercent)),
		Disk: round2(clampPct(du.UsedPercent)),
	}, nil
}

func clampPct(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
