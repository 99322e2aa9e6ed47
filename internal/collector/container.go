package collector

import (
	"context"
	"errors"
	"fmt"

	"infrasight/internal/docker"
	"infrasight/internal/models"
)

// ContainerTotals reports the summed utilization of running containers.
type ContainerTotals interface {
	Totals(ctx context.Context) (cpuShare float64, memBytes uint64, n int, err error)
}

// ContainerInputs scores the load of the local container workload: cpu and
// memory are the containers' share of the host, disk is the host volume.
type ContainerInputs struct {
	Docker   ContainerTotals
	DiskPath string
}

func NewContainerInputs(socketPath string) *ContainerInputs {
	return &ContainerInputs{Docker: docker.NewClient(socketPath), DiskPath: "/"}
}

// Check reports whether the Docker daemon answers, when the client can ping it.
func (c *ContainerInputs) Check(ctx context.Context) error {
	p, ok := c.Docker.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if err := p.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon: %w", err)
	}
	return nil
}

func (c *ContainerInputs) Synthesize(ctx context.Context) (models.Metrics, error) {
	share, memBytes, _, err := c.Docker.Totals(ctx)
	if err != nil {
		return models.Metrics{}, err
	}
	vm, err := virtualMemory(ctx)
	if err != nil {
		return models.Metrics{}, err
	}
	if vm.Total == 0 {
		return models.Metrics{}, errors.New("host memory total unavailable")
	}
	path := c.DiskPath
	if path == "" {
		path = "/"
	}
	du, err := diskUsage(ctx, path)
	if err != nil {
		return models.Metrics{}, err
	}
	return models.Metrics{
		CPU:  round2(clampPct(share * 100)),
		Mem:  round2(clampPct(float64(memBytes) / float64(vm.Total) * 100)),
		Disk: round2(clampPct(du.UsedPercent)),
	}, nil
}
