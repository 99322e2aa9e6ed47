// Package awsmetrics provides EC2 readings for the aws-predict endpoint, from
// CloudWatch when an instance is configured and from a random walk otherwise.
// Memory is a fixed placeholder and disk carries read operations, not a
// percentage, matching what CloudWatch exposes without an agent.
package awsmetrics

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"

	"infrasight/internal/models"
)

// PlaceholderMem is reported for memory since EC2 does not publish it by default.
const PlaceholderMem = 60.0

type Source interface {
	Metrics(ctx context.Context) (models.Metrics, error)
}

// Synthetic is the offline fallback: a bounded random walk over CPU utilization and disk read ops.
type Synthetic struct {
	mu      sync.Mutex
	cpu     float64
	readOps float64
	step    float64
	rnd     func() float64
}

func NewSynthetic() *Synthetic {
	return &Synthetic{cpu: 35, readOps: 20, step: 15, rnd: rand.Float64}
}

func (s *Synthetic) Metrics(context.Context) (models.Metrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpu = walk(s.cpu, s.step, s.rnd(), 0, 100)
	s.readOps = walk(s.readOps, s.step, s.rnd(), 0, 120)
	return models.Metrics{
		CPU:  math.Round(s.cpu*100) / 100,
		Mem:  PlaceholderMem,
		Disk: math.Round(s.readOps*100) / 100,
	}, nil
}

func walk(v, step, r, lo, hi float64) float64 {
	v += (r*2 - 1) * step
	return math.Max(lo, math.Min(v, hi))
}
