// Package alertfeed mirrors the collaborator's alert log. Records are passed
// through as received.
package alertfeed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"infrasight/internal/metrics"
	"infrasight/internal/models"
	"infrasight/internal/predict"
)

type Fetcher interface {
	Alerts(ctx context.Context) ([]models.AlertRecord, error)
}

type Poller struct {
	fetch    Fetcher
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	latest  []models.AlertRecord
	updated time.Time
	now     func() time.Time
}

func NewPoller(fetch Fetcher, interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		fetch:    fetch,
		interval: interval,
		timeout:  timeout,
		log:      logger,
		now:      time.Now,
	}
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll fetches once. On failure the previous snapshot is kept.
func (p *Poller) Poll(ctx context.Context) {
	fctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	records, err := p.fetch.Alerts(fctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Str("kind", predict.KindOf(err)).Msg("alert feed poll failed")
		metrics.RecordFetchFailure("alerts", predict.KindOf(err))
		return
	}

	p.mu.Lock()
	p.latest = records
	p.updated = p.now()
	p.mu.Unlock()
	metrics.AlertFeedSize.Set(float64(len(records)))
}

// Latest returns a copy of the most recent snapshot and when it was taken.
func (p *Poller) Latest() ([]models.AlertRecord, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.AlertRecord, len(p.latest))
	copy(out, p.latest)
	return out, p.updated
}
