package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"infrasight/internal/metrics"
	"infrasight/internal/models"
	"infrasight/internal/predict"
)

var ErrInvalidInterval = errors.New("interval must be positive")

// Sink receives samples produced by a Sampler.
type Sink interface {
	Append(feed models.Source, s models.Sample) error
}

// Sampler polls one Source on a fixed interval and appends each successful
// reading to its sink. Ticks never wait for earlier fetches, so fetches from the
// same Sampler may overlap.
type Sampler struct {
	src     Source
	sink    Sink
	log     zerolog.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	running bool
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSampler(src Source, sink Sink, timeout time.Duration, logger zerolog.Logger) *Sampler {
	return &Sampler{
		src:     src,
		sink:    sink,
		log:     logger.With().Str("source", string(src.Name())).Logger(),
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *Sampler) Name() models.Source { return s.src.Name() }

// Start fetches once immediately and then every interval until Stop or until
// ctx is cancelled. Starting a running Sampler is a no-op.
func (s *Sampler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.gen++
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(s.ctx, s.gen, interval, s.done)
	s.log.Info().Dur("interval", interval).Msg("sampler started")
	return nil
}

// Stop halts the loop. Once it returns no tick fires and no in-flight fetch
// result reaches the sink. Stop is idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.gen++
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info().Msg("sampler stopped")
}

func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow runs one tick outside the schedule. It does nothing when stopped.
func (s *Sampler) TriggerNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	go s.tick(s.ctx, s.gen)
}

func (s *Sampler) loop(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	go s.tick(ctx, gen)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go s.tick(ctx, gen)
		}
	}
}

func (s *Sampler) tick(ctx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("fetch panicked")
			metrics.RecordFetchFailure(string(s.src.Name()), "panic")
		}
	}()

	fetchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reading, err := s.src.Fetch(fetchCtx)
	metrics.FetchDuration.WithLabelValues(string(s.src.Name())).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			s.log.Debug().Err(err).Msg("fetch abandoned after stop")
			return
		}
		if predict.IsTransient(err) {
			s.log.Warn().Err(err).Str("kind", predict.KindOf(err)).Msg("fetch failed, skipping tick")
		} else {
			s.log.Error().Err(err).Str("kind", predict.KindOf(err)).Msg("unusable prediction, skipping tick")
		}
		metrics.RecordFetchFailure(string(s.src.Name()), predict.KindOf(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.gen != gen {
		s.log.Debug().Msg("dropping result that arrived after stop")
		return
	}
	sample := models.NewSample(s.src.Name(), reading, s.now())
	if err := s.sink.Append(s.src.Name(), sample); err != nil {
		s.log.Error().Err(fmt.Errorf("append sample: %w", err)).Msg("append failed")
	}
}
