package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"infrasight/internal/buffer"
	"infrasight/internal/collector"
	"infrasight/internal/compare"
	"infrasight/internal/fault"
	"infrasight/internal/models"
	"infrasight/internal/notifier"
)

type Config struct {
	LocalInterval time.Duration
	AWSInterval   time.Duration
	FetchTimeout  time.Duration
	StreamSize    int
	HistorySize   int
	Fault         fault.Config
}

func DefaultConfig() Config {
	return Config{
		LocalInterval: 10 * time.Second,
		AWSInterval:   10 * time.Second,
		FetchTimeout:  5 * time.Second,
		StreamSize:    buffer.DashboardSize,
		HistorySize:   buffer.HistorySize,
		Fault:         fault.Config{Cooldown: fault.DefaultCooldown},
	}
}

// SampleFunc is called with every sample appended to either stream.
type SampleFunc func(feed models.Source, s models.Sample)

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Local         []models.Sample      `json:"local"`
	AWS           []models.Sample      `json:"aws"`
	AWSHistory    []models.MetricPoint `json:"aws_history"`
	LastInjection int64                `json:"last_injection"`
}

// Session owns the store, both samplers and the fault injector for one
// client session. It is discarded after StopAll.
type Session struct {
	cfg      Config
	store    *Store
	local    *collector.Sampler
	aws      *collector.Sampler
	injector *fault.Injector
	log      zerolog.Logger

	mu   sync.RWMutex
	subs []SampleFunc
}

type discard struct{}

func (discard) Publish(models.Notification) {}

func New(cfg Config, localSrc, awsSrc collector.Source, pub notifier.Publisher, logger zerolog.Logger) *Session {
	def := DefaultConfig()
	if cfg.LocalInterval <= 0 {
		cfg.LocalInterval = def.LocalInterval
	}
	if cfg.AWSInterval <= 0 {
		cfg.AWSInterval = def.AWSInterval
	}
	if pub == nil {
		pub = discard{}
	}

	store := NewStore(cfg.StreamSize, cfg.HistorySize)
	s := &Session{
		cfg:   cfg,
		store: store,
		log:   logger,
	}
	s.local = collector.NewSampler(localSrc, store, cfg.FetchTimeout, logger)
	s.aws = collector.NewSampler(awsSrc, store, cfg.FetchTimeout, logger)
	s.injector = fault.NewInjector(cfg.Fault, store, pub, logger)

	anomaly := notifier.NewAnomaly(pub)
	store.OnLocalSample(anomaly.Listener(models.SourceLocal))
	store.OnAWSSample(anomaly.Listener(models.SourceAWS))
	store.OnLocalSample(func(smp models.Sample) { s.emit(models.SourceLocal, smp) })
	store.OnAWSSample(func(smp models.Sample) { s.emit(models.SourceAWS, smp) })
	return s
}

// OnNewSample registers cb for samples of both feeds. Callbacks run on the
// appending goroutine and must not call back into the session's write paths.
func (s *Session) OnNewSample(cb SampleFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, cb)
}

func (s *Session) emit(feed models.Source, smp models.Sample) {
	s.mu.RLock()
	subs := s.subs
	s.mu.RUnlock()
	for _, cb := range subs {
		cb(feed, smp)
	}
}

func (s *Session) StartAll(ctx context.Context) error {
	if err := s.local.Start(ctx, s.cfg.LocalInterval); err != nil {
		return fmt.Errorf("start local sampler: %w", err)
	}
	if err := s.aws.Start(ctx, s.cfg.AWSInterval); err != nil {
		s.local.Stop()
		return fmt.Errorf("start aws sampler: %w", err)
	}
	return nil
}

// StopAll halts both samplers. No fetch result is appended after it returns.
func (s *Session) StopAll() {
	s.local.Stop()
	s.aws.Stop()
}

// Running reports whether both samplers are polling.
func (s *Session) Running() bool {
	return s.local.Running() && s.aws.Running()
}

// Refresh polls both sources once, outside their schedule.
func (s *Session) Refresh() {
	s.local.TriggerNow()
	s.aws.TriggerNow()
}

func (s *Session) InjectFault() (fault.Result, error) {
	return s.injector.Inject()
}

func (s *Session) InjectCooldownRemaining() time.Duration {
	return s.injector.Remaining()
}

// AlignedRows pairs the two dashboard streams by recency.
func (s *Session) AlignedRows() []models.AlignedRow {
	return compare.Align(s.store.Streams())
}

func (s *Session) Snapshot() Snapshot {
	local, aws := s.store.Streams()
	return Snapshot{
		Local:         local,
		AWS:           aws,
		AWSHistory:    s.store.AWSHistory(),
		LastInjection: s.store.LastInjectionMs(),
	}
}
