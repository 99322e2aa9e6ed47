// Package fault synthesizes a high-risk sample pair on demand so the anomaly
// path can be exercised without waiting for a real incident.
package fault

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"infrasight/internal/metrics"
	"infrasight/internal/models"
	"infrasight/internal/notifier"
)

// DefaultCooldown is the minimum spacing between injections when enforcement is on.
const DefaultCooldown = 5 * time.Minute

const ConfirmationMessage = "🚨 Simulated failure injected to both Local and AWS monitors"

var ErrCooldown = errors.New("fault injection cooling down")

// Target receives both synthetic samples in one step.
type Target interface {
	InjectPair(local, aws models.Sample, at time.Time)
	LastInjection() time.Time
}

type Config struct {
	Cooldown        time.Duration
	EnforceCooldown bool
}

type Result struct {
	Local models.Sample `json:"local"`
	AWS   models.Sample `json:"aws"`
	At    time.Time     `json:"at"`
}

type Injector struct {
	cfg    Config
	target Target
	pub    notifier.Publisher
	log    zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewInjector(cfg Config, target Target, pub notifier.Publisher, logger zerolog.Logger) *Injector {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Injector{cfg: cfg, target: target, pub: pub, log: logger, now: time.Now}
}

// LocalFault and AWSFault are the readings injected on each side.
var (
	LocalFault = models.Reading{
		Metrics:    models.Metrics{CPU: 95, Mem: 92, Disk: 85},
		Prediction: models.Prediction{RiskScore: 110, Anomaly: true},
	}
	AWSFault = models.Reading{
		Metrics:    models.Metrics{CPU: 98, Mem: 90, Disk: 75},
		Prediction: models.Prediction{RiskScore: 112, Anomaly: true},
	}
)

// Inject appends one synthetic anomalous sample to each stream and confirms it
// with a single notification. With cooldown enforcement on, an injection inside
// the window returns ErrCooldown and changes nothing.
func (i *Injector) Inject() (Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if remaining := i.remaining(now); remaining > 0 {
		i.log.Info().Dur("remaining", remaining).Msg("injection rejected, cooldown active")
		return Result{}, ErrCooldown
	}

	res := Result{
		Local: models.NewSample(models.SourceSimulated, LocalFault, now),
		AWS:   models.NewSample(models.SourceSimulated, AWSFault, now),
		At:    now,
	}
	i.target.InjectPair(res.Local, res.AWS, now)
	metrics.FaultInjectionsTotal.Inc()
	i.log.Info().Time("at", now).Msg("simulated failure injected")

	if i.pub != nil {
		i.pub.Publish(notifier.New(models.KindInjection, models.SourceSimulated, "success", ConfirmationMessage, now))
	}
	return res, nil
}

// Remaining reports how long until the next injection is allowed; always zero
// when enforcement is off.
func (i *Injector) Remaining() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.remaining(i.now())
}

func (i *Injector) remaining(now time.Time) time.Duration {
	if !i.cfg.EnforceCooldown {
		return 0
	}
	last := i.target.LastInjection()
	if last.IsZero() {
		return 0
	}
	if left := i.cfg.Cooldown - now.Sub(last); left > 0 {
		return left
	}
	return 0
}
