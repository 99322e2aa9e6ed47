package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"infrasight/internal/backend/db"
	"infrasight/internal/backend/scoring"
	"infrasight/internal/metrics"
	"infrasight/internal/notifier"
)

const alertSubject = "🚨 InfraSight High Risk"

// AlertLog is where the engine records alerts and delivery attempts.
type AlertLog interface {
	InsertAlert(ctx context.Context, a db.Alert) (int64, error)
	InsertNotificationEvent(ctx context.Context, alertID int64, channel, status string, attempts int, lastErr string, sent *time.Time) error
}

type Config struct {
	Cooldown      time.Duration
	RiskThreshold float64
}

// Result is the prediction returned to callers.
type Result struct {
	RiskScore float64       `json:"risk_score"`
	Anomaly   bool          `json:"anomaly"`
	Metrics   scoring.Input `json:"metrics"`
	RootCause *string       `json:"root_cause"`
}

// Engine scores readings and raises at most one alert per cooldown window,
// shared across all sources.
type Engine struct {
	cfg      Config
	repo     AlertLog
	channels []notifier.Channel
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(time.Duration)

	mu        sync.Mutex
	lastAlert time.Time
	wg        sync.WaitGroup
}

func New(cfg Config, repo AlertLog, channels []notifier.Channel, logger zerolog.Logger) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 180 * time.Second
	}
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = 85
	}
	return &Engine{cfg: cfg, repo: repo, channels: channels, log: logger, now: time.Now, sleep: time.Sleep}
}

func (e *Engine) Evaluate(ctx context.Context, in scoring.Input, source string) Result {
	res := Result{
		RiskScore: scoring.RiskScore(in.CPU, in.Mem, in.Disk),
		Anomaly:   scoring.IsAnomaly(in.CPU, in.Mem, in.Disk),
		Metrics:   in,
	}

	e.mu.Lock()
	now := e.now()
	elapsed := e.lastAlert.IsZero() || now.Sub(e.lastAlert) > e.cfg.Cooldown
	risky := res.Anomaly || res.RiskScore >= e.cfg.RiskThreshold
	if elapsed {
		e.lastAlert = now
	}
	e.mu.Unlock()

	if !elapsed {
		return res
	}
	if !risky {
		e.record(ctx, db.Alert{
			Source:   source,
			Subject:  fmt.Sprintf("%s Normal", source),
			Message:  fmt.Sprintf("Stable - Risk %s%%", formatScore(res.RiskScore)),
			Severity: "info",
			At:       now,
		})
		return res
	}

	rootCause := scoring.RootCause(in)
	res.RootCause = &rootCause
	msg := fmt.Sprintf("🚨 [InfraSight] %s anomaly detected!\n\nCPU: %.1f%% | MEM: %.1f%% | DISK: %.1f%%\nRisk Score: %s\n\nRoot Cause: %s",
		source, in.CPU, in.Mem, in.Disk, formatScore(res.RiskScore), rootCause)
	alertID := e.record(ctx, db.Alert{
		Source:    source,
		Subject:   "InfraSight - High Risk",
		Message:   msg,
		RootCause: rootCause,
		Severity:  "critical",
		At:        now,
	})
	e.log.Warn().Str("source", source).Float64("risk", res.RiskScore).Bool("anomaly", res.Anomaly).Msg("high risk alert raised")

	for _, c := range e.channels {
		e.wg.Add(1)
		go func(c notifier.Channel) {
			defer e.wg.Done()
			e.deliver(context.WithoutCancel(ctx), c, alertID, msg, rootCause)
		}(c)
	}
	return res
}

// Wait blocks until outbound deliveries started so far have finished.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) record(ctx context.Context, a db.Alert) int64 {
	id, err := e.repo.InsertAlert(ctx, a)
	if err != nil {
		e.log.Error().Err(err).Str("subject", a.Subject).Msg("failed to log alert")
		return 0
	}
	metrics.BackendAlertsTotal.WithLabelValues(a.Source, a.Severity).Inc()
	return id
}

// deliver sends msg on one channel. An unconfigured channel is logged as a
// demo alert instead.
func (e *Engine) deliver(ctx context.Context, c notifier.Channel, alertID int64, msg, rootCause string) {
	title := channelTitle(c.Name())
	if !c.Enabled() {
		e.log.Info().Str("channel", c.Name()).Msg("channel not configured, recording demo alert")
		e.record(ctx, db.Alert{Source: title, Subject: title + " Alert (Demo)", Message: msg, RootCause: rootCause, Severity: "info", At: e.now()})
		return
	}

	attempts := 0
	var err error
	for attempts < 3 {
		attempts++
		if as, ok := c.(notifier.AlertSender); ok {
			err = as.SendAlert(ctx, alertSubject, msg, rootCause)
		} else {
			err = c.Send(ctx, msg)
		}
		if err == nil {
			now := e.now().UTC()
			_ = e.repo.InsertNotificationEvent(ctx, alertID, c.Name(), "sent", attempts, "", &now)
			e.record(ctx, db.Alert{Source: title, Subject: "InfraSight Alert", Message: msg, RootCause: rootCause, Severity: "critical", At: now})
			return
		}
		if attempts < 3 {
			e.sleep(time.Duration(attempts) * 300 * time.Millisecond)
		}
	}
	_ = e.repo.InsertNotificationEvent(ctx, alertID, c.Name(), "failed", attempts, err.Error(), nil)
	e.record(ctx, db.Alert{Source: title, Subject: title + " Alert Failed", Message: err.Error(), RootCause: err.Error(), Severity: "error", At: e.now()})
	e.log.Warn().Err(err).Str("channel", c.Name()).Msg("notify failed")
}

func channelTitle(name string) string {
	if name == "" {
		return "System"
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// formatScore renders a score without trailing zeros, so 39 prints as "39".
func formatScore(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
