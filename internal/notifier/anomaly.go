package notifier

import (
	"fmt"
	"time"

	"infrasight/internal/models"
)

// Anomaly turns anomalous samples into notifications. Every anomalous sample
// produces exactly one notification; there is no suppression window.
type Anomaly struct {
	pub Publisher
	now func() time.Time
}

func NewAnomaly(pub Publisher) *Anomaly {
	return &Anomaly{pub: pub, now: time.Now}
}

// Observe inspects one newly appended sample of the given feed.
func (a *Anomaly) Observe(feed models.Source, s models.Sample) {
	if !s.Anomaly {
		return
	}
	a.pub.Publish(New(models.KindAnomaly, feed, "error", AnomalyMessage(feed), a.now()))
}

// Listener adapts Observe to a per-feed sample callback.
func (a *Anomaly) Listener(feed models.Source) func(models.Sample) {
	return func(s models.Sample) { a.Observe(feed, s) }
}

func AnomalyMessage(feed models.Source) string {
	return fmt.Sprintf("⚠️ %s Anomaly detected!", feed)
}
