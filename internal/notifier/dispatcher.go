package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"infrasight/internal/buffer"
	"infrasight/internal/metrics"
	"infrasight/internal/models"
)

var ErrNotConfigured = errors.New("channel not configured")

const maxAttempts = 3

// Sink receives every published notification synchronously.
type Sink interface {
	Notify(n models.Notification) error
}

// Channel is an outbound destination. Channels are only used while Enabled and
// are delivered to in the background with retries.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg string) error
}

// AlertSender is implemented by channels that carry a subject and render the
// root cause separately from the alert text.
type AlertSender interface {
	SendAlert(ctx context.Context, subject, body, rootCause string) error
}

// Publisher accepts notifications for delivery.
type Publisher interface {
	Publish(n models.Notification)
}

// Dispatcher fans each notification out to in-process sinks and outbound
// channels. Failures are logged and never reported to the publisher.
type Dispatcher struct {
	mu       sync.RWMutex
	sinks    []Sink
	channels []Channel

	log         zerolog.Logger
	sendTimeout time.Duration
	sleep       func(time.Duration)
	wg          sync.WaitGroup
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log:         logger,
		sendTimeout: 15 * time.Second,
		sleep:       time.Sleep,
	}
}

func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) AddChannel(c Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, c)
}

func (d *Dispatcher) Publish(n models.Notification) {
	d.mu.RLock()
	sinks := append([]Sink(nil), d.sinks...)
	channels := append([]Channel(nil), d.channels...)
	d.mu.RUnlock()

	metrics.RecordNotification(string(n.Kind), string(n.Source))

	for _, s := range sinks {
		if err := s.Notify(n); err != nil {
			d.log.Warn().Err(err).Str("notification", n.ID).Msg("sink rejected notification")
		}
	}
	for _, c := range channels {
		if !c.Enabled() {
			continue
		}
		d.wg.Add(1)
		go func(c Channel) {
			defer d.wg.Done()
			d.deliver(c, n)
		}(c)
	}
}

// Wait blocks until background deliveries started so far have finished.
// Every caller of Publish must have returned, and no new Publish may start,
// before Wait is called: a Publish racing with Wait breaks the WaitGroup
// contract. Stop the publishers first, as App.Run does with StopAll.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) deliver(c Channel, n models.Notification) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
		err = c.Send(ctx, n.Message)
		cancel()
		if err == nil {
			d.log.Debug().Str("channel", c.Name()).Int("attempts", attempt).Msg("notification sent")
			return
		}
		if errors.Is(err, ErrNotConfigured) {
			return
		}
		if attempt < maxAttempts {
			d.sleep(time.Duration(attempt) * 300 * time.Millisecond)
		}
	}
	d.log.Warn().Err(err).Str("channel", c.Name()).Int("attempts", maxAttempts).Msg("notify failed")
}

// New builds a notification stamped with a fresh ULID.
func New(kind models.NotificationKind, src models.Source, level, msg string, at time.Time) models.Notification {
	return models.Notification{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Source:  src,
		Level:   level,
		Message: msg,
		At:      at,
	}
}

// Recent keeps the last notifications for the HTTP API.
type Recent struct {
	buf *buffer.Stream[models.Notification]
}

func NewRecent(capacity int) *Recent {
	return &Recent{buf: buffer.New[models.Notification](capacity)}
}

func (r *Recent) Notify(n models.Notification) error {
	r.buf.Push(n)
	return nil
}

// List returns notifications oldest first.
func (r *Recent) List() []models.Notification { return r.buf.Snapshot() }

// LogSink writes each notification to the structured log.
type LogSink struct {
	Log zerolog.Logger
}

func (l LogSink) Notify(n models.Notification) error {
	ev := l.Log.Info()
	if n.Level == "error" {
		ev = l.Log.Warn()
	}
	ev.Str("id", n.ID).
		Str("kind", string(n.Kind)).
		Str("source", string(n.Source)).
		Msg(strings.TrimSpace(n.Message))
	return nil
}
