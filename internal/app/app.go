package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"infrasight/internal/alertfeed"
	"infrasight/internal/collector"
	"infrasight/internal/config"
	"infrasight/internal/fault"
	"infrasight/internal/notifier"
	"infrasight/internal/predict"
	"infrasight/internal/session"
	"infrasight/internal/web"
)

const (
	recentNotifications = 30
	dnsRefreshInterval  = 5 * time.Minute
	shutdownTimeout     = 5 * time.Second
)

// App wires one dashboard session to the prediction backend and serves it.
type App struct {
	cfg config.Config
	log zerolog.Logger

	client   *predict.Client
	inputs   collector.InputSynthesizer
	dispatch *notifier.Dispatcher
	recent   *notifier.Recent
	telegram *notifier.Telegram
	slack    *notifier.Slack
	session  *session.Session
	poller   *alertfeed.Poller
	hub      *web.Hub
	watcher  *config.EnvWatcher

	httpSrv    *http.Server
	metricsSrv *http.Server
}

func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	client := predict.NewClient(cfg.BackendURL, cfg.FetchTimeout)

	var inputs collector.InputSynthesizer
	switch cfg.LocalInputs {
	case "", "random":
		inputs = collector.RandomInputs{}
	case "host":
		inputs = collector.NewHostInputs()
	case "docker":
		inputs = collector.NewContainerInputs(cfg.DockerSocket)
	default:
		return nil, fmt.Errorf("unknown local inputs %q (want random, host or docker)", cfg.LocalInputs)
	}

	a := &App{
		cfg:      cfg,
		log:      logger,
		client:   client,
		inputs:   inputs,
		dispatch: notifier.NewDispatcher(logger.With().Str("module", "notifier").Logger()),
		recent:   notifier.NewRecent(recentNotifications),
		telegram: notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID),
		slack:    notifier.NewSlack(cfg.SlackWebhookURL),
	}

	a.hub = web.NewHub(func() any { return a.session.Snapshot() }, logger.With().Str("module", "ws").Logger())
	a.dispatch.AddSink(a.recent)
	a.dispatch.AddSink(notifier.LogSink{Log: logger.With().Str("module", "notifications").Logger()})
	a.dispatch.AddSink(a.hub)
	a.dispatch.AddChannel(a.telegram)
	a.dispatch.AddChannel(a.slack)

	a.session = session.New(session.Config{
		LocalInterval: cfg.LocalInterval,
		AWSInterval:   cfg.AWSInterval,
		FetchTimeout:  cfg.FetchTimeout,
		StreamSize:    cfg.BufferSize,
		HistorySize:   cfg.HistorySize,
		Fault:         fault.Config{Cooldown: cfg.InjectCooldown, EnforceCooldown: cfg.EnforceInjectCooldown},
	},
		collector.NewLocalSource(client, inputs),
		collector.NewAWSSource(client),
		a.dispatch,
		logger.With().Str("module", "collector").Logger(),
	)
	a.session.OnNewSample(a.hub.BroadcastSample)

	a.poller = alertfeed.NewPoller(client, cfg.AlertsInterval, cfg.FetchTimeout, logger.With().Str("module", "alerts").Logger())
	a.watcher = config.NewEnvWatcher(cfg.EnvFile, cfg.Credentials, a.applyCredentials, logger.With().Str("module", "env").Logger())

	srv := web.NewServer(a.session, a.poller, a.recent, a.hub, logger.With().Str("module", "http").Logger())
	a.httpSrv = &http.Server{Addr: cfg.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}
	return a, nil
}

func (a *App) Session() *session.Session { return a.session }

func (a *App) applyCredentials(c config.Credentials) {
	a.telegram.Update(c.TelegramBotToken, c.TelegramChatID)
	a.slack.Update(c.SlackWebhookURL)
}

// Run starts the samplers and serves until ctx is cancelled or a component
// fails. Samplers are stopped and pending notifications drained on return.
func (a *App) Run(ctx context.Context) error {
	if c, ok := a.inputs.(interface{ Check(context.Context) error }); ok {
		checkCtx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
		if err := c.Check(checkCtx); err != nil {
			a.log.Warn().Err(err).Msg("local inputs not ready, local ticks will be skipped until they answer")
		}
		cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := a.session.StartAll(gctx); err != nil {
		return err
	}
	a.log.Info().Str("backend", a.cfg.BackendURL).Msg("samplers started")

	g.Go(func() error { return a.hub.Run(gctx) })
	g.Go(func() error { return a.poller.Run(gctx) })
	g.Go(func() error { return a.client.RefreshDNS(gctx, dnsRefreshInterval) })
	if a.cfg.EnvFile != "" {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	serve(gctx, g, a.httpSrv, "http server", a.log)
	if a.metricsSrv != nil {
		serve(gctx, g, a.metricsSrv, "metrics server", a.log)
	}

	err := g.Wait()
	a.session.StopAll()
	a.dispatch.Wait()
	return err
}

func serve(ctx context.Context, g *errgroup.Group, srv *http.Server, name string, log zerolog.Logger) {
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg(name + " listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
