package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"infrasight/internal/backend/awsmetrics"
	"infrasight/internal/backend/db"
	"infrasight/internal/backend/engine"
	"infrasight/internal/backend/retention"
	"infrasight/internal/config"
	"infrasight/internal/logging"
	"infrasight/internal/notifier"
)

const retentionInterval = 6 * time.Hour

// Run serves the prediction API until ctx is cancelled.
func Run(ctx context.Context, cfg config.BackendConfig, logger zerolog.Logger) error {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqldb.Close()
	if err := db.Migrate(sqldb); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}
	repo := db.NewRepository(sqldb)

	// settings saved through the API win over the environment
	token, chatID, err := repo.LoadTelegramSettings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load stored telegram settings")
	}
	if token == "" {
		token = cfg.TelegramBotToken
	}
	if chatID == "" {
		chatID = cfg.TelegramChatID
	}
	telegram := notifier.NewTelegram(token, chatID)
	slack := notifier.NewSlack(cfg.SlackWebhookURL)
	email := notifier.NewEmail(emailConfig(cfg.Email))

	eng := engine.New(engine.Config{Cooldown: cfg.AlertCooldown, RiskThreshold: cfg.RiskThreshold},
		repo, []notifier.Channel{slack, email, telegram}, logging.Module("engine"))
	defer eng.Wait()

	srv := NewServer(repo, eng, awsSource(ctx, cfg, logger), telegram, logging.Module("http"))
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	ret := retention.NewService(repo, cfg.RetentionDays, logging.Module("retention"))
	watcher := config.NewEnvWatcher(cfg.EnvFile, cfg.Credentials, func(c config.Credentials) {
		slack.Update(c.SlackWebhookURL)
		email.Update(emailConfig(c.Email))
		if c.TelegramBotToken != "" && c.TelegramChatID != "" {
			telegram.Update(c.TelegramBotToken, c.TelegramChatID)
		}
	}, logging.Module("env"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("backend listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("backend http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return ret.Loop(gctx, retentionInterval) })
	if cfg.EnvFile != "" {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	return g.Wait()
}

// awsSource reads CloudWatch when an instance is configured and falls back to
// the random walk otherwise.
func awsSource(ctx context.Context, cfg config.BackendConfig, logger zerolog.Logger) awsmetrics.Source {
	if cfg.AWSRegion == "" || cfg.AWSInstanceID == "" {
		logger.Info().Msg("no AWS instance configured, serving synthetic EC2 metrics")
		return awsmetrics.NewSynthetic()
	}
	cw, err := awsmetrics.NewCloudWatchFromEnv(ctx, cfg.AWSRegion, cfg.AWSInstanceID)
	if err != nil {
		logger.Warn().Err(err).Msg("cloudwatch unavailable, serving synthetic EC2 metrics")
		return awsmetrics.NewSynthetic()
	}
	logger.Info().Str("region", cfg.AWSRegion).Str("instance", cfg.AWSInstanceID).Msg("reading EC2 metrics from CloudWatch")
	return cw
}

func emailConfig(c config.EmailCredentials) notifier.EmailConfig {
	return notifier.EmailConfig{
		From:     c.From,
		Password: c.Password,
		To:       notifier.SplitRecipients(c.To),
		SMTPHost: c.SMTPHost,
		SMTPPort: c.SMTPPort,
		TLS:      c.SMTPTLS,
	}
}
