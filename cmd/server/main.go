package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"infrasight/internal/app"
	"infrasight/internal/backend"
	"infrasight/internal/config"
	"infrasight/internal/logging"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type options struct {
	envFile    string
	logLevel   string
	logFormat  string
	addr       string
	backendURL string
}

var opts options

var rootCmd = &cobra.Command{
	Use:           "infrasight",
	Short:         "InfraSight - side-by-side local and AWS risk dashboard",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the prediction backend and serve the dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the reference prediction and alert service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackend(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "InfraSight %s\n", Version)
		if GitCommit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.envFile, "env-file", "", "dotenv file to load and watch (default $APP_ENV_FILE or .env)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: json, console, auto")
	pf.StringVar(&opts.addr, "addr", "", "listen address")
	rootCmd.Flags().StringVar(&opts.backendURL, "backend-url", "", "prediction backend base URL")
	serveCmd.Flags().StringVar(&opts.backendURL, "backend-url", "", "prediction backend base URL")

	rootCmd.AddCommand(serveCmd, backendCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv exports the dotenv file before any config is read so its keys act
// as defaults under the real environment.
func loadEnv(cmd *cobra.Command) (string, error) {
	path := os.Getenv("APP_ENV_FILE")
	if cmd.Flags().Changed("env-file") {
		path = opts.envFile
	}
	if path == "" {
		path = ".env"
	}
	if err := config.LoadEnvFile(path); err != nil {
		return "", fmt.Errorf("load env file %s: %w", path, err)
	}
	return path, nil
}

func serveConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, err := loadEnv(cmd)
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Load()
	cfg.EnvFile = envFile
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if flags.Changed("backend-url") {
		cfg.BackendURL = opts.backendURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	return cfg, nil
}

func backendConfig(cmd *cobra.Command) (config.BackendConfig, error) {
	envFile, err := loadEnv(cmd)
	if err != nil {
		return config.BackendConfig{}, err
	}
	cfg := config.LoadBackend()
	cfg.EnvFile = envFile
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "infrasight"})
	logger.Info().
		Str("addr", cfg.Addr).
		Str("backend", cfg.BackendURL).
		Str("version", Version).
		Msg("starting infrasight")

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown with error")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func runBackend(cmd *cobra.Command) error {
	cfg, err := backendConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "infrasight-backend"})
	logger.Info().Str("addr", cfg.Addr).Str("db", cfg.DBPath).Msg("starting prediction backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := backend.Run(ctx, cfg, logger); err != nil {
		log.Error().Err(err).Msg("backend stopped with error")
		return err
	}
	return nil
}
