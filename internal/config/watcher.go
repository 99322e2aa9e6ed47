package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EnvWatcher reloads notification credentials when the env file changes.
type EnvWatcher struct {
	path     string
	onChange func(Credentials)
	log      zerolog.Logger
	debounce time.Duration
	last     Credentials
}

func NewEnvWatcher(path string, initial Credentials, onChange func(Credentials), logger zerolog.Logger) *EnvWatcher {
	return &EnvWatcher{
		path:     path,
		onChange: onChange,
		log:      logger,
		debounce: 100 * time.Millisecond,
		last:     initial,
	}
}

// Run watches the directory holding the env file until ctx is done. Editors
// often replace the file instead of writing it, so events are matched by name.
func (w *EnvWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		w.log.Warn().Err(err).Str("path", abs).Msg("env watcher disabled")
		<-ctx.Done()
		return nil
	}
	w.log.Info().Str("env_path", abs).Msg("watching env file for credential changes")

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("env watcher error")
		}
	}
}

// Reload reads the env file and reports credentials that differ from the last
// applied set.
func (w *EnvWatcher) Reload() {
	creds, err := ReadCredentials(w.path)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to read env file")
		return
	}
	if creds == w.last {
		w.log.Debug().Msg("no credential changes in env file")
		return
	}
	w.last = creds
	w.log.Info().
		Bool("telegram", creds.TelegramBotToken != "" && creds.TelegramChatID != "").
		Bool("slack", creds.SlackWebhookURL != "").
		Bool("email", creds.Email.From != "" && creds.Email.Password != "" && creds.Email.To != "").
		Msg("applied env file credential changes")
	if w.onChange != nil {
		w.onChange(creds)
	}
}
