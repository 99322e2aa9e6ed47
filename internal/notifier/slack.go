package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Slack posts to an incoming webhook.
type Slack struct {
	mu         sync.RWMutex
	webhookURL string
	HTTP       *http.Client
}

func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.webhookURL != ""
}

func (s *Slack) Update(webhookURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = webhookURL
}

func (s *Slack) Send(ctx context.Context, msg string) error {
	s.mu.RLock()
	u := s.webhookURL
	s.mu.RUnlock()
	if u == "" {
		return ErrNotConfigured
	}
	b, _ := json.Marshal(map[string]string{"text": msg})
	return postJSON(ctx, s.HTTP, "slack", u, b)
}
