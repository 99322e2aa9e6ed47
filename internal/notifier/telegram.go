package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// Telegram delivers messages through a bot. Credentials may be swapped at
// runtime when the env file changes.
type Telegram struct {
	mu      sync.RWMutex
	token   string
	chatID  string
	BaseURL string
	HTTP    *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		BaseURL: telegramAPI,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != "" && t.chatID != ""
}

func (t *Telegram) Update(token, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	t.chatID = chatID
}

func (t *Telegram) Send(ctx context.Context, msg string) error {
	t.mu.RLock()
	token, chatID := t.token, t.chatID
	t.mu.RUnlock()
	if token == "" || chatID == "" {
		return ErrNotConfigured
	}

	payload := map[string]any{"chat_id": chatID, "text": msg, "disable_web_page_preview": true}
	b, _ := json.Marshal(payload)
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = telegramAPI
	}
	u := fmt.Sprintf("%s/bot%s/sendMessage", base, token)
	return postJSON(ctx, t.HTTP, "telegram", u, b)
}

func postJSON(ctx context.Context, client *http.Client, channel, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s status %d: %s", channel, res.StatusCode, string(resp))
	}
	return nil
}
