package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrasight/internal/config"
	"infrasight/internal/models"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"risk_score":27.5,"anomaly":false}`))
	})
	mux.HandleFunc("/api/v1/aws-predict", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"source":"AWS CloudWatch","metrics":{"cpu":96,"mem":60,"disk":12},"prediction":{"risk_score":68.4,"anomaly":true}}`))
	})
	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"source":"AWS","severity":"critical","subject":"InfraSight - High Risk","message":"m","timestamp":"2026-01-01 00:00:00"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(backendURL string) config.Config {
	return config.Config{
		Addr:           "127.0.0.1:0",
		BackendURL:     backendURL,
		LocalInterval:  20 * time.Millisecond,
		AWSInterval:    20 * time.Millisecond,
		AlertsInterval: 20 * time.Millisecond,
		FetchTimeout:   time.Second,
		LocalInputs:    "random",
		BufferSize:     5,
		HistorySize:    3,
		InjectCooldown: time.Minute,
	}
}

func TestNewRejectsUnknownInputs(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.LocalInputs = "gpu"
	_, err := New(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown local inputs")
}

func TestRunPollsBackendAndStopsOnCancel(t *testing.T) {
	backend := fakeBackend(t)
	a, err := New(testConfig(backend.URL), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		snap := a.Session().Snapshot()
		return len(snap.Local) > 0 && len(snap.AWS) > 0
	}, 3*time.Second, 10*time.Millisecond)

	snap := a.Session().Snapshot()
	assert.Equal(t, 27.5, snap.Local[0].Risk)
	assert.True(t, snap.AWS[0].Anomaly)
	assert.LessOrEqual(t, len(snap.AWS), 5)

	require.Eventually(t, func() bool {
		for _, n := range a.recent.List() {
			if n.Kind == models.KindAnomaly && n.Source == models.SourceAWS {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		recs, _ := a.poller.Latest()
		return len(recs) == 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, a.Session().Running())
}

func TestApplyCredentialsEnablesChannels(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:1"), zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, a.telegram.Enabled())
	assert.False(t, a.slack.Enabled())

	a.applyCredentials(config.Credentials{TelegramBotToken: "t", TelegramChatID: "c", SlackWebhookURL: "https://hooks.example/x"})
	assert.True(t, a.telegram.Enabled())
	assert.True(t, a.slack.Enabled())
}
