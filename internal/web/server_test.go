package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrasight/internal/fault"
	"infrasight/internal/models"
	"infrasight/internal/session"
)

type fakeSession struct {
	snap      session.Snapshot
	rows      []models.AlignedRow
	injectErr error
	remaining time.Duration
	refreshed int
	injected  int
	running   bool
}

func (f *fakeSession) Snapshot() session.Snapshot            { return f.snap }
func (f *fakeSession) AlignedRows() []models.AlignedRow       { return f.rows }
func (f *fakeSession) InjectCooldownRemaining() time.Duration { return f.remaining }
func (f *fakeSession) Refresh()                               { f.refreshed++ }
func (f *fakeSession) Running() bool                          { return f.running }

func (f *fakeSession) InjectFault() (fault.Result, error) {
	if f.injectErr != nil {
		return fault.Result{}, f.injectErr
	}
	f.injected++
	return fault.Result{Local: models.Sample{Risk: 110}, AWS: models.Sample{Risk: 112}}, nil
}

type fakeFeed struct{ records []models.AlertRecord }

func (f fakeFeed) Latest() ([]models.AlertRecord, time.Time) {
	return f.records, time.Date(2026, 2, 21, 10, 0, 0, 0, time.UTC)
}

type fakeNotes []models.Notification

func (f fakeNotes) List() []models.Notification { return f }

func ptr(v float64) *float64 { return &v }

func newTestServer(sess *fakeSession) *Server {
	return NewServer(sess, fakeFeed{records: []models.AlertRecord{{ID: 7, Source: "Slack", Subject: "InfraSight Alert"}}},
		fakeNotes{{ID: "n1", Kind: models.KindAnomaly, Message: "⚠️ AWS Anomaly detected!"}}, nil, zerolog.Nop())
}

func TestSamplesEndpoint(t *testing.T) {
	sess := &fakeSession{snap: session.Snapshot{
		Local:         []models.Sample{{Time: "12:00:00", Risk: 10, Source: models.SourceLocal}},
		AWS:           []models.Sample{},
		AWSHistory:    []models.MetricPoint{},
		LastInjection: 1700000000000,
	}}
	rec := httptest.NewRecorder()
	newTestServer(sess).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/samples", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1700000000000), body["last_injection"])
	assert.Len(t, body["local"], 1)
	assert.Contains(t, body, "aws_history")
}

func TestCompareEndpointEncodesNulls(t *testing.T) {
	sess := &fakeSession{rows: []models.AlignedRow{
		{Time: "x", LocalRisk: nil, AWSRisk: ptr(5)},
		{Time: "a", LocalRisk: ptr(1), AWSRisk: ptr(6)},
	}}
	rec := httptest.NewRecorder()
	newTestServer(sess).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/compare", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"time":"x","LocalRisk":null,"AWSRisk":5},{"time":"a","LocalRisk":1,"AWSRisk":6}]`, rec.Body.String())
}

func TestInjectEndpoint(t *testing.T) {
	sess := &fakeSession{}
	h := newTestServer(sess).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inject", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, sess.injected)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inject", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sess.injected)
	assert.Contains(t, rec.Body.String(), `"risk": 112`)
}

func TestInjectEndpointCooldownConflict(t *testing.T) {
	sess := &fakeSession{injectErr: fault.ErrCooldown, remaining: 90*time.Second + time.Millisecond}
	rec := httptest.NewRecorder()
	newTestServer(sess).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/inject", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "91", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "cooling down")
}

func TestRefreshEndpoint(t *testing.T) {
	sess := &fakeSession{}
	rec := httptest.NewRecorder()
	newTestServer(sess).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, sess.refreshed)
}

func TestAlertsAndNotificationsEndpoints(t *testing.T) {
	h := newTestServer(&fakeSession{}).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sat, 21 Feb 2026 10:00:00 GMT", rec.Header().Get("Last-Modified"))
	assert.Contains(t, rec.Body.String(), `"subject": "InfraSight Alert"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AWS Anomaly detected")
}

func TestEmptyCollectionsEncodeAsArrays(t *testing.T) {
	h := NewServer(&fakeSession{}, nil, nil, nil, zerolog.Nop()).Routes()
	for _, path := range []string{"/api/alerts", "/api/notifications"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()), path)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	sess := &fakeSession{}
	h := newTestServer(sess).Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	sess.running = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&fakeSession{}).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestWebSocketStream(t *testing.T) {
	hub := NewHub(func() any { return map[string]int{"local": 3} }, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(NewServer(&fakeSession{}, nil, nil, hub, zerolog.Nop()).Routes())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var welcome struct {
		Type string `json:"type"`
		Data struct {
			ClientID string         `json:"client_id"`
			State    map[string]int `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)
	assert.NotEmpty(t, welcome.Data.ClientID)
	assert.Equal(t, 3, welcome.Data.State["local"])
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastSample(models.SourceAWS, models.Sample{Time: "12:00:01", Risk: 44, Source: models.SourceAWS})
	var sample struct {
		Type string      `json:"type"`
		Data SampleEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&sample))
	assert.Equal(t, "sample", sample.Type)
	assert.Equal(t, models.SourceAWS, sample.Data.Feed)
	assert.Equal(t, 44.0, sample.Data.Sample.Risk)

	require.NoError(t, hub.Notify(models.Notification{ID: "n", Kind: models.KindInjection, Message: "🚨"}))
	var note struct {
		Type string              `json:"type"`
		Data models.Notification `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&note))
	assert.Equal(t, "notification", note.Type)
	assert.Equal(t, models.KindInjection, note.Data.Kind)

	_ = conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
