// Package backend is the reference prediction service the dashboard polls.
// It scores readings, keeps the alert log and serves the synthetic AWS feed.
package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"infrasight/internal/backend/awsmetrics"
	"infrasight/internal/backend/db"
	"infrasight/internal/backend/engine"
	"infrasight/internal/backend/scoring"
	"infrasight/internal/models"
	"infrasight/internal/notifier"
	"infrasight/internal/web"
)

const (
	SourceLocal = "Local"
	SourceAWS   = "AWS"

	awsFeedName  = "AWS CloudWatch"
	alertsLimit  = 10
	testAlertMsg = "InfraSight test alert: Telegram integration is working"
)

type Server struct {
	repo     *db.Repository
	engine   *engine.Engine
	aws      awsmetrics.Source
	telegram *notifier.Telegram
	log      zerolog.Logger
	now      func() time.Time
}

func NewServer(repo *db.Repository, eng *engine.Engine, aws awsmetrics.Source, telegram *notifier.Telegram, logger zerolog.Logger) *Server {
	return &Server{repo: repo, engine: eng, aws: aws, telegram: telegram, log: logger, now: time.Now}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/predict", s.handlePredict)
	mux.HandleFunc("/api/v1/aws-predict", s.handleAWSPredict)
	mux.HandleFunc("/api/v1/alerts", s.handleAlerts)
	mux.HandleFunc("/api/v1/metrics", s.handleAddMetric)
	mux.HandleFunc("/api/v1/hosts", s.handleHosts)
	mux.HandleFunc("/api/v1/settings/telegram", s.handleSettingsTelegram)
	mux.HandleFunc("/api/v1/settings/telegram/test", s.handleTestTelegram)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return web.LogMiddleware(mux, s.log)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "InfraSight Backend Running ✅"})
}

type predictRequest struct {
	Metrics *scoring.Input `json:"metrics"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Metrics == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing metrics"})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Evaluate(r.Context(), *req.Metrics, SourceLocal))
}

type awsPredictResponse struct {
	Source     string         `json:"source"`
	Metrics    models.Metrics `json:"metrics"`
	Prediction engine.Result  `json:"prediction"`
}

func (s *Server) handleAWSPredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m, err := s.aws.Metrics(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("aws metrics unavailable")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	res := s.engine.Evaluate(r.Context(), scoring.Input{CPU: m.CPU, Mem: m.Mem, Disk: m.Disk}, SourceAWS)
	writeJSON(w, http.StatusOK, awsPredictResponse{Source: awsFeedName, Metrics: m, Prediction: res})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	alerts, err := s.repo.RecentAlerts(r.Context(), alertsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []models.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

type addMetricRequest struct {
	HostID  string `json:"host_id"`
	Metrics *struct {
		CPU            float64 `json:"cpu"`
		Mem            float64 `json:"mem"`
		Disk           float64 `json:"disk"`
		RequestsPerMin float64 `json:"requests_per_min"`
	} `json:"metrics"`
}

func (s *Server) handleAddMetric(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req addMetricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.HostID) == "" || req.Metrics == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing host_id or metrics"})
		return
	}
	m := models.Metrics{CPU: req.Metrics.CPU, Mem: req.Metrics.Mem, Disk: req.Metrics.Disk}
	if err := s.repo.RecordMetric(r.Context(), req.HostID, m, req.Metrics.RequestsPerMin, s.now()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) handleHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	hosts, err := s.repo.ListHosts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if hosts == nil {
		hosts = []db.Host{}
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (s *Server) handleSettingsTelegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Token  string `json:"token"`
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token := strings.TrimSpace(req.Token)
	chatID := strings.TrimSpace(req.ChatID)
	if err := s.repo.SaveTelegramSettings(r.Context(), token, chatID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.telegram.Update(token, chatID)
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "enabled": s.telegram.Enabled()})
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	err := s.telegram.Send(r.Context(), testAlertMsg)
	if errors.Is(err, notifier.ErrNotConfigured) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.DB().PingContext(r.Context()); err != nil {
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
