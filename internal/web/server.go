package web

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"infrasight/internal/fault"
	"infrasight/internal/models"
	"infrasight/internal/session"
)

// Session is the part of session.Session the API serves.
type Session interface {
	Snapshot() session.Snapshot
	AlignedRows() []models.AlignedRow
	InjectFault() (fault.Result, error)
	InjectCooldownRemaining() time.Duration
	Refresh()
	Running() bool
}

type AlertFeed interface {
	Latest() ([]models.AlertRecord, time.Time)
}

type NotificationLog interface {
	List() []models.Notification
}

type Server struct {
	sess   Session
	alerts AlertFeed
	notes  NotificationLog
	hub    *Hub
	log    zerolog.Logger
}

func NewServer(sess Session, alerts AlertFeed, notes NotificationLog, hub *Hub, logger zerolog.Logger) *Server {
	return &Server{sess: sess, alerts: alerts, notes: notes, hub: hub, log: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/samples", s.handleSamples)
	mux.HandleFunc("/api/compare", s.handleCompare)
	mux.HandleFunc("/api/inject", s.handleInject)
	mux.HandleFunc("/api/refresh", s.handleRefresh)
	mux.HandleFunc("/api/alerts", s.handleAlerts)
	mux.HandleFunc("/api/notifications", s.handleNotifications)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.HandleWebSocket)
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
	return LogMiddleware(mux, s.log)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.sess.AlignedRows())
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	res, err := s.sess.InjectFault()
	if errors.Is(err, fault.ErrCooldown) {
		wait := s.sess.InjectCooldownRemaining()
		secs := int(math.Ceil(wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "retry_after_seconds": secs})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	s.sess.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	records, updated := []models.AlertRecord{}, time.Time{}
	if s.alerts != nil {
		records, updated = s.alerts.Latest()
	}
	if !updated.IsZero() {
		w.Header().Set("Last-Modified", updated.UTC().Format(http.TimeFormat))
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	notes := []models.Notification{}
	if s.notes != nil {
		notes = s.notes.List()
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !s.sess.Running() {
		http.Error(w, "samplers not running", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
