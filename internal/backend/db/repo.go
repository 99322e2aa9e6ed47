package db

import (
	"context"
	"database/sql"
	"time"

	"infrasight/internal/models"
)

// TimestampLayout is how alert timestamps are rendered on the feed.
const TimestampLayout = "2006-01-02 15:04:05"

type Alert struct {
	ID        int64
	Source    string
	Subject   string
	Message   string
	RootCause string
	Severity  string
	At        time.Time
}

type Host struct {
	HostID string `json:"host_id"`
	Name   string `json:"name"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	if a.Severity == "" {
		a.Severity = "warning"
	}
	var rootCause sql.NullString
	if a.RootCause != "" {
		rootCause = sql.NullString{String: a.RootCause, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO alerts (source,subject,message,root_cause,severity,ts) VALUES (?,?,?,?,?,?)`,
		a.Source, a.Subject, a.Message, rootCause, a.Severity, a.At.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentAlerts returns the newest alerts first.
func (r *Repository) RecentAlerts(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,source,subject,message,root_cause,severity,ts
		FROM alerts ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.AlertRecord, 0, limit)
	for rows.Next() {
		var rec models.AlertRecord
		var rootCause sql.NullString
		var ts time.Time
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Subject, &rec.Message, &rootCause, &rec.Severity, &ts); err != nil {
			return nil, err
		}
		rec.RootCause = rootCause.String
		rec.Timestamp = ts.UTC().Format(TimestampLayout)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) InsertNotificationEvent(ctx context.Context, alertID int64, channel, status string, attempts int, lastErr string, sent *time.Time) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO notification_events (alert_id,channel,status,attempts,last_error,sent_ts_nullable) VALUES (?,?,?,?,?,?)`, alertID, channel, status, attempts, lastErr, sent)
	return err
}

// NotificationEventCount counts delivery records by channel and status.
func (r *Repository) NotificationEventCount(ctx context.Context, channel, status string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_events WHERE channel=? AND status=?`, channel, status).Scan(&n)
	return n, err
}

// RecordMetric stores one host sample, registering the host on first sight.
func (r *Repository) RecordMetric(ctx context.Context, hostID string, m models.Metrics, requestsPerMin float64, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO hosts (host_id,name,created_at) VALUES (?,?,?) ON CONFLICT(host_id) DO NOTHING`, hostID, hostID, at.UTC()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO metrics (host_id,ts,cpu,mem,disk,requests_per_min) VALUES (?,?,?,?,?,?)`,
		hostID, at.UTC(), m.CPU, m.Mem, m.Disk, requestsPerMin); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) ListHosts(ctx context.Context) ([]Host, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT host_id,name FROM hosts ORDER BY created_at, host_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Host{}
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.HostID, &h.Name); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	queries := []string{
		`DELETE FROM metrics WHERE ts < ?`,
		`DELETE FROM alerts WHERE ts < ?`,
	}
	for _, q := range queries {
		if _, err := r.db.ExecContext(ctx, q, cutoff.UTC()); err != nil {
			return err
		}
	}
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return nil
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	for k, v := range map[string]string{"telegram_token": token, "telegram_chat_id": chatID} {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) LoadTelegramSettings(ctx context.Context) (token, chatID string, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN ('telegram_token','telegram_chat_id')`)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		if k == "telegram_token" {
			token = v
		}
		if k == "telegram_chat_id" {
			chatID = v
		}
	}
	return token, chatID, rows.Err()
}
