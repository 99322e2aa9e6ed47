package db

import (
	"context"
	"testing"
	"time"

	"infrasight/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(sqldb)
}

func TestRecentAlertsNewestFirstWithLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		_, err := repo.InsertAlert(ctx, Alert{
			Source:   "Local",
			Subject:  "Local Normal",
			Message:  "Stable - Risk 20%",
			Severity: "info",
			At:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("insert alert %d: %v", i, err)
		}
	}

	alerts, err := repo.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 10 {
		t.Fatalf("alerts len = %d, want 10", len(alerts))
	}
	if alerts[0].Timestamp != "2026-02-21 12:11:00" {
		t.Fatalf("newest timestamp = %q", alerts[0].Timestamp)
	}
	if alerts[9].Timestamp != "2026-02-21 12:02:00" {
		t.Fatalf("oldest returned timestamp = %q", alerts[9].Timestamp)
	}
}

func TestInsertAlertRoundTripsFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	id, err := repo.InsertAlert(ctx, Alert{Source: "AWS", Subject: "InfraSight - High Risk", Message: "boom", RootCause: "- Disk nearly full", Severity: "critical", At: at})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.InsertAlert(ctx, Alert{Source: "Slack", Subject: "Slack Alert (Demo)", Message: "m", At: at.Add(time.Second)}); err != nil {
		t.Fatalf("insert default severity: %v", err)
	}

	alerts, err := repo.RecentAlerts(ctx, 0)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts len = %d, want 2", len(alerts))
	}
	if alerts[0].Severity != "warning" || alerts[0].RootCause != "" {
		t.Fatalf("unexpected defaulted alert: %+v", alerts[0])
	}
	want := models.AlertRecord{ID: id, Source: "AWS", Severity: "critical", Subject: "InfraSight - High Risk", Message: "boom", RootCause: "- Disk nearly full", Timestamp: "2026-02-21 12:00:00"}
	if alerts[1] != want {
		t.Fatalf("alert = %+v, want %+v", alerts[1], want)
	}
}

func TestRecordMetricRegistersHostOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := repo.RecordMetric(ctx, "web-1", models.Metrics{CPU: 10, Mem: 20, Disk: 30}, 120, now); err != nil {
			t.Fatalf("record metric: %v", err)
		}
	}
	if err := repo.RecordMetric(ctx, "db-1", models.Metrics{CPU: 1}, 0, now.Add(time.Second)); err != nil {
		t.Fatalf("record metric: %v", err)
	}

	hosts, err := repo.ListHosts(ctx)
	if err != nil {
		t.Fatalf("list hosts: %v", err)
	}
	if len(hosts) != 2 || hosts[0].HostID != "web-1" || hosts[1].Name != "db-1" {
		t.Fatalf("unexpected hosts: %+v", hosts)
	}

	var n int
	if err := repo.DB().QueryRow(`SELECT COUNT(*) FROM metrics WHERE host_id='web-1'`).Scan(&n); err != nil {
		t.Fatalf("count metrics: %v", err)
	}
	if n != 3 {
		t.Fatalf("metrics count = %d, want 3", n)
	}
}

func TestDeleteOlderThanPrunesAlertsAndMetrics(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	old := now.AddDate(0, 0, -20)
	if _, err := repo.InsertAlert(ctx, Alert{Source: "Local", Subject: "old", Message: "m", At: old}); err != nil {
		t.Fatalf("insert old alert: %v", err)
	}
	if _, err := repo.InsertAlert(ctx, Alert{Source: "Local", Subject: "new", Message: "m", At: now}); err != nil {
		t.Fatalf("insert new alert: %v", err)
	}
	if err := repo.RecordMetric(ctx, "h", models.Metrics{}, 0, old); err != nil {
		t.Fatalf("record metric: %v", err)
	}

	if err := repo.DeleteOlderThan(ctx, now.AddDate(0, 0, -14)); err != nil {
		t.Fatalf("delete older: %v", err)
	}
	alerts, err := repo.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Subject != "new" {
		t.Fatalf("unexpected alerts after prune: %+v", alerts)
	}
	var n int
	if err := repo.DB().QueryRow(`SELECT COUNT(*) FROM metrics`).Scan(&n); err != nil {
		t.Fatalf("count metrics: %v", err)
	}
	if n != 0 {
		t.Fatalf("metrics count = %d, want 0", n)
	}
}

func TestTelegramSettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	token, chatID, err := repo.LoadTelegramSettings(ctx)
	if err != nil || token != "" || chatID != "" {
		t.Fatalf("empty settings = %q %q %v", token, chatID, err)
	}
	if err := repo.SaveTelegramSettings(ctx, "tok", "42"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.SaveTelegramSettings(ctx, "tok2", "42"); err != nil {
		t.Fatalf("save again: %v", err)
	}
	token, chatID, err = repo.LoadTelegramSettings(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if token != "tok2" || chatID != "42" {
		t.Fatalf("settings = %q %q", token, chatID)
	}
}

func TestNotificationEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	id, err := repo.InsertAlert(ctx, Alert{Source: "AWS", Subject: "s", Message: "m", At: now})
	if err != nil {
		t.Fatalf("insert alert: %v", err)
	}
	if err := repo.InsertNotificationEvent(ctx, id, "slack", "sent", 1, "", &now); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := repo.InsertNotificationEvent(ctx, id, "slack", "failed", 3, "status 500", nil); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	n, err := repo.NotificationEventCount(ctx, "slack", "sent")
	if err != nil || n != 1 {
		t.Fatalf("sent count = %d, %v", n, err)
	}
}
