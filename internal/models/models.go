package models

import "time"

type Source string

const (
	SourceLocal     Source = "Local"
	SourceAWS       Source = "AWS"
	SourceSimulated Source = "Simulated"
)

// TimeLabel is the display format of Sample.Time.
const TimeLabel = "15:04:05"

type Metrics struct {
	CPU  float64 `json:"cpu"`
	Mem  float64 `json:"mem"`
	Disk float64 `json:"disk"`
}

type Prediction struct {
	RiskScore float64 `json:"risk_score"`
	Anomaly   bool    `json:"anomaly"`
}

// Reading is one successful fetch before it is stamped with a capture time.
type Reading struct {
	Metrics    Metrics
	Prediction Prediction
}

type Sample struct {
	Time       string    `json:"time"`
	CapturedAt time.Time `json:"captured_at"`
	CPU        float64   `json:"cpu"`
	Mem        float64   `json:"mem"`
	Disk       float64   `json:"disk"`
	Risk       float64   `json:"risk"`
	Anomaly    bool      `json:"anomaly"`
	Source     Source    `json:"source"`
}

func NewSample(src Source, r Reading, at time.Time) Sample {
	return Sample{
		Time:       at.Format(TimeLabel),
		CapturedAt: at,
		CPU:        r.Metrics.CPU,
		Mem:        r.Metrics.Mem,
		Disk:       r.Metrics.Disk,
		Risk:       r.Prediction.RiskScore,
		Anomaly:    r.Prediction.Anomaly,
		Source:     src,
	}
}

// MetricPoint is an entry of the single-metric history buffer.
type MetricPoint struct {
	Time string  `json:"time"`
	CPU  float64 `json:"cpu"`
	Mem  float64 `json:"mem"`
	Disk float64 `json:"disk"`
}

type AlignedRow struct {
	Time      string   `json:"time"`
	LocalRisk *float64 `json:"LocalRisk"`
	AWSRisk   *float64 `json:"AWSRisk"`
}

type AlertRecord struct {
	ID        int64  `json:"id"`
	Source    string `json:"source"`
	Severity  string `json:"severity"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	RootCause string `json:"root_cause,omitempty"`
	Timestamp string `json:"timestamp"`
}

type NotificationKind string

const (
	KindAnomaly   NotificationKind = "anomaly"
	KindInjection NotificationKind = "injection"
)

type Notification struct {
	ID      string           `json:"id"`
	Kind    NotificationKind `json:"kind"`
	Source  Source           `json:"source,omitempty"`
	Level   string           `json:"level"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}
