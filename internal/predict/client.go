package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"infrasight/internal/models"
)

const (
	pathPredict    = "/api/v1/predict"
	pathAWSPredict = "/api/v1/aws-predict"
	pathAlerts     = "/api/v1/alerts"

	maxBody = 1 << 20
)

// Client talks to the prediction service and the alert-ingestion feed.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	resolver *dnscache.Resolver
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	resolver := &dnscache.Resolver{}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout, Transport: newTransport(resolver)},
		resolver: resolver,
	}
}

// RefreshDNS re-resolves cached hosts every interval and drops unused entries.
func (c *Client) RefreshDNS(ctx context.Context, interval time.Duration) error {
	if c.resolver == nil || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.resolver.Refresh(true)
		}
	}
}

func newTransport(resolver *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			if lastErr == nil {
				lastErr = &net.DNSError{Err: "no addresses", Name: host}
			}
			return nil, lastErr
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
}

type predictRequest struct {
	Metrics models.Metrics `json:"metrics"`
}

// wire shapes use pointers so absent fields can be told apart from zero values
type wirePrediction struct {
	RiskScore *float64 `json:"risk_score"`
	Anomaly   *bool    `json:"anomaly"`
}

type wireMetrics struct {
	CPU  *float64 `json:"cpu"`
	Mem  *float64 `json:"mem"`
	Disk *float64 `json:"disk"`
}

type wireAWS struct {
	Metrics    *wireMetrics    `json:"metrics"`
	Prediction *wirePrediction `json:"prediction"`
}

// PredictLocal scores caller-supplied metrics.
func (c *Client) PredictLocal(ctx context.Context, m models.Metrics) (models.Prediction, error) {
	const op = "predict local"
	body, _ := json.Marshal(predictRequest{Metrics: m})
	var wp wirePrediction
	if err := c.do(ctx, op, http.MethodPost, pathPredict, body, &wp); err != nil {
		return models.Prediction{}, err
	}
	p, err := wp.decode()
	if err != nil {
		return models.Prediction{}, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return p, nil
}

// PredictAWS fetches the remote instance's metrics together with their score.
func (c *Client) PredictAWS(ctx context.Context) (models.Reading, error) {
	const op = "predict aws"
	var w wireAWS
	if err := c.do(ctx, op, http.MethodGet, pathAWSPredict, nil, &w); err != nil {
		return models.Reading{}, err
	}
	if w.Metrics == nil {
		return models.Reading{}, &Error{Kind: KindMalformed, Op: op, Err: errors.New("missing metrics")}
	}
	if w.Prediction == nil {
		return models.Reading{}, &Error{Kind: KindMalformed, Op: op, Err: errors.New("missing prediction")}
	}
	p, err := w.Prediction.decode()
	if err != nil {
		return models.Reading{}, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	m, err := w.Metrics.decode()
	if err != nil {
		return models.Reading{}, &Error{Kind: KindMalformed, Op: op, Err: err}
	}
	return models.Reading{Metrics: m, Prediction: p}, nil
}

// Alerts returns the alert feed as served, newest first.
func (c *Client) Alerts(ctx context.Context) ([]models.AlertRecord, error) {
	var out []models.AlertRecord
	if err := c.do(ctx, "list alerts", http.MethodGet, pathAlerts, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.AlertRecord{}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, dst any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &Error{Kind: KindStatus, Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("%s", snippet(raw))}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &Error{Kind: KindMalformed, Op: op, StatusCode: res.StatusCode, Err: err}
	}
	return nil
}

func (w wirePrediction) decode() (models.Prediction, error) {
	if w.RiskScore == nil {
		return models.Prediction{}, errors.New("missing risk_score")
	}
	if w.Anomaly == nil {
		return models.Prediction{}, errors.New("missing anomaly")
	}
	return models.Prediction{RiskScore: *w.RiskScore, Anomaly: *w.Anomaly}, nil
}

func (w wireMetrics) decode() (models.Metrics, error) {
	if w.CPU == nil || w.Mem == nil || w.Disk == nil {
		return models.Metrics{}, errors.New("missing cpu, mem or disk")
	}
	return models.Metrics{CPU: *w.CPU, Mem: *w.Mem, Disk: *w.Disk}, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
