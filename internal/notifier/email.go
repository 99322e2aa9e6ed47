package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSMTPHost = "smtp.gmail.com"
	defaultSMTPPort = 587

	emailSubject = "🚨 InfraSight High Risk"
	emailTimeout = 30 * time.Second
)

// EmailConfig holds SMTP settings. From doubles as the login user.
type EmailConfig struct {
	From     string
	Password string
	To       []string
	SMTPHost string
	SMTPPort int
	TLS      bool // implicit TLS; otherwise STARTTLS when the server offers it
}

func (c EmailConfig) addr() (string, string) {
	host := c.SMTPHost
	if host == "" {
		host = defaultSMTPHost
	}
	port := c.SMTPPort
	if port <= 0 {
		port = defaultSMTPPort
	}
	return host, net.JoinHostPort(host, strconv.Itoa(port))
}

// Email sends plain-text alerts over SMTP.
type Email struct {
	mu   sync.RWMutex
	cfg  EmailConfig
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewEmail(cfg EmailConfig) *Email {
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &Email{cfg: cfg, Dial: d.DialContext}
}

// SplitRecipients turns a comma separated address list into its entries.
func SplitRecipients(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *Email) Name() string { return "email" }

func (e *Email) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.From != "" && e.cfg.Password != "" && len(e.cfg.To) > 0
}

func (e *Email) Update(cfg EmailConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Email) Send(ctx context.Context, msg string) error {
	return e.SendAlert(ctx, emailSubject, msg, "")
}

// SendAlert mails body with the root cause analysis appended.
func (e *Email) SendAlert(ctx context.Context, subject, body, rootCause string) error {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()
	if cfg.From == "" || cfg.Password == "" || len(cfg.To) == 0 {
		return ErrNotConfigured
	}
	if rootCause != "" {
		body += "\n\n---- Root Cause Analysis ----\n" + rootCause
	}

	host, addr := cfg.addr()
	conn, err := e.Dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	dl, ok := ctx.Deadline()
	if !ok {
		dl = time.Now().Add(emailTimeout)
	}
	_ = conn.SetDeadline(dl)
	if cfg.TLS {
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: %w", err)
	}
	defer c.Close()

	if !cfg.TLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
				return fmt.Errorf("email: starttls: %w", err)
			}
		}
	}
	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", cfg.From, cfg.Password, host)); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	for _, to := range cfg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", to, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write(buildMessage(cfg.From, cfg.To, subject, body)); err != nil {
		return fmt.Errorf("email: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return c.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
