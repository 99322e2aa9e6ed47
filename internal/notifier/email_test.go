package notifier

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpSession records what a stub SMTP server was told.
type smtpSession struct {
	mu    sync.Mutex
	addr  string
	auth  bool
	from  string
	rcpts []string
	data  []string
}

func (s *smtpSession) snapshot() smtpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return smtpSession{addr: s.addr, auth: s.auth, from: s.from, rcpts: append([]string(nil), s.rcpts...), data: append([]string(nil), s.data...)}
}

// stubSMTP serves a minimal SMTP dialogue over an in-memory pipe.
func stubSMTP(sess *smtpSession) func(context.Context, string, string) (net.Conn, error) {
	return func(_ context.Context, _, addr string) (net.Conn, error) {
		sess.mu.Lock()
		sess.addr = addr
		sess.mu.Unlock()
		clientConn, serverConn := net.Pipe()
		go func() {
			defer serverConn.Close()
			w := bufio.NewWriter(serverConn)
			r := textproto.NewReader(bufio.NewReader(serverConn))
			fmt.Fprint(w, "220 localhost ESMTP\r\n")
			_ = w.Flush()
			for {
				line, err := r.ReadLine()
				if err != nil {
					return
				}
				switch {
				case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
					fmt.Fprint(w, "250-localhost\r\n250 AUTH PLAIN LOGIN\r\n")
				case strings.HasPrefix(line, "AUTH"):
					sess.mu.Lock()
					sess.auth = true
					sess.mu.Unlock()
					fmt.Fprint(w, "235 2.7.0 Authentication successful\r\n")
				case strings.HasPrefix(line, "MAIL FROM:"):
					sess.mu.Lock()
					sess.from = strings.Trim(strings.TrimPrefix(line, "MAIL FROM:"), "<>")
					sess.mu.Unlock()
					fmt.Fprint(w, "250 2.1.0 OK\r\n")
				case strings.HasPrefix(line, "RCPT TO:"):
					sess.mu.Lock()
					sess.rcpts = append(sess.rcpts, strings.Trim(strings.TrimPrefix(line, "RCPT TO:"), "<>"))
					sess.mu.Unlock()
					fmt.Fprint(w, "250 2.1.5 OK\r\n")
				case strings.HasPrefix(line, "DATA"):
					fmt.Fprint(w, "354 End data with <CR><LF>.<CR><LF>\r\n")
					_ = w.Flush()
					for {
						dl, err := r.ReadLine()
						if err != nil {
							return
						}
						if dl == "." {
							break
						}
						sess.mu.Lock()
						sess.data = append(sess.data, dl)
						sess.mu.Unlock()
					}
					fmt.Fprint(w, "250 2.0.0 queued\r\n")
				case strings.HasPrefix(line, "QUIT"):
					fmt.Fprint(w, "221 2.0.0 Bye\r\n")
					_ = w.Flush()
					return
				default:
					fmt.Fprint(w, "250 OK\r\n")
				}
				_ = w.Flush()
			}
		}()
		return clientConn, nil
	}
}

func TestEmailSendAlertAppendsRootCause(t *testing.T) {
	var sess smtpSession
	e := NewEmail(EmailConfig{From: "ops@example.com", Password: "pw", To: []string{"a@example.com", "b@example.com"}, SMTPHost: "localhost", SMTPPort: 2525})
	e.Dial = stubSMTP(&sess)
	require.True(t, e.Enabled())

	require.NoError(t, e.SendAlert(context.Background(), "🚨 InfraSight High Risk", "CPU: 97.0%", "Severe CPU overload"))

	got := sess.snapshot()
	assert.Equal(t, "localhost:2525", got.addr)
	assert.True(t, got.auth)
	assert.Equal(t, "ops@example.com", got.from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.rcpts)
	msg := strings.Join(got.data, "\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com")
	assert.Contains(t, msg, "Subject: =?utf-8?q?")
	assert.Contains(t, msg, "CPU: 97.0%\n\n---- Root Cause Analysis ----\nSevere CPU overload")
}

func TestEmailSendUsesDefaultsWithoutRootCause(t *testing.T) {
	var sess smtpSession
	e := NewEmail(EmailConfig{From: "ops@example.com", Password: "pw", To: []string{"a@example.com"}})
	e.Dial = stubSMTP(&sess)

	// the default host is not local, so plain auth refuses the unencrypted pipe
	err := e.Send(context.Background(), "hello")
	require.ErrorContains(t, err, "email: auth")
	assert.Equal(t, "smtp.gmail.com:587", sess.snapshot().addr)
}

func TestEmailUpdateAndErrors(t *testing.T) {
	e := NewEmail(EmailConfig{From: "ops@example.com"})
	assert.False(t, e.Enabled())
	assert.ErrorIs(t, e.Send(context.Background(), "x"), ErrNotConfigured)

	e.Update(EmailConfig{From: "ops@example.com", Password: "pw", To: SplitRecipients(" a@example.com, ,b@example.com ")})
	assert.True(t, e.Enabled())
	e.Dial = func(context.Context, string, string) (net.Conn, error) { return nil, errors.New("connection refused") }
	assert.EqualError(t, e.Send(context.Background(), "x"), "email: dial smtp.gmail.com:587: connection refused")
}
