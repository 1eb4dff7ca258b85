// Package mail delivers queued email jobs over SMTP.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/config"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/queue"
)

// JobKindSendEmail is the email queue job kind.
const JobKindSendEmail = "send_email"

// TLS modes accepted in smtp.tls_mode.
const (
	TLSImplicit = "implicit"
	TLSStartTLS = "starttls"
	TLSNone     = "none"
)

// Message is the email job payload.
type Message struct {
	NotificationID string `json:"notification_id,omitempty"`
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// Transport hands a rendered message to a relay.
type Transport interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Mailer renders and delivers Messages.
type Mailer struct {
	from      string
	transport Transport
}

// NewMailer delivers through the configured relay, or only logs when no
// relay is configured.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	var t Transport = logTransport{}
	if cfg.Enabled() {
		t = &smtpTransport{cfg: cfg}
	}
	return NewMailerWithTransport(cfg.From, t)
}

// NewMailerWithTransport is used by tests and alternative relays.
func NewMailerWithTransport(from string, t Transport) *Mailer {
	return &Mailer{from: from, transport: t}
}

// HandleJob is the email queue handler.
func (m *Mailer) HandleJob(ctx context.Context, job *queue.Job) error {
	if job.Kind != JobKindSendEmail {
		return apperrors.BusinessLogicError(apperrors.CodeJobPayloadInvalid, "unknown email job kind: "+job.Kind)
	}
	var msg Message
	if err := job.Decode(&msg); err != nil {
		return err
	}
	return m.Deliver(ctx, msg)
}

// Deliver sends one message. Permanent relay rejections are terminal;
// connection and transient failures are retryable.
func (m *Mailer) Deliver(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return apperrors.BusinessLogicError(apperrors.CodeValidationFailed, "invalid email recipient")
	}

	if err := m.transport.Send(ctx, m.from, []string{to}, render(m.from, to, msg)); err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return apperrors.Wrap(err, apperrors.KindBusinessLogic, apperrors.CodeExternalService,
				"smtp relay rejected message", http.StatusUnprocessableEntity)
		}
		return apperrors.ExternalServiceError(err, "smtp delivery")
	}

	logger.Info("Email delivered",
		zap.String("notification_id", msg.NotificationID),
		zap.String("to", to),
	)
	return nil
}

func render(from, to string, msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", stripNewlines(msg.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

type smtpTransport struct {
	cfg config.SMTPConfig
}

func (t *smtpTransport) Send(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	tlsConfig := &tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if t.cfg.TLSMode == TLSImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if t.cfg.TLSMode == TLSStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return errors.New("smtp relay does not offer STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if t.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

// logTransport stands in for a relay in development.
type logTransport struct{}

func (logTransport) Send(_ context.Context, from string, to []string, msg []byte) error {
	logger.Info("SMTP relay not configured, email logged only",
		zap.String("from", from),
		zap.Strings("to", to),
		zap.Int("bytes", len(msg)),
	)
	return nil
}
