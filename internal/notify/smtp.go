package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/timelogbot/internal/domain"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// Timeout bounds the whole exchange when ctx has no deadline.
	// Default: 30 seconds
	Timeout time.Duration

	// AllowPlaintext permits sending when the server does not offer
	// STARTTLS. Only meant for local relays and tests.
	AllowPlaintext bool

	// Logger receives problems that do not affect delivery.
	// Default: slog.Default()
	Logger *slog.Logger
}

// SMTPNotifier sends plain-text mail through an SMTP relay using STARTTLS
// and PLAIN authentication.
type SMTPNotifier struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPNotifier creates a notifier for cfg.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, now: time.Now}
}

// Send implements Notifier. Network failures and 4xx replies are returned
// as domain.TransportError; 5xx replies are permanent.
func (n *SMTPNotifier) Send(ctx context.Context, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	dialer := net.Dialer{Timeout: n.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return domain.NewTransportError("smtp.dial", 0, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = n.now().Add(n.cfg.Timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return domain.NewTransportError("smtp.dial", 0, err)
	}

	c, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return classifySMTPError("smtp.hello", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return classifySMTPError("smtp.starttls", err)
		}
	} else if !n.cfg.AllowPlaintext {
		return fmt.Errorf("smtp server %s does not support STARTTLS", addr)
	}

	if n.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)); err != nil {
			return classifySMTPError("smtp.auth", err)
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return classifySMTPError("smtp.mail", err)
	}
	for _, r := range recipients {
		if err := c.Rcpt(r); err != nil {
			return classifySMTPError("smtp.rcpt", err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return classifySMTPError("smtp.data", err)
	}
	msg, err := buildMessage(n.cfg.From, recipients, subject, body, n.now())
	if err != nil {
		w.Close()
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return classifySMTPError("smtp.data", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTPError("smtp.data", err)
	}

	// The server accepted the message with the end of DATA; a failed QUIT
	// does not undo that.
	if err := c.Quit(); err != nil {
		n.cfg.Logger.Warn("smtp quit failed after message was accepted", "host", n.cfg.Host, "error", err)
	}
	return nil
}

// buildMessage renders an RFC 5322 message with a quoted-printable UTF-8
// text body.
func buildMessage(from string, to []string, subject, body string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n")
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return buf.Bytes(), nil
}

// classifySMTPError maps err to a TransportError when it is worth retrying.
func classifySMTPError(op string, err error) error {
	if err == nil {
		return nil
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return domain.NewTransportError(op, tpErr.Code, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if domain.IsTransportError(err) {
		return domain.NewTransportError(op, 0, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
