// Package mail is the outbound notification transport: a narrow Sender
// interface with an SMTP implementation and a log-only fallback for
// environments without a configured relay.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Message is a single outbound notification.
type Message struct {
	To       string
	Subject  string
	Body     string // plain text
	HTMLBody string // optional alternative part
	ReplyTo  string // optional
}

// Sender delivers notifications. Implementations are synchronous and
// best-effort: no retries.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay, with PLAIN auth when
// credentials are configured.
type SMTPSender struct {
	addr     string
	fromName string
	fromAddr string
	auth     smtp.Auth
}

// NewSMTPSender creates a sender that relays through addr (host:port).
// An empty username leaves the connection unauthenticated.
func NewSMTPSender(addr, fromName, fromAddr, username, password string) *SMTPSender {
	s := &SMTPSender{addr: addr, fromName: fromName, fromAddr: fromAddr}
	if username != "" {
		host, _, _ := strings.Cut(addr, ":")
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSender) Send(_ context.Context, msg Message) error {
	data := encodeMessage(s.fromName, s.fromAddr, msg)
	if err := smtp.SendMail(s.addr, s.auth, s.fromAddr, []string{msg.To}, data); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

// encodeMessage renders an RFC 5322 message. When an HTML body is present
// the message is multipart/alternative with the plain part first.
func encodeMessage(fromName, fromAddr string, msg Message) []byte {
	var b strings.Builder

	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	header("From", fmt.Sprintf("%s <%s>", fromName, fromAddr))
	header("To", msg.To)
	if msg.ReplyTo != "" {
		header("Reply-To", msg.ReplyTo)
	}
	header("Subject", msg.Subject)
	header("MIME-Version", "1.0")

	if msg.HTMLBody == "" {
		header("Content-Type", "text/plain; charset=UTF-8")
		b.WriteString("\r\n")
		b.WriteString(msg.Body)
		return []byte(b.String())
	}

	const boundary = "slapshot-alt-boundary"
	header("Content-Type", "multipart/alternative; boundary="+boundary)
	b.WriteString("\r\n")

	part := func(contentType, body string) {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
	}
	part("text/plain", msg.Body)
	part("text/html", msg.HTMLBody)
	b.WriteString("--" + boundary + "--\r\n")

	return []byte(b.String())
}

// LogSender logs messages instead of delivering them. Used when no SMTP
// relay is configured (local development, tests).
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	slog.Info("mail delivery skipped (no smtp relay configured)",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// SendBestEffort delivers msg and logs failure instead of returning it. Used
// on paths where the durable fact has already been committed and the
// notification must never roll it back.
func SendBestEffort(ctx context.Context, sender Sender, msg Message) {
	if err := sender.Send(ctx, msg); err != nil {
		slog.Error("notification send failed",
			"to", msg.To,
			"subject", msg.Subject,
			"error", err,
		)
	}
}
