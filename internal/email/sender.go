package email

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/BrianStatesThat/thepepassport/internal/config"
)

// KindHeader names the kind of a composed message, e.g. "enquiry". Mock
// senders use it to key stored messages.
const KindHeader = "X-PEP-Kind"

// Sender defines the interface for sending emails.
// The rawMessage parameter should contain the full email message, including headers and body, properly formatted.
type Sender interface {
	Send(ctx context.Context, to []string, subject string, rawMessage []byte) error
}

// Message is a plain text email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	Kind    string
	Body    string
}

// Compose renders m with the headers SMTP relays expect. Header values are
// folded onto one line and the subject is RFC 2047 encoded, so visitor
// supplied text cannot add headers.
func (m Message) Compose(now time.Time) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "To: %s\r\n", headerSafe(m.To))
	fmt.Fprintf(&sb, "From: %s\r\n", headerSafe(m.From))
	if m.ReplyTo != "" {
		fmt.Fprintf(&sb, "Reply-To: %s\r\n", headerSafe(m.ReplyTo))
	}
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerSafe(m.Subject)))
	if m.Kind != "" {
		fmt.Fprintf(&sb, "%s: %s\r\n", KindHeader, headerSafe(m.Kind))
	}
	sb.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

// SMTPSender implements the Sender interface using Go's net/smtp package.
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
	addr string
}

// NewSMTPSender creates a new SMTPSender, or a LoggingSender when no SMTP
// host is configured.
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		slog.Info("SMTP host not configured, using logging email sender")
		return &LoggingSender{cfg: cfg}
	}

	auth := smtp.PlainAuth("", cfg.SmtpUsername, cfg.SmtpPassword, cfg.SmtpHost)
	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		addr: fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort),
	}
}

// Send sends an email using SMTP.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if err := smtp.SendMail(s.addr, s.auth, s.cfg.SmtpFromAddress, to, rawMessage); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	slog.Info("email sent via SMTP", "to", to, "subject", subject)
	return nil
}

// LoggingSender just logs email details.
type LoggingSender struct {
	cfg *config.Config
}

func (s *LoggingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	slog.Info("email (logged, not sent)",
		"to", to,
		"from", s.cfg.SmtpFromAddress,
		"subject", subject,
		"raw", string(rawMessage),
	)
	return nil
}

// headerSafe replaces line breaks and other control characters with spaces.
func headerSafe(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, v)
}

// headerValue returns the value of the first header named name in a raw
// message, or "".
func headerValue(rawMessage []byte, name string) string {
	head, _, _ := strings.Cut(string(rawMessage), "\r\n\r\n")
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(head, "\r\n") {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}
