package sender

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/notify/internal/notification"
)

// EmailMessage is the transport-level representation of one outbound email.
type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

// EmailTransport abstracts the wire step of email delivery so the sender can
// run against an SMTP relay or SES depending on configuration.
type EmailTransport interface {
	SendMail(ctx context.Context, msg EmailMessage) error
}

// EmailSender resolves the recipient's address and hands the message to the
// configured transport. Every step failure is classified transient: relays
// hiccup, auth flakes, and lookups time out, and all of those may succeed on
// the next attempt.
type EmailSender struct {
	directory RecipientDirectory
	transport EmailTransport
	logger    *zap.Logger
}

// NewEmailSender creates the email channel sender.
func NewEmailSender(directory RecipientDirectory, transport EmailTransport, logger *zap.Logger) *EmailSender {
	return &EmailSender{
		directory: directory,
		transport: transport,
		logger:    logger,
	}
}

func (s *EmailSender) SupportsChannel(ch notification.Channel) bool {
	return ch == notification.ChannelEmail
}

func (s *EmailSender) Deliver(ctx context.Context, n *notification.Notification) Result {
	if n.Channel() != notification.ChannelEmail {
		return TerminalFailure(fmt.Sprintf("email sender cannot deliver channel %q", n.Channel()))
	}

	address, err := s.directory.EmailAddress(ctx, n.RecipientID())
	if err != nil {
		return TransientFailure(fmt.Sprintf("resolve email address: %v", err))
	}

	msg := EmailMessage{
		To:      address,
		Subject: n.Content().Subject(),
		Body:    n.Content().Body(),
	}

	if err := s.transport.SendMail(ctx, msg); err != nil {
		return TransientFailure(fmt.Sprintf("email send failed: %v", err))
	}

	s.logger.Info("email delivered",
		zap.String("id", n.ID().String()),
		zap.String("recipient_id", n.RecipientID()),
	)

	return Delivered()
}

// SMTPConfig holds the externally configured relay parameters.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
	Timeout  time.Duration
}

// SMTPTransport performs the full SMTP handshake per message: connect,
// STARTTLS, authenticate, send, quit. Connection deadlines are derived from
// the configured timeout and the caller's context so a hung relay cannot
// block the retry loop.
type SMTPTransport struct {
	config SMTPConfig
	logger *zap.Logger
}

// NewSMTPTransport creates an SMTP transport for the given relay.
func NewSMTPTransport(cfg SMTPConfig, logger *zap.Logger) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPTransport{config: cfg, logger: logger}
}

func (t *SMTPTransport) SendMail(ctx context.Context, msg EmailMessage) error {
	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)

	dialer := net.Dialer{Timeout: t.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}

	deadline := time.Now().Add(t.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if t.config.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if t.config.Username != "" {
		auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(t.config.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}

	raw := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		t.config.FromName,
		t.config.From,
		msg.To,
		msg.Subject,
		msg.Body,
	)
	if _, err := w.Write([]byte(raw)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close body: %w", err)
	}

	return client.Quit()
}
