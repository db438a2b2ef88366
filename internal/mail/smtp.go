package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"hsmt-backend/internal/shared/metrics"
	"hsmt-backend/internal/shared/telemetry"
)

// Sender delivers outgoing messages.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

type deliverFunc func(addr string, auth sasl.Client, from string, to []string, r io.Reader) error

// SMTPSender sends through an SMTP relay. Port 465 uses implicit TLS, any
// other port STARTTLS.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Resolver *Resolver

	now     func() time.Time
	deliver deliverFunc
}

// NewSMTPSender builds a sender for host:port.
func NewSMTPSender(host string, port int, username, password, from string, resolver *Resolver) *SMTPSender {
	s := &SMTPSender{Host: host, Port: port, Username: username, Password: password, From: from, Resolver: resolver}
	s.deliver = smtp.SendMail
	if port == 465 {
		s.deliver = smtp.SendMailTLS
	}
	return s
}

// Send resolves attachments, composes the message and hands it to the relay.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	rcpts := append(append(append([]string{}, msg.To...), msg.CC...), msg.BCC...)
	if len(rcpts) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	resolver := s.Resolver
	if resolver == nil {
		resolver = &Resolver{}
	}
	files, err := resolver.Resolve(ctx, msg.Attachments)
	if err != nil {
		return SendResult{}, err
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}
	id := NewMessageID(s.From)
	raw, err := Compose(s.From, id, msg, files, now().UTC())
	if err != nil {
		return SendResult{}, err
	}

	var auth sasl.Client
	if s.Username != "" {
		auth = sasl.NewPlainClient("", s.Username, s.Password)
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if err := s.deliver(addr, auth, s.From, rcpts, bytes.NewReader(raw)); err != nil {
		telemetry.Error("mail.send.failed", map[string]any{"subject": msg.Subject, "error": err})
		return SendResult{}, fmt.Errorf("smtp send: %w", err)
	}
	metrics.IncMailSent()

	result := SendResult{Success: true, MessageID: id, ThreadID: threadID(id, msg)}
	telemetry.Info("mail.send.completed", map[string]any{
		"message_id":  result.MessageID,
		"thread_id":   result.ThreadID,
		"recipients":  len(rcpts),
		"attachments": len(files),
	})
	return result, nil
}

// threadID is the root of the reference chain, or the message itself.
func threadID(id string, msg Message) string {
	if len(msg.References) > 0 {
		return trimID(msg.References[0])
	}
	if msg.InReplyTo != "" {
		return trimID(msg.InReplyTo)
	}
	return id
}

// LogSender records messages in the log instead of delivering them. It backs
// dev environments without an SMTP relay.
type LogSender struct {
	From string
}

// Send logs msg and reports success.
func (s LogSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	rcpts := len(msg.To) + len(msg.CC) + len(msg.BCC)
	if rcpts == 0 {
		return SendResult{}, ErrNoRecipients
	}
	id := NewMessageID(s.From)
	metrics.IncMailSent()
	telemetry.Info("mail.send.logged", map[string]any{
		"message_id":  id,
		"to":          msg.To,
		"subject":     msg.Subject,
		"recipients":  rcpts,
		"attachments": len(msg.Attachments),
	})
	return SendResult{Success: true, MessageID: id, ThreadID: threadID(id, msg)}, nil
}
