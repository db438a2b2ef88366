package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hsmt-backend/internal/shared/telemetry"
)

// Gateway combines sending and reading and adds threaded replies.
type Gateway struct {
	Sender  Sender
	Reader  Reader
	Mailbox string
}

// ReplyRequest describes a reply to a received message. To and Subject
// override the values derived from the original.
type ReplyRequest struct {
	OriginalMessageID   string
	To                  string
	Subject             string
	Body                string
	HTML                string
	IncludeOriginalText bool
	CC                  []string
	Attachments         []OutgoingAttachment
}

// Send delivers msg.
func (g *Gateway) Send(ctx context.Context, msg Message) (SendResult, error) {
	return g.Sender.Send(ctx, msg)
}

// Read lists messages of a mailbox matching a filter expression.
func (g *Gateway) Read(ctx context.Context, mailbox, filter string, max int, markSeen bool) ([]Envelope, error) {
	f, err := ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	if mailbox == "" {
		mailbox = g.mailbox()
	}
	return g.Reader.Read(ctx, mailbox, f, max, markSeen)
}

// ErrNoReader is returned when a lookup needs a mailbox reader.
var ErrNoReader = errors.New("mail: no mailbox reader configured")

// Reply answers the original message on the same thread.
func (g *Gateway) Reply(ctx context.Context, req ReplyRequest) (SendResult, error) {
	orig, err := g.original(ctx, req.OriginalMessageID)
	if err != nil {
		return SendResult{}, fmt.Errorf("reply: load original: %w", err)
	}
	return g.Sender.Send(ctx, BuildReply(orig, req))
}

// ReplyKnown is Reply with a stand-in for the original: when the mailbox
// lookup fails, known supplies the threading headers.
func (g *Gateway) ReplyKnown(ctx context.Context, req ReplyRequest, known Envelope) (SendResult, error) {
	orig, err := g.original(ctx, req.OriginalMessageID)
	if err != nil {
		if !errors.Is(err, ErrNoReader) {
			telemetry.Warn("mail.reply.original_unavailable", map[string]any{
				"message_id": req.OriginalMessageID, "error": err.Error(),
			})
		}
		orig = known
	}
	return g.Sender.Send(ctx, BuildReply(orig, req))
}

func (g *Gateway) original(ctx context.Context, messageID string) (Envelope, error) {
	if g.Reader == nil {
		return Envelope{}, ErrNoReader
	}
	if strings.TrimSpace(messageID) == "" {
		return Envelope{}, errors.New("mail: original message id is empty")
	}
	return g.Reader.FindByMessageID(ctx, g.mailbox(), messageID)
}

// BuildReply composes the reply headers and body for orig.
func BuildReply(orig Envelope, req ReplyRequest) Message {
	to := req.To
	if to == "" {
		to = orig.ReplyTo
	}
	if to == "" {
		to = orig.From
	}
	subject := req.Subject
	if subject == "" {
		subject = ReplySubject(orig.Subject)
	}
	body := req.Body
	if req.IncludeOriginalText && strings.TrimSpace(orig.Text) != "" {
		body += "\n\n" + quote(orig)
	}
	refs := append([]string{}, orig.References...)
	if orig.MessageID != "" {
		refs = append(refs, orig.MessageID)
	}
	return Message{
		To:          []string{to},
		CC:          req.CC,
		Subject:     subject,
		Text:        body,
		HTML:        req.HTML,
		Attachments: req.Attachments,
		InReplyTo:   orig.MessageID,
		References:  refs,
	}
}

// ReplySubject prefixes "Re: " unless already present.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

func quote(orig Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vào %s, %s đã viết:\n", orig.Date.Format("02/01/2006 15:04"), orig.From)
	for _, line := range strings.Split(strings.TrimRight(orig.Text, "\n"), "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (g *Gateway) mailbox() string {
	if g.Mailbox == "" {
		return "INBOX"
	}
	return g.Mailbox
}
