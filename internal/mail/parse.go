package mail

import (
	"errors"
	"fmt"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Parse reads one RFC 5322 message, keeping text bodies and attachments.
func Parse(r io.Reader) (Envelope, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	var env Envelope
	h := mr.Header
	env.Subject, _ = h.Subject()
	env.MessageID, _ = h.MessageID()
	env.InReplyTo, _ = h.MsgIDList("In-Reply-To")
	env.References, _ = h.MsgIDList("References")
	env.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		env.From = from[0].Address
	}
	if replyTo, err := h.AddressList("Reply-To"); err == nil && len(replyTo) > 0 {
		env.ReplyTo = replyTo[0].Address
	}
	env.To = addresses(h, "To")
	env.CC = addresses(h, "Cc")

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return env, fmt.Errorf("parse part: %w", err)
		}
		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			body, err := io.ReadAll(p.Body)
			if err != nil {
				return env, err
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				env.HTML += string(body)
			case ct == "" || strings.HasPrefix(ct, "text/plain"):
				env.Text += string(body)
			}
		case *mail.AttachmentHeader:
			name, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			data, err := io.ReadAll(p.Body)
			if err != nil {
				return env, err
			}
			env.Attachments = append(env.Attachments, Attachment{FileName: name, ContentType: ct, Data: data})
		}
	}
	return env, nil
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
