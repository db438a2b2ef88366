package mail

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// NewMessageID returns a fresh message id in the sender's domain, without
// angle brackets.
func NewMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at+1 < len(from) {
		domain = strings.Trim(from[at+1:], "> ")
	}
	return uuid.NewString() + "@" + domain
}

// Compose renders msg as RFC 5322 bytes with the given message id.
func Compose(from, messageID string, msg Message, files []Attachment, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetSubject(msg.Subject)
	h.SetMessageID(messageID)
	if err := setAddresses(&h, "From", []string{from}); err != nil {
		return nil, err
	}
	if err := setAddresses(&h, "To", msg.To); err != nil {
		return nil, err
	}
	if err := setAddresses(&h, "Cc", msg.CC); err != nil {
		return nil, err
	}
	if msg.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{trimID(msg.InReplyTo)})
	}
	if len(msg.References) > 0 {
		refs := make([]string, 0, len(msg.References))
		for _, r := range msg.References {
			refs = append(refs, trimID(r))
		}
		h.SetMsgIDList("References", refs)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("compose inline: %w", err)
	}
	text := msg.Text
	if text == "" && msg.HTML == "" {
		text = " "
	}
	if text != "" {
		if err := writeInline(tw, "text/plain", text); err != nil {
			return nil, err
		}
	}
	if msg.HTML != "" {
		if err := writeInline(tw, "text/html", msg.HTML); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, f := range files {
		var ah mail.AttachmentHeader
		ah.SetContentType(f.ContentType, nil)
		ah.SetFilename(f.FileName)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("compose attachment %s: %w", f.FileName, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var th mail.InlineHeader
	th.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return fmt.Errorf("compose %s: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func setAddresses(h *mail.Header, key string, raw []string) error {
	if len(raw) == 0 {
		return nil
	}
	list := make([]*mail.Address, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		addr, err := mail.ParseAddress(r)
		if err != nil {
			return fmt.Errorf("parse %s address %q: %w", key, r, err)
		}
		list = append(list, addr)
	}
	if len(list) > 0 {
		h.SetAddressList(key, list)
	}
	return nil
}

func trimID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}
