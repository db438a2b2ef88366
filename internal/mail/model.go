// Package mail sends and reads bidding mail: SMTP delivery with
// attachments, IMAP reads with a small filter language and reply threading.
package mail

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a message id is not in the mailbox.
	ErrNotFound = errors.New("message not found")
	// ErrNoRecipients is returned when a message has no To, CC or BCC.
	ErrNoRecipients = errors.New("no recipients")
)

// Attachment is an attachment held in memory.
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Envelope is one received message with its attachments in memory.
type Envelope struct {
	UID         uint32
	MessageID   string
	InReplyTo   []string
	References  []string
	From        string
	ReplyTo     string
	To          []string
	CC          []string
	Subject     string
	Date        time.Time
	Text        string
	HTML        string
	Attachments []Attachment
}

// HasAttachments reports whether the message carries at least one file.
func (e Envelope) HasAttachments() bool {
	return len(e.Attachments) > 0
}

// OutgoingAttachment names one file to send. Exactly one of Path, FileID or
// Base64 is set; Base64 requires ContentType.
type OutgoingAttachment struct {
	Path        string
	FileID      string
	Base64      string
	FileName    string
	ContentType string
}

// Message is an outgoing message.
type Message struct {
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Text        string
	HTML        string
	Attachments []OutgoingAttachment
	InReplyTo   string
	References  []string
}

// SendResult reports the outcome of a send.
type SendResult struct {
	Success   bool
	MessageID string
	ThreadID  string
}
