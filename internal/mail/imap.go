package mail

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"hsmt-backend/internal/shared/telemetry"
)

// Reader reads messages from a mailbox.
type Reader interface {
	Read(ctx context.Context, mailbox string, f Filter, max int, markSeen bool) ([]Envelope, error)
	FindByMessageID(ctx context.Context, mailbox, messageID string) (Envelope, error)
}

// imapConn is the subset of the IMAP client used here.
type imapConn interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	Logout() error
}

// IMAPReader reads over IMAPS.
type IMAPReader struct {
	Addr     string
	Username string
	Password string

	dial func(addr string) (imapConn, error)
}

// NewIMAPReader builds a reader for addr (host:port).
func NewIMAPReader(addr, username, password string) *IMAPReader {
	return &IMAPReader{
		Addr:     addr,
		Username: username,
		Password: password,
		dial: func(addr string) (imapConn, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

func (r *IMAPReader) session(mailbox string, readOnly bool) (imapConn, error) {
	c, err := r.dial(r.Addr)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	if err := c.Login(r.Username, r.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(mailbox, readOnly); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", mailbox, err)
	}
	return c, nil
}

// Read returns up to max messages matching f, oldest first. When markSeen
// is set, returned messages are flagged \Seen.
func (r *IMAPReader) Read(ctx context.Context, mailbox string, f Filter, max int, markSeen bool) ([]Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := r.session(mailbox, !markSeen)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	uids, err := c.UidSearch(f.Criteria())
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	envs, err := fetch(c, uids)
	if err != nil {
		return nil, err
	}
	var out []Envelope
	var matched []uint32
	for _, e := range envs {
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
		matched = append(matched, e.UID)
		if max > 0 && len(out) >= max {
			break
		}
	}

	if markSeen && len(matched) > 0 {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		set := new(imap.SeqSet)
		set.AddNum(matched...)
		flags := []interface{}{imap.SeenFlag}
		if err := c.UidStore(set, imap.FormatFlagsOp(imap.AddFlags, true), flags, nil); err != nil {
			return out, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	telemetry.Info("mail.read.completed", map[string]any{"mailbox": mailbox, "matched": len(out), "searched": len(uids)})
	return out, nil
}

// FindByMessageID fetches one message by its Message-ID header.
func (r *IMAPReader) FindByMessageID(ctx context.Context, mailbox, messageID string) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	c, err := r.session(mailbox, true)
	if err != nil {
		return Envelope{}, err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-Id", "<"+trimID(messageID)+">")
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return Envelope{}, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) == 0 {
		return Envelope{}, ErrNotFound
	}
	envs, err := fetch(c, uids[:1])
	if err != nil {
		return Envelope{}, err
	}
	if len(envs) == 0 {
		return Envelope{}, ErrNotFound
	}
	return envs[0], nil
}

func fetch(c imapConn, uids []uint32) ([]Envelope, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(set, items, messages)
	}()

	var out []Envelope
	var parseErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		env, err := Parse(body)
		if err != nil {
			parseErr = errors.Join(parseErr, fmt.Errorf("uid %d: %w", msg.Uid, err))
			continue
		}
		env.UID = msg.Uid
		out = append(out, env)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	if parseErr != nil {
		telemetry.Warn("mail.read.parse_failed", map[string]any{"error": parseErr})
	}
	return out, nil
}
