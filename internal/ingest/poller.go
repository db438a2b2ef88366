// Package ingest turns inbound bidding emails into document sets and starts
// the pipeline for each of them.
package ingest

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/mail"
	"hsmt-backend/internal/pdfdoc"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/shared/metrics"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/shared/util"
)

const defaultMax = 20

// ErrNoPDF is returned when a message carries no PDF attachment.
var ErrNoPDF = errors.New("message has no pdf attachment")

// Poller reads the inbox on an interval and ingests every matching message.
type Poller struct {
	Reader   mail.Reader
	Mailbox  string
	Filter   mail.Filter
	Max      int
	Interval time.Duration

	Emails    emails.Repo
	Store     object.Store
	Bucket    string
	Bus       queue.Publisher
	QueueName func(base string) string
	TmpDir    string

	// Validate checks PDF structure; defaults to pdfdoc.ValidateBytes.
	Validate func(data []byte, dir string) error
}

// HSID derives the document-set id from the message id so a message that
// is read twice maps onto the same set.
func HSID(env mail.Envelope) string {
	key := strings.TrimSpace(env.MessageID)
	if key == "" {
		key = env.From + "|" + env.Subject + "|" + env.Date.UTC().Format(time.RFC3339Nano)
	}
	return "hs-" + util.HashKey(key)[:24]
}

// Run polls until ctx is done. A failed poll is logged and retried on the
// next tick.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := p.PollOnce(ctx); err != nil {
			telemetry.Error("ingest.poll.failed", map[string]any{"mailbox": p.Mailbox, "error": err.Error()})
		} else if n > 0 {
			telemetry.Info("ingest.poll.done", map[string]any{"mailbox": p.Mailbox, "ingested": n})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce reads one batch and returns how many sets were started.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	limit := p.Max
	if limit <= 0 {
		limit = defaultMax
	}
	envs, err := p.Reader.Read(ctx, p.Mailbox, p.Filter, limit, true)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, env := range envs {
		if !p.Filter.Match(env) {
			continue
		}
		hsID, err := p.Ingest(ctx, env)
		fields := map[string]any{"message_id": env.MessageID, "from": env.From, "hs_id": hsID}
		switch {
		case errors.Is(err, ErrNoPDF):
			telemetry.Info("ingest.message.skipped", telemetry.Merge(fields, map[string]any{"reason": err.Error()}))
		case err != nil:
			telemetry.Error("ingest.message.failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		default:
			started++
		}
	}
	return started, nil
}

// Ingest stores the PDF attachments of env, records one email_contents row
// per file and publishes the set to classify_queue. A set that already has
// rows is not ingested again.
func (p *Poller) Ingest(ctx context.Context, env mail.Envelope) (string, error) {
	hsID := HSID(env)
	var pdfs []mail.Attachment
	for _, a := range env.Attachments {
		if isPDF(a) {
			pdfs = append(pdfs, a)
		}
	}
	if len(pdfs) == 0 {
		return hsID, ErrNoPDF
	}

	existing, err := p.Emails.ListByHSID(ctx, hsID)
	if err != nil {
		return hsID, err
	}
	if len(existing) > 0 {
		telemetry.Info("ingest.message.duplicate", map[string]any{"hs_id": hsID, "message_id": env.MessageID})
		return hsID, nil
	}

	fields := map[string]any{"hs_id": hsID, "message_id": env.MessageID}
	seen := map[string]int{}
	for _, a := range pdfs {
		name := uniqueName(seen, a.FileName)
		row := emails.EmailContent{
			HSID:              hsID,
			Sender:            env.From,
			CC:                strings.Join(env.CC, ","),
			Subject:           env.Subject,
			Body:              env.Text,
			FileName:          name,
			OriginalMessageID: env.MessageID,
			Status:            emails.StatusPending,
		}
		if err := p.validate(a.Data); err != nil {
			telemetry.Warn("ingest.attachment.invalid", telemetry.Merge(fields, map[string]any{"file_name": name, "error": err.Error()}))
			row.Status = emails.StatusFailed
		} else {
			key := hsID + "/" + name
			if err := object.PutBytes(ctx, p.Store, p.Bucket, key, a.Data); err != nil {
				return hsID, err
			}
			row.Link = object.JoinLink(p.Bucket, key)
		}
		if err := p.Emails.Create(ctx, &row); err != nil {
			return hsID, err
		}
	}

	msg := queue.ClassifyMessage{ID: hsID, Email: env.From}
	if err := queue.PublishJSON(ctx, p.Bus, p.queue(queue.Classify), msg); err != nil {
		return hsID, err
	}
	metrics.IncMailIngested()
	telemetry.Info("ingest.message.queued", telemetry.Merge(fields, map[string]any{"files": len(pdfs)}))
	return hsID, nil
}

func (p *Poller) validate(data []byte) error {
	if p.Validate != nil {
		return p.Validate(data, p.TmpDir)
	}
	return pdfdoc.ValidateBytes(data, p.TmpDir)
}

func (p *Poller) queue(base string) string {
	if p.QueueName != nil {
		return p.QueueName(base)
	}
	return base
}

func isPDF(a mail.Attachment) bool {
	if strings.EqualFold(path.Ext(a.FileName), ".pdf") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(a.ContentType), "application/pdf")
}

// uniqueName keeps file names distinct within one set.
func uniqueName(seen map[string]int, name string) string {
	name, err := util.SanitizeFileName(path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")))
	if err != nil || name == "." || name == "/" {
		name = "attachment.pdf"
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
}
