package emails

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sqlx.DB
}

const selectColumns = `id, hs_id, sender, cc, subject, body, file_name, link,
    COALESCE(markdown_link, '') AS markdown_link, COALESCE(type, '') AS type,
    COALESCE(classify_type, '') AS classify_type, status, original_message_id, created_at, updated_at`

// Create inserts a new row and sets e.ID.
func (r *PGRepo) Create(ctx context.Context, e *EmailContent) error {
	const query = `
INSERT INTO email_contents (
    hs_id, sender, cc, subject, body, file_name, link, type, status, original_message_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)
RETURNING id, created_at, updated_at`

	status := e.Status
	if status == "" {
		status = StatusPending
	}
	err := r.DB.QueryRowxContext(ctx, query,
		e.HSID, e.Sender, e.CC, e.Subject, e.Body, e.FileName, e.Link, string(e.Type), string(status), e.OriginalMessageID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert email content: %w", err)
	}
	e.Status = status
	return nil
}

// Get returns one row by id.
func (r *PGRepo) Get(ctx context.Context, id int64) (EmailContent, error) {
	query := `SELECT ` + selectColumns + ` FROM email_contents WHERE id = $1`
	var e EmailContent
	if err := r.DB.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EmailContent{}, ErrNotFound
		}
		return EmailContent{}, err
	}
	return e, nil
}

// ListByHSID returns every file of a document set in insertion order.
func (r *PGRepo) ListByHSID(ctx context.Context, hsID string) ([]EmailContent, error) {
	query := `SELECT ` + selectColumns + ` FROM email_contents WHERE hs_id = $1 ORDER BY id`
	var out []EmailContent
	if err := r.DB.SelectContext(ctx, &out, query, hsID); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateClassification stores the classifier outcome.
func (r *PGRepo) UpdateClassification(ctx context.Context, id int64, docType DocType, rendering Rendering, markdownLink string) error {
	const query = `
UPDATE email_contents
SET type = $2, classify_type = NULLIF($3, ''), markdown_link = NULLIF($4, ''), updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, string(docType), string(rendering), markdownLink)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus moves one row forward; backward moves return ErrStatusRegression.
func (r *PGRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	query, args, err := sqlx.In(`
UPDATE email_contents SET status = ?, updated_at = now()
WHERE id = ? AND status IN (?)`, string(status), id, statusStrings(AllowedFrom(status)))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current string
	err = r.DB.QueryRowxContext(ctx, `SELECT status FROM email_contents WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, current, status)
}

// UpdateStatusByHSID moves every row of a set that may legally reach status.
func (r *PGRepo) UpdateStatusByHSID(ctx context.Context, hsID string, status Status) error {
	query, args, err := sqlx.In(`
UPDATE email_contents SET status = ?, updated_at = now()
WHERE hs_id = ? AND status IN (?)`, string(status), hsID, statusStrings(AllowedFrom(status)))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	return err
}

// InsertDetailIfAbsent inserts a chapter artifact unless one with the same
// email_content_id and file_name exists. d.ID is set either way.
func (r *PGRepo) InsertDetailIfAbsent(ctx context.Context, d *DocumentDetail) (bool, error) {
	const insert = `
INSERT INTO document_detail (email_content_id, file_name, link, link_md)
SELECT $1::bigint, $2::text, $3::text, $4::text
WHERE NOT EXISTS (
    SELECT 1 FROM document_detail WHERE email_content_id = $1::bigint AND file_name = $2::text
)
RETURNING id`
	err := r.DB.QueryRowxContext(ctx, insert, d.EmailContentID, d.FileName, d.Link, d.LinkMD).Scan(&d.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("insert document detail: %w", err)
	}
	const existing = `
SELECT id, link_md FROM document_detail
WHERE email_content_id = $1 AND file_name = $2
ORDER BY id LIMIT 1`
	if err := r.DB.QueryRowxContext(ctx, existing, d.EmailContentID, d.FileName).Scan(&d.ID, &d.LinkMD); err != nil {
		return false, fmt.Errorf("lookup document detail: %w", err)
	}
	return false, nil
}

// ListDetails returns the chapter artifacts of one file.
func (r *PGRepo) ListDetails(ctx context.Context, emailContentID int64) ([]DocumentDetail, error) {
	const query = `
SELECT id, email_content_id, file_name, link, link_md, created_at
FROM document_detail WHERE email_content_id = $1 ORDER BY id`
	var out []DocumentDetail
	if err := r.DB.SelectContext(ctx, &out, query, emailContentID); err != nil {
		return nil, err
	}
	return out, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
