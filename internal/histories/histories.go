package histories

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a history row does not exist.
var ErrNotFound = errors.New("history not found")

// Step names a pipeline stage in the history chain.
type Step string

const (
	StepClassify        Step = "CLASSIFY"
	StepChapterSplitter Step = "CHAPTER_SPLITER"
	StepExtraction      Step = "EXTRACTION"
	StepSQLAnswer       Step = "SQL_ANSWER"
	StepSendMail        Step = "SEND_MAIL"
)

// History is one stage entry for a document set.
type History struct {
	ID        int64        `db:"id"`
	HSID      string       `db:"hs_id"`
	Step      Step         `db:"step"`
	StartDate time.Time    `db:"start_date"`
	EndDate   sql.NullTime `db:"end_date"`
	// Note records a failure that happened after the stage's side effect.
	Note sql.NullString `db:"note"`
}

// Repo records stage entries and completions.
type Repo interface {
	Open(ctx context.Context, hsID string, step Step) (int64, error)
	Close(ctx context.Context, id int64) error
	Note(ctx context.Context, id int64, note string) error
	List(ctx context.Context, hsID string) ([]History, error)
}

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sqlx.DB
}

func (r *PGRepo) Open(ctx context.Context, hsID string, step Step) (int64, error) {
	var id int64
	err := r.DB.QueryRowxContext(ctx,
		`INSERT INTO histories (hs_id, step, start_date) VALUES ($1, $2, now()) RETURNING id`,
		hsID, string(step)).Scan(&id)
	return id, err
}

func (r *PGRepo) Close(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE histories SET end_date = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) Note(ctx context.Context, id int64, note string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE histories SET note = $2 WHERE id = $1`, id, note)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) List(ctx context.Context, hsID string) ([]History, error) {
	var out []History
	err := r.DB.SelectContext(ctx, &out,
		`SELECT id, hs_id, step, start_date, end_date, note FROM histories WHERE hs_id = $1 ORDER BY id`, hsID)
	return out, err
}

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []History
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Open(ctx context.Context, hsID string, step Step) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := History{ID: int64(len(r.rows) + 1), HSID: hsID, Step: step, StartDate: time.Now().UTC()}
	r.rows = append(r.rows, h)
	return h.ID, nil
}

func (r *MemoryRepo) Close(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= 0 || int(id) > len(r.rows) {
		return ErrNotFound
	}
	r.rows[id-1].EndDate = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	return nil
}

func (r *MemoryRepo) Note(ctx context.Context, id int64, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id <= 0 || int(id) > len(r.rows) {
		return ErrNotFound
	}
	r.rows[id-1].Note = sql.NullString{String: note, Valid: true}
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, hsID string) ([]History, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []History
	for _, h := range r.rows {
		if h.HSID == hsID {
			out = append(out, h)
		}
	}
	return out, nil
}

var (
	_ Repo = (*PGRepo)(nil)
	_ Repo = (*MemoryRepo)(nil)
)
