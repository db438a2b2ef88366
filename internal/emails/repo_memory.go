package emails

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev runs and tests.
type MemoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]EmailContent
	details []DocumentDetail
	// History records every status a row has held, in order.
	History map[int64][]Status
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[int64]EmailContent{}, History: map[int64][]Status{}}
}

func (r *MemoryRepo) Create(ctx context.Context, e *EmailContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	if e.Status == "" {
		e.Status = StatusPending
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	r.rows[e.ID] = *e
	r.History[e.ID] = []Status{e.Status}
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (EmailContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return EmailContent{}, ErrNotFound
	}
	return e, nil
}

func (r *MemoryRepo) ListByHSID(ctx context.Context, hsID string) ([]EmailContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EmailContent
	for id := int64(1); id <= r.nextID; id++ {
		if e, ok := r.rows[id]; ok && e.HSID == hsID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateClassification(ctx context.Context, id int64, docType DocType, rendering Rendering, markdownLink string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	e.Type, e.ClassifyType, e.MarkdownLink = docType, rendering, markdownLink
	e.UpdatedAt = time.Now().UTC()
	r.rows[id] = e
	return nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(e.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, e.Status, status)
	}
	r.setStatusLocked(e, status)
	return nil
}

func (r *MemoryRepo) UpdateStatusByHSID(ctx context.Context, hsID string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.rows {
		if e.HSID == hsID && CanTransition(e.Status, status) {
			r.setStatusLocked(e, status)
		}
	}
	return nil
}

func (r *MemoryRepo) setStatusLocked(e EmailContent, status Status) {
	if e.Status != status {
		r.History[e.ID] = append(r.History[e.ID], status)
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	r.rows[e.ID] = e
}

func (r *MemoryRepo) InsertDetailIfAbsent(ctx context.Context, d *DocumentDetail) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.details {
		if existing.EmailContentID == d.EmailContentID && existing.FileName == d.FileName {
			d.ID = existing.ID
			d.LinkMD = existing.LinkMD
			return false, nil
		}
	}
	d.ID = int64(len(r.details) + 1)
	d.CreatedAt = time.Now().UTC()
	r.details = append(r.details, *d)
	return true, nil
}

func (r *MemoryRepo) ListDetails(ctx context.Context, emailContentID int64) ([]DocumentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []DocumentDetail
	for _, d := range r.details {
		if d.EmailContentID == emailContentID {
			out = append(out, d)
		}
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
