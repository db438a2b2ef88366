package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for dev runs and tests.
type MemoryRepo struct {
	mu         sync.Mutex
	seq        int64
	proposals  map[int64]Proposal
	finance    []FinanceRequirement
	experience []ExperienceRequirement
	hr         []HRRequirement
	technical  []TechnicalRequirement
	techJSON   map[int64]json.RawMessage
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{proposals: map[int64]Proposal{}, techJSON: map[int64]json.RawMessage{}}
}

func (r *MemoryRepo) next() int64 {
	r.seq++
	return r.seq
}

func (r *MemoryRepo) Create(ctx context.Context, p *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.next()
	if p.Status == "" {
		p.Status = StatusExtracted
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.proposals[p.ID] = *p
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return Proposal{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) GetByEmailContent(ctx context.Context, emailContentID int64) (Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found Proposal
	for _, p := range r.proposals {
		if p.EmailContentID == emailContentID && p.ID > found.ID {
			found = p
		}
	}
	if found.ID == 0 {
		return Proposal{}, ErrNotFound
	}
	return found, nil
}

// Count returns the number of proposals stored.
func (r *MemoryRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proposals)
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proposals[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	r.proposals[id] = p
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.proposals[id]; !ok {
		return ErrNotFound
	}
	delete(r.proposals, id)
	delete(r.techJSON, id)
	r.finance = keep(r.finance, func(row FinanceRequirement) bool { return row.ProposalID != id })
	r.experience = keep(r.experience, func(row ExperienceRequirement) bool { return row.ProposalID != id })
	r.hr = keep(r.hr, func(row HRRequirement) bool { return row.ProposalID != id })
	r.technical = keep(r.technical, func(row TechnicalRequirement) bool { return row.ProposalID != id })
	return nil
}

func keep[T any](rows []T, ok func(T) bool) []T {
	out := rows[:0]
	for _, row := range rows {
		if ok(row) {
			out = append(out, row)
		}
	}
	return out
}

func (r *MemoryRepo) InsertFinance(ctx context.Context, proposalID int64, rows []FinanceRequirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		row.ID = r.next()
		row.ProposalID = proposalID
		r.finance = append(r.finance, row)
	}
	return nil
}

func (r *MemoryRepo) InsertExperience(ctx context.Context, proposalID int64, rows []ExperienceRequirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		row.ID = r.next()
		row.ProposalID = proposalID
		r.experience = append(r.experience, row)
	}
	return nil
}

func (r *MemoryRepo) InsertHR(ctx context.Context, proposalID int64, rows []HRRequirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		row.ID = r.next()
		row.ProposalID = proposalID
		details := make([]HRDetail, len(row.Details))
		for i, d := range row.Details {
			d.ID = r.next()
			d.HRRequirementID = row.ID
			details[i] = d
		}
		row.Details = details
		r.hr = append(r.hr, row)
	}
	return nil
}

func (r *MemoryRepo) InsertTechnical(ctx context.Context, node *TechnicalRequirement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	node.ID = r.next()
	r.technical = append(r.technical, *node)
	return nil
}

func (r *MemoryRepo) SaveTechnicalJSON(ctx context.Context, proposalID int64, raw json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.techJSON[proposalID] = append(json.RawMessage(nil), raw...)
	return nil
}

// TechnicalJSON returns the raw tree stored for a proposal.
func (r *MemoryRepo) TechnicalJSON(proposalID int64) json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.techJSON[proposalID]
}

func (r *MemoryRepo) ListFinance(ctx context.Context, proposalID int64) ([]FinanceRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []FinanceRequirement
	for _, row := range r.finance {
		if row.ProposalID == proposalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListExperience(ctx context.Context, proposalID int64) ([]ExperienceRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ExperienceRequirement
	for _, row := range r.experience {
		if row.ProposalID == proposalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListHR(ctx context.Context, proposalID int64) ([]HRRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HRRequirement
	for _, row := range r.hr {
		if row.ProposalID == proposalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListTechnical(ctx context.Context, proposalID int64) ([]TechnicalRequirement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TechnicalRequirement
	for _, row := range r.technical {
		if row.ProposalID == proposalID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *MemoryRepo) UpdateFinanceVerdict(ctx context.Context, v Verdict) error {
	if err := v.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.finance {
		if r.finance[i].ID != v.FinanceRequirementID {
			continue
		}
		f := &r.finance[i]
		f.Question = sql.NullString{String: v.Question, Valid: true}
		f.SQLAnswer = sql.NullString{String: v.SQLAnswer, Valid: true}
		f.ComplianceConfirmation = sql.NullString{String: v.ComplianceConfirmation, Valid: true}
		f.Reason = sql.NullString{String: v.Reason, Valid: true}
		f.Link = sql.NullString{String: v.Link, Valid: true}
		return nil
	}
	return ErrNotFound
}

var _ Repo = (*MemoryRepo)(nil)
