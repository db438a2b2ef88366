package proposals

import (
	"context"
	"encoding/json"
)

// Repo defines persistence for proposals and their requirements.
type Repo interface {
	Create(ctx context.Context, p *Proposal) error
	Get(ctx context.Context, id int64) (Proposal, error)
	GetByEmailContent(ctx context.Context, emailContentID int64) (Proposal, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// Delete removes a proposal with every requirement row that hangs off it.
	Delete(ctx context.Context, id int64) error

	InsertFinance(ctx context.Context, proposalID int64, rows []FinanceRequirement) error
	InsertExperience(ctx context.Context, proposalID int64, rows []ExperienceRequirement) error
	InsertHR(ctx context.Context, proposalID int64, rows []HRRequirement) error
	InsertTechnical(ctx context.Context, node *TechnicalRequirement) error
	SaveTechnicalJSON(ctx context.Context, proposalID int64, raw json.RawMessage) error

	ListFinance(ctx context.Context, proposalID int64) ([]FinanceRequirement, error)
	ListExperience(ctx context.Context, proposalID int64) ([]ExperienceRequirement, error)
	ListHR(ctx context.Context, proposalID int64) ([]HRRequirement, error)
	ListTechnical(ctx context.Context, proposalID int64) ([]TechnicalRequirement, error)

	UpdateFinanceVerdict(ctx context.Context, v Verdict) error
}
