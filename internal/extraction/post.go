package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/shared/telemetry"
)

// postExtraction persists the proposal and every non-empty requirement slot.
// A set that already has a proposal keeps it; a proposal whose requirement
// rows fail to insert is deleted again, so one email_content never ends up
// with two proposals.
func (e *Extractor) postExtraction(ctx context.Context, s *State) error {
	if s.empty() {
		return ErrNothingExtracted
	}

	existing, err := e.Proposals.GetByEmailContent(ctx, s.EmailContentID)
	switch {
	case err == nil:
		telemetry.Info("extraction.post.exists", map[string]any{
			"hs_id": s.HSID, "email_content_id": s.EmailContentID, "proposal_id": existing.ID,
		})
		s.ProposalID = existing.ID
		return nil
	case !errors.Is(err, proposals.ErrNotFound):
		return fmt.Errorf("lookup proposal: %w", err)
	}

	p := e.buildProposal(s)
	if err := e.Proposals.Create(ctx, p); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	if err := e.persistRequirements(ctx, s, p.ID); err != nil {
		if derr := e.Proposals.Delete(context.WithoutCancel(ctx), p.ID); derr != nil {
			telemetry.Error("extraction.post.discard_failed", map[string]any{
				"hs_id": s.HSID, "proposal_id": p.ID, "error": derr.Error(),
			})
		}
		return err
	}
	s.ProposalID = p.ID
	return nil
}

func (e *Extractor) persistRequirements(ctx context.Context, s *State, proposalID int64) error {
	if len(s.Finance) > 0 {
		rows := make([]proposals.FinanceRequirement, 0, len(s.Finance))
		for _, r := range s.Finance {
			rows = append(rows, proposals.FinanceRequirement{
				Requirement:  strings.TrimSpace(r.Requirement),
				Description:  r.Description,
				DocumentName: r.DocumentName,
			})
		}
		if err := e.Proposals.InsertFinance(ctx, proposalID, rows); err != nil {
			return fmt.Errorf("insert finance: %w", err)
		}
	}

	if len(s.Experience) > 0 {
		rows := make([]proposals.ExperienceRequirement, 0, len(s.Experience))
		for _, r := range s.Experience {
			rows = append(rows, proposals.ExperienceRequirement{
				Requirement:  strings.TrimSpace(r.Requirement),
				Description:  r.Description,
				DocumentName: r.DocumentName,
			})
		}
		if err := e.Proposals.InsertExperience(ctx, proposalID, rows); err != nil {
			return fmt.Errorf("insert experience: %w", err)
		}
	}

	s.MergedHR = e.mergeHR(ctx, s.HSID, s.HR, s.TechHR)
	if len(s.MergedHR) > 0 {
		if err := e.Proposals.InsertHR(ctx, proposalID, HRRows(s.MergedHR)); err != nil {
			return fmt.Errorf("insert hr: %w", err)
		}
	}

	if len(s.Technology) > 0 {
		if _, err := proposals.PersistTechnicalTree(ctx, e.Proposals, proposalID, s.Technology); err != nil {
			return fmt.Errorf("insert technical: %w", err)
		}
		if err := e.Proposals.SaveTechnicalJSON(ctx, proposalID, s.TechRaw); err != nil {
			return fmt.Errorf("save technical json: %w", err)
		}
	}
	return nil
}

func (e *Extractor) buildProposal(s *State) *proposals.Proposal {
	o := s.Overview
	n := s.Notice
	return &proposals.Proposal{
		InvestorName:      o.InvestorName,
		ProposalName:      o.ProposalName,
		Project:           o.Project,
		PackageNumber:     prefer(n.PackageNumber, o.PackageNumber),
		ReleaseDate:       prefer(n.ReleaseDate, o.ReleaseDate),
		DecisionNumber:    o.DecisionNumber,
		SelectionMethod:   prefer(n.SelectionMethod, o.SelectionMethod),
		Field:             prefer(n.Field, o.Field),
		ExecutionDuration: prefer(n.ExecutionDuration, o.ExecutionDuration),
		ClosingTime:       prefer(n.ClosingTime, o.ClosingTime),
		ValidityPeriod:    prefer(n.ValidityPeriod, o.ValidityPeriod),
		SecurityAmount:    prefer(n.SecurityAmount, o.SecurityAmount),
		Summary:           s.Summary,
		Status:            proposals.StatusExtracted,
		AgentAIName:       e.AgentName,
		AgentAICode:       e.AgentCode,
		EmailContentID:    s.EmailContentID,
	}
}

// prefer returns the notice value when present.
func prefer(notice, overview string) string {
	if v := strings.TrimSpace(notice); v != "" {
		return v
	}
	return strings.TrimSpace(overview)
}

// HRRows converts merged positions to rows.
func HRRows(ps []Position) []proposals.HRRequirement {
	rows := make([]proposals.HRRequirement, 0, len(ps))
	for _, p := range ps {
		row := proposals.HRRequirement{
			Position:     strings.TrimSpace(p.Position),
			Quantity:     string(p.Quantity),
			DocumentName: p.DocumentName,
		}
		for _, it := range p.Requirements {
			row.Details = append(row.Details, proposals.HRDetail{
				Name:         it.Name,
				Description:  it.Description,
				DocumentName: it.DocumentName,
			})
		}
		rows = append(rows, row)
	}
	return rows
}
