package pipeline

import (
	"context"
	"errors"
	"strings"

	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/render/excel"
	"hsmt-backend/internal/render/mdword"
	"hsmt-backend/internal/render/word"
	"hsmt-backend/internal/shared/storage/object"
	"hsmt-backend/internal/shared/telemetry"
	"hsmt-backend/internal/workerproc"
)

const stampLayout = "20060102_150405"

// Report lists the rendered files of one proposal.
type Report struct {
	Proposal proposals.Proposal
	// Links are "bucket/key" object links in attachment order.
	Links []string

	Finance    int
	Experience int
	HR         int
	Technical  int
}

// Report renders the checklist workbook, the technical table and the summary
// document of proposalID and uploads them under "{hsID}/output/".
func (p *Pipeline) Report(ctx context.Context, hsID string, proposalID int64) (Report, error) {
	prop, err := p.Proposals.Get(ctx, proposalID)
	if err != nil {
		if errors.Is(err, proposals.ErrNotFound) {
			return Report{}, workerproc.Data(hsID, MsgNoExtracted, err)
		}
		return Report{}, workerproc.Upstream(hsID, err)
	}
	c := excel.Checklist{Proposal: prop}
	if c.Finance, err = p.Proposals.ListFinance(ctx, proposalID); err != nil {
		return Report{}, workerproc.Upstream(hsID, err)
	}
	if c.Experience, err = p.Proposals.ListExperience(ctx, proposalID); err != nil {
		return Report{}, workerproc.Upstream(hsID, err)
	}
	if c.HR, err = p.Proposals.ListHR(ctx, proposalID); err != nil {
		return Report{}, workerproc.Upstream(hsID, err)
	}
	tech, err := p.Proposals.ListTechnical(ctx, proposalID)
	if err != nil {
		return Report{}, workerproc.Upstream(hsID, err)
	}
	roots := proposals.BuildTechnicalTree(tech)

	rep := Report{
		Proposal:   prop,
		Finance:    len(c.Finance),
		Experience: len(c.Experience),
		HR:         len(c.HR),
		Technical:  proposals.CountTechnical(roots),
	}
	stamp := p.now().Format(stampLayout)
	fields := map[string]any{"hs_id": hsID, "proposal_id": proposalID}

	if len(p.Templates.Checklist) == 0 {
		return Report{}, workerproc.ErrProcess{Kind: workerproc.KindValidation, HSID: hsID, Err: errors.New("checklist template is not loaded")}
	}
	book, err := excel.Render(p.Templates.Checklist, c)
	if err != nil {
		return Report{}, workerproc.ErrProcess{Kind: workerproc.KindValidation, HSID: hsID, Err: err}
	}
	if err := p.upload(ctx, hsID, excel.FileName(prop, stamp), book, &rep); err != nil {
		return Report{}, err
	}

	switch {
	case len(roots) == 0:
		telemetry.Info("pipeline.report.no_technical", fields)
	case len(p.Templates.Technical) == 0:
		telemetry.Warn("pipeline.report.technical_template_missing", fields)
	default:
		doc, err := word.RenderTechnical(p.Templates.Technical, roots)
		if err != nil {
			return Report{}, workerproc.ErrProcess{Kind: workerproc.KindValidation, HSID: hsID, Err: err}
		}
		if err := p.upload(ctx, hsID, word.FileName(prop, stamp), doc, &rep); err != nil {
			return Report{}, err
		}
	}

	if strings.TrimSpace(prop.Summary) != "" {
		doc, err := mdword.Convert(prop.Summary)
		if err != nil {
			telemetry.Warn("pipeline.report.summary_failed", telemetry.Merge(fields, map[string]any{"error": err.Error()}))
		} else if err := p.upload(ctx, hsID, mdword.FileName(prop.InvestorName, prop.ProposalName, stamp), doc, &rep); err != nil {
			return Report{}, err
		}
	}

	telemetry.Info("pipeline.report.rendered", telemetry.Merge(fields, map[string]any{"files": len(rep.Links)}))
	return rep, nil
}

func (p *Pipeline) upload(ctx context.Context, hsID, name string, data []byte, rep *Report) error {
	key := hsID + "/output/" + name
	if err := object.PutBytes(ctx, p.Store, p.Bucket, key, data); err != nil {
		return workerproc.Upstream(hsID, err)
	}
	rep.Links = append(rep.Links, object.JoinLink(p.Bucket, key))
	return nil
}
