package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sqlx.DB
}

const proposalColumns = `id, investor_name, proposal_name, project, package_number, release_date,
    decision_number, selection_method, field, execution_duration, closing_time, validity_period,
    security_amount, summary, status, agentai_name, agentai_code, email_content_id, created_at, updated_at`

func (r *PGRepo) Create(ctx context.Context, p *Proposal) error {
	const query = `
INSERT INTO proposal (
    investor_name, proposal_name, project, package_number, release_date, decision_number,
    selection_method, field, execution_duration, closing_time, validity_period, security_amount,
    summary, status, agentai_name, agentai_code, email_content_id
) VALUES (
    :investor_name, :proposal_name, :project, :package_number, :release_date, :decision_number,
    :selection_method, :field, :execution_duration, :closing_time, :validity_period, :security_amount,
    :summary, :status, :agentai_name, :agentai_code, :email_content_id
)
RETURNING id, created_at, updated_at`

	if p.Status == "" {
		p.Status = StatusExtracted
	}
	rows, err := r.DB.NamedQueryContext(ctx, query, p)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("insert proposal: %w", err)
		}
		return fmt.Errorf("insert proposal: no id returned")
	}
	return rows.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PGRepo) Get(ctx context.Context, id int64) (Proposal, error) {
	return r.getOne(ctx, `SELECT `+proposalColumns+` FROM proposal WHERE id = $1`, id)
}

func (r *PGRepo) GetByEmailContent(ctx context.Context, emailContentID int64) (Proposal, error) {
	return r.getOne(ctx, `SELECT `+proposalColumns+` FROM proposal WHERE email_content_id = $1 ORDER BY id DESC LIMIT 1`, emailContentID)
}

func (r *PGRepo) getOne(ctx context.Context, query string, arg any) (Proposal, error) {
	var p Proposal
	if err := r.DB.GetContext(ctx, &p, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, err
	}
	return p, nil
}

func (r *PGRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE proposal SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
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

// deleteOrder lists the tables cleared by Delete, children first.
var deleteOrder = []string{
	`DELETE FROM technical_detail_requirement WHERE technical_requirement_id IN (SELECT id FROM technical_requirement WHERE proposal_id = $1)`,
	`DELETE FROM technical_requirement WHERE proposal_id = $1`,
	`DELETE FROM technical_requirement_json WHERE proposal_id = $1`,
	`DELETE FROM hr_detail_requirement WHERE hr_requirement_id IN (SELECT id FROM hr_requirement WHERE proposal_id = $1)`,
	`DELETE FROM hr_requirement WHERE proposal_id = $1`,
	`DELETE FROM experience_requirement WHERE proposal_id = $1`,
	`DELETE FROM finance_requirement WHERE proposal_id = $1`,
	`DELETE FROM proposal WHERE id = $1`,
}

// Delete removes the proposal and its requirement rows in one transaction.
func (r *PGRepo) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, query := range deleteOrder {
		if _, err = tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("delete proposal %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// InsertFinance bulk-inserts finance rows with empty verdict columns.
func (r *PGRepo) InsertFinance(ctx context.Context, proposalID int64, rows []FinanceRequirement) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].ProposalID = proposalID
	}
	const query = `
INSERT INTO finance_requirement (proposal_id, requirements, description, document_name)
VALUES (:proposal_id, :requirements, :description, :document_name)`
	if _, err := r.DB.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert finance requirements: %w", err)
	}
	return nil
}

func (r *PGRepo) InsertExperience(ctx context.Context, proposalID int64, rows []ExperienceRequirement) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].ProposalID = proposalID
	}
	const query = `
INSERT INTO experience_requirement (proposal_id, requirements, description, document_name)
VALUES (:proposal_id, :requirements, :description, :document_name)`
	if _, err := r.DB.NamedExecContext(ctx, query, rows); err != nil {
		return fmt.Errorf("insert experience requirements: %w", err)
	}
	return nil
}

// InsertHR inserts each position and its details in one transaction.
func (r *PGRepo) InsertHR(ctx context.Context, proposalID int64, rows []HRRequirement) (err error) {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i := range rows {
		rows[i].ProposalID = proposalID
		err = tx.QueryRowxContext(ctx, `
INSERT INTO hr_requirement (proposal_id, position, quantity, document_name)
VALUES ($1, $2, $3, $4) RETURNING id`,
			proposalID, rows[i].Position, rows[i].Quantity, rows[i].DocumentName,
		).Scan(&rows[i].ID)
		if err != nil {
			return fmt.Errorf("insert hr requirement: %w", err)
		}
		for j := range rows[i].Details {
			d := &rows[i].Details[j]
			d.HRRequirementID = rows[i].ID
			err = tx.QueryRowxContext(ctx, `
INSERT INTO hr_detail_requirement (hr_requirement_id, name, description, document_name)
VALUES ($1, $2, $3, $4) RETURNING id`,
				d.HRRequirementID, d.Name, d.Description, d.DocumentName,
			).Scan(&d.ID)
			if err != nil {
				return fmt.Errorf("insert hr detail: %w", err)
			}
		}
	}
	return tx.Commit()
}

// InsertTechnical inserts one tree node and its detail lines, setting node.ID.
func (r *PGRepo) InsertTechnical(ctx context.Context, node *TechnicalRequirement) (err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `
INSERT INTO technical_requirement (proposal_id, id_original, level, name, document_name, position)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		node.ProposalID, node.ParentID, node.Level, node.Name, node.DocumentName, node.Position,
	).Scan(&node.ID)
	if err != nil {
		return fmt.Errorf("insert technical requirement: %w", err)
	}
	for i, d := range node.Details {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO technical_detail_requirement (technical_requirement_id, description, position)
VALUES ($1, $2, $3)`, node.ID, d, i); err != nil {
			return fmt.Errorf("insert technical detail: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PGRepo) SaveTechnicalJSON(ctx context.Context, proposalID int64, raw json.RawMessage) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO technical_requirement_json (proposal_id, data) VALUES ($1, $2)`,
		proposalID, []byte(raw))
	if err != nil {
		return fmt.Errorf("insert technical json: %w", err)
	}
	return nil
}

func (r *PGRepo) ListFinance(ctx context.Context, proposalID int64) ([]FinanceRequirement, error) {
	const query = `
SELECT id, proposal_id, requirements, description, document_name,
       question, sql_answer, reason, link, compliance_confirmation
FROM finance_requirement WHERE proposal_id = $1 ORDER BY id`
	var out []FinanceRequirement
	if err := r.DB.SelectContext(ctx, &out, query, proposalID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PGRepo) ListExperience(ctx context.Context, proposalID int64) ([]ExperienceRequirement, error) {
	const query = `
SELECT id, proposal_id, requirements, description, document_name
FROM experience_requirement WHERE proposal_id = $1 ORDER BY id`
	var out []ExperienceRequirement
	if err := r.DB.SelectContext(ctx, &out, query, proposalID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PGRepo) ListHR(ctx context.Context, proposalID int64) ([]HRRequirement, error) {
	var out []HRRequirement
	if err := r.DB.SelectContext(ctx, &out, `
SELECT id, proposal_id, position, quantity, document_name
FROM hr_requirement WHERE proposal_id = $1 ORDER BY id`, proposalID); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	var details []HRDetail
	if err := r.DB.SelectContext(ctx, &details, `
SELECT d.id, d.hr_requirement_id, d.name, d.description, d.document_name
FROM hr_detail_requirement d
JOIN hr_requirement h ON h.id = d.hr_requirement_id
WHERE h.proposal_id = $1 ORDER BY d.id`, proposalID); err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(out))
	for i, h := range out {
		index[h.ID] = i
	}
	for _, d := range details {
		if i, ok := index[d.HRRequirementID]; ok {
			out[i].Details = append(out[i].Details, d)
		}
	}
	return out, nil
}

func (r *PGRepo) ListTechnical(ctx context.Context, proposalID int64) ([]TechnicalRequirement, error) {
	var out []TechnicalRequirement
	if err := r.DB.SelectContext(ctx, &out, `
SELECT id, proposal_id, id_original, level, name, document_name, position
FROM technical_requirement WHERE proposal_id = $1 ORDER BY id`, proposalID); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	type detailRow struct {
		TechnicalRequirementID int64  `db:"technical_requirement_id"`
		Description            string `db:"description"`
	}
	var details []detailRow
	if err := r.DB.SelectContext(ctx, &details, `
SELECT d.technical_requirement_id, d.description
FROM technical_detail_requirement d
JOIN technical_requirement t ON t.id = d.technical_requirement_id
WHERE t.proposal_id = $1 ORDER BY d.technical_requirement_id, d.position`, proposalID); err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(out))
	for i, t := range out {
		index[t.ID] = i
	}
	for _, d := range details {
		if i, ok := index[d.TechnicalRequirementID]; ok {
			out[i].Details = append(out[i].Details, d.Description)
		}
	}
	return out, nil
}

// UpdateFinanceVerdict writes all verdict columns in one statement.
func (r *PGRepo) UpdateFinanceVerdict(ctx context.Context, v Verdict) error {
	if err := v.Validate(); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `
UPDATE finance_requirement
SET question = $2, sql_answer = $3, compliance_confirmation = $4, reason = $5, link = $6
WHERE id = $1`,
		v.FinanceRequirementID, v.Question, v.SQLAnswer, v.ComplianceConfirmation, v.Reason, v.Link)
	if err != nil {
		return fmt.Errorf("update finance verdict: %w", err)
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

var _ Repo = (*PGRepo)(nil)
