package proposals

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a proposal does not exist.
var ErrNotFound = errors.New("proposal not found")

// Status is the proposal lifecycle, independent of email_contents.status.
type Status string

const (
	StatusExtracted Status = "EXTRACTED"
	StatusExported  Status = "EXPORTED"
)

// Compliance verdict labels.
const (
	Compliant    = "Đáp ứng"
	NonCompliant = "Không đáp ứng"
)

// Proposal is the canonical row for one processed HSMT.
type Proposal struct {
	ID                int64     `db:"id"`
	InvestorName      string    `db:"investor_name"`
	ProposalName      string    `db:"proposal_name"`
	Project           string    `db:"project"`
	PackageNumber     string    `db:"package_number"`
	ReleaseDate       string    `db:"release_date"`
	DecisionNumber    string    `db:"decision_number"`
	SelectionMethod   string    `db:"selection_method"`
	Field             string    `db:"field"`
	ExecutionDuration string    `db:"execution_duration"`
	ClosingTime       string    `db:"closing_time"`
	ValidityPeriod    string    `db:"validity_period"`
	SecurityAmount    string    `db:"security_amount"`
	Summary           string    `db:"summary"`
	Status            Status    `db:"status"`
	AgentAIName       string    `db:"agentai_name"`
	AgentAICode       string    `db:"agentai_code"`
	EmailContentID    int64     `db:"email_content_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// FinanceRequirement carries the extracted requirement and, once answered,
// the compliance verdict. The verdict columns are all set or all null.
type FinanceRequirement struct {
	ID                     int64          `db:"id"`
	ProposalID             int64          `db:"proposal_id"`
	Requirement            string         `db:"requirements"`
	Description            string         `db:"description"`
	DocumentName           string         `db:"document_name"`
	Question               sql.NullString `db:"question"`
	SQLAnswer              sql.NullString `db:"sql_answer"`
	Reason                 sql.NullString `db:"reason"`
	Link                   sql.NullString `db:"link"`
	ComplianceConfirmation sql.NullString `db:"compliance_confirmation"`
}

// Answered reports whether a verdict has been stored.
func (f FinanceRequirement) Answered() bool {
	return f.ComplianceConfirmation.Valid
}

// Verdict is one compliance decision for a finance requirement.
type Verdict struct {
	FinanceRequirementID   int64  `json:"finance_requirement_id"`
	Question               string `json:"question,omitempty"`
	SQLAnswer              string `json:"sql_answer"`
	ComplianceConfirmation string `json:"compliance_confirmation"`
	Reason                 string `json:"reason"`
	Link                   string `json:"link"`
}

// ExperienceRequirement is one experience criterion.
type ExperienceRequirement struct {
	ID           int64  `db:"id"`
	ProposalID   int64  `db:"proposal_id"`
	Requirement  string `db:"requirements"`
	Description  string `db:"description"`
	DocumentName string `db:"document_name"`
}

// HRRequirement is one staffing position with its detailed criteria.
type HRRequirement struct {
	ID           int64      `db:"id"`
	ProposalID   int64      `db:"proposal_id"`
	Position     string     `db:"position"`
	Quantity     string     `db:"quantity"`
	DocumentName string     `db:"document_name"`
	Details      []HRDetail `db:"-"`
}

// HRDetail is one criterion under an HR position.
type HRDetail struct {
	ID              int64  `db:"id"`
	HRRequirementID int64  `db:"hr_requirement_id"`
	Name            string `db:"name"`
	Description     string `db:"description"`
	DocumentName    string `db:"document_name"`
}

// TechnicalRequirement is one persisted node of the technical tree.
type TechnicalRequirement struct {
	ID           int64         `db:"id"`
	ProposalID   int64         `db:"proposal_id"`
	ParentID     sql.NullInt64 `db:"id_original"`
	Level        string        `db:"level"`
	Name         string        `db:"name"`
	DocumentName string        `db:"document_name"`
	Position     int           `db:"position"`
	Details      []string      `db:"-"`
}

// TechnicalNode is the in-memory technical tree as extracted.
type TechnicalNode struct {
	Level        string          `json:"level"`
	Name         string          `json:"name"`
	Details      []string        `json:"details,omitempty"`
	DocumentName string          `json:"document_name,omitempty"`
	Children     []TechnicalNode `json:"children,omitempty"`
}
