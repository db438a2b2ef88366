package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hsmt-backend/internal/proposals"
)

// Overview is the structured header of an HSMT.
type Overview struct {
	InvestorName      string `json:"investor_name"`
	ProposalName      string `json:"proposal_name"`
	Project           string `json:"project"`
	PackageNumber     string `json:"package_number"`
	ReleaseDate       string `json:"release_date"`
	DecisionNumber    string `json:"decision_number"`
	SelectionMethod   string `json:"selection_method"`
	Field             string `json:"field"`
	ExecutionDuration string `json:"execution_duration"`
	ClosingTime       string `json:"closing_time"`
	ValidityPeriod    string `json:"validity_period"`
	SecurityAmount    string `json:"security_amount"`
}

// Notice holds the notice-of-bid fields read from a TBMT.
type Notice struct {
	SelectionMethod   string `json:"selection_method"`
	Field             string `json:"field"`
	ExecutionDuration string `json:"execution_duration"`
	ClosingTime       string `json:"closing_time"`
	ValidityPeriod    string `json:"validity_period"`
	SecurityAmount    string `json:"security_amount"`
	ReleaseDate       string `json:"release_date"`
	PackageNumber     string `json:"package_number"`
}

// Requirement is one finance or experience criterion.
type Requirement struct {
	Requirement  string `json:"requirement"`
	Description  string `json:"description"`
	DocumentName string `json:"document_name"`
}

// HRItem is one criterion of an HR position.
type HRItem struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	DocumentName string `json:"document_name"`
}

// Quantity accepts a JSON number or string.
type Quantity string

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = Quantity(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	*q = Quantity(n.String())
	return nil
}

// Int returns the leading integer of q, or 0.
func (q Quantity) Int() int {
	s := strings.TrimSpace(string(q))
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

// Position is one HR position with its criteria.
type Position struct {
	Position     string   `json:"position"`
	Quantity     Quantity `json:"quantity"`
	DocumentName string   `json:"document_name"`
	Requirements []HRItem `json:"requirements"`
}

type summaryOutput struct {
	SummaryMarkdown string   `json:"summary_markdown"`
	Overview        Overview `json:"overview"`
}

func (o summaryOutput) Validate() error {
	if strings.TrimSpace(o.SummaryMarkdown) == "" {
		return errors.New("summary_markdown is empty")
	}
	return nil
}

type requirementsOutput struct {
	Requirements []Requirement `json:"requirements"`
}

func (o requirementsOutput) Validate() error {
	if o.Requirements == nil {
		return errors.New("requirements missing")
	}
	for i, r := range o.Requirements {
		if strings.TrimSpace(r.Requirement) == "" {
			return fmt.Errorf("requirements[%d].requirement is empty", i)
		}
	}
	return nil
}

type hrOutput struct {
	Positions []Position `json:"positions"`
}

func (o hrOutput) Validate() error {
	if o.Positions == nil {
		return errors.New("positions missing")
	}
	return validatePositions(o.Positions)
}

func validatePositions(ps []Position) error {
	for i, p := range ps {
		if strings.TrimSpace(p.Position) == "" {
			return fmt.Errorf("positions[%d].position is empty", i)
		}
		for j, r := range p.Requirements {
			if strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.Description) == "" {
				return fmt.Errorf("positions[%d].requirements[%d] is empty", i, j)
			}
		}
	}
	return nil
}

type technologyOutput struct {
	Items     []proposals.TechnicalNode `json:"items"`
	Positions []Position                `json:"positions"`
}

// Validate walks the tree with an explicit stack; extracted trees may be deep.
func (o technologyOutput) Validate() error {
	if o.Items == nil {
		return errors.New("items missing")
	}
	stack := make([]*proposals.TechnicalNode, 0, len(o.Items))
	for i := range o.Items {
		stack = append(stack, &o.Items[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if strings.TrimSpace(n.Name) == "" && len(n.Details) == 0 {
			return fmt.Errorf("technical node %q has no name", n.Level)
		}
		for i := range n.Children {
			stack = append(stack, &n.Children[i])
		}
	}
	return validatePositions(o.Positions)
}
