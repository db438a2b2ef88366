package proposals

import (
	"errors"
	"fmt"
)

// ErrInvalidVerdict is returned for verdicts that cannot be stored.
var ErrInvalidVerdict = errors.New("invalid verdict")

// Validate checks the verdict label and its id.
func (v Verdict) Validate() error {
	if v.FinanceRequirementID <= 0 {
		return fmt.Errorf("%w: missing finance_requirement_id", ErrInvalidVerdict)
	}
	if v.ComplianceConfirmation != Compliant && v.ComplianceConfirmation != NonCompliant {
		return fmt.Errorf("%w: compliance_confirmation %q", ErrInvalidVerdict, v.ComplianceConfirmation)
	}
	return nil
}
