package domain

import (
	"fmt"

	"github.com/allisson/provenance/internal/errors"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// Evidence errors.
var (
	// ErrPolicyBlocked indicates the risk assessment refused admission.
	ErrPolicyBlocked = errors.Wrap(errors.ErrForbidden, "admission blocked by policy")

	// ErrInvalidSubmission indicates a submission without record type or metadata.
	ErrInvalidSubmission = errors.Wrap(errors.ErrInvalidInput, "invalid submission")

	// ErrAlgorithmMismatch indicates a policy whose hash algorithm differs from the ledger's.
	ErrAlgorithmMismatch = errors.Wrap(errors.ErrInvalidInput, "policy hash algorithm does not match ledger")

	// ErrEmptyLedger indicates an anchor was requested before any leaf was admitted.
	ErrEmptyLedger = errors.Wrap(errors.ErrInvalidInput, "ledger is empty")
)

// PolicyBlockedError carries the assessment that blocked an admission and the id of the
// audit record written for it.
type PolicyBlockedError struct {
	Assessment    policyDomain.RiskAssessment
	AuditRecordID string
}

func (e *PolicyBlockedError) Error() string {
	return fmt.Sprintf("admission blocked by policy %s: risk level %s, %d violation(s)",
		e.Assessment.PolicyID, e.Assessment.RiskLevel, len(e.Assessment.Violations))
}

// Unwrap makes the error match ErrPolicyBlocked and ErrForbidden.
func (e *PolicyBlockedError) Unwrap() error {
	return ErrPolicyBlocked
}
