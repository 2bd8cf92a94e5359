// Package domain defines evidence submissions, admissions and their audit records.
package domain

import (
	"encoding/json"
	"fmt"

	validation "github.com/jellydator/validation"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/canonical"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
	customValidation "github.com/allisson/provenance/internal/validation"
)

// Submission is metadata offered for admission into the ledger.
type Submission struct {
	RecordType canonical.RecordType `json:"record_type"`
	Metadata   map[string]any       `json:"metadata"`
	// PolicyID selects the governing policy. Empty means the default policy.
	PolicyID string `json:"policy_id,omitempty"`
}

// Validate checks the submission shape. Required fields of the record type are checked
// separately so that every missing field can be reported.
func (s *Submission) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.RecordType, validation.Required, validation.By(func(value interface{}) error {
			_, err := canonical.RequiredFields(value.(canonical.RecordType))
			return err
		})),
		validation.Field(&s.Metadata, validation.NotNil),
		validation.Field(&s.PolicyID, customValidation.Identifier),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSubmission, customValidation.WrapValidationError(err))
	}
	return nil
}

// LeafEnvelope is the metadata stored with each ledger leaf. The leaf hash is the hash of
// Metadata alone; the envelope adds what is needed to rebuild a capsule later.
type LeafEnvelope struct {
	RecordType canonical.RecordType        `json:"record_type"`
	PolicyID   string                      `json:"policy_id"`
	Metadata   json.RawMessage             `json:"metadata"`
	Assessment policyDomain.RiskAssessment `json:"assessment"`
}

// Admission is the result of admitting a submission.
type Admission struct {
	LeafHash   string                      `json:"leaf_hash"`
	Root       string                      `json:"root"`
	RecordType canonical.RecordType        `json:"record_type"`
	PolicyID   string                      `json:"policy_id"`
	Assessment policyDomain.RiskAssessment `json:"assessment"`
	// Anchor is set when admissions are anchored immediately.
	Anchor *anchorDomain.AnchorRecord `json:"anchor,omitempty"`
}

// BatchResult is the per-item outcome of a batch admission.
type BatchResult struct {
	Admission *Admission
	Err       error
}

// AuditRecord is the data of a "risk_assessment" WORM record written when a submission
// is blocked. The metadata itself is not stored, only its hash.
type AuditRecord struct {
	LedgerID      string                      `json:"ledger_id"`
	RecordType    canonical.RecordType        `json:"record_type"`
	PolicyID      string                      `json:"policy_id"`
	MetadataHash  string                      `json:"metadata_hash"`
	HashAlgorithm canonical.Algorithm         `json:"hash_algorithm"`
	Assessment    policyDomain.RiskAssessment `json:"assessment"`
}

// AuditRecordPrefix returns the WORM id prefix of the ledger's audit records.
func AuditRecordPrefix(ledgerID string) string {
	return "risk:" + ledgerID + ":"
}

// IntegrityReport is the result of re-verifying a ledger from its durable records.
type IntegrityReport struct {
	LedgerID           string   `json:"ledger_id"`
	LeafCount          int      `json:"leaf_count"`
	Root               string   `json:"root"`
	RecomputedRoot     string   `json:"recomputed_root"`
	RecordsVerified    int      `json:"records_verified"`
	LeafHashMismatches []string `json:"leaf_hash_mismatches"`
	AnchorsVerified    int      `json:"anchors_verified"`
	InvalidAnchors     []string `json:"invalid_anchors"`
	Errors             []string `json:"errors"`
	Valid              bool     `json:"valid"`
}
