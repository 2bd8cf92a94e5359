package dto

import (
	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	"github.com/allisson/provenance/internal/httputil"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// BlockedResponse is returned when the risk assessment refuses an admission.
type BlockedResponse struct {
	Error         string                      `json:"error"`
	Message       string                      `json:"message"`
	AuditRecordID string                      `json:"audit_record_id"`
	Assessment    policyDomain.RiskAssessment `json:"assessment"`
}

// MapBlockedError builds the response of a blocked admission.
func MapBlockedError(err *evidenceDomain.PolicyBlockedError) BlockedResponse {
	return BlockedResponse{
		Error:         "policy_blocked",
		Message:       err.Error(),
		AuditRecordID: err.AuditRecordID,
		Assessment:    err.Assessment,
	}
}

// BatchItemResponse is the outcome of one submission of a batch, in request order.
type BatchItemResponse struct {
	Index     int                       `json:"index"`
	Admission *evidenceDomain.Admission `json:"admission,omitempty"`
	Error     *httputil.ErrorResponse   `json:"error,omitempty"`
	Blocked   *BlockedResponse          `json:"blocked,omitempty"`
}

// AdmitBatchResponse lists the outcome of every submission.
type AdmitBatchResponse struct {
	Admitted int                 `json:"admitted"`
	Failed   int                 `json:"failed"`
	Results  []BatchItemResponse `json:"results"`
}

// LedgerResponse describes the current state of the ledger.
type LedgerResponse struct {
	LedgerID      string              `json:"ledger_id"`
	HashAlgorithm canonical.Algorithm `json:"hash_algorithm"`
	Root          string              `json:"root"`
	LeafCount     int                 `json:"leaf_count"`
}

// ListAnchorsResponse is a page of anchors in commit order.
type ListAnchorsResponse struct {
	Data  []*anchorDomain.AnchorRecord `json:"data"`
	Total int                          `json:"total"`
}

// PublicKeysResponse maps key ids to PEM public keys, including retired and revoked keys.
type PublicKeysResponse struct {
	Keys map[string]string `json:"keys"`
}
