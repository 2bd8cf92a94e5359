// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	validation "github.com/jellydator/validation"

	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	customValidation "github.com/allisson/provenance/internal/validation"
)

// MaxBatchSize bounds the submissions accepted by one batch request.
const MaxBatchSize = 1000

// AdmitRequest contains metadata offered for admission.
type AdmitRequest struct {
	RecordType string         `json:"record_type"`
	Metadata   map[string]any `json:"metadata"`
	PolicyID   string         `json:"policy_id,omitempty"`
}

// Validate checks the request shape. Required metadata fields are checked by the use case.
func (r *AdmitRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RecordType, validation.Required, validation.By(func(value interface{}) error {
			_, err := canonical.ParseRecordType(value.(string))
			return err
		})),
		validation.Field(&r.Metadata, validation.NotNil),
		validation.Field(&r.PolicyID, customValidation.Identifier),
	)
}

// ToSubmission converts a validated request.
func (r *AdmitRequest) ToSubmission() (*evidenceDomain.Submission, error) {
	rt, err := canonical.ParseRecordType(r.RecordType)
	if err != nil {
		return nil, err
	}
	return &evidenceDomain.Submission{RecordType: rt, Metadata: r.Metadata, PolicyID: r.PolicyID}, nil
}

// AdmitBatchRequest contains several submissions appended in order.
type AdmitBatchRequest struct {
	Submissions []AdmitRequest `json:"submissions"`
}

// Validate checks the batch size and every submission.
func (r *AdmitBatchRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Submissions, validation.Required, validation.Length(1, MaxBatchSize)),
	)
}

// AnchorRequest names the policy under which the current root is anchored.
type AnchorRequest struct {
	PolicyID string `json:"policy_id,omitempty"`
}

// Validate checks the anchor request.
func (r *AnchorRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PolicyID, customValidation.Identifier),
	)
}
