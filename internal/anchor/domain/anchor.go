// Package domain defines signed anchors binding a ledger root to a policy.
package domain

import (
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/provenance/internal/canonical"
	customValidation "github.com/allisson/provenance/internal/validation"
)

// ExternalAnchor is the receipt of an optional external timestamping service. It is not
// covered by the anchor signature.
type ExternalAnchor struct {
	Provider  string    `json:"provider"`
	Reference string    `json:"reference"`
	Timestamp time.Time `json:"timestamp"`
}

// AnchorRecord is a signed attestation of a ledger root. Only root, policy_id,
// schema_version, timestamp and domain_labels are signed; the remaining fields describe
// where the root came from and how to verify it.
type AnchorRecord struct {
	Root           string              `json:"root"`
	PolicyID       string              `json:"policy_id"`
	SchemaVersion  string              `json:"schema_version"`
	Timestamp      time.Time           `json:"timestamp"`
	DomainLabels   []string            `json:"domain_labels"`
	Signature      string              `json:"signature"`
	SigningKeyID   string              `json:"signing_key_id"`
	LedgerID       string              `json:"ledger_id"`
	HashAlgorithm  canonical.Algorithm `json:"hash_algorithm"`
	LeafCount      int                 `json:"leaf_count"`
	PolicyHash     string              `json:"policy_hash,omitempty"`
	ExternalAnchor *ExternalAnchor     `json:"external_anchor,omitempty"`
}

// RecordPrefix returns the WORM id prefix of every anchor of a ledger.
func RecordPrefix(ledgerID string) string {
	return "anchor:" + ledgerID + ":"
}

// RecordID returns the WORM id of the anchor of root under policyID.
func RecordID(ledgerID, root, policyID string) string {
	return RecordPrefix(ledgerID) + root + ":" + policyID
}

// ID returns the WORM id of the anchor.
func (a *AnchorRecord) ID() string {
	return RecordID(a.LedgerID, a.Root, a.PolicyID)
}

// FormatTimestamp renders t the way anchors sign it: RFC 3339 with nanoseconds, UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SigningPayload returns the canonical bytes covered by the signature:
// {domain_labels, policy_id, root, schema_version, timestamp} with labels sorted.
func (a *AnchorRecord) SigningPayload() ([]byte, error) {
	labels := slices.Clone(a.DomainLabels)
	if labels == nil {
		labels = []string{}
	}
	slices.Sort(labels)

	return canonical.Canonicalize(map[string]any{
		"root":           a.Root,
		"policy_id":      a.PolicyID,
		"schema_version": a.SchemaVersion,
		"timestamp":      FormatTimestamp(a.Timestamp),
		"domain_labels":  labels,
	})
}

// SignatureBytes decodes the base64 signature.
func (a *AnchorRecord) SignatureBytes() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature is not base64: %v", ErrInvalidAnchor, err)
	}
	return sig, nil
}

// Validate checks the anchor fields.
func (a *AnchorRecord) Validate() error {
	alg := a.HashAlgorithm
	if alg == "" {
		alg = canonical.DefaultAlgorithm
	}
	err := validation.ValidateStruct(a,
		validation.Field(&a.Root, validation.Required, customValidation.HexDigest{Algorithm: alg}),
		validation.Field(&a.PolicyID, validation.Required, customValidation.Identifier),
		validation.Field(&a.SchemaVersion, validation.Required, customValidation.NoWhitespace),
		validation.Field(&a.Timestamp, validation.Required),
		validation.Field(&a.Signature, validation.Required, validation.By(func(value interface{}) error {
			_, err := base64.StdEncoding.DecodeString(value.(string))
			if err != nil {
				return validation.NewError("validation_base64", "must be base64")
			}
			return nil
		})),
		validation.Field(&a.SigningKeyID, validation.Required),
		validation.Field(&a.LedgerID, validation.Required, customValidation.Identifier),
		validation.Field(&a.LeafCount, validation.Min(0)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAnchor, customValidation.WrapValidationError(err))
	}
	return nil
}

// Metadata returns the anchor as metadata of the anchor record type, suitable for the
// required-field schema.
func (a *AnchorRecord) Metadata() map[string]any {
	return map[string]any{
		"root":           a.Root,
		"policy_id":      a.PolicyID,
		"schema_version": a.SchemaVersion,
		"timestamp":      FormatTimestamp(a.Timestamp),
	}
}

// Clone returns a deep copy.
func (a *AnchorRecord) Clone() *AnchorRecord {
	c := *a
	c.DomainLabels = slices.Clone(a.DomainLabels)
	if a.ExternalAnchor != nil {
		ext := *a.ExternalAnchor
		c.ExternalAnchor = &ext
	}
	return &c
}
