// Package domain defines proof capsules: self-contained bundles of metadata, inclusion
// proof and signed anchor that verify without access to the ledger.
package domain

import (
	"encoding/json"
	"time"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/canonical"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// Capsule format constants.
const (
	Version = "1.0"
	Type    = "evidence_proof"
)

// HashAlgorithm computes capsule hashes regardless of the ledger algorithm.
const HashAlgorithm = canonical.SHA256

// Record is the evidence the capsule proves.
type Record struct {
	Type     canonical.RecordType `json:"type"`
	Metadata json.RawMessage      `json:"metadata"`
	LeafHash string               `json:"leaf_hash"`
}

// Proofs is the inclusion proof of the record's leaf.
type Proofs struct {
	MerklePath          ledgerDomain.Proof  `json:"merkle_path"`
	MerkleRoot          string              `json:"merkle_root"`
	InclusionProofValid bool                `json:"inclusion_proof_valid"`
	HashAlgorithm       canonical.Algorithm `json:"hash_algorithm"`
}

// Verification records the checks performed when the capsule was built.
type Verification struct {
	CapsuleHash      string                       `json:"capsule_hash"`
	SignatureValid   bool                         `json:"signature_valid"`
	MerkleProofValid bool                         `json:"merkle_proof_valid"`
	PolicyCompliant  bool                         `json:"policy_compliant"`
	RiskAssessment   *policyDomain.RiskAssessment `json:"risk_assessment,omitempty"`
}

// Capsule is the externally verifiable proof of one record.
type Capsule struct {
	CapsuleVersion string                     `json:"capsule_version"`
	CapsuleType    string                     `json:"capsule_type"`
	Timestamp      time.Time                  `json:"timestamp"`
	Record         Record                     `json:"record"`
	Proofs         Proofs                     `json:"proofs"`
	Anchor         *anchorDomain.AnchorRecord `json:"anchor"`
	Verification   Verification               `json:"verification"`
}

// hashedCapsule is the part of a capsule covered by capsule_hash.
type hashedCapsule struct {
	CapsuleVersion string                     `json:"capsule_version"`
	CapsuleType    string                     `json:"capsule_type"`
	Timestamp      time.Time                  `json:"timestamp"`
	Record         Record                     `json:"record"`
	Proofs         Proofs                     `json:"proofs"`
	Anchor         *anchorDomain.AnchorRecord `json:"anchor"`
}

// ComputeHash returns the SHA-256 of the canonical capsule without its verification block.
func (c *Capsule) ComputeHash() (string, error) {
	_, digest, err := canonical.HashValue(hashedCapsule{
		CapsuleVersion: c.CapsuleVersion,
		CapsuleType:    c.CapsuleType,
		Timestamp:      c.Timestamp,
		Record:         c.Record,
		Proofs:         c.Proofs,
		Anchor:         c.Anchor,
	}, HashAlgorithm)
	return digest, err
}

// Result is the outcome of verifying a capsule. Each check is independent; Valid is true
// only when all of them pass.
type Result struct {
	LeafHashValid    bool `json:"leaf_hash_valid"`
	MerkleProofValid bool `json:"merkle_proof_valid"`
	RootBound        bool `json:"root_bound"`
	SignatureValid   bool `json:"signature_valid"`
	CapsuleHashValid bool `json:"capsule_hash_valid"`
	Valid            bool `json:"valid"`
}
