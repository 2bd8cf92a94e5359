// Package service builds and verifies proof capsules.
package service

import (
	"encoding/json"
	"fmt"
	"time"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	anchorService "github.com/allisson/provenance/internal/anchor/service"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	"github.com/allisson/provenance/internal/canonical"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
	ledgerService "github.com/allisson/provenance/internal/ledger/service"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// AnchorVerifier checks anchor signatures.
type AnchorVerifier interface {
	Verify(a *anchorDomain.AnchorRecord) bool
}

// BuildInput is everything a capsule is assembled from.
type BuildInput struct {
	RecordType     canonical.RecordType
	Metadata       json.RawMessage
	LeafHash       string
	Proof          ledgerDomain.Proof
	Root           string
	Algorithm      canonical.Algorithm
	Anchor         *anchorDomain.AnchorRecord
	RiskAssessment *policyDomain.RiskAssessment
	Timestamp      time.Time
}

// Build assembles a capsule and records the verification outcome at build time.
func Build(in BuildInput, verifier AnchorVerifier) (*capsuleDomain.Capsule, error) {
	if in.Anchor == nil {
		return nil, fmt.Errorf("%w: anchor is required", capsuleDomain.ErrInvalidCapsule)
	}
	if in.Anchor.Root != in.Root {
		return nil, fmt.Errorf("%w: anchor root %s does not match proof root %s",
			capsuleDomain.ErrInvalidCapsule, in.Anchor.Root, in.Root)
	}
	metadata, err := canonical.Canonicalize(in.Metadata)
	if err != nil {
		return nil, err
	}
	alg := in.Algorithm
	if alg == "" {
		alg = canonical.DefaultAlgorithm
	}

	proofValid := ledgerService.Verify(alg, in.LeafHash, in.Proof, in.Root)
	c := &capsuleDomain.Capsule{
		CapsuleVersion: capsuleDomain.Version,
		CapsuleType:    capsuleDomain.Type,
		Timestamp:      in.Timestamp.UTC().Truncate(time.Microsecond),
		Record: capsuleDomain.Record{
			Type:     in.RecordType,
			Metadata: metadata,
			LeafHash: in.LeafHash,
		},
		Proofs: capsuleDomain.Proofs{
			MerklePath:          in.Proof.Clone(),
			MerkleRoot:          in.Root,
			InclusionProofValid: proofValid,
			HashAlgorithm:       alg,
		},
		Anchor: in.Anchor.Clone(),
		Verification: capsuleDomain.Verification{
			SignatureValid:   verifier != nil && verifier.Verify(in.Anchor),
			MerkleProofValid: proofValid,
			PolicyCompliant: in.RiskAssessment != nil &&
				in.RiskAssessment.ComplianceResult == policyDomain.Compliant,
			RiskAssessment: in.RiskAssessment,
		},
	}
	c.Verification.CapsuleHash, err = c.ComputeHash()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Verify checks a capsule without the ledger: the leaf hash is recomputed from the
// metadata, the proof is walked to the root, the root must be the anchored one, the
// anchor signature must verify under publicKeys (key id to PEM) and the capsule hash
// must match. The flags stored in the capsule are ignored.
func Verify(c *capsuleDomain.Capsule, publicKeys map[string]string) capsuleDomain.Result {
	var r capsuleDomain.Result
	if c == nil || c.Anchor == nil {
		return r
	}

	alg := c.Proofs.HashAlgorithm
	if alg == "" {
		alg = canonical.DefaultAlgorithm
	}
	if _, digest, err := canonical.HashValue(c.Record.Metadata, alg); err == nil {
		r.LeafHashValid = digest == c.Record.LeafHash
	}
	r.MerkleProofValid = ledgerService.Verify(alg, c.Record.LeafHash, c.Proofs.MerklePath, c.Proofs.MerkleRoot)
	r.RootBound = c.Anchor.Root == c.Proofs.MerkleRoot &&
		(c.Anchor.HashAlgorithm == "" || c.Anchor.HashAlgorithm == alg)
	r.SignatureValid = anchorService.VerifyWithKeys(c.Anchor, publicKeys)
	if digest, err := c.ComputeHash(); err == nil {
		r.CapsuleHashValid = digest == c.Verification.CapsuleHash
	}
	r.Valid = r.LeafHashValid && r.MerkleProofValid && r.RootBound && r.SignatureValid && r.CapsuleHashValid
	return r
}

// Marshal renders the capsule as indented JSON.
func Marshal(c *capsuleDomain.Capsule) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Unmarshal decodes a capsule.
func Unmarshal(data []byte) (*capsuleDomain.Capsule, error) {
	var c capsuleDomain.Capsule
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", capsuleDomain.ErrInvalidCapsule, err)
	}
	if c.CapsuleVersion == "" || c.Anchor == nil {
		return nil, fmt.Errorf("%w: missing version or anchor", capsuleDomain.ErrInvalidCapsule)
	}
	return &c, nil
}
