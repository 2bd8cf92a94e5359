package usecase

import (
	"context"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
	policyService "github.com/allisson/provenance/internal/policy/service"
)

// Ledger is the Merkle ledger the evidence is appended to.
type Ledger interface {
	ID() string
	Algorithm() canonical.Algorithm
	Append(ctx context.Context, leafHash string, metadata any) (string, error)
	Leaf(leafHash string) (ledgerDomain.Leaf, error)
	LeafHashes() []string
	Snapshot() (string, int, error)
	ProofSnapshot(leafHash string) (ledgerDomain.Proof, string, int, error)
}

// PolicyRepository resolves and seals policies.
type PolicyRepository interface {
	Get(ctx context.Context, id string) (*policyDomain.Policy, error)
	Seal(ctx context.Context, id string) (string, error)
}

// RiskEngine assesses metadata against a policy.
type RiskEngine interface {
	Assess(in policyService.Input, policy *policyDomain.Policy) policyDomain.RiskAssessment
}

// Anchorer signs and stores anchors.
type Anchorer interface {
	Anchor(ctx context.Context, root string, leafCount int, policy *policyDomain.Policy) (*anchorDomain.AnchorRecord, error)
	List(ctx context.Context) ([]*anchorDomain.AnchorRecord, error)
	Verify(record *anchorDomain.AnchorRecord) bool
}

// CapsulePublisher stores capsules outside the ledger.
type CapsulePublisher interface {
	Publish(ctx context.Context, c *capsuleDomain.Capsule) (string, error)
}

// EvidenceUseCase admits evidence and proves it.
type EvidenceUseCase interface {
	// Assess evaluates a submission without admitting it.
	Assess(ctx context.Context, submission *evidenceDomain.Submission) (*policyDomain.RiskAssessment, error)

	// Admit validates, assesses and appends a submission. A blocked submission is recorded
	// as an audit record and yields a *PolicyBlockedError.
	Admit(ctx context.Context, submission *evidenceDomain.Submission) (*evidenceDomain.Admission, error)

	// AdmitBatch prepares submissions concurrently and appends them in input order.
	// Per-item failures are reported in the results; storage failures abort the batch.
	AdmitBatch(ctx context.Context, submissions []*evidenceDomain.Submission) ([]evidenceDomain.BatchResult, error)

	// Prove anchors the current root if needed and returns the capsule of the leaf.
	Prove(ctx context.Context, leafHash string) (*capsuleDomain.Capsule, error)

	// AnchorCurrentRoot signs the current root under the policy. Repeated calls against the
	// same root return the stored anchor.
	AnchorCurrentRoot(ctx context.Context, policyID string) (*anchorDomain.AnchorRecord, error)

	// VerifyIntegrity re-verifies stored records, the root and every anchor.
	VerifyIntegrity(ctx context.Context) (*evidenceDomain.IntegrityReport, error)
}
