package usecase

import (
	"context"
	"errors"
	"time"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	"github.com/allisson/provenance/internal/metrics"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// evidenceUseCaseWithMetrics decorates EvidenceUseCase with metrics instrumentation.
type evidenceUseCaseWithMetrics struct {
	next    EvidenceUseCase
	metrics metrics.BusinessMetrics
}

// NewEvidenceUseCaseWithMetrics wraps an EvidenceUseCase with metrics recording.
func NewEvidenceUseCaseWithMetrics(useCase EvidenceUseCase, m metrics.BusinessMetrics) EvidenceUseCase {
	return &evidenceUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// status maps an error to a metric status. Policy refusals are counted apart from failures.
func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, evidenceDomain.ErrPolicyBlocked):
		return "blocked"
	default:
		return "error"
	}
}

func (e *evidenceUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	s := status(err)
	e.metrics.RecordOperation(ctx, "evidence", operation, s)
	e.metrics.RecordDuration(ctx, "evidence", operation, time.Since(start), s)
}

// Assess records metrics for risk assessment operations.
func (e *evidenceUseCaseWithMetrics) Assess(
	ctx context.Context,
	submission *evidenceDomain.Submission,
) (*policyDomain.RiskAssessment, error) {
	start := time.Now()
	assessment, err := e.next.Assess(ctx, submission)
	e.record(ctx, "evidence_assess", start, err)
	return assessment, err
}

// Admit records metrics for admission operations.
func (e *evidenceUseCaseWithMetrics) Admit(
	ctx context.Context,
	submission *evidenceDomain.Submission,
) (*evidenceDomain.Admission, error) {
	start := time.Now()
	admission, err := e.next.Admit(ctx, submission)
	e.record(ctx, "evidence_admit", start, err)
	return admission, err
}

// AdmitBatch records metrics for the batch and for each of its items.
func (e *evidenceUseCaseWithMetrics) AdmitBatch(
	ctx context.Context,
	submissions []*evidenceDomain.Submission,
) ([]evidenceDomain.BatchResult, error) {
	start := time.Now()
	results, err := e.next.AdmitBatch(ctx, submissions)
	for _, r := range results {
		e.metrics.RecordOperation(ctx, "evidence", "evidence_admit", status(r.Err))
	}
	e.record(ctx, "evidence_admit_batch", start, err)
	return results, err
}

// Prove records metrics for capsule generation.
func (e *evidenceUseCaseWithMetrics) Prove(ctx context.Context, leafHash string) (*capsuleDomain.Capsule, error) {
	start := time.Now()
	c, err := e.next.Prove(ctx, leafHash)
	e.record(ctx, "evidence_prove", start, err)
	return c, err
}

// AnchorCurrentRoot records metrics for anchoring operations.
func (e *evidenceUseCaseWithMetrics) AnchorCurrentRoot(
	ctx context.Context,
	policyID string,
) (*anchorDomain.AnchorRecord, error) {
	start := time.Now()
	anchor, err := e.next.AnchorCurrentRoot(ctx, policyID)
	e.record(ctx, "evidence_anchor", start, err)
	return anchor, err
}

// VerifyIntegrity records metrics for integrity verification.
func (e *evidenceUseCaseWithMetrics) VerifyIntegrity(ctx context.Context) (*evidenceDomain.IntegrityReport, error) {
	start := time.Now()
	report, err := e.next.VerifyIntegrity(ctx)
	if err == nil && !report.Valid {
		e.metrics.RecordOperation(ctx, "evidence", "evidence_verify_integrity", "invalid")
		e.metrics.RecordDuration(ctx, "evidence", "evidence_verify_integrity", time.Since(start), "invalid")
		return report, nil
	}
	e.record(ctx, "evidence_verify_integrity", start, err)
	return report, err
}
