// Package usecase admits evidence into the ledger and produces proof capsules.
//
// Admission order is fixed: validate required fields, canonicalize and hash, assess,
// append. Anchoring always happens after the append and is idempotent per root, so a
// failed anchor can be retried without touching the ledger.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	capsuleService "github.com/allisson/provenance/internal/capsule/service"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
	ledgerService "github.com/allisson/provenance/internal/ledger/service"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
	policyService "github.com/allisson/provenance/internal/policy/service"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// DefaultBatchConcurrency bounds the preparation workers of AdmitBatch.
const DefaultBatchConcurrency = 8

// Config configures the evidence use case.
type Config struct {
	Ledger   Ledger
	Store    wormDomain.Store
	Policies PolicyRepository
	Engine   RiskEngine
	Anchorer Anchorer
	// Publisher is optional; capsules are published when set.
	Publisher        CapsulePublisher
	DefaultPolicyID  string
	AutoAnchor       bool
	BatchConcurrency int
	Logger           *slog.Logger
	Now              func() time.Time
}

type evidenceUseCase struct {
	ledger           Ledger
	store            wormDomain.Store
	policies         PolicyRepository
	engine           RiskEngine
	anchorer         Anchorer
	publisher        CapsulePublisher
	defaultPolicyID  string
	autoAnchor       bool
	batchConcurrency int
	logger           *slog.Logger
	now              func() time.Time
}

// NewEvidenceUseCase creates the use case and seals every policy already referenced by a
// stored anchor.
func NewEvidenceUseCase(ctx context.Context, cfg Config) (EvidenceUseCase, error) {
	if cfg.Ledger == nil || cfg.Store == nil || cfg.Policies == nil || cfg.Engine == nil || cfg.Anchorer == nil {
		return nil, errors.New("ledger, store, policies, engine and anchorer are required")
	}
	if cfg.DefaultPolicyID == "" {
		return nil, errors.New("default policy id is required")
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &evidenceUseCase{
		ledger:           cfg.Ledger,
		store:            cfg.Store,
		policies:         cfg.Policies,
		engine:           cfg.Engine,
		anchorer:         cfg.Anchorer,
		publisher:        cfg.Publisher,
		defaultPolicyID:  cfg.DefaultPolicyID,
		autoAnchor:       cfg.AutoAnchor,
		batchConcurrency: cfg.BatchConcurrency,
		logger:           cfg.Logger,
		now:              cfg.Now,
	}
	if err := e.sealAnchoredPolicies(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *evidenceUseCase) sealAnchoredPolicies(ctx context.Context) error {
	anchors, err := e.anchorer.List(ctx)
	if err != nil {
		return err
	}
	sealed := make(map[string]bool)
	for _, a := range anchors {
		if sealed[a.PolicyID] {
			continue
		}
		sealed[a.PolicyID] = true
		if _, err := e.policies.Seal(ctx, a.PolicyID); err != nil {
			if errors.Is(err, policyDomain.ErrPolicyNotFound) {
				e.logger.Warn("anchored policy is no longer defined", slog.String("policy_id", a.PolicyID))
				continue
			}
			return err
		}
	}
	return nil
}

func (e *evidenceUseCase) policyID(id string) string {
	if id == "" {
		return e.defaultPolicyID
	}
	return id
}

func (e *evidenceUseCase) checkAlgorithm(policy *policyDomain.Policy) error {
	if policy.HashAlgorithm != e.ledger.Algorithm() {
		return fmt.Errorf("%w: policy %s uses %s, ledger uses %s",
			evidenceDomain.ErrAlgorithmMismatch, policy.PolicyID, policy.HashAlgorithm, e.ledger.Algorithm())
	}
	return nil
}

// sealedPolicy freezes the policy before reading it, so the returned version is the one
// every later anchor will reference.
func (e *evidenceUseCase) sealedPolicy(ctx context.Context, id string) (*policyDomain.Policy, error) {
	if _, err := e.policies.Seal(ctx, id); err != nil {
		return nil, err
	}
	policy, err := e.policies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkAlgorithm(policy); err != nil {
		return nil, err
	}
	return policy, nil
}

type prepared struct {
	submission *evidenceDomain.Submission
	policy     *policyDomain.Policy
	metadata   json.RawMessage
	leafHash   string
	assessment policyDomain.RiskAssessment
}

func (e *evidenceUseCase) prepare(ctx context.Context, sub *evidenceDomain.Submission) (*prepared, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: submission is required", evidenceDomain.ErrInvalidSubmission)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := canonical.ValidateRequiredFields(sub.Metadata, sub.RecordType); err != nil {
		return nil, err
	}

	policy, err := e.policies.Get(ctx, e.policyID(sub.PolicyID))
	if err != nil {
		return nil, err
	}
	if err := e.checkAlgorithm(policy); err != nil {
		return nil, err
	}

	metadata, leafHash, err := canonical.HashValue(sub.Metadata, e.ledger.Algorithm())
	if err != nil {
		return nil, err
	}
	// Rules see the canonical form, not the caller's map.
	var normalized map[string]any
	if err := json.Unmarshal(metadata, &normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", evidenceDomain.ErrInvalidSubmission, err)
	}
	assessment := e.engine.Assess(policyService.Input{Metadata: normalized, RecordType: sub.RecordType}, policy)

	return &prepared{
		submission: sub,
		policy:     policy,
		metadata:   metadata,
		leafHash:   leafHash,
		assessment: assessment,
	}, nil
}

// Assess evaluates a submission without admitting it.
func (e *evidenceUseCase) Assess(
	ctx context.Context,
	sub *evidenceDomain.Submission,
) (*policyDomain.RiskAssessment, error) {
	p, err := e.prepare(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &p.assessment, nil
}

func (e *evidenceUseCase) audit(ctx context.Context, p *prepared) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	recordID := evidenceDomain.AuditRecordPrefix(e.ledger.ID()) + id.String()
	record, err := wormDomain.NewRecord(recordID, wormDomain.RecordTypeRiskAssessment, evidenceDomain.AuditRecord{
		LedgerID:      e.ledger.ID(),
		RecordType:    p.submission.RecordType,
		PolicyID:      p.policy.PolicyID,
		MetadataHash:  p.leafHash,
		HashAlgorithm: e.ledger.Algorithm(),
		Assessment:    p.assessment,
	}, e.now())
	if err != nil {
		return "", err
	}
	if _, err := e.store.Append(ctx, record); err != nil {
		return "", err
	}
	return recordID, nil
}

func (e *evidenceUseCase) commit(ctx context.Context, p *prepared) (*evidenceDomain.Admission, error) {
	if !p.assessment.IsOperationAllowed() {
		auditID, err := e.audit(ctx, p)
		if err != nil {
			return nil, err
		}
		e.logger.Warn("admission blocked",
			slog.String("policy_id", p.policy.PolicyID),
			slog.String("risk_level", p.assessment.RiskLevel.String()),
			slog.Int("violations", len(p.assessment.Violations)),
			slog.String("audit_record_id", auditID),
		)
		return nil, &evidenceDomain.PolicyBlockedError{Assessment: p.assessment, AuditRecordID: auditID}
	}

	root, err := e.ledger.Append(ctx, p.leafHash, evidenceDomain.LeafEnvelope{
		RecordType: p.submission.RecordType,
		PolicyID:   p.policy.PolicyID,
		Metadata:   p.metadata,
		Assessment: p.assessment,
	})
	if err != nil {
		return nil, err
	}

	admission := &evidenceDomain.Admission{
		LeafHash:   p.leafHash,
		Root:       root,
		RecordType: p.submission.RecordType,
		PolicyID:   p.policy.PolicyID,
		Assessment: p.assessment,
	}
	e.logger.Info("evidence admitted",
		slog.String("leaf_hash", p.leafHash),
		slog.String("record_type", p.submission.RecordType.String()),
		slog.String("policy_id", p.policy.PolicyID),
		slog.String("risk_level", p.assessment.RiskLevel.String()),
	)

	if e.autoAnchor {
		anchor, err := e.AnchorCurrentRoot(ctx, p.policy.PolicyID)
		if err != nil {
			// The leaf is durable; the caller may retry anchoring.
			return admission, err
		}
		admission.Anchor = anchor
	}
	return admission, nil
}

// Admit validates, assesses and appends a submission.
func (e *evidenceUseCase) Admit(
	ctx context.Context,
	sub *evidenceDomain.Submission,
) (*evidenceDomain.Admission, error) {
	p, err := e.prepare(ctx, sub)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, p)
}

// isItemError reports whether err concerns only the submission, not the store.
func isItemError(err error) bool {
	var blocked *evidenceDomain.PolicyBlockedError
	return errors.As(err, &blocked) || errors.Is(err, ledgerDomain.ErrDuplicateLeaf)
}

// AdmitBatch prepares submissions concurrently and appends them in input order.
func (e *evidenceUseCase) AdmitBatch(
	ctx context.Context,
	subs []*evidenceDomain.Submission,
) ([]evidenceDomain.BatchResult, error) {
	results := make([]evidenceDomain.BatchResult, len(subs))
	ready := make([]*prepared, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchConcurrency)
	for i, sub := range subs {
		g.Go(func() error {
			p, err := e.prepare(gctx, sub)
			if err != nil {
				results[i].Err = err
				return nil
			}
			ready[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, p := range ready {
		if p == nil {
			continue
		}
		admission, err := e.commit(ctx, p)
		results[i] = evidenceDomain.BatchResult{Admission: admission, Err: err}
		if err != nil && !isItemError(err) && admission == nil {
			return results, err
		}
	}
	return results, nil
}

// AnchorCurrentRoot signs the current root under the policy.
func (e *evidenceUseCase) AnchorCurrentRoot(ctx context.Context, policyID string) (*anchorDomain.AnchorRecord, error) {
	root, size, err := e.ledger.Snapshot()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, evidenceDomain.ErrEmptyLedger
	}
	policy, err := e.sealedPolicy(ctx, e.policyID(policyID))
	if err != nil {
		return nil, err
	}
	return e.anchorer.Anchor(ctx, root, size, policy)
}

func decodeEnvelope(leaf ledgerDomain.Leaf) (*evidenceDomain.LeafEnvelope, error) {
	var env evidenceDomain.LeafEnvelope
	if err := json.Unmarshal(leaf.Metadata, &env); err != nil {
		return nil, fmt.Errorf("%w: leaf %s: %v", wormDomain.ErrStorageIO, leaf.Hash, err)
	}
	if len(env.Metadata) == 0 {
		return nil, fmt.Errorf("%w: leaf %s has no evidence envelope", wormDomain.ErrStorageIO, leaf.Hash)
	}
	return &env, nil
}

// Prove anchors the current root if needed and returns the capsule of the leaf.
func (e *evidenceUseCase) Prove(ctx context.Context, leafHash string) (*capsuleDomain.Capsule, error) {
	leaf, err := e.ledger.Leaf(leafHash)
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(leaf)
	if err != nil {
		return nil, err
	}
	policy, err := e.sealedPolicy(ctx, env.PolicyID)
	if err != nil {
		return nil, err
	}

	proof, root, size, err := e.ledger.ProofSnapshot(leafHash)
	if err != nil {
		return nil, err
	}
	anchor, err := e.anchorer.Anchor(ctx, root, size, policy)
	if err != nil {
		return nil, err
	}

	assessment := env.Assessment
	c, err := capsuleService.Build(capsuleService.BuildInput{
		RecordType:     env.RecordType,
		Metadata:       env.Metadata,
		LeafHash:       leafHash,
		Proof:          proof,
		Root:           root,
		Algorithm:      e.ledger.Algorithm(),
		Anchor:         anchor,
		RiskAssessment: &assessment,
		Timestamp:      e.now(),
	}, e.anchorer)
	if err != nil {
		return nil, err
	}

	if e.publisher != nil {
		key, err := e.publisher.Publish(ctx, c)
		if err != nil {
			return nil, err
		}
		e.logger.Info("capsule published", slog.String("leaf_hash", leafHash), slog.String("key", key))
	}
	return c, nil
}

// VerifyIntegrity replays the durable leaf records, recomputes every leaf hash and the
// root, and checks each anchor's signature and root against the replayed sequence.
func (e *evidenceUseCase) VerifyIntegrity(ctx context.Context) (*evidenceDomain.IntegrityReport, error) {
	alg := e.ledger.Algorithm()
	report := &evidenceDomain.IntegrityReport{
		LedgerID:           e.ledger.ID(),
		LeafHashMismatches: []string{},
		InvalidAnchors:     []string{},
		Errors:             []string{},
	}

	root, size, err := e.ledger.Snapshot()
	if err != nil {
		return nil, err
	}
	report.Root = root
	report.LeafCount = size

	records, err := e.store.List(ctx, wormDomain.ListFilter{
		RecordType: wormDomain.RecordTypeLeaf,
		IDPrefix:   ledgerDomain.LeafRecordPrefix(e.ledger.ID()),
	})
	if errors.Is(err, wormDomain.ErrContentHashMismatch) {
		report.Errors = append(report.Errors, err.Error())
		return report, nil
	}
	if err != nil {
		return nil, err
	}

	tree, err := ledgerService.NewTree(alg)
	if err != nil {
		return nil, err
	}
	emptyRoot, err := ledgerService.EmptyRoot(alg)
	if err != nil {
		return nil, err
	}
	rootsBySize := map[int]string{0: emptyRoot}

	for _, r := range records {
		var payload ledgerDomain.LeafPayload
		if err := r.Decode(&payload); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("record %s: %v", r.ID, err))
			continue
		}
		if payload.LedgerID != e.ledger.ID() {
			continue
		}
		report.RecordsVerified++

		env, err := decodeEnvelope(ledgerDomain.Leaf{Hash: payload.LeafHash, Metadata: payload.Metadata})
		if err != nil {
			report.LeafHashMismatches = append(report.LeafHashMismatches, payload.LeafHash)
		} else if _, digest, err := canonical.HashValue(env.Metadata, alg); err != nil || digest != payload.LeafHash {
			report.LeafHashMismatches = append(report.LeafHashMismatches, payload.LeafHash)
		}

		leaf, err := ledgerService.DecodeLeaf(alg, payload.LeafHash)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("record %s: %v", r.ID, err))
			continue
		}
		if err := tree.Append(leaf); err != nil {
			return nil, err
		}
		rootsBySize[tree.Len()], err = tree.Root()
		if err != nil {
			return nil, err
		}
	}

	// Appends may land between the snapshot and the listing; compare at the snapshot size.
	recomputed, ok := rootsBySize[size]
	if !ok {
		report.Errors = append(report.Errors,
			fmt.Sprintf("ledger holds %d leaves but only %d records were replayed", size, tree.Len()))
	}
	report.RecomputedRoot = recomputed
	if ok && recomputed != root {
		report.Errors = append(report.Errors, fmt.Sprintf("root mismatch: ledger %s, recomputed %s", root, recomputed))
	}

	anchors, err := e.anchorer.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range anchors {
		report.AnchorsVerified++
		if !e.anchorer.Verify(a) || rootsBySize[a.LeafCount] != a.Root {
			report.InvalidAnchors = append(report.InvalidAnchors, a.ID())
		}
	}

	report.Valid = len(report.LeafHashMismatches) == 0 && len(report.InvalidAnchors) == 0 && len(report.Errors) == 0
	e.logger.Info("ledger integrity verified",
		slog.String("ledger_id", report.LedgerID),
		slog.Int("records", report.RecordsVerified),
		slog.Int("anchors", report.AnchorsVerified),
		slog.Bool("valid", report.Valid),
	)
	return report, nil
}
