package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	capsuleService "github.com/allisson/provenance/internal/capsule/service"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	evidenceUseCase "github.com/allisson/provenance/internal/evidence/usecase"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// AdmitInput holds the flags of admit.
type AdmitInput struct {
	// File holds the metadata object, or an array of submissions when Batch is set.
	// "-" reads stdin.
	File       string
	RecordType string
	PolicyID   string
	Batch      bool
	Format     string
}

// RunAdmit admits one metadata document, or a batch of submissions, into the ledger.
func RunAdmit(
	ctx context.Context,
	useCase evidenceUseCase.EvidenceUseCase,
	logger *slog.Logger,
	io IOTuple,
	in AdmitInput,
) error {
	if err := validateFormat(in.Format); err != nil {
		return err
	}

	data, err := readInput(io.Reader, in.File)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if in.Batch {
		return runAdmitBatch(ctx, useCase, logger, io.Writer, data, in.Format)
	}

	recordType, err := canonical.ParseRecordType(in.RecordType)
	if err != nil {
		return err
	}
	var metadata map[string]any
	if err := decodeJSON(data, &metadata); err != nil {
		return fmt.Errorf("metadata must be a JSON object: %w", err)
	}

	admission, err := useCase.Admit(ctx, &evidenceDomain.Submission{
		RecordType: recordType,
		Metadata:   metadata,
		PolicyID:   in.PolicyID,
	})

	var blocked *evidenceDomain.PolicyBlockedError
	if errors.As(err, &blocked) {
		if in.Format == "json" {
			_ = outputJSON(io.Writer, map[string]any{
				"error":           "policy_blocked",
				"audit_record_id": blocked.AuditRecordID,
				"assessment":      blocked.Assessment,
			})
		} else {
			_, _ = fmt.Fprintf(io.Writer, "Admission blocked (audit record %s)\n", blocked.AuditRecordID)
			outputAssessmentText(io.Writer, blocked.Assessment)
		}
		return err
	}
	if admission == nil {
		return fmt.Errorf("failed to admit evidence: %w", err)
	}
	if err != nil {
		// Admitted, but the automatic anchor failed; anchor can be retried.
		logger.Warn("evidence admitted but not anchored", slog.String("leaf_hash", admission.LeafHash), slog.Any("error", err))
	}

	if in.Format == "json" {
		if jsonErr := outputJSON(io.Writer, admission); jsonErr != nil {
			return jsonErr
		}
		return err
	}
	outputAdmissionText(io.Writer, admission)
	return err
}

func runAdmitBatch(
	ctx context.Context,
	useCase evidenceUseCase.EvidenceUseCase,
	logger *slog.Logger,
	writer io.Writer,
	data []byte,
	format string,
) error {
	var submissions []*evidenceDomain.Submission
	if err := decodeJSON(data, &submissions); err != nil {
		return fmt.Errorf("batch input must be a JSON array of submissions: %w", err)
	}

	results, err := useCase.AdmitBatch(ctx, submissions)
	if err != nil {
		return fmt.Errorf("failed to admit batch: %w", err)
	}

	type itemOutput struct {
		Index     int                       `json:"index"`
		Admission *evidenceDomain.Admission `json:"admission,omitempty"`
		Error     string                    `json:"error,omitempty"`
	}
	items := make([]itemOutput, len(results))
	failed := 0
	for i, r := range results {
		items[i] = itemOutput{Index: i, Admission: r.Admission}
		if r.Err != nil {
			items[i].Error = r.Err.Error()
			failed++
		}
	}

	logger.Info("batch admitted", slog.Int("admitted", len(results)-failed), slog.Int("failed", failed))

	if format == "json" {
		if err := outputJSON(writer, map[string]any{
			"admitted": len(results) - failed,
			"failed":   failed,
			"results":  items,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(writer, "Admitted %d of %d submission(s)\n", len(results)-failed, len(results))
		for _, item := range items {
			if item.Error != "" {
				_, _ = fmt.Fprintf(writer, "  [%d] FAILED: %s\n", item.Index, item.Error)
				continue
			}
			_, _ = fmt.Fprintf(writer, "  [%d] %s\n", item.Index, item.Admission.LeafHash)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d submission(s) were not admitted", failed)
	}
	return nil
}

// RunProve writes the proof capsule of leafHash to output, or the writer when output is
// empty or "-".
func RunProve(
	ctx context.Context,
	useCase evidenceUseCase.EvidenceUseCase,
	logger *slog.Logger,
	writer io.Writer,
	leafHash, output string,
) error {
	capsule, err := useCase.Prove(ctx, leafHash)
	if err != nil {
		return fmt.Errorf("failed to prove leaf: %w", err)
	}

	data, err := capsuleService.Marshal(capsule)
	if err != nil {
		return fmt.Errorf("failed to encode capsule: %w", err)
	}

	if output == "" || output == "-" {
		_, err = fmt.Fprintf(writer, "%s\n", data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write capsule: %w", err)
	}

	logger.Info("capsule written",
		slog.String("leaf_hash", leafHash),
		slog.String("capsule_hash", capsule.Verification.CapsuleHash),
		slog.String("path", output),
	)
	return nil
}

// RunAnchor signs the current root under policyID, or the default policy when empty.
func RunAnchor(
	ctx context.Context,
	useCase evidenceUseCase.EvidenceUseCase,
	logger *slog.Logger,
	writer io.Writer,
	policyID, format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	anchor, err := useCase.AnchorCurrentRoot(ctx, policyID)
	if err != nil {
		return fmt.Errorf("failed to anchor root: %w", err)
	}

	logger.Info("root anchored",
		slog.String("root", anchor.Root),
		slog.String("policy_id", anchor.PolicyID),
		slog.Int("leaf_count", anchor.LeafCount),
	)

	if format == "json" {
		return outputJSON(writer, anchor)
	}
	_, _ = fmt.Fprintf(writer, "Root anchored\n")
	_, _ = fmt.Fprintf(writer, "  Root:        %s\n", anchor.Root)
	_, _ = fmt.Fprintf(writer, "  Leaves:      %d\n", anchor.LeafCount)
	_, _ = fmt.Fprintf(writer, "  Policy:      %s\n", anchor.PolicyID)
	_, _ = fmt.Fprintf(writer, "  Signing key: %s\n", anchor.SigningKeyID)
	_, _ = fmt.Fprintf(writer, "  Timestamp:   %s\n", anchor.Timestamp.Format("2006-01-02 15:04:05"))
	if anchor.ExternalAnchor != nil {
		_, _ = fmt.Fprintf(writer, "  External:    %s %s\n", anchor.ExternalAnchor.Provider, anchor.ExternalAnchor.Reference)
	}
	return nil
}

// RunVerifyCapsule verifies a capsule without any ledger state. publicKeys maps key id to
// PEM, as written by export-public-keys --format json.
func RunVerifyCapsule(io IOTuple, capsulePath string, publicKeys map[string]string, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	data, err := readInput(io.Reader, capsulePath)
	if err != nil {
		return fmt.Errorf("failed to read capsule: %w", err)
	}
	capsule, err := capsuleService.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("failed to decode capsule: %w", err)
	}

	result := capsuleService.Verify(capsule, publicKeys)

	if format == "json" {
		if err := outputJSON(io.Writer, result); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(io.Writer, "Capsule %s\n", capsule.Verification.CapsuleHash)
		_, _ = fmt.Fprintf(io.Writer, "  Leaf hash:    %s\n", passFail(result.LeafHashValid))
		_, _ = fmt.Fprintf(io.Writer, "  Merkle proof: %s\n", passFail(result.MerkleProofValid))
		_, _ = fmt.Fprintf(io.Writer, "  Root bound:   %s\n", passFail(result.RootBound))
		_, _ = fmt.Fprintf(io.Writer, "  Signature:    %s\n", passFail(result.SignatureValid))
		_, _ = fmt.Fprintf(io.Writer, "  Capsule hash: %s\n", passFail(result.CapsuleHashValid))
	}

	if !result.Valid {
		return errors.New("capsule verification failed")
	}
	return nil
}

// LoadPublicKeys reads a key id to PEM JSON map.
func LoadPublicKeys(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public keys: %w", err)
	}
	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("public keys must be a JSON object of key id to PEM: %w", err)
	}
	return keys, nil
}

// RunVerifyLedger re-verifies every stored leaf, the root and every anchor.
func RunVerifyLedger(
	ctx context.Context,
	useCase evidenceUseCase.EvidenceUseCase,
	logger *slog.Logger,
	writer io.Writer,
	format string,
) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	report, err := useCase.VerifyIntegrity(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify ledger: %w", err)
	}

	if format == "json" {
		if err := outputJSON(writer, report); err != nil {
			return fmt.Errorf("failed to output JSON: %w", err)
		}
	} else {
		outputIntegrityText(writer, report)
	}

	logger.Info("ledger verification completed",
		slog.String("ledger_id", report.LedgerID),
		slog.Int("records_verified", report.RecordsVerified),
		slog.Int("anchors_verified", report.AnchorsVerified),
		slog.Bool("valid", report.Valid),
	)

	if !report.Valid {
		return fmt.Errorf("integrity check failed for ledger %s", report.LedgerID)
	}
	return nil
}

func passFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAILED"
}

func outputAdmissionText(writer io.Writer, admission *evidenceDomain.Admission) {
	_, _ = fmt.Fprintf(writer, "Evidence admitted\n")
	_, _ = fmt.Fprintf(writer, "  Leaf hash: %s\n", admission.LeafHash)
	_, _ = fmt.Fprintf(writer, "  Root:      %s\n", admission.Root)
	_, _ = fmt.Fprintf(writer, "  Policy:    %s\n", admission.PolicyID)
	outputAssessmentText(writer, admission.Assessment)
	if admission.Anchor != nil {
		_, _ = fmt.Fprintf(writer, "  Anchored by key %s\n", admission.Anchor.SigningKeyID)
	}
}

func outputAssessmentText(writer io.Writer, a policyDomain.RiskAssessment) {
	_, _ = fmt.Fprintf(writer, "  Risk:      %s (%s)\n", a.RiskLevel, a.ComplianceResult)
	for _, v := range a.Violations {
		_, _ = fmt.Fprintf(writer, "    - %s [%s] %s\n", v.RuleID, v.Severity, v.Description)
	}
	for _, r := range a.Recommendations {
		_, _ = fmt.Fprintf(writer, "    > %s\n", r)
	}
}

func outputIntegrityText(writer io.Writer, report *evidenceDomain.IntegrityReport) {
	_, _ = fmt.Fprintf(writer, "Ledger Integrity Verification\n")
	_, _ = fmt.Fprintf(writer, "=============================\n\n")
	_, _ = fmt.Fprintf(writer, "Ledger:           %s\n", report.LedgerID)
	_, _ = fmt.Fprintf(writer, "Leaves:           %d\n", report.LeafCount)
	_, _ = fmt.Fprintf(writer, "Root:             %s\n", report.Root)
	_, _ = fmt.Fprintf(writer, "Recomputed root:  %s\n", report.RecomputedRoot)
	_, _ = fmt.Fprintf(writer, "Records verified: %d\n", report.RecordsVerified)
	_, _ = fmt.Fprintf(writer, "Anchors verified: %d\n\n", report.AnchorsVerified)

	if report.Valid {
		_, _ = fmt.Fprintf(writer, "All records, the root and every anchor verified.\n")
		return
	}

	_, _ = fmt.Fprintf(writer, "WARNING: integrity check failed!\n\n")
	for _, h := range report.LeafHashMismatches {
		_, _ = fmt.Fprintf(writer, "  leaf hash mismatch: %s\n", h)
	}
	for _, a := range report.InvalidAnchors {
		_, _ = fmt.Fprintf(writer, "  invalid anchor:     %s\n", a)
	}
	for _, e := range report.Errors {
		_, _ = fmt.Fprintf(writer, "  error:              %s\n", e)
	}
}
