package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	anchorService "github.com/allisson/provenance/internal/anchor/service"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	capsuleService "github.com/allisson/provenance/internal/capsule/service"
	"github.com/allisson/provenance/internal/canonical"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	evidenceMocks "github.com/allisson/provenance/internal/evidence/usecase/mocks"
	keysDomain "github.com/allisson/provenance/internal/keys/domain"
	keysService "github.com/allisson/provenance/internal/keys/service"
	ledgerService "github.com/allisson/provenance/internal/ledger/service"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

var testLeafHash = strings.Repeat("ab", 32)

func compliantAssessment() policyDomain.RiskAssessment {
	return policyDomain.RiskAssessment{
		PolicyID:         "default",
		RiskLevel:        policyDomain.SeverityLow,
		Violations:       []policyDomain.PolicyViolation{},
		ComplianceResult: policyDomain.Compliant,
		Recommendations:  []string{},
		AssessedAt:       time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

type keysVerifier map[string]string

func (k keysVerifier) Verify(a *anchorDomain.AnchorRecord) bool {
	return anchorService.VerifyWithKeys(a, k)
}

// signedCapsule builds a valid two-leaf capsule and the key map that verifies it.
func signedCapsule(t *testing.T) (*capsuleDomain.Capsule, map[string]string) {
	t.Helper()

	tree, err := ledgerService.NewTree(canonical.SHA256)
	require.NoError(t, err)
	var metadata []json.RawMessage
	var hashes []string
	for _, doc := range []map[string]any{
		{"model_id": "m-1", "model_hash": "aa", "timestamp": "2026-05-01T00:00:00Z"},
		{"model_id": "m-2", "model_hash": "bb", "timestamp": "2026-05-01T00:00:01Z"},
	} {
		canon, digest, err := canonical.HashValue(doc, canonical.SHA256)
		require.NoError(t, err)
		leaf, err := ledgerService.DecodeLeaf(canonical.SHA256, digest)
		require.NoError(t, err)
		require.NoError(t, tree.Append(leaf))
		metadata = append(metadata, canon)
		hashes = append(hashes, digest)
	}
	root, err := tree.Root()
	require.NoError(t, err)
	proof, err := tree.Proof(1)
	require.NoError(t, err)

	privatePEM, publicPEM, err := keysService.GenerateKeyPair(keysDomain.Ed25519)
	require.NoError(t, err)
	signer, err := keysService.NewSigner(privatePEM)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 0, 0, 2, 0, time.UTC)
	anchor := &anchorDomain.AnchorRecord{
		Root:          root,
		PolicyID:      "default",
		SchemaVersion: "1.0",
		Timestamp:     now,
		DomainLabels:  []string{},
		SigningKeyID:  "anchor-1",
		LedgerID:      "main",
		HashAlgorithm: canonical.SHA256,
		LeafCount:     2,
	}
	payload, err := anchor.SigningPayload()
	require.NoError(t, err)
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	anchor.Signature = base64.StdEncoding.EncodeToString(sig)

	keys := map[string]string{"anchor-1": string(publicPEM)}
	assessment := compliantAssessment()
	c, err := capsuleService.Build(capsuleService.BuildInput{
		RecordType:     canonical.RecordTypeModel,
		Metadata:       metadata[1],
		LeafHash:       hashes[1],
		Proof:          proof,
		Root:           root,
		Algorithm:      canonical.SHA256,
		Anchor:         anchor,
		RiskAssessment: &assessment,
		Timestamp:      now,
	}, keysVerifier(keys))
	require.NoError(t, err)
	return c, keys
}

func TestRunAdmit(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	metadata := `{"model_id":"m-1","model_hash":"aa","timestamp":"2026-05-01T00:00:00Z"}`
	admission := &evidenceDomain.Admission{
		LeafHash:   testLeafHash,
		Root:       testLeafHash,
		RecordType: canonical.RecordTypeModel,
		PolicyID:   "default",
		Assessment: compliantAssessment(),
	}
	isSubmission := mock.MatchedBy(func(s *evidenceDomain.Submission) bool {
		return s.RecordType == canonical.RecordTypeModel && s.Metadata["model_id"] == "m-1"
	})

	t.Run("success-text", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Admit", ctx, isSubmission).Return(admission, nil)

		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Reader: strings.NewReader(metadata), Writer: &out}, AdmitInput{
			File:       "-",
			RecordType: "model",
			Format:     "text",
		})
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Evidence admitted")
		assert.Contains(t, out.String(), testLeafHash)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("large-numbers-keep-digits", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Admit", ctx, mock.MatchedBy(func(s *evidenceDomain.Submission) bool {
			return s.Metadata["parameters"] == json.Number("18446744073709551615")
		})).Return(admission, nil)

		input := `{"model_id":"m-1","model_hash":"aa","timestamp":"2026-05-01T00:00:00Z","parameters":18446744073709551615}`
		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Reader: strings.NewReader(input), Writer: &out}, AdmitInput{
			File:       "-",
			RecordType: "model",
			Format:     "text",
		})
		require.NoError(t, err)
		mockUseCase.AssertExpectations(t)
	})

	t.Run("success-json-from-file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, os.WriteFile(path, []byte(metadata), 0o600))

		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Admit", ctx, isSubmission).Return(admission, nil)

		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Writer: &out}, AdmitInput{
			File:       path,
			RecordType: "model",
			Format:     "json",
		})
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, testLeafHash, result["leaf_hash"])
		mockUseCase.AssertExpectations(t)
	})

	t.Run("blocked", func(t *testing.T) {
		assessment := compliantAssessment()
		assessment.RiskLevel = policyDomain.SeverityCritical
		assessment.ComplianceResult = policyDomain.NonCompliant
		assessment.Violations = []policyDomain.PolicyViolation{
			{RuleID: "pii", Severity: policyDomain.SeverityCritical, Description: "metadata contains an email address"},
		}
		blocked := &evidenceDomain.PolicyBlockedError{Assessment: assessment, AuditRecordID: "risk:main:1"}

		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Admit", ctx, isSubmission).Return(nil, blocked)

		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Reader: strings.NewReader(metadata), Writer: &out}, AdmitInput{
			RecordType: "model",
			Format:     "text",
		})
		require.Error(t, err)
		var target *evidenceDomain.PolicyBlockedError
		assert.ErrorAs(t, err, &target)
		assert.Contains(t, out.String(), "Admission blocked (audit record risk:main:1)")
		assert.Contains(t, out.String(), "pii [critical]")
	})

	t.Run("admitted-but-not-anchored", func(t *testing.T) {
		anchorErr := errors.New("no active key")
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Admit", ctx, isSubmission).Return(admission, anchorErr)

		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Reader: strings.NewReader(metadata), Writer: &out}, AdmitInput{
			RecordType: "model",
			Format:     "text",
		})
		assert.ErrorIs(t, err, anchorErr)
		assert.Contains(t, out.String(), "Evidence admitted")
	})

	t.Run("metadata-not-object", func(t *testing.T) {
		err := RunAdmit(ctx, nil, logger, IOTuple{Reader: strings.NewReader(`[1,2]`)}, AdmitInput{
			RecordType: "model",
			Format:     "text",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "metadata must be a JSON object")
	})

	t.Run("batch", func(t *testing.T) {
		batch := `[
			{"record_type":"model","metadata":{"model_id":"m-1"}},
			{"record_type":"model","metadata":{"model_id":"m-1"}}
		]`
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("AdmitBatch", ctx, mock.Anything).Return([]evidenceDomain.BatchResult{
			{Admission: admission},
			{Err: errors.New("duplicate leaf")},
		}, nil)

		var out bytes.Buffer
		err := RunAdmit(ctx, mockUseCase, logger, IOTuple{Reader: strings.NewReader(batch), Writer: &out}, AdmitInput{
			Batch:  true,
			Format: "text",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 submission(s) were not admitted")
		assert.Contains(t, out.String(), "Admitted 1 of 2 submission(s)")
		assert.Contains(t, out.String(), "[1] FAILED: duplicate leaf")
		mockUseCase.AssertExpectations(t)
	})
}

func TestRunProve(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	c, _ := signedCapsule(t)

	t.Run("stdout", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Prove", ctx, c.Record.LeafHash).Return(c, nil)

		var out bytes.Buffer
		require.NoError(t, RunProve(ctx, mockUseCase, logger, &out, c.Record.LeafHash, ""))

		decoded, err := capsuleService.Unmarshal(out.Bytes())
		require.NoError(t, err)
		assert.Equal(t, c.Verification.CapsuleHash, decoded.Verification.CapsuleHash)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "capsule.json")
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Prove", ctx, c.Record.LeafHash).Return(c, nil)

		var out bytes.Buffer
		require.NoError(t, RunProve(ctx, mockUseCase, logger, &out, c.Record.LeafHash, path))
		assert.Empty(t, out.String())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"capsule_version": "1.0"`)
	})

	t.Run("unknown-leaf", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("Prove", ctx, testLeafHash).Return(nil, errors.New("leaf not found"))

		err := RunProve(ctx, mockUseCase, logger, &bytes.Buffer{}, testLeafHash, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to prove leaf")
	})
}

func TestRunAnchor(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	anchor := &anchorDomain.AnchorRecord{
		Root:         testLeafHash,
		PolicyID:     "default",
		SigningKeyID: "anchor-1",
		LeafCount:    1,
		Timestamp:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		ExternalAnchor: &anchorDomain.ExternalAnchor{
			Provider:  "mem",
			Reference: "anchors/x.json",
		},
	}

	t.Run("text", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("AnchorCurrentRoot", ctx, "").Return(anchor, nil)

		var out bytes.Buffer
		require.NoError(t, RunAnchor(ctx, mockUseCase, logger, &out, "", "text"))
		assert.Contains(t, out.String(), "Root anchored")
		assert.Contains(t, out.String(), "Signing key: anchor-1")
		assert.Contains(t, out.String(), "External:    mem anchors/x.json")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("json", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("AnchorCurrentRoot", ctx, "default").Return(anchor, nil)

		var out bytes.Buffer
		require.NoError(t, RunAnchor(ctx, mockUseCase, logger, &out, "default", "json"))

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, testLeafHash, result["root"])
	})

	t.Run("failure", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("AnchorCurrentRoot", ctx, "").Return(nil, errors.New("ledger is empty"))

		err := RunAnchor(ctx, mockUseCase, logger, &bytes.Buffer{}, "", "text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to anchor root")
	})
}

func TestRunVerifyCapsule(t *testing.T) {
	c, keys := signedCapsule(t)
	data, err := capsuleService.Marshal(c)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		err := RunVerifyCapsule(IOTuple{Reader: bytes.NewReader(data), Writer: &out}, "-", keys, "text")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "Signature:    ok")
		assert.NotContains(t, out.String(), "FAILED")
	})

	t.Run("unknown-key", func(t *testing.T) {
		var out bytes.Buffer
		err := RunVerifyCapsule(IOTuple{Reader: bytes.NewReader(data), Writer: &out}, "-", map[string]string{}, "json")
		require.Error(t, err)

		var result capsuleDomain.Result
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.False(t, result.SignatureValid)
		assert.True(t, result.MerkleProofValid)
		assert.False(t, result.Valid)
	})

	t.Run("tampered-metadata", func(t *testing.T) {
		tampered := strings.Replace(string(data), `"m-2"`, `"m-3"`, 1)
		require.NotEqual(t, string(data), tampered)

		var out bytes.Buffer
		err := RunVerifyCapsule(IOTuple{Reader: strings.NewReader(tampered), Writer: &out}, "-", keys, "text")
		require.Error(t, err)
		assert.Contains(t, out.String(), "Leaf hash:    FAILED")
	})

	t.Run("not-a-capsule", func(t *testing.T) {
		err := RunVerifyCapsule(IOTuple{Reader: strings.NewReader(`{}`), Writer: &bytes.Buffer{}}, "-", keys, "text")
		require.Error(t, err)
		assert.ErrorIs(t, err, capsuleDomain.ErrInvalidCapsule)
	})
}

func TestLoadPublicKeys(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"anchor-1":"pem"}`), 0o600))
	keys, err := LoadPublicKeys(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"anchor-1": "pem"}, keys)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`["pem"]`), 0o600))
	_, err = LoadPublicKeys(invalid)
	require.Error(t, err)

	_, err = LoadPublicKeys(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestRunVerifyLedger(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("success-text", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("VerifyIntegrity", ctx).Return(&evidenceDomain.IntegrityReport{
			LedgerID:        "main",
			LeafCount:       2,
			RecordsVerified: 2,
			AnchorsVerified: 1,
			Valid:           true,
		}, nil)

		var out bytes.Buffer
		require.NoError(t, RunVerifyLedger(ctx, mockUseCase, logger, &out, "text"))
		assert.Contains(t, out.String(), "Ledger Integrity Verification")
		assert.Contains(t, out.String(), "All records, the root and every anchor verified.")
		mockUseCase.AssertExpectations(t)
	})

	t.Run("integrity-failure-json", func(t *testing.T) {
		mockUseCase := &evidenceMocks.MockEvidenceUseCase{}
		mockUseCase.On("VerifyIntegrity", ctx).Return(&evidenceDomain.IntegrityReport{
			LedgerID:           "main",
			LeafHashMismatches: []string{testLeafHash},
			Valid:              false,
		}, nil)

		var out bytes.Buffer
		err := RunVerifyLedger(ctx, mockUseCase, logger, &out, "json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "integrity check failed for ledger main")

		var result map[string]any
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, false, result["valid"])
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunVerifyLedger(ctx, nil, logger, nil, "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid format")
	})
}
