// Package mocks provides mock implementations for testing evidence admission.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	evidenceDomain "github.com/allisson/provenance/internal/evidence/domain"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// MockEvidenceUseCase is a mock implementation of EvidenceUseCase.
type MockEvidenceUseCase struct {
	mock.Mock
}

// Assess mocks the Assess method.
func (m *MockEvidenceUseCase) Assess(
	ctx context.Context,
	submission *evidenceDomain.Submission,
) (*policyDomain.RiskAssessment, error) {
	args := m.Called(ctx, submission)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*policyDomain.RiskAssessment), args.Error(1)
}

// Admit mocks the Admit method.
func (m *MockEvidenceUseCase) Admit(
	ctx context.Context,
	submission *evidenceDomain.Submission,
) (*evidenceDomain.Admission, error) {
	args := m.Called(ctx, submission)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidenceDomain.Admission), args.Error(1)
}

// AdmitBatch mocks the AdmitBatch method.
func (m *MockEvidenceUseCase) AdmitBatch(
	ctx context.Context,
	submissions []*evidenceDomain.Submission,
) ([]evidenceDomain.BatchResult, error) {
	args := m.Called(ctx, submissions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]evidenceDomain.BatchResult), args.Error(1)
}

// Prove mocks the Prove method.
func (m *MockEvidenceUseCase) Prove(ctx context.Context, leafHash string) (*capsuleDomain.Capsule, error) {
	args := m.Called(ctx, leafHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*capsuleDomain.Capsule), args.Error(1)
}

// AnchorCurrentRoot mocks the AnchorCurrentRoot method.
func (m *MockEvidenceUseCase) AnchorCurrentRoot(
	ctx context.Context,
	policyID string,
) (*anchorDomain.AnchorRecord, error) {
	args := m.Called(ctx, policyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anchorDomain.AnchorRecord), args.Error(1)
}

// VerifyIntegrity mocks the VerifyIntegrity method.
func (m *MockEvidenceUseCase) VerifyIntegrity(ctx context.Context) (*evidenceDomain.IntegrityReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*evidenceDomain.IntegrityReport), args.Error(1)
}

// MockCapsulePublisher is a mock implementation of CapsulePublisher.
type MockCapsulePublisher struct {
	mock.Mock
}

// Publish mocks the Publish method.
func (m *MockCapsulePublisher) Publish(ctx context.Context, c *capsuleDomain.Capsule) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}
