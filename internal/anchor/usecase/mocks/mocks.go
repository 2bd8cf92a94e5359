// Package mocks provides mock implementations for testing anchoring.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
)

// MockSigner is a mock implementation of Signer.
type MockSigner struct {
	mock.Mock
}

// Sign mocks the Sign method of Signer.
func (m *MockSigner) Sign(ctx context.Context, purpose string, data []byte) ([]byte, string, error) {
	args := m.Called(ctx, purpose, data)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

// Verify mocks the Verify method of Signer.
func (m *MockSigner) Verify(id string, data, sig []byte) bool {
	args := m.Called(id, data, sig)
	return args.Bool(0)
}

// MockExternalAnchorer is a mock implementation of ExternalAnchorer.
type MockExternalAnchorer struct {
	mock.Mock
}

// Anchor mocks the Anchor method of ExternalAnchorer.
func (m *MockExternalAnchorer) Anchor(
	ctx context.Context,
	anchor *anchorDomain.AnchorRecord,
) (*anchorDomain.ExternalAnchor, error) {
	args := m.Called(ctx, anchor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anchorDomain.ExternalAnchor), args.Error(1)
}
