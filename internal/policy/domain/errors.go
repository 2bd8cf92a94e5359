package domain

import (
	"github.com/allisson/provenance/internal/errors"
)

// Policy errors.
var (
	// ErrPolicyNotFound indicates no policy is registered under the id.
	ErrPolicyNotFound = errors.Wrap(errors.ErrNotFound, "policy not found")

	// ErrInvalidPolicy indicates a policy document failed validation.
	ErrInvalidPolicy = errors.Wrap(errors.ErrInvalidInput, "invalid policy")

	// ErrPolicyImmutable indicates an attempt to change a policy already referenced by an anchor.
	ErrPolicyImmutable = errors.Wrap(errors.ErrConflict, "policy is immutable once referenced")

	// ErrRuleExists indicates a rule with the same id is already registered.
	ErrRuleExists = errors.Wrap(errors.ErrConflict, "rule already registered")

	// ErrRuleNotFound indicates no rule is registered under the id.
	ErrRuleNotFound = errors.Wrap(errors.ErrNotFound, "rule not found")

	// ErrInvalidSeverity indicates an unknown severity or risk level name.
	ErrInvalidSeverity = errors.Wrap(errors.ErrInvalidInput, "invalid severity")

	// ErrInvalidComplianceResult indicates an unknown compliance result name.
	ErrInvalidComplianceResult = errors.Wrap(errors.ErrInvalidInput, "invalid compliance result")
)
