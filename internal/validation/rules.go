// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/provenance/internal/canonical"
	apperrors "github.com/allisson/provenance/internal/errors"
)

var (
	// identifierRegex matches ledger, policy and key identifiers
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// HexDigest validates that a string is a lowercase hex digest of the algorithm's width
type HexDigest struct {
	Algorithm canonical.Algorithm
}

// Validate checks the digest width and alphabet
func (h HexDigest) Validate(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_hex_digest_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	if !canonical.IsHexDigest(s, h.Algorithm) {
		return validation.NewError(
			"validation_hex_digest",
			"must be a lowercase hex "+h.Algorithm.String()+" digest",
		)
	}
	return nil
}

// Identifier validates ledger, policy and key identifiers
var Identifier = validation.NewStringRuleWithError(
	func(s string) bool {
		return identifierRegex.MatchString(s)
	},
	validation.NewError(
		"validation_identifier",
		"must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-'",
	),
)

// RFC3339 validates that a string is an RFC 3339 timestamp
var RFC3339 = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := time.Parse(time.RFC3339Nano, s)
		return err == nil
	},
	validation.NewError("validation_rfc3339", "must be an RFC 3339 timestamp"),
)

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)
