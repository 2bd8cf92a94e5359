package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/provenance/internal/canonical"
)

func TestHexDigest(t *testing.T) {
	rule := HexDigest{Algorithm: canonical.SHA256}

	tests := []struct {
		name      string
		input     interface{}
		shouldErr bool
	}{
		{
			name:      "valid sha256 digest",
			input:     "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			shouldErr: false,
		},
		{
			name:      "empty string is left to Required",
			input:     "",
			shouldErr: false,
		},
		{
			name:      "too short",
			input:     "e3b0c442",
			shouldErr: true,
		},
		{
			name:      "uppercase",
			input:     "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855",
			shouldErr: true,
		},
		{
			name:      "not a string",
			input:     42,
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rule.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "simple", input: "anchor-signing", shouldErr: false},
		{name: "with colon and dot", input: "ledger:prod.v1", shouldErr: false},
		{name: "leading dash", input: "-key", shouldErr: true},
		{name: "slash", input: "../etc/passwd", shouldErr: true},
		{name: "space", input: "my key", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Identifier.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRFC3339(t *testing.T) {
	assert.NoError(t, RFC3339.Validate("2026-01-02T03:04:05Z"))
	assert.NoError(t, RFC3339.Validate("2026-01-02T03:04:05.123456+02:00"))
	assert.Error(t, RFC3339.Validate("2026-01-02 03:04:05"))
	assert.Error(t, RFC3339.Validate("yesterday"))
}

func TestNoWhitespace(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		shouldErr bool
	}{
		{name: "no whitespace", input: "validstring", shouldErr: false},
		{name: "leading whitespace", input: " validstring", shouldErr: true},
		{name: "trailing whitespace", input: "validstring ", shouldErr: true},
		{name: "internal spaces allowed", input: "valid string", shouldErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NoWhitespace.Validate(tt.input)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, NotBlank.Validate("validstring"))
	assert.Error(t, NotBlank.Validate("   "))
	assert.Error(t, NotBlank.Validate(" \t\n "))
}

func TestBase64Key(t *testing.T) {
	rule := Base64Key(32)

	assert.NoError(t, validation.Validate("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", rule))
	assert.NoError(t, validation.Validate("", rule))
	assert.Error(t, validation.Validate("AAAA", rule))
	assert.Error(t, validation.Validate("not base64!", rule))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(assert.AnError)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid input")
}
