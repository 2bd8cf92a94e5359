// Package domain defines policies, violations and risk assessments.
package domain

import (
	"fmt"
	"slices"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/allisson/provenance/internal/canonical"
	customValidation "github.com/allisson/provenance/internal/validation"
)

// DefaultSchemaVersion is the evidence schema version of the built-in policy.
const DefaultSchemaVersion = "1.0"

// DefaultHighRiskDomains are the domains the built-in policy treats as high risk.
var DefaultHighRiskDomains = []string{
	"biometrics",
	"critical_infrastructure",
	"education",
	"employment",
	"finance",
	"healthcare",
	"law_enforcement",
}

// Policy binds evidence to a governance context. It is immutable once an anchor references it.
type Policy struct {
	PolicyID             string              `json:"policy_id" yaml:"policy_id"`
	SchemaVersion        string              `json:"schema_version" yaml:"schema_version"`
	DomainLabels         []string            `json:"domain_labels" yaml:"domain_labels"`
	HashAlgorithm        canonical.Algorithm `json:"hash_algorithm" yaml:"hash_algorithm"`
	ExternalTimestamping bool                `json:"external_timestamping" yaml:"external_timestamping"`
	HighRiskDomains      []string            `json:"high_risk_domains" yaml:"high_risk_domains"`
	Description          string              `json:"description,omitempty" yaml:"description,omitempty"`
}

// DefaultPolicy returns the built-in policy under the given id.
func DefaultPolicy(id string) *Policy {
	p := &Policy{
		PolicyID:        id,
		SchemaVersion:   DefaultSchemaVersion,
		DomainLabels:    []string{},
		HashAlgorithm:   canonical.DefaultAlgorithm,
		HighRiskDomains: slices.Clone(DefaultHighRiskDomains),
	}
	p.Normalize()
	return p
}

func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Normalize lowercases, sorts and deduplicates the label sets and resolves the hash
// algorithm to its canonical name, the default when empty. An unknown algorithm is kept
// as written for Validate to report.
func (p *Policy) Normalize() {
	p.DomainLabels = normalizeSet(p.DomainLabels)
	p.HighRiskDomains = normalizeSet(p.HighRiskDomains)
	if alg, err := canonical.ParseAlgorithm(string(p.HashAlgorithm)); err == nil {
		p.HashAlgorithm = alg
	}
}

// Validate checks the policy fields.
func (p *Policy) Validate() error {
	err := validation.ValidateStruct(p,
		validation.Field(&p.PolicyID, validation.Required, customValidation.Identifier),
		validation.Field(&p.SchemaVersion, validation.Required, customValidation.NoWhitespace),
		validation.Field(&p.HashAlgorithm, validation.By(func(value interface{}) error {
			_, err := canonical.ParseAlgorithm(string(value.(canonical.Algorithm)))
			return err
		})),
		validation.Field(&p.DomainLabels, validation.Each(validation.Required)),
		validation.Field(&p.HighRiskDomains, validation.Each(validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, customValidation.WrapValidationError(err))
	}
	return nil
}

// HighRiskLabels returns the sorted intersection of DomainLabels and HighRiskDomains.
func (p *Policy) HighRiskLabels() []string {
	out := make([]string, 0)
	for _, label := range p.DomainLabels {
		if slices.Contains(p.HighRiskDomains, label) {
			out = append(out, label)
		}
	}
	slices.Sort(out)
	return out
}

// IsHighRisk reports whether any domain label is a high-risk domain.
func (p *Policy) IsHighRisk() bool {
	return len(p.HighRiskLabels()) > 0
}

// Clone returns a deep copy.
func (p *Policy) Clone() *Policy {
	c := *p
	c.DomainLabels = slices.Clone(p.DomainLabels)
	c.HighRiskDomains = slices.Clone(p.HighRiskDomains)
	return &c
}

// Fingerprint is the canonical SHA-256 of the policy, used to detect changes.
func (p *Policy) Fingerprint() (string, error) {
	_, digest, err := canonical.HashValue(p, canonical.SHA256)
	return digest, err
}
