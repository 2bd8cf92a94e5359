// Package service implements the policy and risk engine: a registry of rules evaluated
// against candidate metadata and aggregated into a risk assessment.
package service

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/allisson/provenance/internal/canonical"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// Built-in rule ids.
const (
	RuleHighRiskDomain  = "HIGH_RISK_DOMAIN"
	RuleSensitiveData   = "SENSITIVE_DATA"
	RuleTimestampSanity = "TIMESTAMP_SANITY"
	RuleRequiredFields  = "REQUIRED_FIELDS"
)

// Input is the subject of an assessment. RecordType may be zero when unknown, in which
// case rules fall back to a "record_type" metadata field.
type Input struct {
	Metadata   map[string]any
	RecordType canonical.RecordType
}

// recordType resolves the record type of the input, reporting false when unknown.
func (in Input) recordType() (canonical.RecordType, bool) {
	if in.RecordType != 0 {
		return in.RecordType, true
	}
	if name, ok := in.Metadata["record_type"].(string); ok {
		if rt, err := canonical.ParseRecordType(name); err == nil {
			return rt, true
		}
	}
	return 0, false
}

// Rule evaluates one concern. It returns nil when the input passes.
type Rule interface {
	ID() string
	Evaluate(in Input, policy *policyDomain.Policy) *policyDomain.PolicyViolation
}

// Recommender is implemented by rules that can suggest a remediation for their violations.
type Recommender interface {
	Recommendation(v policyDomain.PolicyViolation) string
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc struct {
	RuleID string
	Fn     func(in Input, policy *policyDomain.Policy) *policyDomain.PolicyViolation
}

// ID implements Rule.
func (r RuleFunc) ID() string { return r.RuleID }

// Evaluate implements Rule.
func (r RuleFunc) Evaluate(in Input, policy *policyDomain.Policy) *policyDomain.PolicyViolation {
	return r.Fn(in, policy)
}

// HighRiskDomainRule fires when the policy's domain labels intersect its high-risk domains.
type HighRiskDomainRule struct{}

// ID implements Rule.
func (HighRiskDomainRule) ID() string { return RuleHighRiskDomain }

// Evaluate implements Rule.
func (HighRiskDomainRule) Evaluate(_ Input, policy *policyDomain.Policy) *policyDomain.PolicyViolation {
	labels := policy.HighRiskLabels()
	if len(labels) == 0 {
		return nil
	}
	return &policyDomain.PolicyViolation{
		RuleID:      RuleHighRiskDomain,
		Severity:    policyDomain.SeverityHigh,
		Description: "policy covers high-risk domains: " + strings.Join(labels, ", "),
	}
}

// Recommendation implements Recommender.
func (HighRiskDomainRule) Recommendation(policyDomain.PolicyViolation) string {
	return "route high-risk evidence through human review before relying on it"
}

// SensitiveDataRule scans string values of the metadata for personal data. Keys ending in
// "_hash" are skipped since they hold digests.
type SensitiveDataRule struct {
	patterns []SensitivePattern
}

// NewSensitiveDataRule creates the rule. Nil patterns means the embedded defaults.
func NewSensitiveDataRule(patterns []SensitivePattern) *SensitiveDataRule {
	if patterns == nil {
		patterns = DefaultSensitivePatterns()
	}
	return &SensitiveDataRule{patterns: patterns}
}

// ID implements Rule.
func (r *SensitiveDataRule) ID() string { return RuleSensitiveData }

// Evaluate implements Rule.
func (r *SensitiveDataRule) Evaluate(in Input, _ *policyDomain.Policy) *policyDomain.PolicyViolation {
	found := make(map[string][]string)
	var worst policyDomain.Severity
	var order []string

	walkStrings("", in.Metadata, func(path, value string) {
		if strings.HasSuffix(lastKey(path), "_hash") {
			return
		}
		for i := range r.patterns {
			p := &r.patterns[i]
			if !p.Match(value) {
				continue
			}
			if _, seen := found[p.ID]; !seen {
				order = append(order, p.ID)
			}
			found[p.ID] = append(found[p.ID], path)
			if p.Severity > worst {
				worst = p.Severity
			}
		}
	})
	if len(found) == 0 {
		return nil
	}

	parts := make([]string, 0, len(order))
	for _, id := range order {
		fields := slices.Compact(found[id])
		parts = append(parts, fmt.Sprintf("%s in %s", id, strings.Join(fields, ", ")))
	}
	return &policyDomain.PolicyViolation{
		RuleID:      RuleSensitiveData,
		Severity:    worst,
		Description: "sensitive data detected: " + strings.Join(parts, "; "),
	}
}

// Recommendation implements Recommender.
func (r *SensitiveDataRule) Recommendation(policyDomain.PolicyViolation) string {
	return "replace personal data with salted hashes or references before anchoring"
}

func lastKey(path string) string {
	if i := strings.LastIndexAny(path, ".["); i >= 0 {
		return path[i+1:]
	}
	return path
}

// walkStrings visits every string leaf in deterministic key order.
func walkStrings(path string, v any, visit func(path, value string)) {
	switch t := v.(type) {
	case string:
		visit(path, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := k
			if path != "" {
				child = path + "." + k
			}
			walkStrings(child, t[k], visit)
		}
	case []any:
		for i, item := range t {
			walkStrings(fmt.Sprintf("%s[%d]", path, i), item, visit)
		}
	}
}

// TimestampSanityRule checks the "timestamp" field: missing is medium, malformed or too
// far in the future is high.
type TimestampSanityRule struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

// NewTimestampSanityRule creates the rule.
func NewTimestampSanityRule(maxSkew time.Duration, now func() time.Time) *TimestampSanityRule {
	if now == nil {
		now = time.Now
	}
	return &TimestampSanityRule{MaxSkew: maxSkew, Now: now}
}

// ID implements Rule.
func (r *TimestampSanityRule) ID() string { return RuleTimestampSanity }

// Evaluate implements Rule.
func (r *TimestampSanityRule) Evaluate(in Input, _ *policyDomain.Policy) *policyDomain.PolicyViolation {
	raw, present := in.Metadata["timestamp"]
	s, isString := raw.(string)
	if !present || raw == nil || (isString && strings.TrimSpace(s) == "") {
		return &policyDomain.PolicyViolation{
			RuleID:      RuleTimestampSanity,
			Severity:    policyDomain.SeverityMedium,
			Description: "timestamp is missing",
		}
	}
	if !isString {
		return &policyDomain.PolicyViolation{
			RuleID:      RuleTimestampSanity,
			Severity:    policyDomain.SeverityHigh,
			Description: fmt.Sprintf("timestamp must be an RFC 3339 string, got %T", raw),
		}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return &policyDomain.PolicyViolation{
			RuleID:      RuleTimestampSanity,
			Severity:    policyDomain.SeverityHigh,
			Description: fmt.Sprintf("timestamp %q is not RFC 3339", s),
		}
	}
	if limit := r.Now().Add(r.MaxSkew); ts.After(limit) {
		return &policyDomain.PolicyViolation{
			RuleID:      RuleTimestampSanity,
			Severity:    policyDomain.SeverityHigh,
			Description: fmt.Sprintf("timestamp %s is in the future", ts.UTC().Format(time.RFC3339)),
		}
	}
	return nil
}

// Recommendation implements Recommender.
func (r *TimestampSanityRule) Recommendation(v policyDomain.PolicyViolation) string {
	return "record the event time as an RFC 3339 UTC timestamp from a synchronized clock"
}

// RequiredFieldsRule delegates to the canonical schema. Inputs of unknown record type pass.
type RequiredFieldsRule struct{}

// ID implements Rule.
func (RequiredFieldsRule) ID() string { return RuleRequiredFields }

// Evaluate implements Rule.
func (RequiredFieldsRule) Evaluate(in Input, _ *policyDomain.Policy) *policyDomain.PolicyViolation {
	rt, ok := in.recordType()
	if !ok {
		return nil
	}
	if err := canonical.ValidateRequiredFields(in.Metadata, rt); err != nil {
		return &policyDomain.PolicyViolation{
			RuleID:      RuleRequiredFields,
			Severity:    policyDomain.SeverityCritical,
			Description: err.Error(),
		}
	}
	return nil
}

// Recommendation implements Recommender.
func (RequiredFieldsRule) Recommendation(policyDomain.PolicyViolation) string {
	return "supply every required field of the record type"
}
