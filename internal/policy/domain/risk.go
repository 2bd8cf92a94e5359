package domain

import (
	"fmt"
	"time"
)

// Severity ranks a violation. The zero value is not a valid severity.
type Severity int

// Severities in ascending order.
const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity maps a wire name to a Severity.
func ParseSeverity(name string) (Severity, error) {
	for s, n := range severityNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSeverity, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSeverity, int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RiskLevel is the overall risk of an assessment, on the severity scale.
type RiskLevel = Severity

// ComplianceResult is the verdict of an assessment.
type ComplianceResult string

// Compliance results.
const (
	Compliant      ComplianceResult = "compliant"
	NonCompliant   ComplianceResult = "non_compliant"
	RequiresReview ComplianceResult = "requires_review"
)

// UnmarshalText rejects unknown verdicts.
func (c *ComplianceResult) UnmarshalText(text []byte) error {
	switch v := ComplianceResult(text); v {
	case Compliant, NonCompliant, RequiresReview:
		*c = v
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidComplianceResult, string(text))
}

// PolicyViolation is a finding produced by a rule. Violations are data, not errors.
type PolicyViolation struct {
	RuleID      string   `json:"rule_id"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// RiskAssessment is the result of evaluating metadata against a policy.
type RiskAssessment struct {
	PolicyID         string            `json:"policy_id"`
	RiskLevel        RiskLevel         `json:"risk_level"`
	Violations       []PolicyViolation `json:"violations"`
	ComplianceResult ComplianceResult  `json:"compliance_result"`
	Recommendations  []string          `json:"recommendations"`
	AssessedAt       time.Time         `json:"assessed_at"`
}

// Aggregate derives the risk level and verdict from violations: the risk level is the
// highest severity (low when there are none); any critical violation is non-compliant,
// otherwise any high violation requires review.
func Aggregate(violations []PolicyViolation) (RiskLevel, ComplianceResult) {
	level := SeverityLow
	for _, v := range violations {
		if v.Severity > level {
			level = v.Severity
		}
	}
	switch {
	case level >= SeverityCritical:
		return level, NonCompliant
	case level >= SeverityHigh:
		return level, RequiresReview
	default:
		return level, Compliant
	}
}

// IsOperationAllowed reports whether the assessment permits admission.
func (a *RiskAssessment) IsOperationAllowed() bool {
	return a.ComplianceResult != NonCompliant
}

// HasViolation reports whether a rule fired.
func (a *RiskAssessment) HasViolation(ruleID string) bool {
	for _, v := range a.Violations {
		if v.RuleID == ruleID {
			return true
		}
	}
	return false
}
