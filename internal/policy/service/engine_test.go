package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/provenance/internal/canonical"
	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return NewDefaultEngine(5*time.Minute, WithClock(func() time.Time { return fixedNow }))
}

func validDataset() map[string]any {
	return map[string]any{
		"dataset_id":   "ds-001",
		"dataset_hash": "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"source":       "s3://datasets/train.parquet",
		"timestamp":    "2026-05-01T11:59:00Z",
	}
}

func TestEngine_HealthcareScenario(t *testing.T) {
	policy := policyDomain.DefaultPolicy("hc-policy")
	policy.DomainLabels = []string{"Healthcare", "diagnostics"}
	policy.Normalize()

	assessment := newEngine().Assess(Input{Metadata: validDataset(), RecordType: canonical.RecordTypeDataset}, policy)

	assert.True(t, assessment.HasViolation(RuleHighRiskDomain))
	assert.GreaterOrEqual(t, assessment.RiskLevel, policyDomain.SeverityHigh)
	assert.Equal(t, policyDomain.RequiresReview, assessment.ComplianceResult)
	assert.True(t, assessment.IsOperationAllowed())
	assert.Equal(t, "hc-policy", assessment.PolicyID)
	assert.Equal(t, fixedNow, assessment.AssessedAt)
	assert.NotEmpty(t, assessment.Recommendations)
}

func TestEngine_CompliantDataset(t *testing.T) {
	assessment := newEngine().Assess(
		Input{Metadata: validDataset(), RecordType: canonical.RecordTypeDataset},
		policyDomain.DefaultPolicy("default"),
	)

	assert.Empty(t, assessment.Violations)
	assert.Equal(t, policyDomain.SeverityLow, assessment.RiskLevel)
	assert.Equal(t, policyDomain.Compliant, assessment.ComplianceResult)
	assert.Empty(t, assessment.Recommendations)
}

func TestEngine_MissingRequiredFieldBlocks(t *testing.T) {
	metadata := validDataset()
	delete(metadata, "dataset_hash")
	e := newEngine()

	assessment := e.Assess(Input{Metadata: metadata, RecordType: canonical.RecordTypeDataset}, policyDomain.DefaultPolicy("p"))

	require.True(t, assessment.HasViolation(RuleRequiredFields))
	assert.Equal(t, policyDomain.SeverityCritical, assessment.RiskLevel)
	assert.Equal(t, policyDomain.NonCompliant, assessment.ComplianceResult)
	assert.False(t, assessment.IsOperationAllowed())
	assert.Contains(t, assessment.Violations[0].Description, "dataset_hash")
	assert.False(t, e.IsOperationAllowed(Input{Metadata: metadata, RecordType: canonical.RecordTypeDataset}, policyDomain.DefaultPolicy("p")))
}

func TestEngine_RecordTypeFromMetadata(t *testing.T) {
	metadata := map[string]any{"record_type": "model", "model_id": "m1", "timestamp": "2026-05-01T00:00:00Z"}
	assessment := newEngine().Assess(Input{Metadata: metadata}, policyDomain.DefaultPolicy("p"))
	assert.True(t, assessment.HasViolation(RuleRequiredFields))

	delete(metadata, "record_type")
	assessment = newEngine().Assess(Input{Metadata: metadata}, policyDomain.DefaultPolicy("p"))
	assert.False(t, assessment.HasViolation(RuleRequiredFields))
}

func TestTimestampSanityRule(t *testing.T) {
	rule := NewTimestampSanityRule(5*time.Minute, func() time.Time { return fixedNow })
	policy := policyDomain.DefaultPolicy("p")

	tests := []struct {
		name     string
		value    any
		severity policyDomain.Severity
	}{
		{name: "missing", value: nil, severity: policyDomain.SeverityMedium},
		{name: "blank", value: "  ", severity: policyDomain.SeverityMedium},
		{name: "malformed", value: "yesterday", severity: policyDomain.SeverityHigh},
		{name: "wrong type", value: 1714564800, severity: policyDomain.SeverityHigh},
		{name: "future", value: "2026-05-01T12:10:00Z", severity: policyDomain.SeverityHigh},
		{name: "within skew", value: "2026-05-01T12:04:00Z"},
		{name: "past", value: "2020-01-01T00:00:00+02:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metadata := map[string]any{}
			if tt.value != nil {
				metadata["timestamp"] = tt.value
			}
			v := rule.Evaluate(Input{Metadata: metadata}, policy)
			if tt.severity == 0 {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, RuleTimestampSanity, v.RuleID)
			assert.Equal(t, tt.severity, v.Severity)
		})
	}
}

func TestSensitiveDataRule(t *testing.T) {
	rule := NewSensitiveDataRule(nil)
	policy := policyDomain.DefaultPolicy("p")

	tests := []struct {
		name     string
		metadata map[string]any
		severity policyDomain.Severity
		contains string
	}{
		{
			name:     "email",
			metadata: map[string]any{"owner": "jane.doe@example.com"},
			severity: policyDomain.SeverityMedium,
			contains: "email in owner",
		},
		{
			name:     "phone in nested list",
			metadata: map[string]any{"contacts": []any{map[string]any{"tel": "+1 415-555-0132"}}},
			severity: policyDomain.SeverityMedium,
			contains: "phone in contacts[0].tel",
		},
		{
			name:     "ssn",
			metadata: map[string]any{"notes": "patient 123-45-6789"},
			severity: policyDomain.SeverityHigh,
			contains: "ssn in notes",
		},
		{
			name:     "luhn valid card",
			metadata: map[string]any{"payment": "4111 1111 1111 1111"},
			severity: policyDomain.SeverityHigh,
			contains: "credit_card",
		},
		{
			name:     "luhn invalid digits",
			metadata: map[string]any{"batch": "4111 1111 1111 1112"},
		},
		{
			name:     "hash fields are skipped",
			metadata: map[string]any{"input_hash": "jane.doe@example.com"},
		},
		{
			name:     "clean",
			metadata: validDataset(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := rule.Evaluate(Input{Metadata: tt.metadata}, policy)
			if tt.severity == 0 {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, RuleSensitiveData, v.RuleID)
			assert.Equal(t, tt.severity, v.Severity)
			assert.Contains(t, v.Description, tt.contains)
		})
	}
}

func TestParseSensitivePatterns(t *testing.T) {
	patterns, err := ParseSensitivePatterns([]byte(`
patterns:
  - id: badge
    description: Employee badge
    regex: 'EMP-\d{6}'
    severity: critical
`))
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, policyDomain.SeverityCritical, patterns[0].Severity)

	v := NewSensitiveDataRule(patterns).Evaluate(Input{Metadata: map[string]any{"who": "EMP-123456"}}, policyDomain.DefaultPolicy("p"))
	require.NotNil(t, v)
	assert.Equal(t, policyDomain.SeverityCritical, v.Severity)

	_, err = ParseSensitivePatterns([]byte("patterns:\n  - id: x\n    regex: '('\n    severity: low\n"))
	assert.Error(t, err)

	_, err = ParseSensitivePatterns([]byte("patterns:\n  - id: x\n    regex: 'a'\n    severity: severe\n"))
	assert.ErrorIs(t, err, policyDomain.ErrInvalidSeverity)

	assert.Len(t, DefaultSensitivePatterns(), 4)
}

func TestEngine_RuleRegistry(t *testing.T) {
	e := newEngine()
	assert.Equal(t, []string{RuleHighRiskDomain, RuleSensitiveData, RuleTimestampSanity, RuleRequiredFields}, e.RuleIDs())

	err := e.AddRule(HighRiskDomainRule{})
	assert.ErrorIs(t, err, policyDomain.ErrRuleExists)

	custom := RuleFunc{
		RuleID: "NO_TEST_DATA",
		Fn: func(in Input, _ *policyDomain.Policy) *policyDomain.PolicyViolation {
			if in.Metadata["source"] == "test" {
				return &policyDomain.PolicyViolation{RuleID: "NO_TEST_DATA", Severity: policyDomain.SeverityCritical, Description: "test data"}
			}
			return nil
		},
	}
	require.NoError(t, e.AddRule(custom))

	metadata := validDataset()
	metadata["source"] = "test"
	in := Input{Metadata: metadata, RecordType: canonical.RecordTypeDataset}
	assert.False(t, e.IsOperationAllowed(in, policyDomain.DefaultPolicy("p")))

	require.NoError(t, e.RemoveRule("NO_TEST_DATA"))
	assert.True(t, e.IsOperationAllowed(in, policyDomain.DefaultPolicy("p")))
	assert.ErrorIs(t, e.RemoveRule("NO_TEST_DATA"), policyDomain.ErrRuleNotFound)

	require.NoError(t, e.RemoveRule(RuleTimestampSanity))
	delete(metadata, "timestamp")
	assessment := e.Assess(Input{Metadata: metadata}, policyDomain.DefaultPolicy("p"))
	assert.False(t, assessment.HasViolation(RuleTimestampSanity))
}

func TestNewEngine_DuplicateRules(t *testing.T) {
	_, err := NewEngine([]Rule{RequiredFieldsRule{}, RequiredFieldsRule{}})
	assert.ErrorIs(t, err, policyDomain.ErrRuleExists)

	e, err := NewEngine(nil)
	require.NoError(t, err)
	assessment := e.Assess(Input{}, policyDomain.DefaultPolicy("p"))
	assert.Equal(t, policyDomain.Compliant, assessment.ComplianceResult)
}
