package service

import (
	"fmt"
	"sync"
	"time"

	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

// Engine is a registry of rules. Rules run in registration order and may be added or
// removed while assessments are in flight.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
	now   func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock sets the assessment timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with the given rules.
func NewEngine(rules []Rule, opts ...EngineOption) (*Engine, error) {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// DefaultRules returns the built-in rules: high-risk domain, sensitive data, timestamp
// sanity and required fields.
func DefaultRules(maxSkew time.Duration, now func() time.Time) []Rule {
	return []Rule{
		HighRiskDomainRule{},
		NewSensitiveDataRule(nil),
		NewTimestampSanityRule(maxSkew, now),
		RequiredFieldsRule{},
	}
}

// NewDefaultEngine creates an engine with the built-in rules.
func NewDefaultEngine(maxSkew time.Duration, opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = DefaultRules(maxSkew, e.now)
	return e
}

// AddRule registers a rule. Ids must be unique.
func (e *Engine) AddRule(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, existing := range e.rules {
		if existing.ID() == r.ID() {
			return fmt.Errorf("%w: %s", policyDomain.ErrRuleExists, r.ID())
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

// RemoveRule unregisters a rule by id.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.ID() == id {
			e.rules = append(e.rules[:i:i], e.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", policyDomain.ErrRuleNotFound, id)
}

// RuleIDs returns the registered rule ids in evaluation order.
func (e *Engine) RuleIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Assess evaluates every rule and aggregates the violations.
func (e *Engine) Assess(in Input, policy *policyDomain.Policy) policyDomain.RiskAssessment {
	e.mu.RLock()
	rules := append([]Rule(nil), e.rules...)
	e.mu.RUnlock()

	violations := make([]policyDomain.PolicyViolation, 0)
	recommendations := make([]string, 0)
	seen := make(map[string]bool)
	for _, r := range rules {
		v := r.Evaluate(in, policy)
		if v == nil {
			continue
		}
		violations = append(violations, *v)
		if rec, ok := r.(Recommender); ok {
			if text := rec.Recommendation(*v); text != "" && !seen[text] {
				seen[text] = true
				recommendations = append(recommendations, text)
			}
		}
	}

	level, result := policyDomain.Aggregate(violations)
	return policyDomain.RiskAssessment{
		PolicyID:         policy.PolicyID,
		RiskLevel:        level,
		Violations:       violations,
		ComplianceResult: result,
		Recommendations:  recommendations,
		AssessedAt:       e.now().UTC(),
	}
}

// IsOperationAllowed reports whether the input may be admitted under policy.
func (e *Engine) IsOperationAllowed(in Input, policy *policyDomain.Policy) bool {
	assessment := e.Assess(in, policy)
	return assessment.IsOperationAllowed()
}
