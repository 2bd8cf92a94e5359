package service

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

//go:embed sensitive_patterns.yaml
var embeddedSensitivePatterns []byte

// SensitivePattern is one detector of personal data.
type SensitivePattern struct {
	ID          string                `yaml:"id"`
	Description string                `yaml:"description"`
	Regex       string                `yaml:"regex"`
	Severity    policyDomain.Severity `yaml:"severity"`
	Luhn        bool                  `yaml:"luhn"`
	compiled    *regexp.Regexp
}

type patternFile struct {
	Patterns []SensitivePattern `yaml:"patterns"`
}

// ParseSensitivePatterns decodes and compiles a YAML pattern document.
func ParseSensitivePatterns(data []byte) ([]SensitivePattern, error) {
	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sensitive patterns: %w", err)
	}
	for i := range file.Patterns {
		p := &file.Patterns[i]
		if p.ID == "" || p.Severity == 0 {
			return nil, fmt.Errorf("pattern %d: id and severity are required", i)
		}
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile the regex %s: %w", p.Regex, err)
		}
		p.compiled = re
	}
	// Highest severity first so descriptions lead with the worst finding.
	sort.SliceStable(file.Patterns, func(i, j int) bool {
		return file.Patterns[i].Severity > file.Patterns[j].Severity
	})
	return file.Patterns, nil
}

// DefaultSensitivePatterns returns the embedded email, phone, SSN and card detectors.
func DefaultSensitivePatterns() []SensitivePattern {
	patterns, err := ParseSensitivePatterns(embeddedSensitivePatterns)
	if err != nil {
		panic(err)
	}
	return patterns
}

// Match reports whether s contains the pattern.
func (p *SensitivePattern) Match(s string) bool {
	if !p.Luhn {
		return p.compiled.MatchString(s)
	}
	for _, candidate := range p.compiled.FindAllString(s, -1) {
		if luhnValid(candidate) {
			return true
		}
	}
	return false
}

func luhnValid(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
