package reasoning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile binds a model pattern (supports "*" wildcards) to a marker pair.
type Profile struct {
	Pattern string `yaml:"pattern"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// ProfileSet resolves the marker pair to use for a given model. Rules are
// evaluated in declaration order, first match wins; models matching no rule
// use the fallback pair.
type ProfileSet struct {
	rules    []Profile
	fallback Markers
}

// NewProfileSet builds a set from in-memory rules.
func NewProfileSet(rules []Profile, fallback Markers) (*ProfileSet, error) {
	if err := fallback.Validate(); err != nil {
		return nil, err
	}
	for i, rule := range rules {
		if strings.TrimSpace(rule.Pattern) == "" {
			return nil, fmt.Errorf("marker profile %d: empty pattern", i)
		}
		if err := (Markers{Start: rule.Start, End: rule.End}).Validate(); err != nil {
			return nil, fmt.Errorf("marker profile %q: %w", rule.Pattern, err)
		}
	}
	return &ProfileSet{rules: rules, fallback: fallback}, nil
}

// LoadProfiles reads an ordered rule list from a YAML file. An empty path
// yields a set that always answers with the fallback pair.
func LoadProfiles(path string, fallback Markers) (*ProfileSet, error) {
	if strings.TrimSpace(path) == "" {
		return NewProfileSet(nil, fallback)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read marker profiles: %w", err)
	}
	var rules []Profile
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse marker profiles %s: %w", path, err)
	}
	return NewProfileSet(rules, fallback)
}

// For returns the marker pair for a model name.
func (p *ProfileSet) For(model string) Markers {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, rule := range p.rules {
		if matchModelPattern(m, rule.Pattern) {
			return Markers{Start: rule.Start, End: rule.End}
		}
	}
	return p.fallback
}

// Fallback returns the default marker pair of the set.
func (p *ProfileSet) Fallback() Markers { return p.fallback }

func matchModelPattern(model, pattern string) bool {
	model = strings.ToLower(model)
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if model == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(model, strings.TrimPrefix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		return strings.Contains(model, strings.Trim(pattern, "*"))
	}
	return false
}
