package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RatePolicy overrides the global rate-limit budget for one organization.
type RatePolicy struct {
	OrgID     string `yaml:"org_id" json:"org_id"`
	PerMinute int    `yaml:"per_minute" json:"per_minute"`
	Burst     int    `yaml:"burst" json:"burst"`
	Note      string `yaml:"note,omitempty" json:"note,omitempty"`
}

// LoadPolicy loads a rate policy YAML by organization id.
// It searches the policy directory for policy_<org>.yaml.
func LoadPolicy(policyDir, orgID string) (*RatePolicy, error) {
	orgID = strings.ToLower(orgID)
	path := filepath.Join(policyDir, fmt.Sprintf("policy_%s.yaml", orgID))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", orgID, err)
	}

	var policy RatePolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", orgID, err)
	}

	if policy.OrgID == "" {
		policy.OrgID = orgID
	}
	if policy.PerMinute <= 0 {
		return nil, fmt.Errorf("policy %q: per_minute must be positive", orgID)
	}
	if policy.Burst < 0 {
		return nil, fmt.Errorf("policy %q: burst must not be negative", orgID)
	}

	return &policy, nil
}

// LoadPolicies loads every policy_*.yaml in the directory, keyed by org id.
// Returns an empty map if the directory is unset or empty. A single bad
// file aborts loading so a typo cannot silently revert a tenant to defaults.
func LoadPolicies(policyDir string) (map[string]RatePolicy, error) {
	policies := make(map[string]RatePolicy)
	if policyDir == "" {
		return policies, nil
	}

	matches, err := filepath.Glob(filepath.Join(policyDir, "policy_*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan policy dir: %w", err)
	}

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		orgID := strings.TrimPrefix(name, "policy_")
		policy, err := LoadPolicy(policyDir, orgID)
		if err != nil {
			return nil, err
		}
		policies[policy.OrgID] = *policy
	}

	return policies, nil
}
