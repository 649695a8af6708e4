// Package pipelineconfig loads declarative blocking-policy tables from
// YAML, so a deployment can describe which directives hold which
// mediums without recompiling handler code.
package pipelineconfig

import (
	"fmt"

	"gopkg.in/yaml.v3"

	directive "github.com/aurora-voice/directive-core"
)

// PolicyEntry describes a single (namespace, name) routing key's
// blocking policy as written in YAML.
type PolicyEntry struct {
	Namespace  string   `yaml:"namespace"`
	Name       string   `yaml:"name"`
	Mediums    []string `yaml:"mediums"`
	IsBlocking bool     `yaml:"blocking"`
}

// PolicySet is the top-level document shape: a flat list of policy
// entries, one per routing key.
type PolicySet struct {
	Policies []PolicyEntry `yaml:"policies"`
}

// ParsePolicySet unmarshals data (YAML, which also accepts JSON) into a
// PolicySet and validates every entry.
func ParsePolicySet(data []byte) (PolicySet, error) {
	var cfg PolicySet
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("pipelineconfig: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every entry for a non-empty namespace/name and
// recognized medium names.
func (p PolicySet) Validate() error {
	seen := make(map[directive.Key]struct{}, len(p.Policies))
	for i, e := range p.Policies {
		if e.Namespace == "" || e.Name == "" {
			return fmt.Errorf("pipelineconfig: entry %d missing namespace or name", i)
		}
		key := directive.Key{Namespace: e.Namespace, Name: e.Name}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("pipelineconfig: duplicate entry for %s", key)
		}
		seen[key] = struct{}{}
		for _, m := range e.Mediums {
			if _, err := parseMedium(m); err != nil {
				return fmt.Errorf("pipelineconfig: entry %d: %w", i, err)
			}
		}
	}
	return nil
}

// PolicyMap converts the parsed document into the runtime
// directive.BlockingPolicy values, keyed by routing key.
func (p PolicySet) PolicyMap() map[directive.Key]directive.BlockingPolicy {
	out := make(map[directive.Key]directive.BlockingPolicy, len(p.Policies))
	for _, e := range p.Policies {
		mediums := make([]directive.Medium, 0, len(e.Mediums))
		for _, m := range e.Mediums {
			med, err := parseMedium(m)
			if err != nil {
				continue
			}
			mediums = append(mediums, med)
		}
		out[directive.Key{Namespace: e.Namespace, Name: e.Name}] = directive.BlockingPolicy{
			Mediums:    mediums,
			IsBlocking: e.IsBlocking,
		}
	}
	return out
}

func parseMedium(s string) (directive.Medium, error) {
	switch s {
	case "AUDIO", "audio":
		return directive.AUDIO, nil
	case "VISUAL", "visual":
		return directive.VISUAL, nil
	default:
		return 0, fmt.Errorf("unrecognized medium %q", s)
	}
}
