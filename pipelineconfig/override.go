package pipelineconfig

import directive "github.com/aurora-voice/directive-core"

// OverrideHandler wraps a directive.Handler, replacing the blocking
// policy half of its Configurations() with the values loaded from a
// PolicySet while keeping the handler's registered keys and behavior
// untouched. It lets an operator retune blocking policy for a deployed
// handler without a rebuild.
type OverrideHandler struct {
	directive.Handler
	overrides map[directive.Key]directive.BlockingPolicy
}

// WithPolicyOverrides decorates h so that any key present in cfg uses
// cfg's policy instead of h's own; keys absent from cfg keep h's
// original policy.
func WithPolicyOverrides(h directive.Handler, cfg PolicySet) *OverrideHandler {
	return &OverrideHandler{Handler: h, overrides: cfg.PolicyMap()}
}

// Configurations returns h's routing keys with policies overridden
// where cfg provided one.
func (o *OverrideHandler) Configurations() map[directive.Key]directive.BlockingPolicy {
	base := o.Handler.Configurations()
	out := make(map[directive.Key]directive.BlockingPolicy, len(base))
	for key, policy := range base {
		if override, ok := o.overrides[key]; ok {
			out[key] = override
			continue
		}
		out[key] = policy
	}
	return out
}
