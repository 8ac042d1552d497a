// Package specs holds the rule-spec registry: which behavioral parameters are
// measured on each side of a call, how caller parameters map onto personality
// traits, and which caller-level aggregation rules are declared. Specs are
// data; the pipeline only ever consumes the enabled subset.
package specs

import "fmt"

// Kind partitions rule specs by the stage family that consumes them.
type Kind string

const (
	// KindMeasure scores the caller on a parameter (EXTRACT).
	KindMeasure Kind = "measure"
	// KindBehavior measures the agent on a parameter (SCORE_AGENT).
	KindBehavior Kind = "behavior"
	// KindAggregate declares a caller-level aggregate over a measured
	// parameter's history (AGGREGATE).
	KindAggregate Kind = "aggregate"
	// KindAdapt declares a parameter eligible for personalized targets (ADAPT).
	KindAdapt Kind = "adapt"
)

// RuleSpec is one declared rule. Requires lists spec IDs that must also be
// enabled for this spec to be meaningful; unsatisfied prerequisites are
// warnings, never failures.
type RuleSpec struct {
	ID          string   `yaml:"id"`
	Kind        Kind     `yaml:"kind"`
	ParameterID string   `yaml:"parameter_id"`
	Trait       string   `yaml:"trait,omitempty"` // measure specs only
	Requires    []string `yaml:"requires,omitempty"`
	Enabled     bool     `yaml:"enabled"`
}

// The default trait vocabulary. Configurable in principle; these five are
// what the default spec set maps onto.
const (
	TraitOpenness          = "openness"
	TraitConscientiousness = "conscientiousness"
	TraitExtraversion      = "extraversion"
	TraitAgreeableness     = "agreeableness"
	TraitNeuroticism       = "neuroticism"
)

// DefaultSpecs returns the built-in spec set, all enabled.
func DefaultSpecs() []RuleSpec {
	return []RuleSpec{
		// Caller-side measurement, mapped to traits.
		{ID: "M_CURIOSITY", Kind: KindMeasure, ParameterID: "curiosity", Trait: TraitOpenness, Enabled: true},
		{ID: "M_NOVELTY", Kind: KindMeasure, ParameterID: "novelty_seeking", Trait: TraitOpenness, Enabled: true},
		{ID: "M_DILIGENCE", Kind: KindMeasure, ParameterID: "diligence", Trait: TraitConscientiousness, Enabled: true},
		{ID: "M_PLANNING", Kind: KindMeasure, ParameterID: "planning", Trait: TraitConscientiousness, Enabled: true},
		{ID: "M_TALKATIVE", Kind: KindMeasure, ParameterID: "talkativeness", Trait: TraitExtraversion, Enabled: true},
		{ID: "M_ENERGY", Kind: KindMeasure, ParameterID: "energy", Trait: TraitExtraversion, Enabled: true},
		{ID: "M_EMPATHY", Kind: KindMeasure, ParameterID: "empathy", Trait: TraitAgreeableness, Enabled: true},
		{ID: "M_COOPERATION", Kind: KindMeasure, ParameterID: "cooperation", Trait: TraitAgreeableness, Enabled: true},
		{ID: "M_ANXIETY", Kind: KindMeasure, ParameterID: "anxiety", Trait: TraitNeuroticism, Enabled: true},
		{ID: "M_FRUSTRATION", Kind: KindMeasure, ParameterID: "frustration", Trait: TraitNeuroticism, Enabled: true},

		// Agent-side behavior measurement.
		{ID: "B_WARMTH", Kind: KindBehavior, ParameterID: "warmth", Enabled: true},
		{ID: "B_FORMALITY", Kind: KindBehavior, ParameterID: "formality", Enabled: true},
		{ID: "B_DIRECTNESS", Kind: KindBehavior, ParameterID: "directness", Enabled: true},
		{ID: "B_VERBOSITY", Kind: KindBehavior, ParameterID: "verbosity", Enabled: true},
		{ID: "B_PROACTIVITY", Kind: KindBehavior, ParameterID: "proactivity", Enabled: true},

		// Caller-level aggregates over measured history.
		{ID: "AGG_ENGAGEMENT", Kind: KindAggregate, ParameterID: "talkativeness", Requires: []string{"M_TALKATIVE"}, Enabled: true},
		{ID: "AGG_MOOD", Kind: KindAggregate, ParameterID: "frustration", Requires: []string{"M_FRUSTRATION"}, Enabled: true},

		// Adaptation targets for agent behavior.
		{ID: "A_WARMTH", Kind: KindAdapt, ParameterID: "warmth", Requires: []string{"B_WARMTH"}, Enabled: true},
		{ID: "A_FORMALITY", Kind: KindAdapt, ParameterID: "formality", Requires: []string{"B_FORMALITY"}, Enabled: true},
		{ID: "A_DIRECTNESS", Kind: KindAdapt, ParameterID: "directness", Requires: []string{"B_DIRECTNESS"}, Enabled: true},
		{ID: "A_VERBOSITY", Kind: KindAdapt, ParameterID: "verbosity", Requires: []string{"B_VERBOSITY"}, Enabled: true},
		{ID: "A_PROACTIVITY", Kind: KindAdapt, ParameterID: "proactivity", Requires: []string{"B_PROACTIVITY"}, Enabled: true},
	}
}

// Enabled filters to enabled specs, preserving order.
func Enabled(all []RuleSpec) []RuleSpec {
	out := make([]RuleSpec, 0, len(all))
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// OfKind filters to enabled specs of one kind, preserving order.
func OfKind(all []RuleSpec, kind Kind) []RuleSpec {
	out := make([]RuleSpec, 0, len(all))
	for _, s := range all {
		if s.Enabled && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// ParameterIDs returns the parameter IDs of enabled specs of one kind.
func ParameterIDs(all []RuleSpec, kind Kind) []string {
	specs := OfKind(all, kind)
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.ParameterID)
	}
	return out
}

// TraitMapping returns parameter → trait for enabled measure specs.
func TraitMapping(all []RuleSpec) map[string]string {
	m := make(map[string]string)
	for _, s := range OfKind(all, KindMeasure) {
		if s.Trait != "" {
			m[s.ParameterID] = s.Trait
		}
	}
	return m
}

// Validate flags enabled specs whose prerequisites are not among the enabled
// set. It returns human-readable warnings and never an error: a dangling
// prerequisite degrades a spec, it does not abort a run.
func Validate(all []RuleSpec) []string {
	enabled := make(map[string]bool, len(all))
	for _, s := range all {
		if s.Enabled {
			enabled[s.ID] = true
		}
	}

	var warnings []string
	for _, s := range all {
		if !s.Enabled {
			continue
		}
		for _, req := range s.Requires {
			if !enabled[req] {
				warnings = append(warnings,
					fmt.Sprintf("spec %s requires %s which is not enabled", s.ID, req))
			}
		}
	}
	return warnings
}
