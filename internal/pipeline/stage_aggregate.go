package pipeline

import (
	"context"
	"fmt"

	"callsight/internal/aggregate"
	"callsight/internal/config"
	"callsight/internal/model"
	"callsight/internal/specs"
)

// execAggregate runs trait aggregation and the declared generic aggregation
// rules. The two halves are independent: a failure in one is recorded in the
// partial result and does not block the other; the stage only fails outright
// when both halves fail.
func execAggregate(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	result := make(map[string]any)

	traitErr := r.aggregateTraits(ctx, result)
	if traitErr != nil {
		result["personalityError"] = traitErr.Error()
	}

	ruleErr := r.aggregateRules(ctx, result)
	if ruleErr != nil {
		result["aggregateError"] = ruleErr.Error()
	}

	if traitErr != nil && ruleErr != nil {
		return nil, fmt.Errorf("traits: %v; rules: %v", traitErr, ruleErr)
	}
	return result, nil
}

// aggregateTraits snapshots per-call trait observations from this call's
// scores, then refreshes the caller-level decayed trait blend.
func (r *Run) aggregateTraits(ctx context.Context, result map[string]any) error {
	scores, err := r.store.ScoresForCall(ctx, r.Call.ID)
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}

	mapping := specs.TraitMapping(r.Specs)
	now := r.now().UTC()

	// Per-call observation: mean score and confidence of the parameters
	// mapped to each trait.
	type acc struct {
		value, confidence float64
		n                 int
	}
	byTrait := make(map[string]*acc)
	for _, s := range scores {
		trait, ok := mapping[s.ParameterID]
		if !ok {
			continue
		}
		a := byTrait[trait]
		if a == nil {
			a = &acc{}
			byTrait[trait] = a
		}
		a.value += s.Score
		a.confidence += s.Confidence
		a.n++
	}

	observed := 0
	for trait, a := range byTrait {
		err := r.store.UpsertObservation(ctx, model.PersonalityObservation{
			CallID:     r.Call.ID,
			CallerID:   r.Call.CallerID,
			Trait:      trait,
			Value:      a.value / float64(a.n),
			Confidence: a.confidence / float64(a.n),
			ObservedAt: now,
		})
		if err != nil {
			return fmt.Errorf("persist observation %s: %w", trait, err)
		}
		observed++
	}

	// Caller-level blend across the observation history.
	history, err := r.store.ObservationsForCaller(ctx, r.Call.CallerID)
	if err != nil {
		return fmt.Errorf("load observation history: %w", err)
	}
	samplesByTrait := make(map[string][]aggregate.Sample)
	for _, o := range history {
		samplesByTrait[o.Trait] = append(samplesByTrait[o.Trait], aggregate.Sample{
			Value:      o.Value,
			Confidence: o.Confidence,
			At:         o.ObservedAt,
		})
	}

	agg := r.Guardrails.Aggregation
	updated := 0
	for trait, samples := range samplesByTrait {
		err := r.store.UpsertCallerPersonality(ctx, model.CallerPersonality{
			CallerID:    r.Call.CallerID,
			Trait:       trait,
			Value:       aggregate.DecayedMean(samples, agg.DecayHalfLifeDays, now),
			Confidence:  aggregate.GrownConfidence(len(samples), agg.ConfidenceGrowthBase, agg.ConfidenceGrowthPerCall, agg.MaxAggregatedConfidence),
			SampleCount: len(samples),
			UpdatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("persist caller personality %s: %w", trait, err)
		}
		updated++
	}

	result["traitsObserved"] = observed
	result["traitsAggregated"] = updated
	return nil
}

// aggregateRules evaluates the declared generic aggregation rules over the
// caller's full score history.
func (r *Run) aggregateRules(ctx context.Context, result map[string]any) error {
	rules := specs.OfKind(r.Specs, specs.KindAggregate)
	if len(rules) == 0 {
		return nil
	}

	history, err := r.store.ScoresForCaller(ctx, r.Call.CallerID)
	if err != nil {
		return fmt.Errorf("load score history: %w", err)
	}
	samplesByParam := make(map[string][]aggregate.Sample)
	for _, s := range history {
		samplesByParam[s.ParameterID] = append(samplesByParam[s.ParameterID], aggregate.Sample{
			Value:      s.Score,
			Confidence: s.Confidence,
			At:         s.ScoredAt,
		})
	}

	agg := r.Guardrails.Aggregation
	now := r.now().UTC()
	values := make(map[string]float64, len(rules))
	for _, rule := range rules {
		samples := samplesByParam[rule.ParameterID]
		if len(samples) == 0 {
			continue
		}
		values[rule.ID] = aggregate.DecayedMean(samples, agg.DecayHalfLifeDays, now)
	}
	if len(values) > 0 {
		result["aggregates"] = values
	}
	return nil
}
