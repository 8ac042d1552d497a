package pipeline

import (
	"context"
	"fmt"

	"callsight/internal/aggregate"
	"callsight/internal/config"
	"callsight/internal/model"
)

// execSupervise clamps every call target into the guardrail range, then
// refreshes the caller-level target aggregate from the full target history.
func execSupervise(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	targets, err := r.store.TargetsForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	clamp := r.Guardrails.TargetClamp
	adjusted := 0
	for _, t := range targets {
		clamped := t.TargetValue
		if clamped < clamp.Min {
			clamped = clamp.Min
		}
		if clamped > clamp.Max {
			clamped = clamp.Max
		}
		if clamped == t.TargetValue {
			continue
		}
		t.TargetValue = clamped
		t.Reasoning += fmt.Sprintf("; clamped to [%.2f,%.2f]", clamp.Min, clamp.Max)
		if err := r.store.UpsertCallTarget(ctx, t); err != nil {
			return nil, fmt.Errorf("persist clamped target %s: %w", t.ParameterID, err)
		}
		adjusted++
	}

	refreshed, err := r.refreshCallerTargets(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"targetsChecked":   len(targets),
		"targetsAdjusted":  adjusted,
		"targetsRefreshed": refreshed,
	}, nil
}

// refreshCallerTargets recomputes the caller-level aggregate of every
// parameter with target history, using the shared decay primitive.
func (r *Run) refreshCallerTargets(ctx context.Context) (int, error) {
	history, err := r.store.TargetsForCaller(ctx, r.Call.CallerID)
	if err != nil {
		return 0, fmt.Errorf("load target history: %w", err)
	}

	samplesByParam := make(map[string][]aggregate.Sample)
	for _, t := range history {
		samplesByParam[t.ParameterID] = append(samplesByParam[t.ParameterID], aggregate.Sample{
			Value:      t.TargetValue,
			Confidence: t.Confidence,
			At:         t.CreatedAt,
		})
	}

	agg := r.Guardrails.Aggregation
	now := r.now().UTC()
	refreshed := 0
	for param, samples := range samplesByParam {
		err := r.store.UpsertCallerTarget(ctx, model.CallerTarget{
			CallerID:    r.Call.CallerID,
			ParameterID: param,
			TargetValue: aggregate.DecayedMean(samples, agg.DecayHalfLifeDays, now),
			Confidence:  aggregate.GrownConfidence(len(samples), agg.ConfidenceGrowthBase, agg.ConfidenceGrowthPerCall, agg.MaxAggregatedConfidence),
			SampleCount: len(samples),
			UpdatedAt:   now,
		})
		if err != nil {
			return refreshed, fmt.Errorf("persist caller target %s: %w", param, err)
		}
		refreshed++
	}
	return refreshed, nil
}
