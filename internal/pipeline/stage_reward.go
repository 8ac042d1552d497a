package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"callsight/internal/config"
	"callsight/internal/model"
)

// defaultSystemTarget is assumed for any parameter with no system-level row.
const defaultSystemTarget = 0.5

// execReward scores the call against system-level behavior targets: mean
// absolute deviation across matched parameters, inverted and floored at 0.
func execReward(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	measurements, err := r.store.MeasurementsForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}
	if len(measurements) == 0 {
		return map[string]any{
			"rewardComputed": false,
			"skippedReason":  "no behavior measurements for call",
		}, nil
	}

	systemTargets, err := r.store.SystemTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load system targets: %w", err)
	}

	var totalDiff float64
	for _, m := range measurements {
		target, ok := systemTargets[m.ParameterID]
		if !ok {
			target = defaultSystemTarget
		}
		totalDiff += math.Abs(m.Value - target)
	}
	reward := math.Max(0, 1-totalDiff/float64(len(measurements)))

	err = r.store.UpsertReward(ctx, model.Reward{
		ID:         uuid.NewString(),
		CallID:     r.Call.ID,
		Value:      reward,
		Matched:    len(measurements),
		ComputedAt: r.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("persist reward: %w", err)
	}

	return map[string]any{
		"rewardComputed": true,
		"reward":         reward,
		"matched":        len(measurements),
	}, nil
}
