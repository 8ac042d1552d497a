package pipeline

import (
	"context"
	"fmt"

	"callsight/internal/config"
)

// Executor is one stage body: a function of the shared run context and the
// stage descriptor, returning a partial result map merged into Run.Results
// by the orchestrator.
type Executor func(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error)

// executors is the closed dispatch table. The stage vocabulary is fixed and
// small; anything else is a configuration mistake surfaced as a stage error.
var executors = map[string]Executor{
	config.StageExtract:    execExtract,
	config.StageScoreAgent: execScoreAgent,
	config.StageAggregate:  execAggregate,
	config.StageReward:     execReward,
	config.StageAdapt:      execAdapt,
	config.StageSupervise:  execSupervise,
	config.StageCompose:    execCompose,
}

// parallelEligible names the stages allowed to share a concurrent batch.
// EXTRACT and SCORE_AGENT touch disjoint rows and have no ordering
// dependency; everything else runs sequentially.
var parallelEligible = map[string]bool{
	config.StageExtract:    true,
	config.StageScoreAgent: true,
}

// safeExecute dispatches a stage and contains panics as stage errors.
func safeExecute(ctx context.Context, r *Run, stage config.Stage) (result map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	exec, ok := executors[stage.Name]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stage.Name)
	}
	return exec(ctx, r, stage)
}
