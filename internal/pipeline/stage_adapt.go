package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"callsight/internal/config"
	"callsight/internal/inference"
	"callsight/internal/model"
	"callsight/internal/specs"
)

// execAdapt derives personalized behavior targets for the next call. Three
// independent sub-operations run concurrently (AI targets, rule-based
// targets, fact-based goal extraction); each is wrapped so one failure
// cannot cancel the others. Goal-progress tracking runs afterwards because
// it reads the freshly extracted goals.
func execAdapt(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	existing, err := r.store.TargetsForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing targets: %w", err)
	}
	if len(existing) > 0 && !r.Force {
		return map[string]any{
			"targetsCreated": 0,
			"skippedReason":  "targets already exist for call",
		}, nil
	}

	result := make(map[string]any)
	var (
		mu      sync.Mutex
		subErrs []string
	)
	record := func(key string, v any, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			subErrs = append(subErrs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		result[key] = v
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		created, err := r.adaptAITargets(egCtx)
		record("aiTargets", created, err)
		return nil
	})
	eg.Go(func() error {
		if r.collab.RuleAdapt == nil {
			return nil
		}
		out, err := r.collab.RuleAdapt.ComputeTargets(egCtx, r.Call)
		record("ruleTargets", out, err)
		return nil
	})
	eg.Go(func() error {
		if r.collab.Goals == nil {
			return nil
		}
		out, err := r.collab.Goals.FromFacts(egCtx, r.Call)
		record("goals", out, err)
		return nil
	})
	_ = eg.Wait()

	// Sequential: depends on goals extracted above.
	if r.collab.Progress != nil {
		if out, err := r.collab.Progress.Track(ctx, r.Call); err != nil {
			subErrs = append(subErrs, fmt.Sprintf("goalProgress: %v", err))
		} else {
			result["goalProgress"] = out
		}
	}

	if len(subErrs) > 0 {
		result["adaptErrors"] = subErrs
	}
	return result, nil
}

// adaptAITargets asks the inference provider for next-call targets and
// persists them. Returns the number of targets created.
func (r *Run) adaptAITargets(ctx context.Context) (int, error) {
	params := specs.ParameterIDs(r.Specs, specs.KindAdapt)
	if len(params) == 0 {
		return 0, nil
	}

	summary, err := r.callerSummary(ctx)
	if err != nil {
		return 0, fmt.Errorf("build caller summary: %w", err)
	}

	resp, err := r.client.Complete(ctx, inference.Request{
		Prompt:      inference.AdaptTargetsPrompt(r.Call.ID, summary, params),
		MaxTokens:   1024,
		Temperature: r.Guardrails.AISettings.Temperature,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", inference.Classify(err), err)
	}
	payload, err := inference.ParseTargets(resp.Content)
	if err != nil {
		return 0, err
	}

	now := r.now().UTC()
	created := 0
	for _, t := range payload.Targets {
		err := r.store.UpsertCallTarget(ctx, model.CallTarget{
			CallID:      r.Call.ID,
			ParameterID: t.ParameterID,
			TargetValue: clampUnit(t.Target),
			Confidence:  r.clampConfidence(t.Confidence),
			SourceSpec:  "ai",
			Reasoning:   t.Reasoning,
			CreatedAt:   now,
		})
		if err != nil {
			return created, fmt.Errorf("persist target %s: %w", t.ParameterID, err)
		}
		created++
	}
	return created, nil
}

// callerSummary condenses persisted caller state into the prompt context the
// adapt completion works from.
func (r *Run) callerSummary(ctx context.Context) (string, error) {
	var b strings.Builder

	traits, err := r.store.CallerPersonalities(ctx, r.Call.CallerID)
	if err != nil {
		return "", err
	}
	if len(traits) > 0 {
		b.WriteString("Personality:\n")
		for _, t := range traits {
			fmt.Fprintf(&b, "- %s: %.2f\n", t.Trait, t.Value)
		}
	}

	scores, err := r.store.ScoresForCall(ctx, r.Call.ID)
	if err != nil {
		return "", err
	}
	if len(scores) > 0 {
		b.WriteString("Latest call scores:\n")
		for _, s := range scores {
			fmt.Fprintf(&b, "- %s: %.2f\n", s.ParameterID, s.Score)
		}
	}

	if b.Len() == 0 {
		b.WriteString("No prior state for this caller.\n")
	}
	return b.String(), nil
}
