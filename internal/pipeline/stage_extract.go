package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callsight/internal/config"
	"callsight/internal/inference"
	"callsight/internal/model"
	"callsight/internal/specs"
	"callsight/internal/store"
)

// execExtract scores the caller and extracts facts in a single completion,
// then computes score deltas against the prior call and fires the
// best-effort follow-ups (curriculum, artifacts/actions). Idempotent per
// call unless forced.
func execExtract(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	existing, err := r.store.ScoresForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing scores: %w", err)
	}
	if len(existing) > 0 && !r.Force {
		return map[string]any{
			"scoresCreated": 0,
			"skippedReason": "scores already exist for call",
		}, nil
	}

	params := specs.ParameterIDs(r.Specs, specs.KindMeasure)
	resp, err := r.client.Complete(ctx, inference.Request{
		Prompt:      inference.ScoreCallerPrompt(r.Call.ID, r.Call.Transcript, params),
		MaxTokens:   2048,
		Temperature: r.Guardrails.AISettings.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inference.Classify(err), err)
	}
	payload, err := inference.ParseScores(resp.Content)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	created := 0
	for _, sc := range payload.Scores {
		err := r.store.UpsertScore(ctx, model.ScoredParameter{
			CallID:      r.Call.ID,
			ParameterID: sc.ParameterID,
			Score:       clampUnit(sc.Score),
			Confidence:  r.clampConfidence(sc.Confidence),
			ScoredAt:    now,
		})
		if err != nil {
			return nil, fmt.Errorf("persist score %s: %w", sc.ParameterID, err)
		}
		created++
	}

	factsCreated := 0
	for _, content := range payload.Facts {
		if content == "" {
			continue
		}
		err := r.store.InsertFact(ctx, model.Fact{
			ID:          uuid.NewString(),
			CallID:      r.Call.ID,
			CallerID:    r.Call.CallerID,
			Content:     content,
			ExtractedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("persist fact: %w", err)
		}
		factsCreated++
	}

	result := map[string]any{
		"scoresCreated": created,
		"factsCreated":  factsCreated,
	}

	deltas, err := r.computeDeltas(ctx)
	if err != nil {
		// Deltas are derived data; their absence degrades the result.
		r.logger.Warn("delta computation failed",
			zap.String("call", r.Call.ID), zap.Error(err))
	} else if len(deltas) > 0 {
		result["deltas"] = deltas
	}

	// Best-effort follow-ups: failures are logged, never propagated.
	if r.collab.Curriculum != nil {
		if out, err := r.collab.Curriculum.Advance(ctx, r.Call.CallerID); err != nil {
			r.logger.Warn("curriculum update failed",
				zap.String("caller", r.Call.CallerID), zap.Error(err))
		} else {
			result["curriculum"] = out
		}
	}
	if r.collab.Artifacts != nil {
		if out, err := r.collab.Artifacts.FromTranscript(ctx, r.Call); err != nil {
			r.logger.Warn("artifact extraction failed",
				zap.String("call", r.Call.ID), zap.Error(err))
		} else {
			result["artifacts"] = out
		}
	}

	return result, nil
}

// computeDeltas diffs this call's scores against the immediately prior
// call's matching scores and renormalizes from [-1,1] into [0,1], so 0.5
// means "unchanged".
func (r *Run) computeDeltas(ctx context.Context) (map[string]float64, error) {
	prev, err := r.store.PreviousCall(ctx, r.Call.CallerID, r.Call.StartedAt)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil // first call, nothing to diff
	}
	if err != nil {
		return nil, err
	}

	prevScores, err := r.store.ScoresForCall(ctx, prev.ID)
	if err != nil {
		return nil, err
	}
	curScores, err := r.store.ScoresForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, err
	}

	prevByParam := make(map[string]float64, len(prevScores))
	for _, s := range prevScores {
		prevByParam[s.ParameterID] = s.Score
	}

	deltas := make(map[string]float64)
	for _, s := range curScores {
		p, ok := prevByParam[s.ParameterID]
		if !ok {
			continue
		}
		deltas[s.ParameterID] = (s.Score - p + 1) / 2
	}
	return deltas, nil
}
