package pipeline

import (
	"context"
	"fmt"
	"strings"

	"callsight/internal/config"
	"callsight/internal/inference"
	"callsight/internal/model"
	"callsight/internal/specs"
)

// execScoreAgent measures the agent's behavior on the call. Two gates guard
// it: idempotency (existing measurements skip the provider call) and a
// transcript-length guard (too-thin transcripts are skipped outright; short
// ones get their confidence capped).
func execScoreAgent(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	existing, err := r.store.MeasurementsForCall(ctx, r.Call.ID)
	if err != nil {
		return nil, fmt.Errorf("load existing measurements: %w", err)
	}
	if len(existing) > 0 && !r.Force {
		return map[string]any{
			"measurementsCreated": 0,
			"skippedReason":       "measurements already exist for call",
		}, nil
	}

	words := len(strings.Fields(r.Call.Transcript))
	limits := r.Guardrails.Scoring
	if words < limits.MinTranscriptWords {
		return map[string]any{
			"measurementsCreated": 0,
			"skippedReason":       fmt.Sprintf("transcript too short (%d words)", words),
		}, nil
	}

	params := specs.ParameterIDs(r.Specs, specs.KindBehavior)
	resp, err := r.client.Complete(ctx, inference.Request{
		Prompt:      inference.ScoreAgentPrompt(r.Call.ID, r.Call.Transcript, params),
		MaxTokens:   1024,
		Temperature: r.Guardrails.AISettings.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", inference.Classify(err), err)
	}
	payload, err := inference.ParseScores(resp.Content)
	if err != nil {
		return nil, err
	}

	shortTranscript := words < limits.ShortTranscriptWords
	now := r.now().UTC()
	created := 0
	for _, sc := range payload.Scores {
		confidence := r.clampConfidence(sc.Confidence)
		if shortTranscript && confidence > limits.ShortConfidenceCap {
			confidence = limits.ShortConfidenceCap
		}
		err := r.store.UpsertMeasurement(ctx, model.BehaviorMeasurement{
			CallID:      r.Call.ID,
			ParameterID: sc.ParameterID,
			Value:       clampUnit(sc.Score),
			Confidence:  confidence,
			MeasuredAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("persist measurement %s: %w", sc.ParameterID, err)
		}
		created++
	}

	result := map[string]any{"measurementsCreated": created}
	if shortTranscript {
		result["confidenceCapped"] = true
	}
	return result, nil
}
