package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"callsight/internal/config"
)

// MockClient is a deterministic offline engine. It honors the prompt
// contract: it reads the TASK, SEED, and PARAMETERS header lines and emits a
// well-formed JSON payload whose values are a stable hash of (seed,
// parameter), folded into the configured mock range. Shape is deterministic;
// values vary per call/parameter pair.
type MockClient struct {
	behavior config.MockBehavior
}

// NewMockClient builds a mock engine with the given behavior bounds.
func NewMockClient(behavior config.MockBehavior) *MockClient {
	if behavior.RangeMax <= behavior.RangeMin {
		behavior = config.MockBehavior{RangeMin: 0.3, RangeMax: 0.7, NudgeFactor: 0.1}
	}
	return &MockClient{behavior: behavior}
}

// Complete synthesizes a payload for the task named in the prompt header.
func (c *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	task := promptField(req.Prompt, "TASK")
	seed := promptField(req.Prompt, "SEED")
	var params []string
	if raw := promptField(req.Prompt, "PARAMETERS"); raw != "" {
		params = strings.Split(raw, ",")
	}

	var payload any
	switch task {
	case TaskScoreCaller:
		p := ScorePayload{Facts: []string{}}
		for _, id := range params {
			p.Scores = append(p.Scores, ScoreResult{
				ParameterID: id,
				Score:       c.value(seed, id),
				Confidence:  c.value(seed, id+"/conf"),
			})
		}
		payload = p
	case TaskScoreAgent:
		var p ScorePayload
		for _, id := range params {
			p.Scores = append(p.Scores, ScoreResult{
				ParameterID: id,
				Score:       c.value(seed, id),
				Confidence:  c.value(seed, id+"/conf"),
			})
		}
		payload = p
	case TaskAdaptTargets:
		var p TargetPayload
		for _, id := range params {
			raw := c.value(seed, id)
			// Nudge toward the midpoint so mock targets stay moderate.
			target := raw + (0.5-raw)*c.behavior.NudgeFactor
			p.Targets = append(p.Targets, TargetResult{
				ParameterID: id,
				Target:      target,
				Confidence:  c.value(seed, id+"/conf"),
				Reasoning:   fmt.Sprintf("mock target for %s", id),
			})
		}
		payload = p
	default:
		return nil, &ProviderError{Kind: KindParse,
			Err: fmt.Errorf("mock engine: unrecognized task %q", task)}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &ProviderError{Kind: KindParse, Err: err}
	}
	return &Response{
		Content: string(data),
		Usage:   Usage{InputTokens: len(req.Prompt) / 4, OutputTokens: len(data) / 4},
	}, nil
}

// value hashes (seed, key) into [RangeMin, RangeMax].
func (c *MockClient) value(seed, key string) float64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	h.Write([]byte{'|'})
	h.Write([]byte(key))
	unit := float64(h.Sum64()%10000) / 9999.0
	return c.behavior.RangeMin + unit*(c.behavior.RangeMax-c.behavior.RangeMin)
}
