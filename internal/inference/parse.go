package inference

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ScoreResult is one parameter score from a completion.
type ScoreResult struct {
	ParameterID string  `json:"parameter_id"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
}

// ScorePayload is the parsed body of a scoring completion.
type ScorePayload struct {
	Scores []ScoreResult `json:"scores"`
	Facts  []string      `json:"facts"`
}

// TargetResult is one proposed behavior target from a completion.
type TargetResult struct {
	ParameterID string  `json:"parameter_id"`
	Target      float64 `json:"target"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// TargetPayload is the parsed body of an adapt completion.
type TargetPayload struct {
	Targets []TargetResult `json:"targets"`
}

// stripFences removes a surrounding markdown code fence, which models emit
// even when told not to.
func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// ParseScores decodes a scoring completion. Failures classify as parse errors.
func ParseScores(content string) (*ScorePayload, error) {
	var p ScorePayload
	if err := json.Unmarshal([]byte(stripFences(content)), &p); err != nil {
		return nil, &ProviderError{Kind: KindParse, Err: fmt.Errorf("score payload: %w", err)}
	}
	return &p, nil
}

// ParseTargets decodes an adapt completion.
func ParseTargets(content string) (*TargetPayload, error) {
	var p TargetPayload
	if err := json.Unmarshal([]byte(stripFences(content)), &p); err != nil {
		return nil, &ProviderError{Kind: KindParse, Err: fmt.Errorf("target payload: %w", err)}
	}
	return &p, nil
}
