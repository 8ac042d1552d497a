package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadGuardrailsNoPath(t *testing.T) {
	g := LoadGuardrails("", nil)
	if diff := cmp.Diff(DefaultGuardrails(), g); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadGuardrailsMissingFileFallsBack(t *testing.T) {
	g := LoadGuardrails("/nonexistent/guardrails.yaml", nil)
	if diff := cmp.Diff(DefaultGuardrails(), g); diff != "" {
		t.Errorf("fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadGuardrailsPartialOverride(t *testing.T) {
	path := writeFile(t, "guardrails.yaml", `
target_clamp:
  min: 0.1
aggregation:
  decay_half_life_days: 14
`)
	g := LoadGuardrails(path, nil)

	if g.TargetClamp.Min != 0.1 {
		t.Errorf("TargetClamp.Min = %v, want 0.1", g.TargetClamp.Min)
	}
	// Unset fields keep their defaults.
	if g.TargetClamp.Max != 0.8 {
		t.Errorf("TargetClamp.Max = %v, want default 0.8", g.TargetClamp.Max)
	}
	if g.Aggregation.DecayHalfLifeDays != 14 {
		t.Errorf("DecayHalfLifeDays = %v, want 14", g.Aggregation.DecayHalfLifeDays)
	}
	if g.Aggregation.ConfidenceGrowthBase != 0.3 {
		t.Errorf("ConfidenceGrowthBase = %v, want default 0.3", g.Aggregation.ConfidenceGrowthBase)
	}
	if g.Scoring.MinTranscriptWords != 20 {
		t.Errorf("MinTranscriptWords = %v, want default 20", g.Scoring.MinTranscriptWords)
	}
}

func TestLoadGuardrailsExplicitZeroOverrides(t *testing.T) {
	path := writeFile(t, "guardrails.yaml", `
scoring:
  min_transcript_words: 0
`)
	g := LoadGuardrails(path, nil)
	if g.Scoring.MinTranscriptWords != 0 {
		t.Errorf("explicit zero dropped: MinTranscriptWords = %v", g.Scoring.MinTranscriptWords)
	}
}

func TestLoadGuardrailsInvalidOverrideFallsBack(t *testing.T) {
	path := writeFile(t, "guardrails.yaml", `
target_clamp:
  min: 0.9
  max: 0.1
`)
	g := LoadGuardrails(path, nil)
	if diff := cmp.Diff(DefaultGuardrails(), g); diff != "" {
		t.Errorf("invalid override should fall back to defaults (-want +got):\n%s", diff)
	}
}

func TestLoadGuardrailsGarbageYAMLFallsBack(t *testing.T) {
	path := writeFile(t, "guardrails.yaml", "{{{not yaml")
	g := LoadGuardrails(path, nil)
	if diff := cmp.Diff(DefaultGuardrails(), g); diff != "" {
		t.Errorf("garbage override should fall back to defaults (-want +got):\n%s", diff)
	}
}

func TestLoadStagesDefaultOrder(t *testing.T) {
	stages := LoadStages("", nil)
	wantOrder := []string{
		StageExtract, StageScoreAgent, StageAggregate,
		StageReward, StageAdapt, StageSupervise, StageCompose,
	}
	if len(stages) != len(wantOrder) {
		t.Fatalf("got %d stages, want %d", len(stages), len(wantOrder))
	}
	for i, name := range wantOrder {
		if stages[i].Name != name {
			t.Errorf("stage[%d] = %s, want %s", i, stages[i].Name, name)
		}
	}
	if stages[len(stages)-1].RequiresMode != "prompt" {
		t.Error("COMPOSE should require prompt mode")
	}
}

func TestLoadStagesOverride(t *testing.T) {
	path := writeFile(t, "stages.yaml", `
stages:
  - name: REWARD
    order: 5
    output_categories: [reward]
  - name: EXTRACT
    order: 10
    output_categories: [scores]
`)
	stages := LoadStages(path, nil)
	if len(stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(stages))
	}
	if stages[0].Name != StageReward || stages[1].Name != StageExtract {
		t.Errorf("override order wrong: %v, %v", stages[0].Name, stages[1].Name)
	}
}

func TestLoadStagesTieBrokenByPosition(t *testing.T) {
	path := writeFile(t, "stages.yaml", `
stages:
  - name: SCORE_AGENT
    order: 10
  - name: EXTRACT
    order: 10
`)
	stages := LoadStages(path, nil)
	if stages[0].Name != StageScoreAgent {
		t.Errorf("equal order must preserve list position, got %s first", stages[0].Name)
	}
}
