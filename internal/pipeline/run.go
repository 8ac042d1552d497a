// Package pipeline is the per-call analysis engine: a registry of named
// stages executed in declared order over a shared run context, with
// selective parallelism, idempotency gates, and non-fatal error collection.
// A run either completes (possibly with collected stage errors) or fails
// once before any stage starts; no stage failure aborts a run.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"callsight/internal/config"
	"callsight/internal/extractors"
	"callsight/internal/inference"
	"callsight/internal/model"
	"callsight/internal/specs"
	"callsight/internal/store"
)

// Mode selects which stages a run executes. Prep runs analysis only; prompt
// additionally composes the next system prompt.
type Mode string

const (
	ModePrep   Mode = "prep"
	ModePrompt Mode = "prompt"
)

// Request identifies one pipeline run.
type Request struct {
	CallID   string
	CallerID string
	Mode     Mode
	Engine   string
	Force    bool
}

// Result is the externally observable outcome of a run.
type Result struct {
	Summary map[string]any `json:"summary"`
	Prompt  string         `json:"prompt,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// Reserved summary keys.
const (
	summaryErrorsKey   = "_errors"
	summaryWarningsKey = "_warnings"
)

// Run is the mutable context owned by exactly one pipeline run. Stage bodies
// may execute concurrently, but Results and Errors are only ever touched by
// the orchestrator goroutine after a batch join.
type Run struct {
	Call       model.Call
	Mode       Mode
	Engine     string
	Force      bool
	Guardrails config.Guardrails
	Stages     []config.Stage
	Specs      []specs.RuleSpec
	Results    map[string]any
	Errors     []string

	store    store.Store
	client   inference.Client
	collab   Collaborators
	composer PromptComposer
	logger   *zap.Logger
	now      func() time.Time

	prompt string // set by COMPOSE
}

// TargetAdapter computes behavior targets without the inference provider.
type TargetAdapter interface {
	ComputeTargets(ctx context.Context, call model.Call) (extractors.Outcome, error)
}

// GoalSource derives caller goals from stored facts.
type GoalSource interface {
	FromFacts(ctx context.Context, call model.Call) (extractors.Outcome, error)
}

// ArtifactSource extracts artifacts and actions from a transcript.
type ArtifactSource interface {
	FromTranscript(ctx context.Context, call model.Call) (extractors.Outcome, error)
}

// CurriculumTracker advances a caller's curriculum position.
type CurriculumTracker interface {
	Advance(ctx context.Context, callerID string) (extractors.Outcome, error)
}

// GoalProgress updates goal progress after scoring.
type GoalProgress interface {
	Track(ctx context.Context, call model.Call) (extractors.Outcome, error)
}

// PromptComposer builds and persists the next-call prompt.
type PromptComposer interface {
	Compose(ctx context.Context, callID, callerID string) (model.PromptRecord, error)
}

// Collaborators bundles the black-box sub-pipelines the stages invoke. Any
// nil member simply skips its best-effort step.
type Collaborators struct {
	RuleAdapt  TargetAdapter
	Goals      GoalSource
	Artifacts  ArtifactSource
	Curriculum CurriculumTracker
	Progress   GoalProgress
}

// clampConfidence folds a raw confidence into the guardrail bounds,
// substituting the default when the provider omitted one.
func (r *Run) clampConfidence(c float64) float64 {
	b := r.Guardrails.ConfidenceBounds
	if c == 0 {
		return b.Default
	}
	if c < b.Min {
		return b.Min
	}
	if c > b.Max {
		return b.Max
	}
	return c
}

// clampUnit folds a score into [0,1].
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
