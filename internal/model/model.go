// Package model defines the durable entities produced and consumed by the
// analysis pipeline. Everything here is keyed by call or caller identity and
// written idempotently by the stage executors; only RunContext-scoped state
// lives outside this package.
package model

import "time"

// Call is one finished conversation between a caller and the agent.
type Call struct {
	ID         string    `json:"id"`
	CallerID   string    `json:"caller_id"`
	Transcript string    `json:"transcript"`
	StartedAt  time.Time `json:"started_at"`
}

// ScoredParameter is one caller-side behavioral score for one call.
// At most one row exists per (call, parameter); re-runs upsert.
type ScoredParameter struct {
	CallID      string    `json:"call_id"`
	ParameterID string    `json:"parameter_id"`
	Score       float64   `json:"score"`      // [0,1]
	Confidence  float64   `json:"confidence"` // [0,1]
	ScoredAt    time.Time `json:"scored_at"`
}

// BehaviorMeasurement is the agent-side counterpart of ScoredParameter,
// with the same (call, parameter) upsert invariant.
type BehaviorMeasurement struct {
	CallID      string    `json:"call_id"`
	ParameterID string    `json:"parameter_id"`
	Value       float64   `json:"value"`
	Confidence  float64   `json:"confidence"`
	MeasuredAt  time.Time `json:"measured_at"`
}

// CallTarget is a per-call personalized target for one behavior parameter.
// Produced by ADAPT, clamped in place by SUPERVISE.
type CallTarget struct {
	CallID      string    `json:"call_id"`
	ParameterID string    `json:"parameter_id"`
	TargetValue float64   `json:"target_value"`
	Confidence  float64   `json:"confidence"`
	SourceSpec  string    `json:"source_spec"`
	Reasoning   string    `json:"reasoning"`
	CreatedAt   time.Time `json:"created_at"`
}

// CallerTarget is the caller-level time-decayed aggregate of CallTargets.
// One row per (caller, parameter); refreshed in place, never deleted.
type CallerTarget struct {
	CallerID    string    `json:"caller_id"`
	ParameterID string    `json:"parameter_id"`
	TargetValue float64   `json:"target_value"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PersonalityObservation is a per-call snapshot of one trait.
type PersonalityObservation struct {
	CallID     string    `json:"call_id"`
	CallerID   string    `json:"caller_id"`
	Trait      string    `json:"trait"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
	ObservedAt time.Time `json:"observed_at"`
}

// CallerPersonality is the caller-level decayed aggregate of one trait.
type CallerPersonality struct {
	CallerID    string    `json:"caller_id"`
	Trait       string    `json:"trait"`
	Value       float64   `json:"value"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Reward is the per-call scalar reward signal derived from behavior
// measurements against system-level targets.
type Reward struct {
	ID         string    `json:"id"`
	CallID     string    `json:"call_id"`
	Value      float64   `json:"value"`
	Matched    int       `json:"matched"` // parameters that contributed
	ComputedAt time.Time `json:"computed_at"`
}

// Fact is one durable statement extracted from a call transcript.
type Fact struct {
	ID          string    `json:"id"`
	CallID      string    `json:"call_id"`
	CallerID    string    `json:"caller_id"`
	Content     string    `json:"content"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// GoalStatus tracks the lifecycle of a caller goal.
type GoalStatus string

const (
	GoalOpen        GoalStatus = "open"
	GoalProgressing GoalStatus = "progressing"
	GoalDone        GoalStatus = "done"
)

// Goal is a caller-level objective derived from extracted facts, tracked
// against a behavior parameter.
type Goal struct {
	ID          string     `json:"id"`
	CallerID    string     `json:"caller_id"`
	ParameterID string     `json:"parameter_id"`
	Description string     `json:"description"`
	Target      float64    `json:"target"`
	Progress    float64    `json:"progress"`
	Status      GoalStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Artifact is a concrete item referenced in a transcript (a link, a document).
type Artifact struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Action is a commitment made during a call ("I will send you...").
type Action struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PromptRecord is a composed system prompt persisted for the next call.
type PromptRecord struct {
	ID         string    `json:"id"`
	CallerID   string    `json:"caller_id"`
	CallID     string    `json:"call_id"`
	Content    string    `json:"content"`
	ComposedAt time.Time `json:"composed_at"`
}

// CurriculumState tracks how far a caller has advanced through the
// conversational curriculum.
type CurriculumState struct {
	CallerID  string    `json:"caller_id"`
	Stage     int       `json:"stage"`
	Calls     int       `json:"calls"`
	UpdatedAt time.Time `json:"updated_at"`
}
