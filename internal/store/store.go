// Package store persists the pipeline's durable entities. Two drivers
// implement the same interface: SQLite (default, single-file local state)
// and Postgres (shared deployments). Upserts are atomic per row at the
// driver level; the pipeline holds no locks of its own.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"callsight/internal/model"
)

// ErrNotFound is returned by point lookups that match no row.
var ErrNotFound = errors.New("store: not found")

// Store is the storage contract consumed by the stage executors.
type Store interface {
	// Calls.
	CreateCall(ctx context.Context, c model.Call) error
	GetCall(ctx context.Context, callID string) (model.Call, error)
	// PreviousCall returns the caller's most recent call started strictly
	// before the given time, or ErrNotFound.
	PreviousCall(ctx context.Context, callerID string, before time.Time) (model.Call, error)

	// Caller-side scores, keyed (call, parameter).
	UpsertScore(ctx context.Context, s model.ScoredParameter) error
	ScoresForCall(ctx context.Context, callID string) ([]model.ScoredParameter, error)
	// ScoresForCaller returns every score across the caller's calls,
	// ordered by scoring time ascending.
	ScoresForCaller(ctx context.Context, callerID string) ([]model.ScoredParameter, error)

	// Agent-side measurements, keyed (call, parameter).
	UpsertMeasurement(ctx context.Context, m model.BehaviorMeasurement) error
	MeasurementsForCall(ctx context.Context, callID string) ([]model.BehaviorMeasurement, error)

	// Per-call targets, keyed (call, parameter); caller-level aggregates
	// keyed (caller, parameter).
	UpsertCallTarget(ctx context.Context, t model.CallTarget) error
	TargetsForCall(ctx context.Context, callID string) ([]model.CallTarget, error)
	TargetsForCaller(ctx context.Context, callerID string) ([]model.CallTarget, error)
	UpsertCallerTarget(ctx context.Context, t model.CallerTarget) error
	CallerTargets(ctx context.Context, callerID string) ([]model.CallerTarget, error)

	// Personality observations and caller-level trait aggregates.
	UpsertObservation(ctx context.Context, o model.PersonalityObservation) error
	ObservationsForCaller(ctx context.Context, callerID string) ([]model.PersonalityObservation, error)
	UpsertCallerPersonality(ctx context.Context, p model.CallerPersonality) error
	CallerPersonalities(ctx context.Context, callerID string) ([]model.CallerPersonality, error)

	// Rewards, one per call.
	UpsertReward(ctx context.Context, r model.Reward) error
	RewardForCall(ctx context.Context, callID string) (model.Reward, error)

	// System-level target values; absent parameters default at the caller.
	SystemTargets(ctx context.Context) (map[string]float64, error)
	SetSystemTarget(ctx context.Context, parameterID string, value float64) error

	// Facts, goals, artifacts, actions.
	InsertFact(ctx context.Context, f model.Fact) error
	FactsForCaller(ctx context.Context, callerID string) ([]model.Fact, error)
	UpsertGoal(ctx context.Context, g model.Goal) error
	GoalsForCaller(ctx context.Context, callerID string) ([]model.Goal, error)
	InsertArtifact(ctx context.Context, a model.Artifact) error
	InsertAction(ctx context.Context, a model.Action) error

	// Curriculum progress.
	CurriculumState(ctx context.Context, callerID string) (model.CurriculumState, error)
	UpsertCurriculumState(ctx context.Context, s model.CurriculumState) error

	// Composed prompts.
	SavePrompt(ctx context.Context, p model.PromptRecord) error
	LatestPrompt(ctx context.Context, callerID string) (model.PromptRecord, error)

	Close() error
}

// Open selects a driver by DSN shape: anything starting with postgres:// or
// postgresql:// uses pgx, everything else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}
