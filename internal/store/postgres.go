package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"callsight/internal/model"
)

// PostgresStore is the pgx-backed driver for shared deployments.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to the given DSN and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		transcript TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calls_caller ON calls(caller_id, started_at);

	CREATE TABLE IF NOT EXISTS scored_parameters (
		call_id TEXT NOT NULL,
		parameter_id TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		scored_at TIMESTAMPTZ NOT NULL,
		UNIQUE(call_id, parameter_id)
	);

	CREATE TABLE IF NOT EXISTS behavior_measurements (
		call_id TEXT NOT NULL,
		parameter_id TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		measured_at TIMESTAMPTZ NOT NULL,
		UNIQUE(call_id, parameter_id)
	);

	CREATE TABLE IF NOT EXISTS call_targets (
		call_id TEXT NOT NULL,
		parameter_id TEXT NOT NULL,
		target_value DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		source_spec TEXT NOT NULL DEFAULT '',
		reasoning TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(call_id, parameter_id)
	);

	CREATE TABLE IF NOT EXISTS caller_targets (
		caller_id TEXT NOT NULL,
		parameter_id TEXT NOT NULL,
		target_value DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(caller_id, parameter_id)
	);

	CREATE TABLE IF NOT EXISTS personality_observations (
		call_id TEXT NOT NULL,
		caller_id TEXT NOT NULL,
		trait TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		UNIQUE(call_id, trait)
	);
	CREATE INDEX IF NOT EXISTS idx_observations_caller ON personality_observations(caller_id, observed_at);

	CREATE TABLE IF NOT EXISTS caller_personality (
		caller_id TEXT NOT NULL,
		trait TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(caller_id, trait)
	);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT NOT NULL,
		call_id TEXT NOT NULL UNIQUE,
		value DOUBLE PRECISION NOT NULL,
		matched INTEGER NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS system_targets (
		parameter_id TEXT PRIMARY KEY,
		target_value DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		caller_id TEXT NOT NULL,
		content TEXT NOT NULL,
		extracted_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_facts_caller ON facts(caller_id);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT NOT NULL,
		caller_id TEXT NOT NULL,
		parameter_id TEXT NOT NULL,
		description TEXT NOT NULL,
		target DOUBLE PRECISION NOT NULL,
		progress DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(caller_id, parameter_id)
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		speaker TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS curriculum_states (
		caller_id TEXT PRIMARY KEY,
		stage INTEGER NOT NULL,
		calls INTEGER NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS prompts (
		id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		call_id TEXT NOT NULL,
		content TEXT NOT NULL,
		composed_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_prompts_caller ON prompts(caller_id, composed_at);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: initialize schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateCall(ctx context.Context, c model.Call) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, caller_id, transcript, started_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET transcript = EXCLUDED.transcript`,
		c.ID, c.CallerID, c.Transcript, c.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: create call: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (model.Call, error) {
	var c model.Call
	err := s.pool.QueryRow(ctx,
		`SELECT id, caller_id, transcript, started_at FROM calls WHERE id = $1`, callID).
		Scan(&c.ID, &c.CallerID, &c.Transcript, &c.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Call{}, ErrNotFound
	}
	if err != nil {
		return model.Call{}, fmt.Errorf("store: get call: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) PreviousCall(ctx context.Context, callerID string, before time.Time) (model.Call, error) {
	var c model.Call
	err := s.pool.QueryRow(ctx,
		`SELECT id, caller_id, transcript, started_at FROM calls
		 WHERE caller_id = $1 AND started_at < $2
		 ORDER BY started_at DESC LIMIT 1`, callerID, before.UTC()).
		Scan(&c.ID, &c.CallerID, &c.Transcript, &c.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Call{}, ErrNotFound
	}
	if err != nil {
		return model.Call{}, fmt.Errorf("store: previous call: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) UpsertScore(ctx context.Context, sp model.ScoredParameter) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scored_parameters (call_id, parameter_id, score, confidence, scored_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_id, parameter_id) DO UPDATE SET
		   score = EXCLUDED.score, confidence = EXCLUDED.confidence, scored_at = EXCLUDED.scored_at`,
		sp.CallID, sp.ParameterID, sp.Score, sp.Confidence, sp.ScoredAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert score: %w", err)
	}
	return nil
}

func (s *PostgresStore) ScoresForCall(ctx context.Context, callID string) ([]model.ScoredParameter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, parameter_id, score, confidence, scored_at
		 FROM scored_parameters WHERE call_id = $1 ORDER BY parameter_id`, callID)
	if err != nil {
		return nil, fmt.Errorf("store: scores for call: %w", err)
	}
	defer rows.Close()

	var out []model.ScoredParameter
	for rows.Next() {
		var sp model.ScoredParameter
		if err := rows.Scan(&sp.CallID, &sp.ParameterID, &sp.Score, &sp.Confidence, &sp.ScoredAt); err != nil {
			return nil, fmt.Errorf("store: scan score: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ScoresForCaller(ctx context.Context, callerID string) ([]model.ScoredParameter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sp.call_id, sp.parameter_id, sp.score, sp.confidence, sp.scored_at
		 FROM scored_parameters sp JOIN calls c ON c.id = sp.call_id
		 WHERE c.caller_id = $1 ORDER BY sp.scored_at`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: scores for caller: %w", err)
	}
	defer rows.Close()

	var out []model.ScoredParameter
	for rows.Next() {
		var sp model.ScoredParameter
		if err := rows.Scan(&sp.CallID, &sp.ParameterID, &sp.Score, &sp.Confidence, &sp.ScoredAt); err != nil {
			return nil, fmt.Errorf("store: scan score: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertMeasurement(ctx context.Context, m model.BehaviorMeasurement) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO behavior_measurements (call_id, parameter_id, value, confidence, measured_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_id, parameter_id) DO UPDATE SET
		   value = EXCLUDED.value, confidence = EXCLUDED.confidence, measured_at = EXCLUDED.measured_at`,
		m.CallID, m.ParameterID, m.Value, m.Confidence, m.MeasuredAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert measurement: %w", err)
	}
	return nil
}

func (s *PostgresStore) MeasurementsForCall(ctx context.Context, callID string) ([]model.BehaviorMeasurement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, parameter_id, value, confidence, measured_at
		 FROM behavior_measurements WHERE call_id = $1 ORDER BY parameter_id`, callID)
	if err != nil {
		return nil, fmt.Errorf("store: measurements for call: %w", err)
	}
	defer rows.Close()

	var out []model.BehaviorMeasurement
	for rows.Next() {
		var m model.BehaviorMeasurement
		if err := rows.Scan(&m.CallID, &m.ParameterID, &m.Value, &m.Confidence, &m.MeasuredAt); err != nil {
			return nil, fmt.Errorf("store: scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCallTarget(ctx context.Context, t model.CallTarget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_targets (call_id, parameter_id, target_value, confidence, source_spec, reasoning, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (call_id, parameter_id) DO UPDATE SET
		   target_value = EXCLUDED.target_value, confidence = EXCLUDED.confidence,
		   source_spec = EXCLUDED.source_spec, reasoning = EXCLUDED.reasoning`,
		t.CallID, t.ParameterID, t.TargetValue, t.Confidence, t.SourceSpec, t.Reasoning, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert call target: %w", err)
	}
	return nil
}

func (s *PostgresStore) TargetsForCall(ctx context.Context, callID string) ([]model.CallTarget, error) {
	return s.queryCallTargets(ctx,
		`SELECT call_id, parameter_id, target_value, confidence, source_spec, reasoning, created_at
		 FROM call_targets WHERE call_id = $1 ORDER BY parameter_id`, callID)
}

func (s *PostgresStore) TargetsForCaller(ctx context.Context, callerID string) ([]model.CallTarget, error) {
	return s.queryCallTargets(ctx,
		`SELECT t.call_id, t.parameter_id, t.target_value, t.confidence, t.source_spec, t.reasoning, t.created_at
		 FROM call_targets t JOIN calls c ON c.id = t.call_id
		 WHERE c.caller_id = $1 ORDER BY t.created_at`, callerID)
}

func (s *PostgresStore) queryCallTargets(ctx context.Context, query string, arg any) ([]model.CallTarget, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("store: query call targets: %w", err)
	}
	defer rows.Close()

	var out []model.CallTarget
	for rows.Next() {
		var t model.CallTarget
		if err := rows.Scan(&t.CallID, &t.ParameterID, &t.TargetValue, &t.Confidence,
			&t.SourceSpec, &t.Reasoning, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan call target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCallerTarget(ctx context.Context, t model.CallerTarget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO caller_targets (caller_id, parameter_id, target_value, confidence, sample_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (caller_id, parameter_id) DO UPDATE SET
		   target_value = EXCLUDED.target_value, confidence = EXCLUDED.confidence,
		   sample_count = EXCLUDED.sample_count, updated_at = EXCLUDED.updated_at`,
		t.CallerID, t.ParameterID, t.TargetValue, t.Confidence, t.SampleCount, t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert caller target: %w", err)
	}
	return nil
}

func (s *PostgresStore) CallerTargets(ctx context.Context, callerID string) ([]model.CallerTarget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT caller_id, parameter_id, target_value, confidence, sample_count, updated_at
		 FROM caller_targets WHERE caller_id = $1 ORDER BY parameter_id`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: caller targets: %w", err)
	}
	defer rows.Close()

	var out []model.CallerTarget
	for rows.Next() {
		var t model.CallerTarget
		if err := rows.Scan(&t.CallerID, &t.ParameterID, &t.TargetValue, &t.Confidence,
			&t.SampleCount, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan caller target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertObservation(ctx context.Context, o model.PersonalityObservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO personality_observations (call_id, caller_id, trait, value, confidence, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (call_id, trait) DO UPDATE SET
		   value = EXCLUDED.value, confidence = EXCLUDED.confidence, observed_at = EXCLUDED.observed_at`,
		o.CallID, o.CallerID, o.Trait, o.Value, o.Confidence, o.ObservedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert observation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ObservationsForCaller(ctx context.Context, callerID string) ([]model.PersonalityObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, caller_id, trait, value, confidence, observed_at
		 FROM personality_observations WHERE caller_id = $1 ORDER BY observed_at`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: observations for caller: %w", err)
	}
	defer rows.Close()

	var out []model.PersonalityObservation
	for rows.Next() {
		var o model.PersonalityObservation
		if err := rows.Scan(&o.CallID, &o.CallerID, &o.Trait, &o.Value, &o.Confidence, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("store: scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCallerPersonality(ctx context.Context, p model.CallerPersonality) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO caller_personality (caller_id, trait, value, confidence, sample_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (caller_id, trait) DO UPDATE SET
		   value = EXCLUDED.value, confidence = EXCLUDED.confidence,
		   sample_count = EXCLUDED.sample_count, updated_at = EXCLUDED.updated_at`,
		p.CallerID, p.Trait, p.Value, p.Confidence, p.SampleCount, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert caller personality: %w", err)
	}
	return nil
}

func (s *PostgresStore) CallerPersonalities(ctx context.Context, callerID string) ([]model.CallerPersonality, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT caller_id, trait, value, confidence, sample_count, updated_at
		 FROM caller_personality WHERE caller_id = $1 ORDER BY trait`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: caller personalities: %w", err)
	}
	defer rows.Close()

	var out []model.CallerPersonality
	for rows.Next() {
		var p model.CallerPersonality
		if err := rows.Scan(&p.CallerID, &p.Trait, &p.Value, &p.Confidence, &p.SampleCount, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan caller personality: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertReward(ctx context.Context, r model.Reward) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rewards (id, call_id, value, matched, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (call_id) DO UPDATE SET
		   value = EXCLUDED.value, matched = EXCLUDED.matched, computed_at = EXCLUDED.computed_at`,
		r.ID, r.CallID, r.Value, r.Matched, r.ComputedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert reward: %w", err)
	}
	return nil
}

func (s *PostgresStore) RewardForCall(ctx context.Context, callID string) (model.Reward, error) {
	var r model.Reward
	err := s.pool.QueryRow(ctx,
		`SELECT id, call_id, value, matched, computed_at FROM rewards WHERE call_id = $1`, callID).
		Scan(&r.ID, &r.CallID, &r.Value, &r.Matched, &r.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Reward{}, ErrNotFound
	}
	if err != nil {
		return model.Reward{}, fmt.Errorf("store: reward for call: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) SystemTargets(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT parameter_id, target_value FROM system_targets`)
	if err != nil {
		return nil, fmt.Errorf("store: system targets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var v float64
		if err := rows.Scan(&id, &v); err != nil {
			return nil, fmt.Errorf("store: scan system target: %w", err)
		}
		out[id] = v
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetSystemTarget(ctx context.Context, parameterID string, value float64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_targets (parameter_id, target_value) VALUES ($1, $2)
		 ON CONFLICT (parameter_id) DO UPDATE SET target_value = EXCLUDED.target_value`,
		parameterID, value)
	if err != nil {
		return fmt.Errorf("store: set system target: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertFact(ctx context.Context, f model.Fact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO facts (id, call_id, caller_id, content, extracted_at) VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.CallID, f.CallerID, f.Content, f.ExtractedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert fact: %w", err)
	}
	return nil
}

func (s *PostgresStore) FactsForCaller(ctx context.Context, callerID string) ([]model.Fact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, caller_id, content, extracted_at
		 FROM facts WHERE caller_id = $1 ORDER BY extracted_at`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: facts for caller: %w", err)
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.ID, &f.CallID, &f.CallerID, &f.Content, &f.ExtractedAt); err != nil {
			return nil, fmt.Errorf("store: scan fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertGoal(ctx context.Context, g model.Goal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO goals (id, caller_id, parameter_id, description, target, progress, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (caller_id, parameter_id) DO UPDATE SET
		   description = EXCLUDED.description, target = EXCLUDED.target,
		   progress = EXCLUDED.progress, status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		g.ID, g.CallerID, g.ParameterID, g.Description, g.Target, g.Progress,
		string(g.Status), g.CreatedAt.UTC(), g.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GoalsForCaller(ctx context.Context, callerID string) ([]model.Goal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, caller_id, parameter_id, description, target, progress, status, created_at, updated_at
		 FROM goals WHERE caller_id = $1 ORDER BY parameter_id`, callerID)
	if err != nil {
		return nil, fmt.Errorf("store: goals for caller: %w", err)
	}
	defer rows.Close()

	var out []model.Goal
	for rows.Next() {
		var g model.Goal
		var status string
		if err := rows.Scan(&g.ID, &g.CallerID, &g.ParameterID, &g.Description, &g.Target,
			&g.Progress, &status, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan goal: %w", err)
		}
		g.Status = model.GoalStatus(status)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertArtifact(ctx context.Context, a model.Artifact) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (id, call_id, kind, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.CallID, a.Kind, a.Content, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertAction(ctx context.Context, a model.Action) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO actions (id, call_id, speaker, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.CallID, a.Speaker, a.Content, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: insert action: %w", err)
	}
	return nil
}

func (s *PostgresStore) CurriculumState(ctx context.Context, callerID string) (model.CurriculumState, error) {
	var st model.CurriculumState
	err := s.pool.QueryRow(ctx,
		`SELECT caller_id, stage, calls, updated_at FROM curriculum_states WHERE caller_id = $1`, callerID).
		Scan(&st.CallerID, &st.Stage, &st.Calls, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CurriculumState{}, ErrNotFound
	}
	if err != nil {
		return model.CurriculumState{}, fmt.Errorf("store: curriculum state: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) UpsertCurriculumState(ctx context.Context, st model.CurriculumState) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO curriculum_states (caller_id, stage, calls, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (caller_id) DO UPDATE SET
		   stage = EXCLUDED.stage, calls = EXCLUDED.calls, updated_at = EXCLUDED.updated_at`,
		st.CallerID, st.Stage, st.Calls, st.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: upsert curriculum state: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePrompt(ctx context.Context, p model.PromptRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO prompts (id, caller_id, call_id, content, composed_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.CallerID, p.CallID, p.Content, p.ComposedAt.UTC())
	if err != nil {
		return fmt.Errorf("store: save prompt: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestPrompt(ctx context.Context, callerID string) (model.PromptRecord, error) {
	var p model.PromptRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, caller_id, call_id, content, composed_at FROM prompts
		 WHERE caller_id = $1 ORDER BY composed_at DESC LIMIT 1`, callerID).
		Scan(&p.ID, &p.CallerID, &p.CallID, &p.Content, &p.ComposedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.PromptRecord{}, ErrNotFound
	}
	if err != nil {
		return model.PromptRecord{}, fmt.Errorf("store: latest prompt: %w", err)
	}
	return p, nil
}
