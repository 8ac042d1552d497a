package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"callsight/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "callsight.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetCallNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCall(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestPreviousCallOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2", "c3"} {
		call := model.Call{ID: id, CallerID: "alice", Transcript: "hi",
			StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.CreateCall(ctx, call); err != nil {
			t.Fatal(err)
		}
	}

	prev, err := s.PreviousCall(ctx, "alice", base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if prev.ID != "c2" {
		t.Errorf("previous call = %s, want c2", prev.ID)
	}

	_, err = s.PreviousCall(ctx, "alice", base)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("first call should have no predecessor, got %v", err)
	}
}

func TestUpsertScoreIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	sp := model.ScoredParameter{CallID: "c1", ParameterID: "curiosity",
		Score: 0.4, Confidence: 0.7, ScoredAt: now}
	if err := s.UpsertScore(ctx, sp); err != nil {
		t.Fatal(err)
	}
	sp.Score = 0.6
	if err := s.UpsertScore(ctx, sp); err != nil {
		t.Fatal(err)
	}

	scores, err := s.ScoresForCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 1 {
		t.Fatalf("got %d rows, want 1 (upsert invariant)", len(scores))
	}
	if scores[0].Score != 0.6 {
		t.Errorf("score = %v, want last-written 0.6", scores[0].Score)
	}
}

func TestUpsertMeasurementIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := model.BehaviorMeasurement{CallID: "c1", ParameterID: "warmth",
		Value: 0.5, Confidence: 0.8, MeasuredAt: time.Now()}
	if err := s.UpsertMeasurement(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMeasurement(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, err := s.MeasurementsForCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d rows, want 1", len(got))
	}
}

func TestTargetsForCallerJoinsCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"c1", "c2"} {
		if err := s.CreateCall(ctx, model.Call{ID: id, CallerID: "alice",
			Transcript: "t", StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertCallTarget(ctx, model.CallTarget{CallID: id, ParameterID: "warmth",
			TargetValue: 0.5, Confidence: 0.5, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	// Another caller's target must not leak in.
	if err := s.CreateCall(ctx, model.Call{ID: "c9", CallerID: "bob",
		Transcript: "t", StartedAt: base}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCallTarget(ctx, model.CallTarget{CallID: "c9", ParameterID: "warmth",
		TargetValue: 0.9, Confidence: 0.5, CreatedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := s.TargetsForCaller(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d targets for alice, want 2", len(got))
	}
}

func TestCallerTargetRefreshOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tgt := model.CallerTarget{CallerID: "alice", ParameterID: "warmth",
		TargetValue: 0.4, Confidence: 0.3, SampleCount: 1, UpdatedAt: time.Now()}
	if err := s.UpsertCallerTarget(ctx, tgt); err != nil {
		t.Fatal(err)
	}
	tgt.TargetValue = 0.6
	tgt.SampleCount = 2
	if err := s.UpsertCallerTarget(ctx, tgt); err != nil {
		t.Fatal(err)
	}

	got, err := s.CallerTargets(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TargetValue != 0.6 || got[0].SampleCount != 2 {
		t.Errorf("caller target not refreshed in place: %+v", got)
	}
}

func TestRewardUpsertPerCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := model.Reward{ID: "r1", CallID: "c1", Value: 0.9, Matched: 2, ComputedAt: time.Now()}
	if err := s.UpsertReward(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Value = 0.8
	if err := s.UpsertReward(ctx, r); err != nil {
		t.Fatal(err)
	}

	got, err := s.RewardForCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != 0.8 {
		t.Errorf("reward = %v, want 0.8", got.Value)
	}
}

func TestSystemTargets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetSystemTarget(ctx, "warmth", 0.7); err != nil {
		t.Fatal(err)
	}
	got, err := s.SystemTargets(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got["warmth"] != 0.7 {
		t.Errorf("system target = %v, want 0.7", got["warmth"])
	}
}

func TestGoalUpsertKeyedByCallerParameter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	g := model.Goal{ID: "g1", CallerID: "alice", ParameterID: "warmth",
		Description: "be warmer", Target: 0.7, Status: model.GoalOpen,
		CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertGoal(ctx, g); err != nil {
		t.Fatal(err)
	}
	g.Status = model.GoalProgressing
	g.Progress = 0.5
	if err := s.UpsertGoal(ctx, g); err != nil {
		t.Fatal(err)
	}

	goals, err := s.GoalsForCaller(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 {
		t.Fatalf("got %d goals, want 1", len(goals))
	}
	if goals[0].Status != model.GoalProgressing || goals[0].Progress != 0.5 {
		t.Errorf("goal not updated: %+v", goals[0])
	}
}

func TestLatestPrompt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"p1", "p2"} {
		if err := s.SavePrompt(ctx, model.PromptRecord{ID: id, CallerID: "alice",
			CallID: "c1", Content: id + " content",
			ComposedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LatestPrompt(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "p2" {
		t.Errorf("latest prompt = %s, want p2", got.ID)
	}

	_, err = s.LatestPrompt(ctx, "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestObservationUpsertKeyedByCallTrait(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := model.PersonalityObservation{CallID: "c1", CallerID: "alice",
		Trait: "openness", Value: 0.4, Confidence: 0.5, ObservedAt: time.Now()}
	if err := s.UpsertObservation(ctx, o); err != nil {
		t.Fatal(err)
	}
	o.Value = 0.7
	if err := s.UpsertObservation(ctx, o); err != nil {
		t.Fatal(err)
	}

	obs, err := s.ObservationsForCaller(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 1 || obs[0].Value != 0.7 {
		t.Errorf("observation not upserted: %+v", obs)
	}
}

func TestCurriculumState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CurriculumState(ctx, "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	st := model.CurriculumState{CallerID: "alice", Stage: 1, Calls: 3, UpdatedAt: time.Now()}
	if err := s.UpsertCurriculumState(ctx, st); err != nil {
		t.Fatal(err)
	}
	got, err := s.CurriculumState(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != 1 || got.Calls != 3 {
		t.Errorf("curriculum state = %+v", got)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	call := model.Call{ID: "c1", CallerID: "alice", Transcript: "hi", StartedAt: now}
	if err := s.CreateCall(ctx, call); err != nil {
		t.Fatal(err)
	}

	// Interleaved reads and writes from parallel goroutines, the access
	// pattern of a concurrent stage batch. Must never surface SQLITE_BUSY.
	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		param := fmt.Sprintf("param_%d", i)
		eg.Go(func() error {
			if _, err := s.ScoresForCall(egCtx, "c1"); err != nil {
				return err
			}
			err := s.UpsertScore(egCtx, model.ScoredParameter{
				CallID: "c1", ParameterID: param, Score: 0.5, Confidence: 0.5, ScoredAt: now,
			})
			if err != nil {
				return err
			}
			if _, err := s.MeasurementsForCall(egCtx, "c1"); err != nil {
				return err
			}
			return s.UpsertMeasurement(egCtx, model.BehaviorMeasurement{
				CallID: "c1", ParameterID: param, Value: 0.5, Confidence: 0.5, MeasuredAt: now,
			})
		})
	}
	if err := eg.Wait(); err != nil {
		t.Fatalf("concurrent access failed: %v", err)
	}

	scores, err := s.ScoresForCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(scores) != 8 {
		t.Errorf("got %d scores, want 8", len(scores))
	}
}
