package extractors

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"callsight/internal/model"
	"callsight/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCall(t *testing.T, s store.Store, id, caller, transcript string, at time.Time) model.Call {
	t.Helper()
	call := model.Call{ID: id, CallerID: caller, Transcript: transcript, StartedAt: at}
	if err := s.CreateCall(context.Background(), call); err != nil {
		t.Fatal(err)
	}
	return call
}

func TestRuleAdapterNudgesTowardSystemTarget(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", "hello", time.Now().UTC())
	ctx := context.Background()

	err := s.UpsertMeasurement(ctx, model.BehaviorMeasurement{
		CallID: "call-1", ParameterID: "warmth", Value: 0.2, Confidence: 0.8, MeasuredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSystemTarget(ctx, "warmth", 0.7); err != nil {
		t.Fatal(err)
	}

	a := &RuleAdapter{Store: s, NudgeFactor: 0.5, DefaultGoal: 0.5}
	out, err := a.ComputeTargets(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if out.Created != 1 {
		t.Fatalf("created = %d, want 1", out.Created)
	}

	targets, err := s.TargetsForCall(ctx, "call-1")
	if err != nil {
		t.Fatal(err)
	}
	// 0.2 nudged halfway toward 0.7.
	if got := targets[0].TargetValue; math.Abs(got-0.45) > 1e-9 {
		t.Errorf("target = %v, want 0.45", got)
	}
	if targets[0].SourceSpec != "rule" {
		t.Errorf("source = %q", targets[0].SourceSpec)
	}
}

func TestRuleAdapterSkipsParametersWithExistingTargets(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", "hello", time.Now().UTC())
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.UpsertMeasurement(ctx, model.BehaviorMeasurement{
		CallID: "call-1", ParameterID: "warmth", Value: 0.2, Confidence: 0.8, MeasuredAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpsertCallTarget(ctx, model.CallTarget{
		CallID: "call-1", ParameterID: "warmth", TargetValue: 0.6,
		Confidence: 0.9, SourceSpec: "ai", Reasoning: "model said so", CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	a := &RuleAdapter{Store: s, NudgeFactor: 0.5, DefaultGoal: 0.5}
	out, err := a.ComputeTargets(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if out.Created != 0 || out.Skipped != 1 {
		t.Errorf("outcome = %+v, want skip", out)
	}

	targets, _ := s.TargetsForCall(ctx, "call-1")
	if targets[0].SourceSpec != "ai" {
		t.Error("rule adapter overwrote the AI target")
	}
}

func TestGoalExtractorMatchesCues(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", "hello", time.Now().UTC())
	ctx := context.Background()

	err := s.InsertFact(ctx, model.Fact{
		ID: "f1", CallID: "call-1", CallerID: "alice",
		Content: "asked the agent to keep it short next time", ExtractedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	g := &GoalExtractor{Store: s}
	out, err := g.FromFacts(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if out.Created != 1 {
		t.Fatalf("created = %d, want 1", out.Created)
	}

	goals, err := s.GoalsForCaller(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if goals[0].ParameterID != "verbosity" {
		t.Errorf("parameter = %q, want verbosity", goals[0].ParameterID)
	}
	if goals[0].Target != 0.3 {
		t.Errorf("target = %v, want 0.3", goals[0].Target)
	}
	if goals[0].Status != model.GoalOpen {
		t.Errorf("status = %q", goals[0].Status)
	}
}

func TestGoalExtractorNoCuesNoGoals(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", "hello", time.Now().UTC())
	ctx := context.Background()

	err := s.InsertFact(ctx, model.Fact{
		ID: "f1", CallID: "call-1", CallerID: "alice",
		Content: "has two dogs", ExtractedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	g := &GoalExtractor{Store: s}
	out, err := g.FromFacts(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if out.Created != 0 {
		t.Errorf("created = %d, want 0", out.Created)
	}
}

func TestArtifactExtractorFindsURLsAndCommitments(t *testing.T) {
	s := newTestStore(t)
	transcript := "caller: can you send the form?\n" +
		"agent: I will email you the link, it is https://example.com/form today.\n"
	call := seedCall(t, s, "call-1", "alice", transcript, time.Now().UTC())

	e := &ArtifactExtractor{Store: s}
	out, err := e.FromTranscript(context.Background(), call)
	if err != nil {
		t.Fatal(err)
	}
	// One URL artifact plus one commitment action.
	if out.Created != 2 {
		t.Errorf("created = %d, want 2", out.Created)
	}
}

func TestCurriculumAdvancesEveryFifthCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := &Curriculum{Store: s}

	for i := 0; i < 5; i++ {
		if _, err := c.Advance(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
	}
	st, err := s.CurriculumState(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if st.Calls != 5 {
		t.Errorf("calls = %d, want 5", st.Calls)
	}
	if st.Stage != 1 {
		t.Errorf("stage = %d, want 1 after five calls", st.Stage)
	}
}

func TestGoalTrackerClosesNearbyGoals(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", "hello", time.Now().UTC())
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.UpsertGoal(ctx, model.Goal{
		ID: "g1", CallerID: "alice", ParameterID: "verbosity",
		Description: "shorter answers", Target: 0.3, Status: model.GoalOpen,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpsertMeasurement(ctx, model.BehaviorMeasurement{
		CallID: "call-1", ParameterID: "verbosity", Value: 0.32, Confidence: 0.8, MeasuredAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	tr := &GoalTracker{Store: s}
	out, err := tr.Track(ctx, call)
	if err != nil {
		t.Fatal(err)
	}
	if out.Updated != 1 {
		t.Fatalf("updated = %d, want 1", out.Updated)
	}

	goals, _ := s.GoalsForCaller(ctx, "alice")
	if goals[0].Status != model.GoalDone {
		t.Errorf("status = %q, want done within 0.05 of target", goals[0].Status)
	}
	if goals[0].Progress != 1 {
		t.Errorf("progress = %v, want 1", goals[0].Progress)
	}
}

func TestGoalTrackerMarksProgressTowardTarget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	earlier := time.Now().UTC().Add(-time.Hour)
	now := time.Now().UTC()

	seedCall(t, s, "call-0", "alice", "hello", earlier)
	call := seedCall(t, s, "call-1", "alice", "hello again", now)

	err := s.UpsertGoal(ctx, model.Goal{
		ID: "g1", CallerID: "alice", ParameterID: "verbosity",
		Description: "shorter answers", Target: 0.3, Status: model.GoalOpen,
		CreatedAt: earlier, UpdatedAt: earlier,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpsertMeasurement(ctx, model.BehaviorMeasurement{
		CallID: "call-0", ParameterID: "verbosity", Value: 0.8, Confidence: 0.8, MeasuredAt: earlier,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = s.UpsertMeasurement(ctx, model.BehaviorMeasurement{
		CallID: "call-1", ParameterID: "verbosity", Value: 0.6, Confidence: 0.8, MeasuredAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}

	tr := &GoalTracker{Store: s}
	if _, err := tr.Track(ctx, call); err != nil {
		t.Fatal(err)
	}

	goals, _ := s.GoalsForCaller(ctx, "alice")
	if goals[0].Status != model.GoalProgressing {
		t.Errorf("status = %q, want progressing", goals[0].Status)
	}
	if math.Abs(goals[0].Progress-0.7) > 1e-9 {
		t.Errorf("progress = %v, want 0.7", goals[0].Progress)
	}
}
