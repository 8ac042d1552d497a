package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"callsight/internal/config"
	"callsight/internal/inference"
	"callsight/internal/model"
	"callsight/internal/specs"
	"callsight/internal/store"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (linked transitively via google.golang.org/genai)
	// starts a permanent worker goroutine at init.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// funcClient lets tests inject completion behavior per call.
type funcClient struct {
	fn func(ctx context.Context, req inference.Request) (*inference.Response, error)
}

func (c *funcClient) Complete(ctx context.Context, req inference.Request) (*inference.Response, error) {
	return c.fn(ctx, req)
}

// longTranscript clears the default short-transcript threshold.
func longTranscript() string {
	return strings.Repeat("caller: tell me more about that please. agent: of course, happily. ", 20)
}

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

func newTestRunner(t *testing.T, s store.Store) *Runner {
	t.Helper()
	return NewRunner(Options{Store: s, Logger: zap.NewNop()})
}

// newTestRun builds a Run for direct executor tests.
func newTestRun(t *testing.T, s store.Store, call model.Call) *Run {
	t.Helper()
	return &Run{
		Call:       call,
		Mode:       ModePrep,
		Guardrails: config.DefaultGuardrails(),
		Specs:      specs.DefaultSpecs(),
		Results:    make(map[string]any),
		store:      s,
		client:     inference.NewMockClient(config.DefaultGuardrails().MockBehavior),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
}

func TestEndToEndPrepWithMockEngine(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	rn := newTestRunner(t, s)
	res, err := rn.Run(context.Background(), Request{
		CallID: "call-1", CallerID: "alice", Mode: ModePrep, Engine: "mock",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected clean run, got errors: %v", res.Errors)
	}
	if res.Prompt != "" {
		t.Errorf("prep mode must not compose a prompt, got %d bytes", len(res.Prompt))
	}

	// Every configured measure parameter got a score.
	scores, err := s.ScoresForCall(context.Background(), "call-1")
	if err != nil {
		t.Fatal(err)
	}
	wantParams := specs.ParameterIDs(specs.DefaultSpecs(), specs.KindMeasure)
	if len(scores) != len(wantParams) {
		t.Errorf("got %d scores, want %d", len(scores), len(wantParams))
	}
	for _, sc := range scores {
		if sc.Score < 0 || sc.Score > 1 {
			t.Errorf("%s score %v out of [0,1]", sc.ParameterID, sc.Score)
		}
	}

	// Agent measurements, reward, targets, and personality all landed.
	if got := res.Summary["measurementsCreated"]; got != len(specs.ParameterIDs(specs.DefaultSpecs(), specs.KindBehavior)) {
		t.Errorf("measurementsCreated = %v", got)
	}
	if got, ok := res.Summary["reward"].(float64); !ok || got < 0 || got > 1 {
		t.Errorf("reward = %v", res.Summary["reward"])
	}
	if _, ok := res.Summary["promptId"]; ok {
		t.Error("COMPOSE must not run in prep mode")
	}
	traits, err := s.CallerPersonalities(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(traits) == 0 {
		t.Error("expected caller personality rows after AGGREGATE")
	}
}

func TestPromptModeComposes(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	rn := newTestRunner(t, s)
	res, err := rn.Run(context.Background(), Request{
		CallID: "call-1", Mode: ModePrompt, Engine: "mock",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prompt == "" {
		t.Fatal("prompt mode should compose a prompt")
	}
	if got, ok := res.Summary["promptLength"].(int); !ok || got != len(res.Prompt) {
		t.Errorf("promptLength = %v, prompt is %d bytes", res.Summary["promptLength"], len(res.Prompt))
	}

	rec, err := s.LatestPrompt(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Content != res.Prompt {
		t.Error("persisted prompt differs from returned prompt")
	}
}

func TestIdempotencyGateSkipsAndForceReruns(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())
	rn := newTestRunner(t, s)
	ctx := context.Background()

	if _, err := rn.Run(ctx, Request{CallID: "call-1", Mode: ModePrep, Engine: "mock"}); err != nil {
		t.Fatal(err)
	}
	before, _ := s.ScoresForCall(ctx, "call-1")

	res, err := rn.Run(ctx, Request{CallID: "call-1", Mode: ModePrep, Engine: "mock"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary["skippedReason"] == nil {
		t.Error("re-run without force should report a skippedReason")
	}
	if got := res.Summary["scoresCreated"]; got != 0 {
		t.Errorf("scoresCreated = %v, want 0 on skip", got)
	}
	after, _ := s.ScoresForCall(ctx, "call-1")
	if len(after) != len(before) {
		t.Errorf("skip created rows: %d -> %d", len(before), len(after))
	}

	forced, err := rn.Run(ctx, Request{CallID: "call-1", Mode: ModePrep, Engine: "mock", Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := forced.Summary["scoresCreated"].(int); !ok || got == 0 {
		t.Errorf("forced run should re-score, scoresCreated = %v", forced.Summary["scoresCreated"])
	}
}

func TestUnknownCallIsFatal(t *testing.T) {
	s := newTestStore(t)
	rn := newTestRunner(t, s)
	_, err := rn.Run(context.Background(), Request{CallID: "nope", Mode: ModePrep, Engine: "mock"})
	if err == nil {
		t.Fatal("missing call must fail the run before stages start")
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("want ErrNotFound in chain, got %v", err)
	}
}

func TestParallelBatchFailureIsolation(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	mock := inference.NewMockClient(config.DefaultGuardrails().MockBehavior)
	client := &funcClient{fn: func(ctx context.Context, req inference.Request) (*inference.Response, error) {
		if strings.Contains(req.Prompt, "TASK: "+inference.TaskScoreCaller) {
			return nil, fmt.Errorf("simulated provider outage")
		}
		return mock.Complete(ctx, req)
	}}

	rn := NewRunner(Options{
		Store:  s,
		Logger: zap.NewNop(),
		ClientFor: func(engine string, g config.Guardrails) (inference.Client, error) {
			return client, nil
		},
	})

	res, err := rn.Run(context.Background(), Request{CallID: "call-1", Mode: ModePrep, Engine: "mock"})
	if err != nil {
		t.Fatal(err)
	}

	// SCORE_AGENT's results survived the EXTRACT failure.
	if got, ok := res.Summary["measurementsCreated"].(int); !ok || got == 0 {
		t.Errorf("SCORE_AGENT results missing from summary: %v", res.Summary["measurementsCreated"])
	}
	found := false
	for _, e := range res.Errors {
		if strings.HasPrefix(e, config.StageExtract+":") {
			found = true
		}
		if strings.HasPrefix(e, config.StageScoreAgent+":") {
			t.Errorf("SCORE_AGENT wrongly failed: %s", e)
		}
	}
	if !found {
		t.Errorf("errors should name EXTRACT: %v", res.Errors)
	}
	if res.Summary[summaryErrorsKey] == nil {
		t.Error("summary should carry errors under the reserved key")
	}
}

func TestComposeRunsEvenWhenEverythingElseFails(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	rn := NewRunner(Options{
		Store:  s,
		Logger: zap.NewNop(),
		ClientFor: func(engine string, g config.Guardrails) (inference.Client, error) {
			return &funcClient{fn: func(context.Context, inference.Request) (*inference.Response, error) {
				return nil, fmt.Errorf("provider down")
			}}, nil
		},
	})

	res, err := rn.Run(context.Background(), Request{CallID: "call-1", Mode: ModePrompt, Engine: "gemini"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected stage errors with a dead provider")
	}
	if res.Prompt == "" {
		t.Error("COMPOSE must still run off persisted state")
	}
	if _, ok := res.Summary["promptId"]; !ok {
		t.Error("summary should carry promptId from COMPOSE")
	}
}

func TestStagePanicIsContained(t *testing.T) {
	s := newTestStore(t)
	seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	mock := inference.NewMockClient(config.DefaultGuardrails().MockBehavior)
	rn := NewRunner(Options{
		Store:  s,
		Logger: zap.NewNop(),
		ClientFor: func(engine string, g config.Guardrails) (inference.Client, error) {
			return &funcClient{fn: func(ctx context.Context, req inference.Request) (*inference.Response, error) {
				if strings.Contains(req.Prompt, "TASK: "+inference.TaskScoreCaller) {
					panic("boom")
				}
				return mock.Complete(ctx, req)
			}}, nil
		},
	})

	res, err := rn.Run(context.Background(), Request{CallID: "call-1", Mode: ModePrep, Engine: "mock"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range res.Errors {
		if strings.HasPrefix(e, config.StageExtract+":") && strings.Contains(e, "panic") {
			found = true
		}
	}
	if !found {
		t.Errorf("panicking stage should surface as a stage error: %v", res.Errors)
	}
	if got, ok := res.Summary["measurementsCreated"].(int); !ok || got == 0 {
		t.Error("other stages should keep running after a panic")
	}
}

func TestModeFilteredStagesNeverInvoked(t *testing.T) {
	s := newTestStore(t)
	call := seedCall(t, s, "call-1", "alice", longTranscript(), time.Now().UTC())

	run := newTestRun(t, s, call)
	run.Stages = []config.Stage{
		{Name: config.StageReward, Order: 10},
		{Name: config.StageCompose, Order: 20, RequiresMode: "prompt"},
	}
	rn := newTestRunner(t, s)
	rn.execute(context.Background(), run)

	if _, ok := run.Results["promptId"]; ok {
		t.Error("COMPOSE ran despite requiring prompt mode")
	}
	if _, err := s.LatestPrompt(context.Background(), "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("no prompt should be persisted, got %v", err)
	}
}
