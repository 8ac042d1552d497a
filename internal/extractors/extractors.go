// Package extractors implements the pipeline's black-box collaborators:
// rule-based target adaptation, fact-based goal extraction, artifact and
// action extraction, curriculum progress, and goal-progress tracking. Each
// exposes one entry point returning an Outcome; the pipeline treats them as
// opaque and never depends on how they work.
package extractors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"callsight/internal/model"
	"callsight/internal/store"
)

// Outcome is the shared result record of every collaborator entry point.
type Outcome struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// RuleAdapter derives behavior targets without the inference provider by
// nudging each measured value toward its system-level target.
type RuleAdapter struct {
	Store       store.Store
	NudgeFactor float64
	DefaultGoal float64 // system target fallback, normally 0.5
}

// ComputeTargets upserts one rule-sourced target per measured parameter that
// does not already have an AI-sourced target for the call.
func (a *RuleAdapter) ComputeTargets(ctx context.Context, call model.Call) (Outcome, error) {
	var out Outcome

	measurements, err := a.Store.MeasurementsForCall(ctx, call.ID)
	if err != nil {
		return out, fmt.Errorf("rule adapt: load measurements: %w", err)
	}
	if len(measurements) == 0 {
		out.Skipped++
		return out, nil
	}

	systemTargets, err := a.Store.SystemTargets(ctx)
	if err != nil {
		return out, fmt.Errorf("rule adapt: load system targets: %w", err)
	}
	existing, err := a.Store.TargetsForCall(ctx, call.ID)
	if err != nil {
		return out, fmt.Errorf("rule adapt: load targets: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, t := range existing {
		taken[t.ParameterID] = true
	}

	for _, m := range measurements {
		if taken[m.ParameterID] {
			out.Skipped++
			continue
		}
		goal, ok := systemTargets[m.ParameterID]
		if !ok {
			goal = a.DefaultGoal
		}
		target := m.Value + (goal-m.Value)*a.NudgeFactor
		err := a.Store.UpsertCallTarget(ctx, model.CallTarget{
			CallID:      call.ID,
			ParameterID: m.ParameterID,
			TargetValue: target,
			Confidence:  m.Confidence,
			SourceSpec:  "rule",
			Reasoning:   fmt.Sprintf("measured %.2f nudged toward system target %.2f", m.Value, goal),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Created++
	}
	return out, nil
}

// goalCues maps transcript/fact phrasings to the behavior parameter a goal
// should steer.
var goalCues = []struct {
	pattern *regexp.Regexp
	param   string
	target  float64
	desc    string
}{
	{regexp.MustCompile(`(?i)\b(keep it short|too long|brief|concise)\b`), "verbosity", 0.3, "caller prefers shorter answers"},
	{regexp.MustCompile(`(?i)\b(more detail|explain more|elaborate)\b`), "verbosity", 0.7, "caller wants more detail"},
	{regexp.MustCompile(`(?i)\b(informal|casual|relax)\b`), "formality", 0.3, "caller prefers a casual register"},
	{regexp.MustCompile(`(?i)\b(professional|formal)\b`), "formality", 0.7, "caller prefers a formal register"},
	{regexp.MustCompile(`(?i)\b(get to the point|stop beating around)\b`), "directness", 0.8, "caller wants directness"},
}

// GoalExtractor derives caller goals from the facts stored for them.
type GoalExtractor struct {
	Store store.Store
}

// FromFacts scans the caller's facts for goal cues and upserts one goal per
// matched parameter. Existing goals for the same parameter are refreshed.
func (g *GoalExtractor) FromFacts(ctx context.Context, call model.Call) (Outcome, error) {
	var out Outcome

	facts, err := g.Store.FactsForCaller(ctx, call.CallerID)
	if err != nil {
		return out, fmt.Errorf("goal extract: load facts: %w", err)
	}
	if len(facts) == 0 {
		out.Skipped++
		return out, nil
	}

	existing, err := g.Store.GoalsForCaller(ctx, call.CallerID)
	if err != nil {
		return out, fmt.Errorf("goal extract: load goals: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, gl := range existing {
		known[gl.ParameterID] = true
	}

	now := time.Now().UTC()
	seen := make(map[string]bool)
	for _, f := range facts {
		for _, cue := range goalCues {
			if seen[cue.param] || !cue.pattern.MatchString(f.Content) {
				continue
			}
			seen[cue.param] = true
			err := g.Store.UpsertGoal(ctx, model.Goal{
				ID:          uuid.NewString(),
				CallerID:    call.CallerID,
				ParameterID: cue.param,
				Description: cue.desc,
				Target:      cue.target,
				Status:      model.GoalOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				out.Errors = append(out.Errors, err.Error())
				continue
			}
			if known[cue.param] {
				out.Updated++
			} else {
				out.Created++
			}
		}
	}
	return out, nil
}

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s]+`)
	commitmentPattern = regexp.MustCompile(`(?im)^.*\b(i will|i'll|let me|i can send)\b.*$`)
)

// ArtifactExtractor pulls referenced artifacts and spoken commitments out of
// a raw transcript.
type ArtifactExtractor struct {
	Store store.Store
}

// FromTranscript records URLs as artifacts and commitment lines as actions.
func (e *ArtifactExtractor) FromTranscript(ctx context.Context, call model.Call) (Outcome, error) {
	var out Outcome
	now := time.Now().UTC()

	for _, u := range urlPattern.FindAllString(call.Transcript, -1) {
		err := e.Store.InsertArtifact(ctx, model.Artifact{
			ID: uuid.NewString(), CallID: call.ID, Kind: "url",
			Content: u, CreatedAt: now,
		})
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Created++
	}

	for _, line := range commitmentPattern.FindAllString(call.Transcript, -1) {
		speaker := "caller"
		if strings.HasPrefix(strings.ToLower(line), "agent:") {
			speaker = "agent"
		}
		err := e.Store.InsertAction(ctx, model.Action{
			ID: uuid.NewString(), CallID: call.ID, Speaker: speaker,
			Content: strings.TrimSpace(line), CreatedAt: now,
		})
		if err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Created++
	}
	if out.Created == 0 {
		out.Skipped++
	}
	return out, nil
}

// callsPerCurriculumStage paces stage advancement.
const callsPerCurriculumStage = 5

// Curriculum tracks per-caller progression through the conversational
// curriculum.
type Curriculum struct {
	Store store.Store
}

// Advance bumps the caller's call count and recomputes their stage.
func (c *Curriculum) Advance(ctx context.Context, callerID string) (Outcome, error) {
	var out Outcome

	st, err := c.Store.CurriculumState(ctx, callerID)
	switch {
	case err == nil:
		out.Updated++
	case errors.Is(err, store.ErrNotFound):
		st = model.CurriculumState{CallerID: callerID}
		out.Created++
	default:
		return out, fmt.Errorf("curriculum: load state: %w", err)
	}

	st.Calls++
	st.Stage = st.Calls / callsPerCurriculumStage
	st.UpdatedAt = time.Now().UTC()
	if err := c.Store.UpsertCurriculumState(ctx, st); err != nil {
		return Outcome{Errors: []string{err.Error()}}, fmt.Errorf("curriculum: save state: %w", err)
	}
	return out, nil
}

// GoalTracker updates goal progress after a call's scores land.
type GoalTracker struct {
	Store store.Store
}

// Track compares each open goal's parameter against the call's measurements
// and the prior call's: movement toward the goal target counts as progress,
// reaching within 0.05 of the target closes the goal.
func (t *GoalTracker) Track(ctx context.Context, call model.Call) (Outcome, error) {
	var out Outcome

	goals, err := t.Store.GoalsForCaller(ctx, call.CallerID)
	if err != nil {
		return out, fmt.Errorf("goal track: load goals: %w", err)
	}
	if len(goals) == 0 {
		out.Skipped++
		return out, nil
	}

	current, err := t.Store.MeasurementsForCall(ctx, call.ID)
	if err != nil {
		return out, fmt.Errorf("goal track: load measurements: %w", err)
	}
	byParam := make(map[string]float64, len(current))
	for _, m := range current {
		byParam[m.ParameterID] = m.Value
	}

	var prevByParam map[string]float64
	if prev, err := t.Store.PreviousCall(ctx, call.CallerID, call.StartedAt); err == nil {
		if prevMs, err := t.Store.MeasurementsForCall(ctx, prev.ID); err == nil {
			prevByParam = make(map[string]float64, len(prevMs))
			for _, m := range prevMs {
				prevByParam[m.ParameterID] = m.Value
			}
		}
	}

	now := time.Now().UTC()
	for _, g := range goals {
		if g.Status == model.GoalDone {
			out.Skipped++
			continue
		}
		cur, ok := byParam[g.ParameterID]
		if !ok {
			out.Skipped++
			continue
		}

		dist := math.Abs(cur - g.Target)
		switch {
		case dist <= 0.05:
			g.Status = model.GoalDone
			g.Progress = 1
		default:
			if prev, ok := prevByParam[g.ParameterID]; ok && dist < math.Abs(prev-g.Target) {
				g.Status = model.GoalProgressing
			}
			g.Progress = 1 - dist
			if g.Progress < 0 {
				g.Progress = 0
			}
		}
		g.UpdatedAt = now
		if err := t.Store.UpsertGoal(ctx, g); err != nil {
			out.Errors = append(out.Errors, err.Error())
			continue
		}
		out.Updated++
	}
	return out, nil
}
