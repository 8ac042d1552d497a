// Package composer turns persisted caller state into the system prompt for
// the next conversation. It reads through the store only, so COMPOSE can run
// even when every earlier stage in the same run failed.
package composer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"callsight/internal/model"
	"callsight/internal/store"
)

// Config shapes the composed prompt.
type Config struct {
	Preamble string
	MaxFacts int
	MaxGoals int
}

// DefaultConfig returns the built-in composition settings.
func DefaultConfig() Config {
	return Config{
		Preamble: "You are a conversational assistant. Personalize your behavior for this caller.",
		MaxFacts: 10,
		MaxGoals: 5,
	}
}

// Composer builds and persists next-call prompts.
type Composer struct {
	store store.Store
	cfg   Config
}

// New creates a Composer over the given store.
func New(s store.Store, cfg Config) *Composer {
	if cfg.Preamble == "" {
		cfg = DefaultConfig()
	}
	return &Composer{store: s, cfg: cfg}
}

// Compose assembles the prompt for the caller's next call, persists it, and
// returns the stored record.
func (c *Composer) Compose(ctx context.Context, callID, callerID string) (model.PromptRecord, error) {
	var b strings.Builder
	b.WriteString(c.cfg.Preamble)
	b.WriteString("\n")

	traits, err := c.store.CallerPersonalities(ctx, callerID)
	if err != nil {
		return model.PromptRecord{}, fmt.Errorf("composer: load personality: %w", err)
	}
	if len(traits) > 0 {
		sort.Slice(traits, func(i, j int) bool { return traits[i].Trait < traits[j].Trait })
		b.WriteString("\nCaller personality profile:\n")
		for _, t := range traits {
			b.WriteString(fmt.Sprintf("- %s: %.2f (confidence %.2f)\n", t.Trait, t.Value, t.Confidence))
		}
	}

	targets, err := c.store.CallerTargets(ctx, callerID)
	if err != nil {
		return model.PromptRecord{}, fmt.Errorf("composer: load targets: %w", err)
	}
	if len(targets) > 0 {
		b.WriteString("\nBehavior targets for this conversation (0 = minimal, 1 = maximal):\n")
		for _, t := range targets {
			b.WriteString(fmt.Sprintf("- %s: aim for %.2f\n", t.ParameterID, t.TargetValue))
		}
	}

	facts, err := c.store.FactsForCaller(ctx, callerID)
	if err != nil {
		return model.PromptRecord{}, fmt.Errorf("composer: load facts: %w", err)
	}
	if len(facts) > 0 {
		// Most recent facts win the budget.
		if len(facts) > c.cfg.MaxFacts {
			facts = facts[len(facts)-c.cfg.MaxFacts:]
		}
		b.WriteString("\nKnown about this caller:\n")
		for _, f := range facts {
			b.WriteString("- " + f.Content + "\n")
		}
	}

	goals, err := c.store.GoalsForCaller(ctx, callerID)
	if err != nil {
		return model.PromptRecord{}, fmt.Errorf("composer: load goals: %w", err)
	}
	open := goals[:0:0]
	for _, g := range goals {
		if g.Status != model.GoalDone {
			open = append(open, g)
		}
	}
	if len(open) > c.cfg.MaxGoals {
		open = open[:c.cfg.MaxGoals]
	}
	if len(open) > 0 {
		b.WriteString("\nActive adjustment goals:\n")
		for _, g := range open {
			b.WriteString(fmt.Sprintf("- %s (progress %.0f%%)\n", g.Description, g.Progress*100))
		}
	}

	rec := model.PromptRecord{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		CallID:     callID,
		Content:    b.String(),
		ComposedAt: time.Now().UTC(),
	}
	if err := c.store.SavePrompt(ctx, rec); err != nil {
		return model.PromptRecord{}, fmt.Errorf("composer: save prompt: %w", err)
	}
	return rec, nil
}
