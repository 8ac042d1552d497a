package pipeline

import (
	"context"
	"fmt"

	"callsight/internal/config"
)

// execCompose builds and persists the next system prompt from currently
// persisted caller state. It deliberately reads nothing from Run.Results, so
// it works even when every earlier stage in this run failed.
func execCompose(ctx context.Context, r *Run, stage config.Stage) (map[string]any, error) {
	if r.composer == nil {
		return nil, fmt.Errorf("no composer configured")
	}

	rec, err := r.composer.Compose(ctx, r.Call.ID, r.Call.CallerID)
	if err != nil {
		return nil, fmt.Errorf("compose prompt: %w", err)
	}
	r.prompt = rec.Content

	return map[string]any{
		"promptId":     rec.ID,
		"promptLength": len(rec.Content),
	}, nil
}
