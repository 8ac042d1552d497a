// Package inference abstracts the completion provider behind a small client
// interface, defines the prompt/response contract the stage executors rely
// on, and classifies provider failures. Two engines ship: "gemini" (Google
// GenAI) and "mock" (deterministic, offline).
package inference

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"callsight/internal/config"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage reports provider token accounting.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the provider's answer.
type Response struct {
	Content string
	Usage   Usage
}

// Client is the completion provider contract. Implementations own their own
// retry budget (Guardrails.AISettings.MaxRetries); the pipeline never retries.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Options carries what an engine needs at construction time.
type Options struct {
	APIKey string
	Model  string
	Mock   config.MockBehavior
	Logger *zap.Logger
}

// ForEngine returns the client for the named engine. Unknown engines fall
// back to the mock so a bad engine value degrades a run instead of killing
// it; the fallback is logged.
func ForEngine(engine string, opts Options) (Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	switch engine {
	case "mock", "":
		return NewMockClient(opts.Mock), nil
	case "gemini":
		c, err := NewGeminiClient(opts.APIKey, opts.Model)
		if err != nil {
			return nil, fmt.Errorf("inference: gemini engine: %w", err)
		}
		return c, nil
	default:
		logger.Warn("unknown inference engine, falling back to mock",
			zap.String("engine", engine))
		return NewMockClient(opts.Mock), nil
	}
}
