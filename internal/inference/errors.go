package inference

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a provider failure. The pipeline surfaces the kind in the
// stage error message; it never branches on it to retry.
type Kind string

const (
	KindRateLimit     Kind = "rate_limit"
	KindAuth          Kind = "auth"
	KindContentPolicy Kind = "content_policy"
	KindParse         Kind = "parse"
	KindNetwork       Kind = "network"
	KindModel         Kind = "model"
	KindUnknown       Kind = "unknown"
)

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Kind Kind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RateLimitError indicates the provider asked us to back off.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// Classify maps an arbitrary provider error onto a Kind. Typed errors win;
// otherwise the message is matched against known provider phrasings.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return KindRateLimit
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "permission"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return KindAuth
	case strings.Contains(msg, "safety"), strings.Contains(msg, "blocked"),
		strings.Contains(msg, "content policy"):
		return KindContentPolicy
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "parse"),
		strings.Contains(msg, "unexpected end of json"):
		return KindParse
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"),
		strings.Contains(msg, "dial"), strings.Contains(msg, "eof"):
		return KindNetwork
	case strings.Contains(msg, "model"), strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "500"), strings.Contains(msg, "503"):
		return KindModel
	default:
		return KindUnknown
	}
}
