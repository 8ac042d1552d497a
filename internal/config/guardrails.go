// Package config resolves the pipeline's runtime configuration: the guardrail
// bundle (numeric safety bounds and tunables) and the ordered stage list.
// Both loaders merge an optional yaml override file over hardcoded defaults
// and never fail; a missing or malformed override falls back to defaults.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Guardrails bundles the numeric safety bounds and behavioral constants
// consumed throughout the pipeline. Loaded once per run, read-only afterward.
type Guardrails struct {
	TargetClamp      ClampRange        `yaml:"target_clamp"`
	ConfidenceBounds ConfidenceBounds  `yaml:"confidence_bounds"`
	MockBehavior     MockBehavior      `yaml:"mock_behavior"`
	AISettings       AISettings        `yaml:"ai_settings"`
	Aggregation      AggregationLimits `yaml:"aggregation"`
	Scoring          ScoringLimits     `yaml:"scoring"`
}

// ClampRange bounds personalized target values.
type ClampRange struct {
	Min float64 `yaml:"min" validate:"gte=0,lte=1"`
	Max float64 `yaml:"max" validate:"gte=0,lte=1,gtefield=Min"`
}

// ConfidenceBounds bounds confidence values and supplies the default used
// when a score arrives without one.
type ConfidenceBounds struct {
	Min     float64 `yaml:"min" validate:"gte=0,lte=1"`
	Max     float64 `yaml:"max" validate:"gte=0,lte=1,gtefield=Min"`
	Default float64 `yaml:"default" validate:"gte=0,lte=1"`
}

// MockBehavior shapes the deterministic mock inference engine.
type MockBehavior struct {
	RangeMin    float64 `yaml:"range_min" validate:"gte=0,lte=1"`
	RangeMax    float64 `yaml:"range_max" validate:"gte=0,lte=1,gtefield=RangeMin"`
	NudgeFactor float64 `yaml:"nudge_factor" validate:"gte=0,lte=1"`
}

// AISettings configures the completion provider. MaxRetries is consumed by
// the provider client, not by the pipeline itself.
type AISettings struct {
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxRetries  int     `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// AggregationLimits parameterizes time-decayed aggregation. These are the
// single source of truth for decay and confidence growth; no component
// carries its own copies.
type AggregationLimits struct {
	DecayHalfLifeDays       float64 `yaml:"decay_half_life_days" validate:"gt=0"`
	ConfidenceGrowthBase    float64 `yaml:"confidence_growth_base" validate:"gte=0,lte=1"`
	ConfidenceGrowthPerCall float64 `yaml:"confidence_growth_per_call" validate:"gte=0,lte=1"`
	MaxAggregatedConfidence float64 `yaml:"max_aggregated_confidence" validate:"gte=0,lte=1"`
}

// ScoringLimits guards agent scoring against thin transcripts.
type ScoringLimits struct {
	MinTranscriptWords   int     `yaml:"min_transcript_words" validate:"gte=0"`
	ShortTranscriptWords int     `yaml:"short_transcript_words" validate:"gte=0"`
	ShortConfidenceCap   float64 `yaml:"short_confidence_cap" validate:"gte=0,lte=1"`
}

// DefaultGuardrails returns the complete hardcoded guardrail set.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		TargetClamp:      ClampRange{Min: 0.2, Max: 0.8},
		ConfidenceBounds: ConfidenceBounds{Min: 0.1, Max: 1.0, Default: 0.5},
		MockBehavior:     MockBehavior{RangeMin: 0.3, RangeMax: 0.7, NudgeFactor: 0.1},
		AISettings:       AISettings{Temperature: 0.3, MaxRetries: 2},
		Aggregation: AggregationLimits{
			DecayHalfLifeDays:       30,
			ConfidenceGrowthBase:    0.3,
			ConfidenceGrowthPerCall: 0.05,
			MaxAggregatedConfidence: 0.95,
		},
		Scoring: ScoringLimits{
			MinTranscriptWords:   20,
			ShortTranscriptWords: 150,
			ShortConfidenceCap:   0.6,
		},
	}
}

// guardrailOverride mirrors Guardrails with pointer fields so a partial yaml
// file only overrides what it actually sets.
type guardrailOverride struct {
	TargetClamp *struct {
		Min *float64 `yaml:"min"`
		Max *float64 `yaml:"max"`
	} `yaml:"target_clamp"`
	ConfidenceBounds *struct {
		Min     *float64 `yaml:"min"`
		Max     *float64 `yaml:"max"`
		Default *float64 `yaml:"default"`
	} `yaml:"confidence_bounds"`
	MockBehavior *struct {
		RangeMin    *float64 `yaml:"range_min"`
		RangeMax    *float64 `yaml:"range_max"`
		NudgeFactor *float64 `yaml:"nudge_factor"`
	} `yaml:"mock_behavior"`
	AISettings *struct {
		Temperature *float64 `yaml:"temperature"`
		MaxRetries  *int     `yaml:"max_retries"`
	} `yaml:"ai_settings"`
	Aggregation *struct {
		DecayHalfLifeDays       *float64 `yaml:"decay_half_life_days"`
		ConfidenceGrowthBase    *float64 `yaml:"confidence_growth_base"`
		ConfidenceGrowthPerCall *float64 `yaml:"confidence_growth_per_call"`
		MaxAggregatedConfidence *float64 `yaml:"max_aggregated_confidence"`
	} `yaml:"aggregation"`
	Scoring *struct {
		MinTranscriptWords   *int     `yaml:"min_transcript_words"`
		ShortTranscriptWords *int     `yaml:"short_transcript_words"`
		ShortConfidenceCap   *float64 `yaml:"short_confidence_cap"`
	} `yaml:"scoring"`
}

// LoadGuardrails resolves guardrails from the override file at path merged
// over defaults. An empty path, unreadable file, parse error, or a merged
// result that fails validation all fall back to defaults; this function
// never fails.
func LoadGuardrails(path string, logger *zap.Logger) Guardrails {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := DefaultGuardrails()
	if path == "" {
		return g
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("guardrail override not readable, using defaults",
			zap.String("path", path), zap.Error(err))
		return g
	}

	var ov guardrailOverride
	if err := yaml.Unmarshal(data, &ov); err != nil {
		logger.Warn("guardrail override not parseable, using defaults",
			zap.String("path", path), zap.Error(err))
		return g
	}

	merged := mergeGuardrails(g, ov)
	if err := validateGuardrails(merged); err != nil {
		logger.Warn("guardrail override out of bounds, using defaults",
			zap.String("path", path), zap.Error(err))
		return g
	}
	return merged
}

func mergeGuardrails(base Guardrails, ov guardrailOverride) Guardrails {
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	if ov.TargetClamp != nil {
		setF(&base.TargetClamp.Min, ov.TargetClamp.Min)
		setF(&base.TargetClamp.Max, ov.TargetClamp.Max)
	}
	if ov.ConfidenceBounds != nil {
		setF(&base.ConfidenceBounds.Min, ov.ConfidenceBounds.Min)
		setF(&base.ConfidenceBounds.Max, ov.ConfidenceBounds.Max)
		setF(&base.ConfidenceBounds.Default, ov.ConfidenceBounds.Default)
	}
	if ov.MockBehavior != nil {
		setF(&base.MockBehavior.RangeMin, ov.MockBehavior.RangeMin)
		setF(&base.MockBehavior.RangeMax, ov.MockBehavior.RangeMax)
		setF(&base.MockBehavior.NudgeFactor, ov.MockBehavior.NudgeFactor)
	}
	if ov.AISettings != nil {
		setF(&base.AISettings.Temperature, ov.AISettings.Temperature)
		setI(&base.AISettings.MaxRetries, ov.AISettings.MaxRetries)
	}
	if ov.Aggregation != nil {
		setF(&base.Aggregation.DecayHalfLifeDays, ov.Aggregation.DecayHalfLifeDays)
		setF(&base.Aggregation.ConfidenceGrowthBase, ov.Aggregation.ConfidenceGrowthBase)
		setF(&base.Aggregation.ConfidenceGrowthPerCall, ov.Aggregation.ConfidenceGrowthPerCall)
		setF(&base.Aggregation.MaxAggregatedConfidence, ov.Aggregation.MaxAggregatedConfidence)
	}
	if ov.Scoring != nil {
		setI(&base.Scoring.MinTranscriptWords, ov.Scoring.MinTranscriptWords)
		setI(&base.Scoring.ShortTranscriptWords, ov.Scoring.ShortTranscriptWords)
		setF(&base.Scoring.ShortConfidenceCap, ov.Scoring.ShortConfidenceCap)
	}
	return base
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateGuardrails(g Guardrails) error {
	if err := validate.Struct(g); err != nil {
		return fmt.Errorf("config: guardrails invalid: %w", err)
	}
	return nil
}
