package config

import (
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Stage names form a closed vocabulary; the pipeline dispatches on them via
// an exhaustive lookup table.
const (
	StageExtract    = "EXTRACT"
	StageScoreAgent = "SCORE_AGENT"
	StageAggregate  = "AGGREGATE"
	StageReward     = "REWARD"
	StageAdapt      = "ADAPT"
	StageSupervise  = "SUPERVISE"
	StageCompose    = "COMPOSE"
)

// Stage describes one unit of pipeline work. Immutable once loaded for a run.
type Stage struct {
	Name             string   `yaml:"name"`
	Order            int      `yaml:"order"`
	OutputCategories []string `yaml:"output_categories"`
	RequiresMode     string   `yaml:"requires_mode,omitempty"`
}

// DefaultStages returns the built-in stage list in execution order.
func DefaultStages() []Stage {
	return []Stage{
		{Name: StageExtract, Order: 10, OutputCategories: []string{"scores", "facts", "deltas"}},
		{Name: StageScoreAgent, Order: 20, OutputCategories: []string{"measurements"}},
		{Name: StageAggregate, Order: 30, OutputCategories: []string{"personality", "aggregates"}},
		{Name: StageReward, Order: 40, OutputCategories: []string{"reward"}},
		{Name: StageAdapt, Order: 50, OutputCategories: []string{"targets", "goals"}},
		{Name: StageSupervise, Order: 60, OutputCategories: []string{"clamps", "caller_targets"}},
		{Name: StageCompose, Order: 70, OutputCategories: []string{"prompt"}, RequiresMode: "prompt"},
	}
}

type stageOverride struct {
	Stages []Stage `yaml:"stages"`
}

// LoadStages resolves the ordered stage list from the override file at path,
// falling back to the default list. Ordering is by Order ascending with ties
// broken by file position; the sort is stable for that reason. Never fails.
func LoadStages(path string, logger *zap.Logger) []Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	stages := DefaultStages()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var ov stageOverride
			if err := yaml.Unmarshal(data, &ov); err != nil {
				logger.Warn("stage override not parseable, using defaults",
					zap.String("path", path), zap.Error(err))
			} else if len(ov.Stages) > 0 {
				stages = ov.Stages
			}
		} else {
			logger.Debug("stage override not readable, using defaults",
				zap.String("path", path), zap.Error(err))
		}
	}

	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})
	return stages
}
