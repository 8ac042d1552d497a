package specs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSpecsHaveNoDanglingRequires(t *testing.T) {
	assert.Empty(t, Validate(DefaultSpecs()))
}

func TestValidateFlagsMissingPrerequisite(t *testing.T) {
	all := []RuleSpec{
		{ID: "B_WARMTH", Kind: KindBehavior, ParameterID: "warmth", Enabled: false},
		{ID: "A_WARMTH", Kind: KindAdapt, ParameterID: "warmth", Requires: []string{"B_WARMTH"}, Enabled: true},
	}
	warnings := Validate(all)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "A_WARMTH")
	assert.Contains(t, warnings[0], "B_WARMTH")
}

func TestValidateIgnoresDisabledSpecs(t *testing.T) {
	all := []RuleSpec{
		{ID: "A", Kind: KindAdapt, Requires: []string{"MISSING"}, Enabled: false},
	}
	assert.Empty(t, Validate(all))
}

func TestOfKindFiltersDisabled(t *testing.T) {
	all := []RuleSpec{
		{ID: "M1", Kind: KindMeasure, ParameterID: "a", Enabled: true},
		{ID: "M2", Kind: KindMeasure, ParameterID: "b", Enabled: false},
		{ID: "B1", Kind: KindBehavior, ParameterID: "c", Enabled: true},
	}
	got := OfKind(all, KindMeasure)
	require.Len(t, got, 1)
	assert.Equal(t, "M1", got[0].ID)
}

func TestTraitMappingCoversAllMeasureSpecs(t *testing.T) {
	m := TraitMapping(DefaultSpecs())
	for _, s := range OfKind(DefaultSpecs(), KindMeasure) {
		assert.NotEmpty(t, m[s.ParameterID], "parameter %s has no trait mapping", s.ParameterID)
	}
	assert.Equal(t, TraitOpenness, m["curiosity"])
}

func TestParameterIDsOrderStable(t *testing.T) {
	ids := ParameterIDs(DefaultSpecs(), KindBehavior)
	assert.Equal(t, []string{"warmth", "formality", "directness", "verbosity", "proactivity"}, ids)
}
