// Package aggregate implements time-decayed weighted averaging, the numeric
// primitive behind caller-level personality and target aggregation. Sample
// weight halves every half-life; confidence of an aggregate grows linearly
// with sample count up to a cap.
package aggregate

import (
	"math"
	"time"
)

// Sample is one historical measurement contributing to an aggregate.
type Sample struct {
	Value      float64
	Confidence float64
	At         time.Time
}

// Weight returns the decayed weight of a sample observed ageDays ago:
// confidence * exp(-ln2 * ageDays / halfLifeDays).
func Weight(confidence, ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return confidence
	}
	return confidence * math.Exp(-math.Ln2*ageDays/halfLifeDays)
}

// DecayedMean computes the confidence- and age-weighted mean of samples as of
// now. Samples dated in the future are treated as age zero. Returns 0 when
// total weight is 0 (no samples, or all confidences zero).
func DecayedMean(samples []Sample, halfLifeDays float64, now time.Time) float64 {
	var sum, total float64
	for _, s := range samples {
		age := now.Sub(s.At).Hours() / 24
		if age < 0 {
			age = 0
		}
		w := Weight(s.Confidence, age, halfLifeDays)
		sum += s.Value * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// GrownConfidence derives the confidence of an aggregate from its sample
// count: min(max, base + n*perSample). This is deliberately independent of
// the per-sample confidences, which already shaped the mean itself.
func GrownConfidence(n int, base, perSample, max float64) float64 {
	c := base + float64(n)*perSample
	if c > max {
		return max
	}
	return c
}
