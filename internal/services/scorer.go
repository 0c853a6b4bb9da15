package services

import (
	"fmt"
	"math"

	"github.com/nocvalidator/backend/internal/logger"
)

// Confidence a mandatory field needs for the approximation shortcut.
const mandatoryHighConfidence = 0.70

// BreakdownRow is the per-field scoring detail shown to reviewers. One row is
// emitted for every tracked field whether or not it carries weight; Weighted
// marks rows that affect the score.
type BreakdownRow struct {
	Label           string  `json:"label"`
	Name            string  `json:"name"`
	Value           string  `json:"value"`
	ConfidencePct   float64 `json:"confidencePct"`
	WeightPct       float64 `json:"weightPct"`
	ContributionPct float64 `json:"contributionPct"`
	Weighted        bool    `json:"weighted"`
}

// ScoringConfig carries the externally supplied scoring inputs: the tracked
// field set, the weight table, the mandatory fields for approximation mode
// and optional display labels.
type ScoringConfig struct {
	TrackedFields   []string
	Weights         map[string]float64
	MandatoryFields []string
	FriendlyLabels  map[string]string
}

// Label returns the friendly label for a field, falling back to its name.
func (c ScoringConfig) Label(field string) string {
	if label, ok := c.FriendlyLabels[field]; ok && label != "" {
		return label
	}
	return field
}

// ComputeConfidence computes the weighted confidence score over the tracked
// fields and a breakdown row per field. Fields outside the weight table never
// contribute, even with nonzero confidence.
//
// With useApproximation set, the weighted score is overridden: all mandatory
// fields present with confidence ≥ 0.70 forces 1.0, any mandatory field
// missing forces 0.0, and anything in between keeps the weighted sum.
//
// A weight table whose values do not sum to 1.0 (±0.001) yields a warning in
// the returned slice; it never blocks scoring.
func ComputeConfidence(fields ExtractionResult, cfg ScoringConfig, useApproximation bool) (float64, []BreakdownRow, []string) {
	var warnings []string

	var weightSum float64
	for _, w := range cfg.Weights {
		weightSum += w
	}
	if math.Abs(weightSum-1.0) > 0.001 {
		msg := fmt.Sprintf("field weights sum to %.3f, not 1.0; scores may be miscalibrated", weightSum)
		warnings = append(warnings, msg)
		logger.Warn(msg, map[string]interface{}{"weightSum": weightSum})
	}

	var total float64
	breakdown := make([]BreakdownRow, 0, len(cfg.TrackedFields))

	for _, name := range cfg.TrackedFields {
		field := fields[name]
		confidence := field.Confidence
		if confidence < 0 {
			confidence = 0
		}

		value := field.Value
		if value == "" {
			value = "—"
		}

		weight, weighted := cfg.Weights[name]
		contribution := confidence * weight
		if weighted {
			total += contribution
		}

		breakdown = append(breakdown, BreakdownRow{
			Label:           cfg.Label(name),
			Name:            name,
			Value:           value,
			ConfidencePct:   roundPct(confidence),
			WeightPct:       roundPct(weight),
			ContributionPct: roundPct(contribution),
			Weighted:        weighted,
		})
	}

	if useApproximation {
		allPresent := true
		allHighConf := true
		for _, name := range cfg.MandatoryFields {
			field, ok := fields[name]
			if !ok || field.Value == "" {
				allPresent = false
			}
			if field.Confidence < mandatoryHighConfidence {
				allHighConf = false
			}
		}

		switch {
		case allPresent && allHighConf:
			total = 1.0
		case !allPresent:
			total = 0.0
		}
		// Mandatory present but below the confidence bar: keep the weighted sum.
	}

	total = math.Round(total*1000) / 1000
	if total > 1 {
		total = 1
	}
	if total < 0 {
		total = 0
	}

	return total, breakdown, warnings
}

func roundPct(v float64) float64 {
	return math.Round(v*1000) / 10
}
