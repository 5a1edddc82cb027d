// Package quality turns a QualitySpec into parameterized predicate fragments.
//
// Every emitted predicate binds its value as a parameter; no literal is ever
// concatenated into query text. The fragments are monotonic: tightening any
// spec field can only shrink the matched result set.
package quality

import (
	"fmt"

	"emissions-gateway/internal/models"
)

// Warehouse columns the quality predicates bind to.
const (
	ColumnQualityScore    = "quality_score"
	ColumnConfidenceLevel = "confidence_level"
	ColumnUncertaintyPct  = "uncertainty_pct"
	ColumnIsSynthetic     = "is_synthetic"
)

// Build emits one predicate per active filter field of the spec. A nil or
// empty spec produces no predicates.
func Build(spec *models.QualitySpec) ([]models.Predicate, error) {
	if spec.IsEmpty() {
		return nil, nil
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quality spec: %w", err)
	}

	var preds []models.Predicate

	if spec.MinScore != nil {
		preds = append(preds, models.Predicate{
			Column: ColumnQualityScore,
			Op:     models.OpGte,
			Value:  *spec.MinScore,
		})
	}

	if spec.MinConfidence != nil {
		tiers := spec.MinConfidence.AtOrAbove()
		values := make([]interface{}, len(tiers))
		for i, tier := range tiers {
			values[i] = tier.String()
		}
		preds = append(preds, models.Predicate{
			Column: ColumnConfidenceLevel,
			Op:     models.OpIn,
			Values: values,
		})
	}

	if spec.MaxUncertainty != nil {
		preds = append(preds, models.Predicate{
			Column: ColumnUncertaintyPct,
			Op:     models.OpLte,
			Value:  *spec.MaxUncertainty,
		})
	}

	if spec.ExcludeSynthetic {
		preds = append(preds, models.Predicate{
			Column: ColumnIsSynthetic,
			Op:     models.OpEq,
			Value:  false,
		})
	}

	return preds, nil
}
