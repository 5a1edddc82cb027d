// internal/models/quality.go
package models

import "fmt"

// ConfidenceTier is the ordered trustworthiness classification of a record.
type ConfidenceTier int

const (
	ConfidenceLow ConfidenceTier = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (t ConfidenceTier) String() string {
	switch t {
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceHigh:
		return "HIGH"
	}
	return fmt.Sprintf("ConfidenceTier(%d)", int(t))
}

// ParseConfidenceTier accepts the wire form (case-insensitive LOW/MEDIUM/HIGH).
func ParseConfidenceTier(s string) (ConfidenceTier, error) {
	switch s {
	case "LOW", "low", "Low":
		return ConfidenceLow, nil
	case "MEDIUM", "medium", "Medium":
		return ConfidenceMedium, nil
	case "HIGH", "high", "High":
		return ConfidenceHigh, nil
	}
	return ConfidenceLow, fmt.Errorf("unknown confidence tier %q", s)
}

// AtOrAbove lists the tiers admitted by a minimum tier, in fixed order.
// Minimum HIGH admits HIGH only; minimum MEDIUM admits MEDIUM and HIGH.
func (t ConfidenceTier) AtOrAbove() []ConfidenceTier {
	tiers := make([]ConfidenceTier, 0, 3)
	for tier := t; tier <= ConfidenceHigh; tier++ {
		tiers = append(tiers, tier)
	}
	return tiers
}

// QualitySpec expresses the caller's minimum data-quality requirements.
// All predicates are monotonic: tightening any field can only shrink the
// result set.
type QualitySpec struct {
	MinScore         *float64        `json:"minScore,omitempty"`       // 0-100
	MinConfidence    *ConfidenceTier `json:"minConfidence,omitempty"`
	MaxUncertainty   *float64        `json:"maxUncertainty,omitempty"` // percent
	ExcludeSynthetic bool            `json:"excludeSynthetic"`
}

// Validate bounds-checks the spec before predicate construction.
func (q *QualitySpec) Validate() error {
	if q.MinScore != nil && (*q.MinScore < 0 || *q.MinScore > 100) {
		return fmt.Errorf("minScore must be within [0, 100], got %v", *q.MinScore)
	}
	if q.MinConfidence != nil && (*q.MinConfidence < ConfidenceLow || *q.MinConfidence > ConfidenceHigh) {
		return fmt.Errorf("minConfidence out of range")
	}
	if q.MaxUncertainty != nil && *q.MaxUncertainty < 0 {
		return fmt.Errorf("maxUncertainty must be non-negative, got %v", *q.MaxUncertainty)
	}
	return nil
}

// IsEmpty reports whether no quality filter is active.
func (q *QualitySpec) IsEmpty() bool {
	return q == nil || (q.MinScore == nil && q.MinConfidence == nil && q.MaxUncertainty == nil && !q.ExcludeSynthetic)
}
