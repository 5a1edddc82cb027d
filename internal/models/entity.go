// internal/models/entity.go
package models

// EntityLevel classifies a resolved place name.
type EntityLevel string

const (
	LevelCountry EntityLevel = "country"
	LevelState   EntityLevel = "state"
	LevelCity    EntityLevel = "city"
)

// ResolvedEntity is the canonical form of a free-text place name.
// ISO3 is set for countries only.
type ResolvedEntity struct {
	Input     string      `json:"input"`
	Canonical string      `json:"canonical"`
	ISO3      string      `json:"iso3,omitempty"`
	Level     EntityLevel `json:"level"`
}
