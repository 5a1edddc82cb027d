// internal/planner/schema.go
package planner

// TableSchema declares the selectable and filterable columns of one logical
// warehouse table. Identifiers embedded in generated query text come from
// this registry only, never from caller input.
type TableSchema struct {
	Name       string
	Columns    []string
	Filterable []string
}

func (s TableSchema) hasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (s TableSchema) isFilterable(name string) bool {
	for _, c := range s.Filterable {
		if c == name {
			return true
		}
	}
	return false
}

// Tables is the allow-list of logical tables the gateway may query.
var Tables = map[string]TableSchema{
	"emissions": {
		Name: "emissions",
		Columns: []string{
			"id", "country_iso3", "country_name", "state", "city",
			"sector", "subsector", "gas", "year",
			"emissions_mt", "source_count",
			"quality_score", "confidence_level", "uncertainty_pct", "is_synthetic",
		},
		Filterable: []string{
			"country_iso3", "country_name", "state", "city",
			"sector", "subsector", "gas", "year",
			"quality_score", "confidence_level", "uncertainty_pct", "is_synthetic",
		},
	},
	"emission_sources": {
		Name: "emission_sources",
		Columns: []string{
			"id", "name", "country_iso3", "state", "city",
			"sector", "source_type", "year", "emissions_mt",
			"latitude", "longitude",
			"quality_score", "confidence_level", "uncertainty_pct", "is_synthetic",
		},
		Filterable: []string{
			"country_iso3", "state", "city", "sector", "source_type", "year",
			"quality_score", "confidence_level", "uncertainty_pct", "is_synthetic",
		},
	},
}
