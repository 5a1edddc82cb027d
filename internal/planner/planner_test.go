package planner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/models"
)

func newTestPlanner() *Planner {
	return New(100, 1000)
}

func TestPlan_Valid(t *testing.T) {
	pl := newTestPlanner()

	plan, err := pl.Plan("emissions",
		[]string{"sector", "year", "emissions_mt"},
		map[string]interface{}{"country_iso3": "DEU", "year": 2023},
		nil, 50)
	require.NoError(t, err)

	assert.Equal(t, "emissions", plan.Table)
	assert.Equal(t, []string{"emissions_mt", "sector", "year"}, plan.Columns)
	assert.Equal(t, 50, plan.Limit)
	require.Len(t, plan.Predicates, 2)
	assert.Equal(t, "country_iso3", plan.Predicates[0].Column)
	assert.Equal(t, "year", plan.Predicates[1].Column)
	assert.NotEmpty(t, plan.Fingerprint())
}

func TestPlan_DefaultsAndColumnExpansion(t *testing.T) {
	pl := newTestPlanner()

	plan, err := pl.Plan("emissions", nil, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, plan.Limit)
	assert.Len(t, plan.Columns, len(Tables["emissions"].Columns))
}

func TestPlan_Invalid(t *testing.T) {
	pl := newTestPlanner()

	tests := []struct {
		name    string
		table   string
		columns []string
		where   map[string]interface{}
		limit   int
	}{
		{name: "unknown table", table: "users", limit: 10},
		{name: "limit over ceiling", table: "emissions", limit: 1001},
		{name: "negative limit", table: "emissions", limit: -1},
		{name: "undeclared select column", table: "emissions", columns: []string{"password"}, limit: 10},
		{name: "unfilterable where key", table: "emissions", where: map[string]interface{}{"id": "x"}, limit: 10},
		{
			name:  "injection attempt in column name",
			table: "emissions",
			where: map[string]interface{}{"year; DROP TABLE emissions": 2023},
			limit: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pl.Plan(tt.table, tt.columns, tt.where, nil, tt.limit)
			require.Error(t, err)
			assert.True(t, errors.Is(err, gwerrors.ErrInvalidPlan))
		})
	}
}

func TestPlan_FingerprintOrderIndependent(t *testing.T) {
	pl := newTestPlanner()

	qualityPreds := []models.Predicate{
		{Column: "quality_score", Op: models.OpGte, Value: 70.0},
	}

	a, err := pl.Plan("emissions",
		[]string{"year", "sector"},
		map[string]interface{}{"country_iso3": "DEU", "sector": "transport"},
		qualityPreds, 100)
	require.NoError(t, err)

	b, err := pl.Plan("emissions",
		[]string{"sector", "year"},
		map[string]interface{}{"sector": "transport", "country_iso3": "DEU"},
		qualityPreds, 100)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Columns, b.Columns)
	assert.Equal(t, a.Predicates, b.Predicates)
}

func TestPlan_FingerprintInListOrderIndependent(t *testing.T) {
	pl := newTestPlanner()

	a, err := pl.Plan("emissions", []string{"year"},
		map[string]interface{}{"sector": []interface{}{"energy", "transport"}}, nil, 100)
	require.NoError(t, err)

	b, err := pl.Plan("emissions", []string{"year"},
		map[string]interface{}{"sector": []interface{}{"transport", "energy"}}, nil, 100)
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Predicates, b.Predicates)
}

func TestPlan_FingerprintDistinguishesPlans(t *testing.T) {
	pl := newTestPlanner()

	a, err := pl.Plan("emissions", []string{"year"}, map[string]interface{}{"year": 2023}, nil, 100)
	require.NoError(t, err)
	b, err := pl.Plan("emissions", []string{"year"}, map[string]interface{}{"year": 2022}, nil, 100)
	require.NoError(t, err)
	c, err := pl.Plan("emissions", []string{"year"}, map[string]interface{}{"year": 2023}, nil, 101)
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestPlan_FingerprintStableAcrossRuns(t *testing.T) {
	pl := newTestPlanner()

	where := map[string]interface{}{
		"country_iso3": "USA",
		"sector":       "energy",
		"year":         2023,
	}

	first, err := pl.Plan("emissions", nil, where, nil, 100)
	require.NoError(t, err)
	// Map iteration order varies run to run; the fingerprint must not.
	for i := 0; i < 50; i++ {
		again, err := pl.Plan("emissions", nil, where, nil, 100)
		require.NoError(t, err)
		assert.Equal(t, first.Fingerprint(), again.Fingerprint())
	}
}
