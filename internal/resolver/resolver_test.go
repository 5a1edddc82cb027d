package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/models"
)

func TestResolve_ExactMatch(t *testing.T) {
	r := New()

	tests := []struct {
		name          string
		input         string
		wantCanonical string
		wantISO3      string
		wantLevel     models.EntityLevel
	}{
		{
			name:          "iso3 code",
			input:         "USA",
			wantCanonical: "United States of America",
			wantISO3:      "USA",
			wantLevel:     models.LevelCountry,
		},
		{
			name:          "lowercase alias",
			input:         "deutschland",
			wantCanonical: "Germany",
			wantISO3:      "DEU",
			wantLevel:     models.LevelCountry,
		},
		{
			name:          "diacritic folded city",
			input:         "MÜNCHEN",
			wantCanonical: "Munich",
			wantLevel:     models.LevelCity,
		},
		{
			name:          "state alias",
			input:         "bayern",
			wantCanonical: "Bavaria",
			wantLevel:     models.LevelState,
		},
		{
			name:          "extra whitespace",
			input:         "  united   states  ",
			wantCanonical: "United States of America",
			wantISO3:      "USA",
			wantLevel:     models.LevelCountry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.input, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCanonical, got.Canonical)
			assert.Equal(t, tt.wantISO3, got.ISO3)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.input, got.Input)
		})
	}
}

func TestResolve_FuzzyMatch(t *testing.T) {
	r := New()

	// One edit away from "germany" (7 runes): similarity 6/7 ≈ 0.857.
	got, err := r.Resolve("Germny", nil)
	require.NoError(t, err)
	assert.Equal(t, "Germany", got.Canonical)
	assert.Equal(t, "DEU", got.ISO3)

	// Missing letter: "calfornia" vs "california" is 9/10 similarity.
	got, err = r.Resolve("Calfornia", nil)
	require.NoError(t, err)
	assert.Equal(t, "California", got.Canonical)
	assert.Equal(t, models.LevelState, got.Level)
}

func TestResolve_RejectsBelowThreshold(t *testing.T) {
	r := New()

	_, err := r.Resolve("Atlantis", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrEntityNotFound))

	_, err = r.Resolve("", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrEntityNotFound))
}

func TestResolve_LevelPriority(t *testing.T) {
	r := New()

	// Country table is consulted before state and city when no expected
	// level is given.
	got, err := r.Resolve("CA", nil)
	require.NoError(t, err)
	assert.Equal(t, "Canada", got.Canonical)
	assert.Equal(t, models.LevelCountry, got.Level)
}

func TestResolve_ExpectedLevel(t *testing.T) {
	r := New()

	lvl := models.LevelCity
	got, err := r.Resolve("NYC", &lvl)
	require.NoError(t, err)
	assert.Equal(t, "New York City", got.Canonical)

	// Expected level restricts the search: a country alias is not found
	// when the caller asked for a city.
	lvl = models.LevelCity
	_, err = r.Resolve("DEU", &lvl)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrEntityNotFound))
}

func TestResolve_Deterministic(t *testing.T) {
	r := New()

	first, err := r.Resolve("Germny", nil)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := r.Resolve("Germny", nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "sao paulo", Fold("São Paulo"))
	assert.Equal(t, "osterreich", Fold("Österreich"))
	assert.Equal(t, "zurich", Fold("  Zürich "))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("berlin", "berlin"))
	assert.InDelta(t, 0.857, similarity("germny", "germany"), 0.001)
	assert.Less(t, similarity("atlantis", "argentina"), similarityThreshold)
}
