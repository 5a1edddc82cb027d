package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emissions-gateway/internal/models"
)

func f64(v float64) *float64 { return &v }

func tier(t models.ConfidenceTier) *models.ConfidenceTier { return &t }

func TestBuild_EmptySpec(t *testing.T) {
	preds, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, preds)

	preds, err = Build(&models.QualitySpec{})
	require.NoError(t, err)
	assert.Empty(t, preds)
}

func TestBuild_OnePredicatePerActiveField(t *testing.T) {
	spec := &models.QualitySpec{
		MinScore:         f64(70),
		MinConfidence:    tier(models.ConfidenceMedium),
		MaxUncertainty:   f64(15),
		ExcludeSynthetic: true,
	}

	preds, err := Build(spec)
	require.NoError(t, err)
	require.Len(t, preds, 4)

	assert.Equal(t, models.Predicate{Column: ColumnQualityScore, Op: models.OpGte, Value: 70.0}, preds[0])
	assert.Equal(t, models.Predicate{
		Column: ColumnConfidenceLevel,
		Op:     models.OpIn,
		Values: []interface{}{"MEDIUM", "HIGH"},
	}, preds[1])
	assert.Equal(t, models.Predicate{Column: ColumnUncertaintyPct, Op: models.OpLte, Value: 15.0}, preds[2])
	assert.Equal(t, models.Predicate{Column: ColumnIsSynthetic, Op: models.OpEq, Value: false}, preds[3])
}

func TestBuild_ConfidenceTierSets(t *testing.T) {
	tests := []struct {
		min  models.ConfidenceTier
		want []interface{}
	}{
		{models.ConfidenceLow, []interface{}{"LOW", "MEDIUM", "HIGH"}},
		{models.ConfidenceMedium, []interface{}{"MEDIUM", "HIGH"}},
		{models.ConfidenceHigh, []interface{}{"HIGH"}},
	}

	for _, tt := range tests {
		t.Run(tt.min.String(), func(t *testing.T) {
			preds, err := Build(&models.QualitySpec{MinConfidence: tier(tt.min)})
			require.NoError(t, err)
			require.Len(t, preds, 1)
			assert.Equal(t, tt.want, preds[0].Values)
		})
	}
}

// Tightening any one bound adds or narrows predicates but never removes one,
// so the filtered set can only shrink.
func TestBuild_Monotonic(t *testing.T) {
	base := &models.QualitySpec{MinScore: f64(50)}
	tightened := &models.QualitySpec{MinScore: f64(80), ExcludeSynthetic: true}

	basePreds, err := Build(base)
	require.NoError(t, err)
	tightPreds, err := Build(tightened)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(tightPreds), len(basePreds))
	assert.Equal(t, 80.0, tightPreds[0].Value)
}

func TestBuild_RejectsOutOfRange(t *testing.T) {
	_, err := Build(&models.QualitySpec{MinScore: f64(101)})
	require.Error(t, err)

	_, err = Build(&models.QualitySpec{MaxUncertainty: f64(-1)})
	require.Error(t, err)
}

func TestBuild_ValuesAreBoundNotInterpolated(t *testing.T) {
	// A hostile string in the spec ends up as a bound value, never as text.
	spec := &models.QualitySpec{MinConfidence: tier(models.ConfidenceHigh)}
	preds, err := Build(spec)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Nil(t, preds[0].Value)
	assert.Equal(t, []interface{}{"HIGH"}, preds[0].Values)
}
