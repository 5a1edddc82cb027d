// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emissions-gateway/internal/breaker"
	"emissions-gateway/internal/cache"
	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
	"emissions-gateway/internal/gateway"
	"emissions-gateway/internal/inference"
	"emissions-gateway/internal/models"
	"emissions-gateway/internal/planner"
	"emissions-gateway/internal/ratelimit"
	"emissions-gateway/internal/resolver"
	"emissions-gateway/internal/warehouse"
)

// fixture assembles the full pipeline over a mocked warehouse and a stub
// inference endpoint.
type fixture struct {
	gateway *gateway.Gateway
	mock    sqlmock.Sqlmock
}

func newFixture(t *testing.T, maxRequests int) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	inferenceSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":       "Emissions held steady year over year.",
			"confidence": 0.85,
		})
	}))
	t.Cleanup(inferenceSrv.Close)

	log := logger.NewTestLogger(t)

	gw := gateway.New(gateway.Options{
		Resolver:         resolver.New(),
		Planner:          planner.New(100, 1000),
		Executor:         warehouse.NewPostgresExecutor(db, 5*time.Second, log),
		Cache:            cache.NewMemoryStore(100),
		Limiter:          ratelimit.New(maxRequests, time.Minute),
		WarehouseBreaker: breaker.New("warehouse", 5, 30*time.Second),
		InferenceBreaker: breaker.New("inference", 5, 30*time.Second),
		Synthesizer: inference.NewClient(&inference.Config{
			BaseURL:     inferenceSrv.URL,
			Timeout:     5 * time.Second,
			MaxTokens:   512,
			Temperature: 0.2,
			MaxRPS:      100,
		}, log),
		CacheTTL: time.Minute,
		Logger:   log,
	})

	return &fixture{gateway: gw, mock: mock}
}

func (f *fixture) expectEmissionsQuery(rows *sqlmock.Rows) {
	f.mock.ExpectQuery(`SELECT .+ FROM emissions`).WillReturnRows(rows)
}

func emissionsRows(values ...[]interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"country_iso3", "sector", "year", "emissions_mt"})
	for _, v := range values {
		driverValues := make([]driver.Value, len(v))
		for i := range v {
			driverValues[i] = v[i]
		}
		rows.AddRow(driverValues...)
	}
	return rows
}

func TestEndToEnd_ResolveAliasAndQuery(t *testing.T) {
	f := newFixture(t, 100)

	f.expectEmissionsQuery(emissionsRows(
		[]interface{}{"USA", "energy", 2023, 4890.2},
	))

	resp, err := f.gateway.Query(context.Background(), &models.ToolRequest{
		ClientID: "client-a",
		Country:  "United States",
		Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
		Year:     2023,
	})
	require.NoError(t, err)

	require.Len(t, resp.FiltersApplied.Entities, 1)
	assert.Equal(t, "United States of America", resp.FiltersApplied.Entities[0].Canonical)
	assert.Equal(t, "USA", resp.FiltersApplied.Entities[0].ISO3)
	assert.Equal(t, "USA", resp.FiltersApplied.Where["country_iso3"])

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "USA", resp.Data[0]["country_iso3"])
}

func TestEndToEnd_QualityFilteredGermanTransport(t *testing.T) {
	f := newFixture(t, 100)

	f.expectEmissionsQuery(emissionsRows(
		[]interface{}{"DEU", "transport", 2023, 148.2},
	))

	high := models.ConfidenceHigh
	resp, err := f.gateway.Query(context.Background(), &models.ToolRequest{
		ClientID: "client-a",
		Country:  "Deutschland",
		Sector:   "transport",
		Year:     2023,
		Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
		Quality:  &models.QualitySpec{MinConfidence: &high},
	})
	require.NoError(t, err)

	require.Len(t, resp.Data, 1)
	assert.Equal(t, "DEU", resp.Data[0]["country_iso3"])
	require.NotNil(t, resp.FiltersApplied.Quality)
	assert.Equal(t, models.ConfidenceHigh, *resp.FiltersApplied.Quality.MinConfidence)
}

func TestEndToEnd_RepeatQueryHitsCache(t *testing.T) {
	f := newFixture(t, 100)

	// One warehouse expectation only: the repeat must come from the cache.
	f.expectEmissionsQuery(emissionsRows(
		[]interface{}{"FRA", "energy", 2022, 301.7},
	))

	req := &models.ToolRequest{
		ClientID: "client-a",
		Country:  "France",
		Year:     2022,
		Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
	}

	first, err := f.gateway.Query(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := f.gateway.Query(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Data, second.Data)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEndToEnd_RateLimitKicksInWithRetryAfter(t *testing.T) {
	f := newFixture(t, 100)

	for i := 0; i < 100; i++ {
		// Distinct years dodge the cache so every request runs the pipeline.
		f.expectEmissionsQuery(emissionsRows(
			[]interface{}{"JPN", "industry", 1990 + i, 100.0},
		))
		_, err := f.gateway.Query(context.Background(), &models.ToolRequest{
			ClientID: "client-a",
			Country:  "Japan",
			Year:     1990 + i,
			Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
		})
		require.NoError(t, err, fmt.Sprintf("request %d within budget", i+1))
	}

	_, err := f.gateway.Query(context.Background(), &models.ToolRequest{
		ClientID: "client-a",
		Country:  "Japan",
		Year:     2090,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrRateLimitExceeded))

	var gwErr *gwerrors.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Greater(t, gwErr.RetryAfter, time.Duration(0))

	// Other clients are unaffected.
	f.expectEmissionsQuery(emissionsRows(
		[]interface{}{"JPN", "industry", 2095, 100.0},
	))
	_, err = f.gateway.Query(context.Background(), &models.ToolRequest{
		ClientID: "client-b",
		Country:  "Japan",
		Year:     2095,
		Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
	})
	assert.NoError(t, err)
}

func TestEndToEnd_SummarizeQuestion(t *testing.T) {
	f := newFixture(t, 100)

	f.expectEmissionsQuery(emissionsRows(
		[]interface{}{"DEU", "transport", 2023, 148.2},
	))

	resp, err := f.gateway.Summarize(context.Background(), &models.ToolRequest{
		ClientID: "client-a",
		Country:  "Germany",
		Sector:   "transport",
		Year:     2023,
		Columns:  []string{"country_iso3", "sector", "year", "emissions_mt"},
		Question: "How did transport emissions develop?",
	})
	require.NoError(t, err)

	assert.Equal(t, "Emissions held steady year over year.", resp.Synthesis)
	require.Len(t, resp.Data, 1)
	assert.NotEmpty(t, resp.TraceID)
}
