package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/logger"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Timeout:     2 * time.Second,
		MaxTokens:   512,
		Temperature: 0.2,
		MaxRPS:      100,
	}
}

func TestClient_Synthesize(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":       "Transport emissions in Germany fell 4% in 2023.",
			"confidence": 0.9,
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	out, err := c.Synthesize(context.Background(), &Input{
		Question: "How did German transport emissions change in 2023?",
		Rows:     []map[string]interface{}{{"sector": "transport", "emissions_mt": 148.2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Transport emissions in Germany fell 4% in 2023.", out.Text)
	assert.Equal(t, 0.9, out.Confidence)

	assert.Equal(t, "Bearer test-key", gotAuth)
	prompt, _ := gotBody["prompt"].(string)
	assert.Contains(t, prompt, "How did German transport emissions change in 2023?")
	assert.Contains(t, prompt, "transport")
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "ok", "confidence": 0.8})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	out, err := c.Synthesize(context.Background(), &Input{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_PersistentFailureIsQueryFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	_, err := c.Synthesize(context.Background(), &Input{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrQueryFailed))
}

func TestClient_DeadlineBecomesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "late", "confidence": 0.8})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, logger.NewTestLogger(t))

	_, err := c.Synthesize(context.Background(), &Input{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gwerrors.ErrTimeout))
}

func TestClient_EmptyTextGetsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"text": "   ", "confidence": 1.5})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	out, err := c.Synthesize(context.Background(), &Input{Question: "q"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Text)
	assert.Equal(t, 0.1, out.Confidence)
}
