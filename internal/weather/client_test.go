package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailySeries(start time.Time, days int, rain float64) (times string, rains, mins, maxs string) {
	for i := 0; i < days; i++ {
		if i > 0 {
			times += ","
			rains += ","
			mins += ","
			maxs += ","
		}
		times += fmt.Sprintf("%q", start.AddDate(0, 0, i).Format("2006-01-02"))
		rains += fmt.Sprintf("%.1f", rain)
		mins += "10.0"
		maxs += "24.0"
	}
	return times, rains, mins, maxs
}

func TestClient_Fetch_SplitsWindows(t *testing.T) {
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	times, rains, mins, maxs := dailySeries(start, 14, 2.0)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("past_days"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"daily":{"time":[%s],"precipitation_sum":[%s],"temperature_2m_min":[%s],"temperature_2m_max":[%s]}}`,
			times, rains, mins, maxs)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	data, err := c.Fetch(context.Background(), -29.12, 26.21)
	require.NoError(t, err)

	assert.Len(t, data.Historical, 7)
	assert.Len(t, data.Forecast, 7)
	assert.InDelta(t, 14.0, data.RainfallTotal(), 0.001)

	min, max := data.TempRange()
	assert.Equal(t, 10.0, min)
	assert.Equal(t, 24.0, max)
}

func TestClient_Fetch_DrySpellInsight(t *testing.T) {
	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	times, rains, mins, maxs := dailySeries(start, 7, 0.2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"daily":{"time":[%s],"precipitation_sum":[%s],"temperature_2m_min":[%s],"temperature_2m_max":[%s]}}`,
			times, rains, mins, maxs)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	data, err := c.Fetch(context.Background(), 0, 0)
	require.NoError(t, err)

	require.Len(t, data.Insights, 1)
	assert.Equal(t, "dry_spell", data.Insights[0].Kind)
}

func TestClient_Fetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Fetch(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weather status 500")
}

func TestClient_Fetch_InconsistentSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"daily":{"time":["2024-06-01"],"precipitation_sum":[],"temperature_2m_min":[],"temperature_2m_max":[]}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Fetch(context.Background(), 0, 0)
	require.Error(t, err)
}

func TestCacheKey_RoundsCoordinates(t *testing.T) {
	assert.Equal(t, "weather:-29.120000:26.210000", cacheKey(-29.12, 26.21))
	assert.Equal(t, cacheKey(1.0000001, 2.0000004), cacheKey(1.0, 2.0))
}
