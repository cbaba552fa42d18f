// Package weather fetches daily weather windows for field coordinates.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/croply/fieldreport/internal/domain"
)

// Fetcher retrieves weather data for a coordinate pair.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64) (*domain.WeatherData, error)
}

// Config holds weather client configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	HistoricalDays int
	ForecastDays   int
	HTTPClient     *http.Client
}

// Client fetches daily weather from an Open-Meteo compatible API.
type Client struct {
	baseURL        string
	timeout        time.Duration
	historicalDays int
	forecastDays   int
	httpClient     *http.Client
}

// NewClient creates a weather client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.open-meteo.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HistoricalDays <= 0 {
		cfg.HistoricalDays = 7
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:        cfg.Timeout,
		historicalDays: cfg.HistoricalDays,
		forecastDays:   cfg.ForecastDays,
		httpClient:     cfg.HTTPClient,
	}
}

type dailyResponse struct {
	Daily struct {
		Time             []string  `json:"time"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
		TempMin          []float64 `json:"temperature_2m_min"`
		TempMax          []float64 `json:"temperature_2m_max"`
	} `json:"daily"`
}

// Fetch retrieves the historical and forecast windows for one coordinate pair.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*domain.WeatherData, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("daily", "precipitation_sum,temperature_2m_min,temperature_2m_max")
	params.Set("past_days", strconv.Itoa(c.historicalDays))
	params.Set("forecast_days", strconv.Itoa(c.forecastDays))
	params.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read weather response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("weather status %d: %s", resp.StatusCode, msg)
	}

	var raw dailyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	return c.splitWindows(raw)
}

// splitWindows partitions the daily series into historical and forecast
// windows around today (UTC) and derives advisories from the totals.
func (c *Client) splitWindows(raw dailyResponse) (*domain.WeatherData, error) {
	n := len(raw.Daily.Time)
	if n == 0 || len(raw.Daily.PrecipitationSum) != n || len(raw.Daily.TempMin) != n || len(raw.Daily.TempMax) != n {
		return nil, errors.New("weather response with inconsistent daily series")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	data := &domain.WeatherData{
		Historical: make([]domain.WeatherDay, 0, n),
		Forecast:   make([]domain.WeatherDay, 0, n),
	}

	for i := 0; i < n; i++ {
		date, err := time.Parse("2006-01-02", raw.Daily.Time[i])
		if err != nil {
			return nil, fmt.Errorf("parse weather date %q: %w", raw.Daily.Time[i], err)
		}
		day := domain.WeatherDay{
			Date:       date,
			RainfallMM: raw.Daily.PrecipitationSum[i],
			TempMinC:   raw.Daily.TempMin[i],
			TempMaxC:   raw.Daily.TempMax[i],
		}
		if date.Before(today) {
			data.Historical = append(data.Historical, day)
		} else {
			data.Forecast = append(data.Forecast, day)
		}
	}

	data.Insights = deriveInsights(data)
	return data, nil
}

// Rainfall thresholds (mm over the historical window) for advisories.
const (
	drySpellThreshold  = 5.0
	heavyRainThreshold = 100.0
)

func deriveInsights(data *domain.WeatherData) []domain.WeatherInsight {
	insights := make([]domain.WeatherInsight, 0, 2)

	total := data.RainfallTotal()
	if len(data.Historical) > 0 && total < drySpellThreshold {
		insights = append(insights, domain.WeatherInsight{
			Kind:    "dry_spell",
			Message: fmt.Sprintf("Only %.1f mm of rain fell over the past %d days.", total, len(data.Historical)),
		})
	}
	if total > heavyRainThreshold {
		insights = append(insights, domain.WeatherInsight{
			Kind:    "heavy_rain",
			Message: fmt.Sprintf("%.1f mm of rain fell over the past %d days.", total, len(data.Historical)),
		})
	}

	return insights
}
