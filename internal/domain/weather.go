package domain

import "time"

// WeatherDay is one day of observed or forecast weather.
type WeatherDay struct {
	Date       time.Time
	RainfallMM float64
	TempMinC   float64
	TempMaxC   float64
}

// WeatherInsight is a provider-supplied advisory derived from the data.
type WeatherInsight struct {
	Kind    string
	Message string
}

// WeatherData bundles the historical window, the forward-looking window and
// any provider insights for one coordinate pair.
type WeatherData struct {
	Historical []WeatherDay
	Forecast   []WeatherDay
	Insights   []WeatherInsight
}

// RainfallTotal sums rainfall over the historical window.
func (w *WeatherData) RainfallTotal() float64 {
	var total float64
	for _, d := range w.Historical {
		total += d.RainfallMM
	}
	return total
}

// TempRange returns the min and max temperature across the historical window.
// Returns zeros when the window is empty.
func (w *WeatherData) TempRange() (min, max float64) {
	if len(w.Historical) == 0 {
		return 0, 0
	}
	min, max = w.Historical[0].TempMinC, w.Historical[0].TempMaxC
	for _, d := range w.Historical[1:] {
		if d.TempMinC < min {
			min = d.TempMinC
		}
		if d.TempMaxC > max {
			max = d.TempMaxC
		}
	}
	return min, max
}
