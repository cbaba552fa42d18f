package report

import (
	"github.com/croply/fieldreport/internal/domain"
)

// Risk scoring constants. The score starts at a neutral baseline and each
// present factor adds its weight; the sum is capped at the maximum.
const (
	riskBaseline = 50
	riskMax      = 100

	// Rainfall tiers over the historical window.
	droughtRainfallMM   = 5.0
	excessiveRainfallMM = 100.0
)

// Risk categories.
const (
	RiskVeryHigh = "Very High"
	RiskHigh     = "High"
	RiskMedium   = "Medium"
	RiskLow      = "Low"
	RiskVeryLow  = "Very Low"
)

// RiskFactor is one scored contribution with its point value.
type RiskFactor struct {
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// RiskAssessment is the derived risk score for one field.
type RiskAssessment struct {
	Score    int          `json:"score"`
	Category string       `json:"category"`
	Factors  []RiskFactor `json:"factors"`
}

// AssessRisk computes the deterministic risk score for a field. Identical
// inputs always yield identical scores and factor lists.
func AssessRisk(f *domain.FieldRecord, w *domain.WeatherData) RiskAssessment {
	factors := make([]RiskFactor, 0, 8)
	add := func(label string, points int) {
		factors = append(factors, RiskFactor{Label: label, Points: points})
	}

	pestPresent := f.PestInfestation != "" && f.PestInfestation != domain.PestLevelNone
	if pestPresent {
		add("Pest infestation present", 15)
		if !f.HasPestControl {
			add("No pest control in place", 10)
		}
	}

	if f.DiseaseSymptoms {
		add("Disease symptoms observed", 10)
	}

	switch f.WeedPressure {
	case domain.WeedPressureModerate:
		add("Moderate weed pressure", 5)
	case domain.WeedPressureHigh:
		add("High weed pressure", 10)
	}

	if !f.HasBackupPower {
		add("No backup power", 10)
	}
	if !f.HasFireGuard {
		add("No fire guard", 10)
	}

	switch {
	case f.PriorSeasonLossPct >= 50:
		add("Prior-season loss of 50% or more", 15)
	case f.PriorSeasonLossPct >= 25:
		add("Prior-season loss of 25% or more", 10)
	case f.PriorSeasonLossPct >= 10:
		add("Prior-season loss of 10% or more", 5)
	}

	if w != nil && len(w.Historical) > 0 {
		switch total := w.RainfallTotal(); {
		case total < droughtRainfallMM:
			add("Drought conditions (very low recent rainfall)", 10)
		case total > excessiveRainfallMM:
			add("Excessive recent rainfall", 10)
		}
	}

	score := riskBaseline
	for _, factor := range factors {
		score += factor.Points
	}
	if score > riskMax {
		score = riskMax
	}

	return RiskAssessment{
		Score:    score,
		Category: riskCategory(score),
		Factors:  factors,
	}
}

func riskCategory(score int) string {
	switch {
	case score >= 80:
		return RiskVeryHigh
	case score >= 60:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	case score >= 20:
		return RiskLow
	default:
		return RiskVeryLow
	}
}
