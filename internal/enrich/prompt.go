package enrich

import (
	"fmt"
	"strings"

	"github.com/croply/fieldreport/internal/domain"
)

// CropClass is the tagged crop variant used to select instruction blocks.
type CropClass int

// Crop classes. Wheat and barley carry specialized instruction sets; every
// other crop falls through to the generic block.
const (
	CropGeneric CropClass = iota
	CropWheat
	CropBarley
)

// ClassifyCrop maps a stored crop type to its instruction class by exact
// case-insensitive match.
func ClassifyCrop(cropType string) CropClass {
	switch strings.ToLower(strings.TrimSpace(cropType)) {
	case "wheat":
		return CropWheat
	case "barley":
		return CropBarley
	default:
		return CropGeneric
	}
}

var cropInstructions = map[CropClass]string{
	CropWheat: "Assess tillering density, nitrogen timing and rust risk for the current wheat growth stage. " +
		"Comment on expected protein content if the season supports it.",
	CropBarley: "Assess canopy development, net blotch pressure and lodging risk for the current barley growth stage. " +
		"Note malting-grade implications where relevant.",
}

// cropInstruction returns the instruction block for a crop. The generic arm
// is mandatory so unknown crops always produce a usable instruction.
func cropInstruction(cropType string) string {
	class := ClassifyCrop(cropType)
	if block, ok := cropInstructions[class]; ok {
		return block
	}
	return fmt.Sprintf("Assess the general condition and stage-appropriate management of this %s crop.",
		strings.ToLower(strings.TrimSpace(cropType)))
}

// IrrigationClass partitions irrigation methods for rainfall framing.
type IrrigationClass int

// Irrigation classes.
const (
	IrrigationUnspecified IrrigationClass = iota
	IrrigationRainfed
	IrrigationPresent
)

// ClassifyIrrigation maps an irrigation method to its class. Fields with
// irrigation infrastructure must not receive rainfall-dependency framing.
func ClassifyIrrigation(method string) IrrigationClass {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "":
		return IrrigationUnspecified
	case "rainfed", "none", "dryland":
		return IrrigationRainfed
	default:
		return IrrigationPresent
	}
}

func irrigationInstruction(method string) string {
	switch ClassifyIrrigation(method) {
	case IrrigationRainfed:
		return "This field is rainfed: weigh rainfall adequacy heavily in the assessment."
	case IrrigationPresent:
		return "This field has irrigation infrastructure: do not frame the assessment around rainfall dependency."
	default:
		return "Irrigation is unspecified: mention moisture availability without assuming rainfall dependency."
	}
}

const notCaptured = "not captured"

// riskFactorList enumerates the risk factors set on a field, comma-joined.
// Returns an empty string when no factor is present.
func riskFactorList(f *domain.FieldRecord) string {
	factors := make([]string, 0, 6)

	if f.PestInfestation != "" && f.PestInfestation != domain.PestLevelNone {
		factors = append(factors, fmt.Sprintf("pest pressure (%s)", f.PestInfestation))
	}
	if f.DiseaseSymptoms {
		factors = append(factors, "disease symptoms")
	}
	if f.DroughtAffected {
		factors = append(factors, "drought damage")
	}
	if f.FloodAffected {
		factors = append(factors, "flood damage")
	}
	if f.HailAffected {
		factors = append(factors, "hail damage")
	}
	if f.PriorSeasonLossPct > 0 {
		factors = append(factors, fmt.Sprintf("prior-season loss of %.0f%%", f.PriorSeasonLossPct))
	}

	return strings.Join(factors, ", ")
}

// buildFacts renders the deterministic fact block shared by both prompts.
// Given identical inputs the output is byte-identical.
func buildFacts(d *domain.FieldDetails, stats *domain.FarmStatistics, weather *domain.WeatherData) string {
	f := &d.Field
	var b strings.Builder

	fmt.Fprintf(&b, "Field facts:\n")

	crop := strings.ToLower(strings.TrimSpace(f.CropType))
	if f.Variety != "" {
		fmt.Fprintf(&b, "- Crop: %s (variety %s)\n", crop, f.Variety)
	} else {
		fmt.Fprintf(&b, "- Crop: %s\n", crop)
	}
	fmt.Fprintf(&b, "- Field size: %.1f ha\n", f.SizeHectares)

	if f.SoilType != "" {
		fmt.Fprintf(&b, "- Soil type: %s\n", f.SoilType)
	} else {
		fmt.Fprintf(&b, "- Soil type: %s\n", notCaptured)
	}

	if f.PlantingDate != nil {
		fmt.Fprintf(&b, "- Planting date: %s\n", f.PlantingDate.Format("2006-01-02"))
	} else {
		fmt.Fprintf(&b, "- Planting date: %s\n", notCaptured)
	}

	if f.GrowthStage != "" {
		fmt.Fprintf(&b, "- Growth stage: %s\n", f.GrowthStage)
	} else {
		fmt.Fprintf(&b, "- Growth stage: %s\n", notCaptured)
	}

	if f.IrrigationMethod != "" {
		fmt.Fprintf(&b, "- Irrigation: %s\n", f.IrrigationMethod)
	} else {
		fmt.Fprintf(&b, "- Irrigation: %s\n", notCaptured)
	}

	if factors := riskFactorList(f); factors != "" {
		fmt.Fprintf(&b, "\nRisk factors: %s\n", factors)
	}

	if weather != nil {
		min, max := weather.TempRange()
		fmt.Fprintf(&b, "\nWeather (last %d days): total rainfall %.1f mm, temperatures %.1f to %.1f C\n",
			len(weather.Historical), weather.RainfallTotal(), min, max)
	}

	if stats != nil && stats.TotalFields > 1 {
		fmt.Fprintf(&b, "\nFarm context: %d fields totalling %.1f ha across %d crop types\n",
			stats.TotalFields, stats.TotalHectares, stats.DistinctCrops)
	}

	return b.String()
}

var triggerFraming = map[domain.TriggerType]string{
	domain.TriggerNewField:          "a newly registered field",
	domain.TriggerFieldUpdate:       "updated field data",
	domain.TriggerGrowthStageChange: "a growth stage change",
	domain.TriggerLossEvent:         "a reported loss event",
	domain.TriggerWeatherAlert:      "a weather alert",
	domain.TriggerPestDisease:       "a pest or disease observation",
	domain.TriggerScheduled:         "a scheduled review",
}

func framing(trigger domain.TriggerType) string {
	if f, ok := triggerFraming[trigger]; ok {
		return f
	}
	return "a field data change"
}

// BuildAnalysisPrompt composes the analysis prompt for one enriched field.
func BuildAnalysisPrompt(d *domain.FieldDetails, stats *domain.FarmStatistics, weather *domain.WeatherData, trigger domain.TriggerType) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an agronomy analyst. Write the analysis section of a field report prompted by %s.\n\n", framing(trigger))
	b.WriteString(buildFacts(d, stats, weather))
	b.WriteString("\nInstructions: ")
	b.WriteString(cropInstruction(d.Field.CropType))
	b.WriteString(" ")
	b.WriteString(irrigationInstruction(d.Field.IrrigationMethod))
	b.WriteString(" Use plain language a farm owner can act on. Two to three short paragraphs.")

	return b.String()
}

// BuildRecommendationsPrompt composes the recommendations prompt for one
// enriched field.
func BuildRecommendationsPrompt(d *domain.FieldDetails, stats *domain.FarmStatistics, weather *domain.WeatherData, trigger domain.TriggerType) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an agronomy advisor. Write the recommendations section of a field report prompted by %s.\n\n", framing(trigger))
	b.WriteString(buildFacts(d, stats, weather))
	b.WriteString("\nInstructions: ")
	b.WriteString(cropInstruction(d.Field.CropType))
	b.WriteString(" ")
	b.WriteString(irrigationInstruction(d.Field.IrrigationMethod))
	b.WriteString(" Give a numbered list of three to five concrete actions ordered by urgency.")

	return b.String()
}
