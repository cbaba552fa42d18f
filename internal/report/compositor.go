// Package report composes gathered field data into a single render-ready
// document: formatted numbers and dates, narrative HTML fragments and the
// derived risk assessment.
package report

import (
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/enrich"
)

// TemplateVariant selects the visual template a document renders with.
type TemplateVariant string

// Template variants. Alert-class triggers use the alert variant.
const (
	VariantStandard TemplateVariant = "standard"
	VariantAlert    TemplateVariant = "alert"
)

// FieldView is the formatted field section of a document.
type FieldView struct {
	ID               int64
	Name             string
	CropType         string
	Variety          string
	SizeHectares     float64
	SoilType         string
	PlantingDate     *string
	GrowthStage      string
	IrrigationMethod string
	Latitude         *float64
	Longitude        *float64
	ExpectedYield    float64
}

// FarmView is the formatted farm section of a document.
type FarmView struct {
	Name             string
	Region           string
	PlantingEarliest *string
	PlantingLatest   *string
}

// FarmStatsView is the formatted farm aggregate section.
type FarmStatsView struct {
	TotalFields      int
	TotalHectares    float64
	IrrigatedFields  int
	DistinctCrops    int
	AvgFieldHectares float64
}

// CropStatView is one formatted crop aggregate row.
type CropStatView struct {
	CropType      string
	FieldCount    int
	TotalHectares float64
	AvgYield      float64
}

// WeatherDayView is one formatted weather row.
type WeatherDayView struct {
	Date       string
	RainfallMM float64
	TempMinC   float64
	TempMaxC   float64
}

// WeatherView is the formatted weather section of a document.
type WeatherView struct {
	RainfallTotal float64
	TempMin       float64
	TempMax       float64
	Historical    []WeatherDayView
	Forecast      []WeatherDayView
	Insights      []string
}

// Document is the flat render-ready structure handed to delivery.
type Document struct {
	Item        domain.QueueItem
	Variant     TemplateVariant
	ReportType  string
	GeneratedAt time.Time

	RecipientName  string
	RecipientEmail string
	RecipientID    int64

	Field     FieldView
	Farm      FarmView
	Siblings  []FieldView
	FarmStats *FarmStatsView
	CropStats []CropStatView
	Weather   *WeatherView
	Risk      RiskAssessment

	AnalysisHTML        template.HTML
	RecommendationsHTML template.HTML
}

// Compositor builds documents from report contexts.
type Compositor struct {
	now func() time.Time
}

// NewCompositor creates a compositor.
func NewCompositor() *Compositor {
	return &Compositor{now: time.Now}
}

var reportTypeLabels = map[domain.TriggerType]string{
	domain.TriggerNewField:          "New field",
	domain.TriggerFieldUpdate:       "Field update",
	domain.TriggerGrowthStageChange: "Growth stage",
	domain.TriggerLossEvent:         "Loss event",
	domain.TriggerWeatherAlert:      "Weather alert",
	domain.TriggerPestDisease:       "Pest and disease",
	domain.TriggerScheduled:         "Scheduled field",
}

// reportType returns the human report type label for a trigger.
func reportType(trigger domain.TriggerType) string {
	if label, ok := reportTypeLabels[trigger]; ok {
		return label
	}
	return "Field"
}

// variantFor selects the template variant for a trigger.
func variantFor(trigger domain.TriggerType) TemplateVariant {
	switch trigger {
	case domain.TriggerLossEvent, domain.TriggerWeatherAlert, domain.TriggerPestDisease:
		return VariantAlert
	default:
		return VariantStandard
	}
}

// Compose turns an assembled report context into a render-ready document.
func (c *Compositor) Compose(rc *enrich.ReportContext) (*Document, error) {
	if rc == nil || rc.Details == nil {
		return nil, fmt.Errorf("compose: report context without field details")
	}

	details := rc.Details

	doc := &Document{
		Item:        rc.Item,
		Variant:     variantFor(rc.Item.TriggerType),
		ReportType:  reportType(rc.Item.TriggerType),
		GeneratedAt: c.now().UTC(),

		RecipientName:  details.Owner.Name,
		RecipientEmail: details.Owner.Email,
		RecipientID:    details.Owner.ID,

		Field: fieldView(&details.Field),
		Farm: FarmView{
			Name:   details.Farm.Name,
			Region: details.Farm.Region,
		},
		Risk: AssessRisk(&details.Field, rc.Weather),

		AnalysisHTML:        RenderNarrativeHTML(rc.Analysis),
		RecommendationsHTML: RenderNarrativeHTML(rc.Recommendations),
	}

	for _, sibling := range rc.SiblingFields {
		if sibling.ID == details.Field.ID {
			continue
		}
		doc.Siblings = append(doc.Siblings, fieldView(&sibling))
	}

	if earliest, latest, ok := plantingRange(rc.SiblingFields); ok {
		e, l := formatLongDate(earliest), formatLongDate(latest)
		doc.Farm.PlantingEarliest = &e
		doc.Farm.PlantingLatest = &l
	}

	if rc.FarmStats != nil {
		doc.FarmStats = &FarmStatsView{
			TotalFields:      rc.FarmStats.TotalFields,
			TotalHectares:    round1(rc.FarmStats.TotalHectares),
			IrrigatedFields:  rc.FarmStats.IrrigatedFields,
			DistinctCrops:    rc.FarmStats.DistinctCrops,
			AvgFieldHectares: round1(rc.FarmStats.AvgFieldHectares),
		}
	}

	for _, stat := range rc.CropStats {
		doc.CropStats = append(doc.CropStats, CropStatView{
			CropType:      stat.CropType,
			FieldCount:    stat.FieldCount,
			TotalHectares: round1(stat.TotalHectares),
			AvgYield:      round1(stat.AvgExpectedYield),
		})
	}

	if rc.Weather != nil {
		doc.Weather = weatherView(rc.Weather)
	}

	return doc, nil
}

func fieldView(f *domain.FieldRecord) FieldView {
	view := FieldView{
		ID:               f.ID,
		Name:             f.Name,
		CropType:         f.CropType,
		Variety:          f.Variety,
		SizeHectares:     round1(f.SizeHectares),
		SoilType:         f.SoilType,
		GrowthStage:      f.GrowthStage,
		IrrigationMethod: f.IrrigationMethod,
		ExpectedYield:    round1(f.ExpectedYieldTons),
	}

	if f.PlantingDate != nil {
		formatted := formatLongDate(*f.PlantingDate)
		view.PlantingDate = &formatted
	}
	if f.Latitude != nil {
		lat := round6(*f.Latitude)
		view.Latitude = &lat
	}
	if f.Longitude != nil {
		lon := round6(*f.Longitude)
		view.Longitude = &lon
	}

	return view
}

func weatherView(w *domain.WeatherData) *WeatherView {
	tempMin, tempMax := w.TempRange()
	view := &WeatherView{
		RainfallTotal: round1(w.RainfallTotal()),
		TempMin:       round1(tempMin),
		TempMax:       round1(tempMax),
	}

	for _, day := range w.Historical {
		view.Historical = append(view.Historical, weatherDayView(day))
	}
	for _, day := range w.Forecast {
		view.Forecast = append(view.Forecast, weatherDayView(day))
	}
	for _, insight := range w.Insights {
		view.Insights = append(view.Insights, insight.Message)
	}

	return view
}

func weatherDayView(day domain.WeatherDay) WeatherDayView {
	return WeatherDayView{
		Date:       day.Date.Format("2 Jan"),
		RainfallMM: round1(day.RainfallMM),
		TempMinC:   round1(day.TempMinC),
		TempMaxC:   round1(day.TempMaxC),
	}
}

// plantingRange finds the earliest and latest planting dates across a farm's
// fields. Returns false when fewer than two fields carry a date.
func plantingRange(fields []domain.FieldRecord) (earliest, latest time.Time, ok bool) {
	var dated int
	for _, f := range fields {
		if f.PlantingDate == nil {
			continue
		}
		d := *f.PlantingDate
		if dated == 0 {
			earliest, latest = d, d
		} else {
			if d.Before(earliest) {
				earliest = d
			}
			if d.After(latest) {
				latest = d
			}
		}
		dated++
	}
	return earliest, latest, dated >= 2
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// formatLongDate renders a date as e.g. "June 5th, 2024".
func formatLongDate(t time.Time) string {
	return fmt.Sprintf("%s %d%s, %d", t.Month().String(), t.Day(), ordinalSuffix(t.Day()), t.Year())
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
