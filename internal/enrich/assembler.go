// Package enrich gathers the facts needed to write one field report.
package enrich

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/fields"
	"github.com/croply/fieldreport/internal/narrative"
	"github.com/croply/fieldreport/internal/pkg/ctxlog"
	"github.com/croply/fieldreport/internal/weather"
)

// Fallback narrative text used when the generation call fails. Narrative
// failures degrade the report, they never abort the attempt.
const (
	FallbackAnalysis = "Automated analysis is temporarily unavailable for this report. " +
		"Please review the field facts and weather summary below for the current state of the field."
	FallbackRecommendations = "Automated recommendations are temporarily unavailable for this report. " +
		"Continue standard monitoring of the field and consult your agronomist about any risk factors listed above."
)

// ReportContext holds everything gathered for one processing attempt. It is
// owned by that attempt and discarded after delivery.
type ReportContext struct {
	Item    domain.QueueItem
	Details *domain.FieldDetails

	// Best-effort data; nil/empty when the source failed or was skipped.
	SiblingFields []domain.FieldRecord
	FarmStats     *domain.FarmStatistics
	CropStats     []domain.CropStat
	Weather       *domain.WeatherData

	Analysis        string
	Recommendations string
}

// Assembler gathers report facts from the store, the weather gateway and the
// narrative gateway.
type Assembler struct {
	fields    fields.Repository
	weather   weather.Fetcher
	narrative narrative.Generator
}

// NewAssembler creates an assembler.
func NewAssembler(fieldsRepo fields.Repository, weatherFetcher weather.Fetcher, generator narrative.Generator) *Assembler {
	return &Assembler{
		fields:    fieldsRepo,
		weather:   weatherFetcher,
		narrative: generator,
	}
}

// Assemble gathers the full report context for a queue item. Only the
// field+farm+owner join is mandatory; all other sources degrade to nil on
// failure. Weather is not attempted at all when the field has no coordinates.
func (a *Assembler) Assemble(ctx context.Context, item domain.QueueItem) (*ReportContext, error) {
	details, err := a.fields.GetFieldDetails(ctx, item.FieldID)
	if err != nil {
		return nil, fmt.Errorf("resolve field %d: %w", item.FieldID, err)
	}

	rc := &ReportContext{Item: item, Details: details}
	logger := ctxlog.FromContext(ctx)

	// Best-effort sources in parallel. Goroutines report nil so one failing
	// source never cancels the others.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		siblings, err := a.fields.GetFarmFields(gctx, details.Farm.ID)
		if err != nil {
			logger.Warn("sibling fields unavailable", "farm_id", details.Farm.ID, "error", err)
			return nil
		}
		rc.SiblingFields = siblings
		return nil
	})

	g.Go(func() error {
		stats, err := a.fields.GetFarmStatistics(gctx, details.Farm.ID)
		if err != nil {
			logger.Warn("farm statistics unavailable", "farm_id", details.Farm.ID, "error", err)
			return nil
		}
		rc.FarmStats = stats
		return nil
	})

	g.Go(func() error {
		crops, err := a.fields.GetCropAnalysis(gctx, details.Farm.ID)
		if err != nil {
			logger.Warn("crop analysis unavailable", "farm_id", details.Farm.ID, "error", err)
			return nil
		}
		rc.CropStats = crops
		return nil
	})

	if details.Field.HasCoordinates() && a.weather != nil {
		lat, lon := *details.Field.Latitude, *details.Field.Longitude
		g.Go(func() error {
			data, err := a.weather.Fetch(gctx, lat, lon)
			if err != nil {
				logger.Warn("weather unavailable", "field_id", details.Field.ID, "error", err)
				return nil
			}
			rc.Weather = data
			return nil
		})
	}

	_ = g.Wait()

	rc.Analysis = a.generate(ctx,
		BuildAnalysisPrompt(details, rc.FarmStats, rc.Weather, item.TriggerType),
		FallbackAnalysis)
	rc.Recommendations = a.generate(ctx,
		BuildRecommendationsPrompt(details, rc.FarmStats, rc.Weather, item.TriggerType),
		FallbackRecommendations)

	return rc, nil
}

// generate calls the narrative gateway, degrading to fallback text on any
// failure.
func (a *Assembler) generate(ctx context.Context, prompt, fallback string) string {
	if a.narrative == nil {
		return fallback
	}
	text, err := a.narrative.Generate(ctx, prompt)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("narrative generation failed, using fallback", "error", err)
		return fallback
	}
	return text
}
