package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/fields"
)

type fakeFieldsRepo struct {
	details    *domain.FieldDetails
	detailsErr error
	statsErr   error
	siblings   []domain.FieldRecord
	stats      *domain.FarmStatistics
	crops      []domain.CropStat
}

func (f *fakeFieldsRepo) GetFieldDetails(_ context.Context, _ int64) (*domain.FieldDetails, error) {
	return f.details, f.detailsErr
}

func (f *fakeFieldsRepo) GetFarmFields(_ context.Context, _ int64) ([]domain.FieldRecord, error) {
	return f.siblings, nil
}

func (f *fakeFieldsRepo) GetFarmStatistics(_ context.Context, _ int64) (*domain.FarmStatistics, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeFieldsRepo) GetCropAnalysis(_ context.Context, _ int64) ([]domain.CropStat, error) {
	return f.crops, nil
}

func (f *fakeFieldsRepo) ListFieldIDs(_ context.Context) ([]int64, error) {
	return nil, nil
}

type fakeWeather struct {
	calls atomic.Int32
	data  *domain.WeatherData
	err   error
}

func (f *fakeWeather) Fetch(_ context.Context, _, _ float64) (*domain.WeatherData, error) {
	f.calls.Add(1)
	return f.data, f.err
}

type fakeGenerator struct {
	text string
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

func TestAssemble_FieldJoinIsMandatory(t *testing.T) {
	repo := &fakeFieldsRepo{detailsErr: fields.ErrFieldNotFound}
	a := NewAssembler(repo, nil, nil)

	_, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 99})
	require.Error(t, err)
	assert.ErrorIs(t, err, fields.ErrFieldNotFound)
}

func TestAssemble_SkipsWeatherWithoutCoordinates(t *testing.T) {
	repo := &fakeFieldsRepo{details: testDetails()}
	w := &fakeWeather{data: &domain.WeatherData{}}
	gen := &fakeGenerator{text: "narrative"}
	a := NewAssembler(repo, w, gen)

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)

	assert.Equal(t, int32(0), w.calls.Load())
	assert.Nil(t, rc.Weather)
	assert.Equal(t, "narrative", rc.Analysis)
}

func TestAssemble_FetchesWeatherWithCoordinates(t *testing.T) {
	lat, lon := -33.918861, 18.4233
	details := testDetails()
	details.Field.Latitude = &lat
	details.Field.Longitude = &lon

	w := &fakeWeather{data: &domain.WeatherData{
		Historical: []domain.WeatherDay{{RainfallMM: 2.5}},
	}}
	a := NewAssembler(&fakeFieldsRepo{details: details}, w, &fakeGenerator{text: "ok"})

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)

	assert.Equal(t, int32(1), w.calls.Load())
	require.NotNil(t, rc.Weather)
	assert.InDelta(t, 2.5, rc.Weather.RainfallTotal(), 0.001)
}

func TestAssemble_WeatherFailureDegrades(t *testing.T) {
	lat, lon := -29.0, 26.0
	details := testDetails()
	details.Field.Latitude = &lat
	details.Field.Longitude = &lon

	w := &fakeWeather{err: errors.New("gateway timeout")}
	a := NewAssembler(&fakeFieldsRepo{details: details}, w, &fakeGenerator{text: "ok"})

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)
	assert.Nil(t, rc.Weather)
}

func TestAssemble_StatsFailureDegrades(t *testing.T) {
	repo := &fakeFieldsRepo{
		details:  testDetails(),
		statsErr: errors.New("query timeout"),
		siblings: []domain.FieldRecord{{ID: 42}, {ID: 43}},
	}
	a := NewAssembler(repo, nil, &fakeGenerator{text: "ok"})

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)

	assert.Nil(t, rc.FarmStats)
	assert.Len(t, rc.SiblingFields, 2)
}

func TestAssemble_NarrativeFailureUsesFallbacks(t *testing.T) {
	repo := &fakeFieldsRepo{details: testDetails()}
	gen := &fakeGenerator{err: errors.New("api unavailable")}
	a := NewAssembler(repo, nil, gen)

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)

	assert.Equal(t, FallbackAnalysis, rc.Analysis)
	assert.Equal(t, FallbackRecommendations, rc.Recommendations)
}

func TestAssemble_NoGeneratorUsesFallbacks(t *testing.T) {
	a := NewAssembler(&fakeFieldsRepo{details: testDetails()}, nil, nil)

	rc, err := a.Assemble(context.Background(), domain.QueueItem{ID: 1, FieldID: 42})
	require.NoError(t, err)

	assert.Equal(t, FallbackAnalysis, rc.Analysis)
	assert.Equal(t, FallbackRecommendations, rc.Recommendations)
}
