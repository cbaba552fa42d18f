// Package fields provides read-only access to field, farm and owner data.
package fields

import (
	"context"
	"errors"

	"github.com/croply/fieldreport/internal/domain"
)

// ErrFieldNotFound is returned when the field+farm+owner join does not resolve.
var ErrFieldNotFound = errors.New("field not found")

// Repository defines the interface for field data access.
type Repository interface {
	// GetFieldDetails resolves the field+farm+owner join for a field.
	// Returns ErrFieldNotFound when any leg of the join is missing.
	GetFieldDetails(ctx context.Context, fieldID int64) (*domain.FieldDetails, error)

	// GetFarmFields lists all fields of a farm.
	GetFarmFields(ctx context.Context, farmID int64) ([]domain.FieldRecord, error)

	// GetFarmStatistics aggregates figures across a farm's fields.
	GetFarmStatistics(ctx context.Context, farmID int64) (*domain.FarmStatistics, error)

	// GetCropAnalysis aggregates a farm's fields per crop type.
	GetCropAnalysis(ctx context.Context, farmID int64) ([]domain.CropStat, error)

	// ListFieldIDs returns the ids of all fields, oldest first. Used by the
	// scheduled-report enqueuer.
	ListFieldIDs(ctx context.Context) ([]int64, error)
}
