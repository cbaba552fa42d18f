// Package postgres provides PostgreSQL implementation of the fields repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/fields"
)

// Repository implements fields.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const fieldColumns = `
	f.id, f.farm_id, f.name, f.crop_type, f.variety, f.size_hectares,
	f.soil_type, f.planting_date, f.growth_stage, f.irrigation_method,
	f.latitude, f.longitude, f.pest_infestation, f.has_pest_control,
	f.disease_symptoms, f.weed_pressure, f.has_backup_power, f.has_fire_guard,
	f.drought_affected, f.flood_affected, f.hail_affected,
	f.prior_season_loss_pct, f.expected_yield_tons, f.created_at, f.updated_at`

func scanField(row pgx.Row, f *domain.FieldRecord) error {
	return row.Scan(
		&f.ID, &f.FarmID, &f.Name, &f.CropType, &f.Variety, &f.SizeHectares,
		&f.SoilType, &f.PlantingDate, &f.GrowthStage, &f.IrrigationMethod,
		&f.Latitude, &f.Longitude, &f.PestInfestation, &f.HasPestControl,
		&f.DiseaseSymptoms, &f.WeedPressure, &f.HasBackupPower, &f.HasFireGuard,
		&f.DroughtAffected, &f.FloodAffected, &f.HailAffected,
		&f.PriorSeasonLossPct, &f.ExpectedYieldTons, &f.CreatedAt, &f.UpdatedAt,
	)
}

// GetFieldDetails resolves the field+farm+owner join for a field.
func (r *Repository) GetFieldDetails(ctx context.Context, fieldID int64) (*domain.FieldDetails, error) {
	query := `
		SELECT` + fieldColumns + `,
			fa.id, fa.name, fa.owner_id, fa.region, fa.created_at,
			u.id, u.name, u.email
		FROM fields f
		JOIN farms fa ON fa.id = f.farm_id
		JOIN users u ON u.id = fa.owner_id
		WHERE f.id = $1
	`

	var d domain.FieldDetails
	row := r.db.QueryRow(ctx, query, fieldID)
	err := row.Scan(
		&d.Field.ID, &d.Field.FarmID, &d.Field.Name, &d.Field.CropType,
		&d.Field.Variety, &d.Field.SizeHectares, &d.Field.SoilType,
		&d.Field.PlantingDate, &d.Field.GrowthStage, &d.Field.IrrigationMethod,
		&d.Field.Latitude, &d.Field.Longitude, &d.Field.PestInfestation,
		&d.Field.HasPestControl, &d.Field.DiseaseSymptoms, &d.Field.WeedPressure,
		&d.Field.HasBackupPower, &d.Field.HasFireGuard, &d.Field.DroughtAffected,
		&d.Field.FloodAffected, &d.Field.HailAffected,
		&d.Field.PriorSeasonLossPct, &d.Field.ExpectedYieldTons,
		&d.Field.CreatedAt, &d.Field.UpdatedAt,
		&d.Farm.ID, &d.Farm.Name, &d.Farm.OwnerID, &d.Farm.Region, &d.Farm.CreatedAt,
		&d.Owner.ID, &d.Owner.Name, &d.Owner.Email,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fields.ErrFieldNotFound
		}
		return nil, fmt.Errorf("get field details: %w", err)
	}
	return &d, nil
}

// GetFarmFields lists all fields of a farm, oldest planting first.
func (r *Repository) GetFarmFields(ctx context.Context, farmID int64) ([]domain.FieldRecord, error) {
	query := `
		SELECT` + fieldColumns + `
		FROM fields f
		WHERE f.farm_id = $1
		ORDER BY f.id
	`
	rows, err := r.db.Query(ctx, query, farmID)
	if err != nil {
		return nil, fmt.Errorf("list farm fields: %w", err)
	}
	defer rows.Close()

	result := make([]domain.FieldRecord, 0)
	for rows.Next() {
		var f domain.FieldRecord
		if err := scanField(rows, &f); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		result = append(result, f)
	}

	return result, rows.Err()
}

// GetFarmStatistics aggregates figures across a farm's fields.
func (r *Repository) GetFarmStatistics(ctx context.Context, farmID int64) (*domain.FarmStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(size_hectares), 0),
			COUNT(*) FILTER (WHERE irrigation_method NOT IN ('', 'none', 'rainfed')),
			COUNT(DISTINCT crop_type),
			COALESCE(AVG(size_hectares), 0)
		FROM fields
		WHERE farm_id = $1
	`
	var s domain.FarmStatistics
	err := r.db.QueryRow(ctx, query, farmID).Scan(
		&s.TotalFields,
		&s.TotalHectares,
		&s.IrrigatedFields,
		&s.DistinctCrops,
		&s.AvgFieldHectares,
	)
	if err != nil {
		return nil, fmt.Errorf("get farm statistics: %w", err)
	}
	return &s, nil
}

// GetCropAnalysis aggregates a farm's fields per crop type.
func (r *Repository) GetCropAnalysis(ctx context.Context, farmID int64) ([]domain.CropStat, error) {
	query := `
		SELECT crop_type, COUNT(*), COALESCE(SUM(size_hectares), 0), COALESCE(AVG(expected_yield_tons), 0)
		FROM fields
		WHERE farm_id = $1
		GROUP BY crop_type
		ORDER BY crop_type
	`
	rows, err := r.db.Query(ctx, query, farmID)
	if err != nil {
		return nil, fmt.Errorf("get crop analysis: %w", err)
	}
	defer rows.Close()

	stats := make([]domain.CropStat, 0)
	for rows.Next() {
		var s domain.CropStat
		if err := rows.Scan(&s.CropType, &s.FieldCount, &s.TotalHectares, &s.AvgExpectedYield); err != nil {
			return nil, fmt.Errorf("scan crop stat: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// ListFieldIDs returns the ids of all fields, oldest first.
func (r *Repository) ListFieldIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM fields ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list field ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan field id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
