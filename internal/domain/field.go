package domain

import "time"

// PestLevel describes observed pest pressure on a field.
type PestLevel string

// Pest levels.
const (
	PestLevelNone     PestLevel = "none"
	PestLevelLow      PestLevel = "low"
	PestLevelModerate PestLevel = "moderate"
	PestLevelHigh     PestLevel = "high"
)

// WeedPressure tiers.
type WeedPressure string

const (
	WeedPressureLow      WeedPressure = "low"
	WeedPressureModerate WeedPressure = "moderate"
	WeedPressureHigh     WeedPressure = "high"
)

// FieldRecord is a single cultivated field as stored.
type FieldRecord struct {
	ID               int64
	FarmID           int64
	Name             string
	CropType         string
	Variety          string
	SizeHectares     float64
	SoilType         string
	PlantingDate     *time.Time
	GrowthStage      string
	IrrigationMethod string
	Latitude         *float64
	Longitude        *float64

	PestInfestation    PestLevel
	HasPestControl     bool
	DiseaseSymptoms    bool
	WeedPressure       WeedPressure
	HasBackupPower     bool
	HasFireGuard       bool
	DroughtAffected    bool
	FloodAffected      bool
	HailAffected       bool
	PriorSeasonLossPct float64

	ExpectedYieldTons float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasCoordinates reports whether the field carries a GPS position.
func (f *FieldRecord) HasCoordinates() bool {
	return f.Latitude != nil && f.Longitude != nil
}

// Farm groups fields under one owner.
type Farm struct {
	ID        int64
	Name      string
	OwnerID   int64
	Region    string
	CreatedAt time.Time
}

// Owner is the farm owner the report is emailed to.
type Owner struct {
	ID    int64
	Name  string
	Email string
}

// FieldDetails is the mandatory field+farm+owner join resolved at process
// time. A queue item whose field no longer resolves fails its attempt.
type FieldDetails struct {
	Field FieldRecord
	Farm  Farm
	Owner Owner
}

// FarmStatistics are aggregate figures across one farm.
type FarmStatistics struct {
	TotalFields      int
	TotalHectares    float64
	IrrigatedFields  int
	DistinctCrops    int
	AvgFieldHectares float64
}

// CropStat aggregates one crop type across a farm.
type CropStat struct {
	CropType         string
	FieldCount       int
	TotalHectares    float64
	AvgExpectedYield float64
}
