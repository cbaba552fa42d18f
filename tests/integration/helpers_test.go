//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var emailSeq atomic.Int64

// uniqueEmail returns an email address no other test has used.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@farm.test", prefix, emailSeq.Add(1))
}

// createTestUser inserts a user and schedules its removal.
func createTestUser(t *testing.T, name, email string) int64 {
	t.Helper()

	var id int64
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id`,
		name, email,
	).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

// createTestFarm inserts a farm and schedules its removal.
func createTestFarm(t *testing.T, ownerID int64, name, region string) int64 {
	t.Helper()

	var id int64
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO farms (owner_id, name, region) VALUES ($1, $2, $3) RETURNING id`,
		ownerID, name, region,
	).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(), `DELETE FROM farms WHERE id = $1`, id)
	})
	return id
}

type fieldParams struct {
	name            string
	cropType        string
	variety         string
	sizeHectares    float64
	plantingDate    *time.Time
	latitude        *float64
	longitude       *float64
	pestInfestation string
	hasPestControl  bool
}

type fieldOption func(*fieldParams)

func withCrop(cropType, variety string) fieldOption {
	return func(p *fieldParams) {
		p.cropType = cropType
		p.variety = variety
	}
}

func withCoordinates(lat, lon float64) fieldOption {
	return func(p *fieldParams) {
		p.latitude = &lat
		p.longitude = &lon
	}
}

func withPlantingDate(d time.Time) fieldOption {
	return func(p *fieldParams) {
		p.plantingDate = &d
	}
}

func withPest(level string, hasControl bool) fieldOption {
	return func(p *fieldParams) {
		p.pestInfestation = level
		p.hasPestControl = hasControl
	}
}

func withSize(hectares float64) fieldOption {
	return func(p *fieldParams) {
		p.sizeHectares = hectares
	}
}

// createTestField inserts a field and schedules its removal.
func createTestField(t *testing.T, farmID int64, name string, opts ...fieldOption) int64 {
	t.Helper()

	p := fieldParams{
		name:            name,
		cropType:        "maize",
		sizeHectares:    10,
		pestInfestation: "none",
	}
	for _, opt := range opts {
		opt(&p)
	}

	var id int64
	err := testDB.QueryRow(context.Background(),
		`INSERT INTO fields (farm_id, name, crop_type, variety, size_hectares,
			planting_date, latitude, longitude, pest_infestation, has_pest_control)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		farmID, p.name, p.cropType, p.variety, p.sizeHectares,
		p.plantingDate, p.latitude, p.longitude, p.pestInfestation, p.hasPestControl,
	).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(), `DELETE FROM fields WHERE id = $1`, id)
	})
	return id
}

// seedField creates a user, farm and field in one call and returns the ids
// together with the owner's email address.
func seedField(t *testing.T, opts ...fieldOption) (userID, farmID, fieldID int64, email string) {
	t.Helper()

	email = uniqueEmail("owner")
	userID = createTestUser(t, "P. Botha", email)
	farmID = createTestFarm(t, userID, "Mooivlei", "Free State")
	fieldID = createTestField(t, farmID, "North Block", opts...)
	return userID, farmID, fieldID, email
}

// clearQueue empties the queue and delivery log so a test starts clean.
func clearQueue(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE report_queue, report_log`)
	require.NoError(t, err)
}

type queueItemRow struct {
	Status       string
	RetryCount   int
	ErrorMessage *string
	ProcessedAt  *time.Time
	ClaimedAt    *time.Time
}

// getQueueItem reads the persisted state of a queue item.
func getQueueItem(t *testing.T, id int64) queueItemRow {
	t.Helper()

	var row queueItemRow
	err := testDB.QueryRow(context.Background(),
		`SELECT status, retry_count, error_message, processed_at, claimed_at
		 FROM report_queue WHERE id = $1`, id,
	).Scan(&row.Status, &row.RetryCount, &row.ErrorMessage, &row.ProcessedAt, &row.ClaimedAt)
	require.NoError(t, err)
	return row
}
