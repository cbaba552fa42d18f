//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/croply/fieldreport/internal/testutil"
)

func TestHealthEndpoints(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = client.GET("/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestVersionEndpoint(t *testing.T) {
	client := newTestClient(t)

	resp, err := client.GET("/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.NotEmpty(t, body.Version)
}

func TestFieldEventWebhook_EnqueuesItem(t *testing.T) {
	clearQueue(t)
	_, _, fieldID, _ := seedField(t)
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/webhooks/field-events", map[string]interface{}{
		"field_id":     fieldID,
		"trigger_type": "loss_event",
		"priority":     "high",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Data struct {
			ID          int64  `json:"id"`
			FieldID     int64  `json:"field_id"`
			TriggerType string `json:"trigger_type"`
			Priority    string `json:"priority"`
			Status      string `json:"status"`
			MaxRetries  int    `json:"max_retries"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)

	assert.NotZero(t, body.Data.ID)
	assert.Equal(t, fieldID, body.Data.FieldID)
	assert.Equal(t, "loss_event", body.Data.TriggerType)
	assert.Equal(t, "high", body.Data.Priority)
	assert.Equal(t, "pending", body.Data.Status)
	assert.Equal(t, 3, body.Data.MaxRetries)

	// Still pending: the webhook only persists, processing is asynchronous.
	row := getQueueItem(t, body.Data.ID)
	assert.Equal(t, "pending", row.Status)
}

func TestFieldEventWebhook_DefaultsPriorityToNormal(t *testing.T) {
	clearQueue(t)
	_, _, fieldID, _ := seedField(t)
	client := newTestClient(t)

	resp, err := client.POST("/api/v1/webhooks/field-events", map[string]interface{}{
		"field_id":     fieldID,
		"trigger_type": "field_update",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Data struct {
			Priority string `json:"priority"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "normal", body.Data.Priority)
}

func TestFieldEventWebhook_RejectsInvalidInput(t *testing.T) {
	client := newTestClientWithoutValidation()

	cases := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"unknown trigger", map[string]interface{}{"field_id": 1, "trigger_type": "meteor_strike"}},
		{"unknown priority", map[string]interface{}{"field_id": 1, "trigger_type": "loss_event", "priority": "urgent"}},
		{"missing field id", map[string]interface{}{"trigger_type": "loss_event"}},
		{"zero field id", map[string]interface{}{"field_id": 0, "trigger_type": "loss_event"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := client.POST("/api/v1/webhooks/field-events", tc.payload)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestQueueStatsEndpoint(t *testing.T) {
	clearQueue(t)
	_, _, fieldID, _ := seedField(t)
	client := newTestClient(t)

	for i := 0; i < 2; i++ {
		resp, err := client.POST("/api/v1/webhooks/field-events", map[string]interface{}{
			"field_id":     fieldID,
			"trigger_type": "field_update",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp, err := client.GET("/api/v1/queue/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Pending   int `json:"pending"`
			Completed int `json:"completed"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, 2, body.Data.Pending)
}

func TestProcessEndpoint_EmptyQueue(t *testing.T) {
	clearQueue(t)
	client := newTestClient(t)

	// Safe to call repeatedly on an empty queue.
	for i := 0; i < 3; i++ {
		resp, err := client.POST("/api/v1/queue/process", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Data struct {
				Processed int `json:"processed"`
				Failed    int `json:"failed"`
			} `json:"data"`
		}
		testutil.DecodeJSON(t, resp, &body)
		assert.Zero(t, body.Data.Processed)
		assert.Zero(t, body.Data.Failed)
	}
}
