package domain

import "time"

// QueueStatus represents the lifecycle status of a report queue item.
type QueueStatus string

// Queue statuses. Completed, error and cancelled are terminal.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusError      QueueStatus = "error"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// TriggerType is the domain event that enqueued a report.
type TriggerType string

// Trigger types.
const (
	TriggerNewField          TriggerType = "new_field"
	TriggerFieldUpdate       TriggerType = "field_update"
	TriggerGrowthStageChange TriggerType = "growth_stage_change"
	TriggerLossEvent         TriggerType = "loss_event"
	TriggerWeatherAlert      TriggerType = "weather_alert"
	TriggerPestDisease       TriggerType = "pest_disease"
	TriggerScheduled         TriggerType = "scheduled"
)

// IsValid reports whether t is a known trigger type.
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerNewField, TriggerFieldUpdate, TriggerGrowthStageChange,
		TriggerLossEvent, TriggerWeatherAlert, TriggerPestDisease, TriggerScheduled:
		return true
	}
	return false
}

// Priority determines claim ordering within the queue.
type Priority string

// Priorities, lowest to highest.
const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Rank returns the numeric claim-ordering rank of a priority. Higher ranks
// are claimed first; unknown values sort with normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// QueueItem is one persisted unit of report-generation work.
type QueueItem struct {
	ID           int64       `json:"id"`
	FieldID      int64       `json:"field_id"`
	TriggerType  TriggerType `json:"trigger_type"`
	Priority     Priority    `json:"priority"`
	Status       QueueStatus `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	CreatedAt    time.Time   `json:"created_at"`
	ProcessedAt  *time.Time  `json:"processed_at,omitempty"`
}

// QueueStats holds per-status queue depth counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
	Cancelled  int `json:"cancelled"`
}
