package queue

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/croply/fieldreport/internal/domain"
	"github.com/croply/fieldreport/internal/pkg/httputil"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrItemNotFound, Status: http.StatusNotFound, Message: "queue item not found"},
	{Error: ErrInvalidTrigger, Status: http.StatusBadRequest, Message: "unknown trigger type"},
	{Error: ErrInvalidPriority, Status: http.StatusBadRequest, Message: "unknown priority"},
}

// Handler handles HTTP requests for the report queue.
type Handler struct {
	repo        Repository
	coordinator *Coordinator
	validator   *validator.Validate

	defaultMaxRetries int
}

// NewHandler creates a new queue handler.
func NewHandler(repo Repository, coordinator *Coordinator, defaultMaxRetries int) *Handler {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 3
	}
	return &Handler{
		repo:              repo,
		coordinator:       coordinator,
		validator:         validator.New(),
		defaultMaxRetries: defaultMaxRetries,
	}
}

// RegisterRoutes registers queue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Post("/process", h.ProcessBatch)
	})

	r.Post("/webhooks/field-events", h.FieldEvent)
}

// GetStats handles GET /queue/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetQueueStats(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	RecordQueueStats(stats)
	httputil.Success(w, http.StatusOK, stats)
}

// ProcessBatch handles POST /queue/process. Manually triggers one polling
// cycle; safe to call anytime, an empty queue returns zero counts.
func (h *Handler) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coordinator.ProcessPendingBatch(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, summary)
}

// FieldEventRequest represents an inbound field change notification.
type FieldEventRequest struct {
	FieldID     int64  `json:"field_id" validate:"required,gt=0"`
	TriggerType string `json:"trigger_type" validate:"required"`
	Priority    string `json:"priority"`
}

// FieldEvent handles POST /webhooks/field-events. The event is persisted to
// the queue and the request returns immediately; processing happens on the
// next polling cycle.
func (h *Handler) FieldEvent(w http.ResponseWriter, r *http.Request) {
	var req FieldEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	trigger := domain.TriggerType(req.TriggerType)
	if !trigger.IsValid() {
		httputil.HandleError(r.Context(), w, ErrInvalidTrigger, errorMappings)
		return
	}

	priority := domain.PriorityNormal
	if req.Priority != "" {
		priority = domain.Priority(req.Priority)
		if !priority.IsValid() {
			httputil.HandleError(r.Context(), w, ErrInvalidPriority, errorMappings)
			return
		}
	}

	item, err := h.repo.Enqueue(r.Context(), EnqueueRequest{
		FieldID:     req.FieldID,
		TriggerType: trigger,
		Priority:    priority,
		MaxRetries:  h.defaultMaxRetries,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusAccepted, item)
}
