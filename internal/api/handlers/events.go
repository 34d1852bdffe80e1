package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HSPiira/timeline-sub001/internal/events"
	"github.com/HSPiira/timeline-sub001/internal/models"
)

// ── Event Handlers ────────────────────────────────────────────────────────────

type AppendEventRequest struct {
	EventType     string         `json:"event_type"     validate:"required"`
	SchemaVersion int            `json:"schema_version" validate:"required,min=1"`
	EventTime     time.Time      `json:"event_time"     validate:"required"`
	Payload       map[string]any `json:"payload"        validate:"required"`
}

func (r AppendEventRequest) toInput(tenantID, subjectID string) events.AppendInput {
	return events.AppendInput{
		TenantID:      tenantID,
		SubjectID:     subjectID,
		EventType:     r.EventType,
		SchemaVersion: r.SchemaVersion,
		EventTime:     r.EventTime,
		Payload:       r.Payload,
	}
}

func (h *Handlers) AppendEvent(c echo.Context) error {
	var req AppendEventRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}

	ev, err := h.events.Append(
		c.Request().Context(),
		req.toInput(c.Param("tenant_id"), c.Param("subject_id")),
	)
	if err != nil {
		return domainErr(c, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

type AppendEventBatchRequest struct {
	Events []AppendEventRequest `json:"events" validate:"required,min=1"`
}

type AppendEventBatchResponse struct {
	Appended int             `json:"appended"`
	Events   []*models.Event `json:"events"`
	Error    *batchError     `json:"error,omitempty"`
}

type batchError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// AppendEventBatch appends events in request order, each chained on the one
// before it. On failure the response reports what was appended and where the
// batch stopped; appended events are not rolled back.
func (h *Handlers) AppendEventBatch(c echo.Context) error {
	var req AppendEventBatchRequest
	if err := c.Bind(&req); err != nil {
		return apiErr(c, http.StatusBadRequest, "invalid request body")
	}
	if len(req.Events) == 0 {
		return apiErr(c, http.StatusBadRequest, "events must not be empty")
	}

	tenantID := c.Param("tenant_id")
	subjectID := c.Param("subject_id")
	inputs := make([]events.AppendInput, len(req.Events))
	for i, r := range req.Events {
		inputs[i] = r.toInput(tenantID, subjectID)
	}

	appended, err := h.events.AppendBatch(c.Request().Context(), inputs)
	resp := AppendEventBatchResponse{Appended: len(appended), Events: appended}
	if err != nil {
		resp.Error = &batchError{Index: len(appended), Message: err.Error()}
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handlers) ListSubjectEvents(c echo.Context) error {
	evs, err := h.reader.ListEventsForSubject(
		c.Request().Context(), c.Param("tenant_id"), c.Param("subject_id"),
	)
	if err != nil {
		return domainErr(c, err)
	}
	if evs == nil {
		evs = []*models.Event{}
	}
	return c.JSON(http.StatusOK, evs)
}
