package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/queue"
)

// ── Verification Handlers ─────────────────────────────────────────────────────

// VerifySubjectChain recomputes and checks one subject's full chain. A
// tampered chain is a 200 with is_chain_valid=false; only unreadable or
// malformed stored data is an error.
func (h *Handlers) VerifySubjectChain(c echo.Context) error {
	res, err := h.verifier.VerifySubjectChain(
		c.Request().Context(), c.Param("tenant_id"), c.Param("subject_id"),
	)
	if err != nil {
		return domainErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// VerifyTenantChains sweeps every subject chain in the tenant's recent
// events. The optional limit query parameter caps how many events are
// examined.
func (h *Handlers) VerifyTenantChains(c echo.Context) error {
	limit := h.auditLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apiErr(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	res, err := h.verifier.VerifyTenantChains(c.Request().Context(), c.Param("tenant_id"), limit)
	if err != nil {
		return domainErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// EnqueueChainAudit schedules a background sweep of the tenant's chains
// instead of verifying inline. 202 means accepted, not verified.
func (h *Handlers) EnqueueChainAudit(c echo.Context) error {
	tenantID := c.Param("tenant_id")
	task, err := queue.NewChainAuditTask(queue.ChainAuditPayload{
		TenantID: tenantID,
		Limit:    h.auditLimit,
	})
	if err != nil {
		return domainErr(c, err)
	}
	info, err := h.queue.EnqueueContext(c.Request().Context(), task)
	if err != nil {
		c.Logger().Errorf("enqueue chain audit: %v", err)
		return apiErr(c, http.StatusInternalServerError, "failed to enqueue audit")
	}

	h.log.Info("chain audit enqueued",
		zap.String("tenant_id", tenantID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return c.JSON(http.StatusAccepted, map[string]string{
		"task_id": info.ID,
		"state":   "queued",
	})
}
