package recordingsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TriggerRequest is the optional body for POST /admin/recordings/sync.
type TriggerRequest struct {
	From string `json:"from" form:"from"`
	To   string `json:"to" form:"to"`
}

// TriggerResponse is returned by the on-demand trigger on success and failure.
type TriggerResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Synced  int         `json:"synced"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Errors  []FileError `json:"errors,omitempty"`
}

// DefaultManualTimeout bounds an on-demand pass when no timeout is configured.
const DefaultManualTimeout = 15 * time.Minute

// Handler exposes the on-demand sync trigger.
type Handler struct {
	runner     *Runner
	windowDays int
	filter     Filter
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewHandler creates the trigger handler. filter is the on-demand eligibility policy and
// timeout bounds each pass; a pass outlives the request that started it.
func NewHandler(runner *Runner, windowDays int, filter Filter, timeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filter == nil {
		filter = StrictVideoFilter
	}
	if timeout <= 0 {
		timeout = DefaultManualTimeout
	}
	return &Handler{runner: runner, windowDays: windowDays, filter: filter, timeout: timeout, now: time.Now, logger: logger}
}

// Trigger handles POST /admin/recordings/sync (admin). Dates may come from a JSON body or the query string.
func (h *Handler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, TriggerResponse{Message: "invalid request: " + err.Error()})
			return
		}
	} else {
		_ = c.ShouldBindQuery(&req)
	}
	w, err := ParseWindow(req.From, req.To, h.now(), h.windowDays)
	if err != nil {
		c.JSON(http.StatusBadRequest, TriggerResponse{Message: err.Error()})
		return
	}

	// a dropped connection must not abort a pass halfway through its inserts
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()
	res, err := h.runner.Run(ctx, TriggerManual, w, h.filter)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		c.JSON(http.StatusConflict, TriggerResponse{Message: err.Error()})
	case errors.Is(err, ErrSourceUnavailable):
		c.JSON(http.StatusBadGateway, TriggerResponse{Message: "failed to fetch recordings from zoom: " + err.Error()})
	case err != nil:
		h.logger.Error("manual recording sync failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, TriggerResponse{Message: err.Error()})
	default:
		c.JSON(http.StatusOK, TriggerResponse{
			Success: true,
			Message: fmt.Sprintf("synced %d new recordings (%d already present, %d failed)", res.Ingested, res.Skipped, res.Failed),
			Synced:  res.Ingested,
			Skipped: res.Skipped,
			Failed:  res.Failed,
			Errors:  res.Errors,
		})
	}
}
