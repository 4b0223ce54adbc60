package handler

import (
	"net/http"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	"github.com/ibheelz/Todoalrojo-sub002/internal/messaging"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	dispatcher        *messaging.Dispatcher
	defaultBatchLimit int
	logger            *observability.Logger
}

func New(dispatcher *messaging.Dispatcher, defaultBatchLimit int, logger *observability.Logger) Handler {
	return Handler{dispatcher: dispatcher, defaultBatchLimit: defaultBatchLimit, logger: logger}
}

// DispatchRequest optionally overrides the sweep batch limit
type DispatchRequest struct {
	Limit int `json:"limit" binding:"omitempty,gt=0,lte=1000"`
}

// HandleDispatchRun triggers one dispatch sweep and returns its summary.
// Per-message failures are aggregated in the summary, never raised.
func (h *Handler) HandleDispatchRun(c *gin.Context) {
	ctx := c.Request.Context()

	req := DispatchRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.ValidationError(c, err)
			return
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = h.defaultBatchLimit
	}

	summary, err := h.dispatcher.ProcessDue(ctx, limit)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}
