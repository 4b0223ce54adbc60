package handler

import (
	"errors"
	"net/http"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	identityProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/identity/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor identityProcessor.IdentityProcessor
	logger    *observability.Logger
}

func New(processor identityProcessor.IdentityProcessor, logger *observability.Logger) Handler {
	return Handler{processor: processor, logger: logger}
}

// HandleGetCustomer returns a customer's profile: the aggregate record, its
// identifiers and recent postbacks
func (h *Handler) HandleGetCustomer(c *gin.Context) {
	ctx := c.Request.Context()

	customerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CUSTOMER_ID", "customer id must be a valid UUID")
		return
	}

	profile, err := h.processor.GetProfile(ctx, customerID)
	if err != nil {
		if errors.Is(err, identityProcessor.ErrCustomerNotFound) {
			apierrors.NotFound(c, "customer not found")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "profile": profile})
}
