package handler

import (
	"errors"
	"net/http"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	identityProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/identity/processor"
	journeyProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/journey/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor journeyProcessor.JourneyProcessor
	logger    *observability.Logger
}

func New(processor journeyProcessor.JourneyProcessor, logger *observability.Logger) Handler {
	return Handler{processor: processor, logger: logger}
}

// PostbackRequest is the inbound operator postback payload
type PostbackRequest struct {
	OperatorID    string   `json:"operator_id" binding:"required,uuid"`
	EventType     string   `json:"event_type" binding:"required"`
	ClickID       string   `json:"click_id"`
	Email         string   `json:"email"`
	Phone         string   `json:"phone"`
	UserID        string   `json:"user_id"`
	EventKey      *string  `json:"event_key"`
	DepositAmount *float64 `json:"deposit_amount"`
	Currency      *string  `json:"currency"`
}

// HandlePostback ingests one operator postback
func (h *Handler) HandlePostback(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	operatorID, err := uuid.Parse(req.OperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_OPERATOR_ID", "operator_id must be a valid UUID")
		return
	}

	raw := store.JSONB{
		"operator_id": req.OperatorID,
		"event_type":  req.EventType,
	}
	if req.ClickID != "" {
		raw["click_id"] = req.ClickID
	}
	if req.Email != "" {
		raw["email"] = req.Email
	}
	if req.Phone != "" {
		raw["phone"] = req.Phone
	}
	if req.UserID != "" {
		raw["user_id"] = req.UserID
	}
	if req.EventKey != nil {
		raw["event_key"] = *req.EventKey
	}
	if req.DepositAmount != nil {
		raw["deposit_amount"] = *req.DepositAmount
	}
	if req.Currency != nil {
		raw["currency"] = *req.Currency
	}

	result, err := h.processor.ProcessPostback(ctx, journeyProcessor.PostbackRequest{
		OperatorID:    operatorID,
		EventType:     req.EventType,
		ClickID:       req.ClickID,
		Email:         req.Email,
		Phone:         req.Phone,
		UserID:        req.UserID,
		EventKey:      req.EventKey,
		DepositAmount: req.DepositAmount,
		Currency:      req.Currency,
		RawPayload:    raw,
	})
	if err != nil {
		h.respondPostbackError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *Handler) respondPostbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, journeyProcessor.ErrUnknownEventType):
		apierrors.BadRequest(c, "UNKNOWN_EVENT_TYPE", err.Error())
	case errors.Is(err, journeyProcessor.ErrMissingDepositValue):
		apierrors.BadRequest(c, "MISSING_DEPOSIT_AMOUNT", err.Error())
	case errors.Is(err, identityProcessor.ErrNoIdentifiers):
		apierrors.BadRequest(c, "NO_IDENTIFIERS", err.Error())
	case errors.Is(err, journeyProcessor.ErrOperatorNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, identityProcessor.ErrIdentityConflict):
		apierrors.Conflict(c, "IDENTITY_CONFLICT", err.Error())
	default:
		apierrors.InternalError(c, err)
	}
}

// HandleGetJourney returns the journey state and message history for a
// (customer, operator) pair
func (h *Handler) HandleGetJourney(c *gin.Context) {
	ctx := c.Request.Context()

	customerID, err := uuid.Parse(c.Query("customer_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CUSTOMER_ID", "customer_id must be a valid UUID")
		return
	}
	operatorID, err := uuid.Parse(c.Query("operator_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_OPERATOR_ID", "operator_id must be a valid UUID")
		return
	}

	detail, err := h.processor.GetJourneyDetail(ctx, customerID, operatorID)
	if err != nil {
		if errors.Is(err, journeyProcessor.ErrJourneyNotFound) {
			apierrors.NotFound(c, "journey state not found")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "journey_state": detail.JourneyState, "messages": detail.Messages})
}

// ActionRequest is a mutation applied to an existing journey state
type ActionRequest struct {
	Action     string `json:"action" binding:"required,oneof=unsubscribe update_stage"`
	CustomerID string `json:"customer_id" binding:"required,uuid"`
	OperatorID string `json:"operator_id" binding:"required,uuid"`

	// unsubscribe
	Email  bool `json:"email"`
	SMS    bool `json:"sms"`
	Global bool `json:"global"`

	// update_stage
	Stage *int `json:"stage"`
}

// HandleJourneyAction applies an unsubscribe or an admin stage update
func (h *Handler) HandleJourneyAction(c *gin.Context) {
	ctx := c.Request.Context()

	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_CUSTOMER_ID", "customer_id must be a valid UUID")
		return
	}
	operatorID, err := uuid.Parse(req.OperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_OPERATOR_ID", "operator_id must be a valid UUID")
		return
	}

	var state store.JourneyState
	switch req.Action {
	case "unsubscribe":
		if !req.Email && !req.SMS && !req.Global {
			apierrors.BadRequest(c, "EMPTY_UNSUBSCRIBE", "at least one of email, sms or global must be set")
			return
		}
		state, err = h.processor.Unsubscribe(ctx, customerID, operatorID, journeyProcessor.UnsubscribeRequest{
			Email:  req.Email,
			SMS:    req.SMS,
			Global: req.Global,
		})

	case "update_stage":
		if req.Stage == nil {
			apierrors.BadRequest(c, "MISSING_STAGE", "stage is required for update_stage")
			return
		}
		state, err = h.processor.UpdateStage(ctx, customerID, operatorID, *req.Stage)
	}

	if err != nil {
		switch {
		case errors.Is(err, journeyProcessor.ErrJourneyNotFound):
			apierrors.NotFound(c, "journey state not found")
		case errors.Is(err, journeyProcessor.ErrInvalidStage):
			apierrors.BadRequest(c, "INVALID_STAGE", err.Error())
		default:
			apierrors.InternalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "journey_state": state})
}
