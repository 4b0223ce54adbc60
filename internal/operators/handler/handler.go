package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OperatorStore defines the database operations required by Handler
type OperatorStore interface {
	CreateOperator(ctx context.Context, params store.CreateOperatorParams) (store.Operator, error)
	GetOperatorByID(ctx context.Context, operatorID uuid.UUID) (store.Operator, error)
	ListOperators(ctx context.Context) ([]store.Operator, error)
	CreateMessageTemplate(ctx context.Context, params store.CreateMessageTemplateParams) (store.MessageTemplate, error)
	ListMessageTemplatesByOperator(ctx context.Context, operatorID uuid.UUID) ([]store.MessageTemplate, error)
}

// Handler manages operator and message template reference data
type Handler struct {
	store  OperatorStore
	logger *observability.Logger
}

func New(store OperatorStore, logger *observability.Logger) Handler {
	return Handler{store: store, logger: logger}
}

// CreateOperatorRequest is the admin payload for a new operator
type CreateOperatorRequest struct {
	Client string `json:"client" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Brand  string `json:"brand" binding:"required"`

	EmailEnabled bool    `json:"email_enabled"`
	SMSEnabled   bool    `json:"sms_enabled"`
	SenderEmail  *string `json:"sender_email" binding:"omitempty,email"`
	SenderPhone  *string `json:"sender_phone"`

	ProtectHighValue bool `json:"protect_high_value"`
	RecycleAfterDays int  `json:"recycle_after_days" binding:"gte=0"`
	MinRecycleStage  int  `json:"min_recycle_stage" binding:"gte=-1,lte=3"`
	MaxRecycleStage  int  `json:"max_recycle_stage" binding:"gte=-1,lte=3"`
}

// HandleCreateOperator creates a new operator
func (h *Handler) HandleCreateOperator(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	operator, err := h.store.CreateOperator(ctx, store.CreateOperatorParams{
		Client:           req.Client,
		Name:             req.Name,
		Brand:            req.Brand,
		EmailEnabled:     req.EmailEnabled,
		SMSEnabled:       req.SMSEnabled,
		SenderEmail:      req.SenderEmail,
		SenderPhone:      req.SenderPhone,
		ProtectHighValue: req.ProtectHighValue,
		RecycleAfterDays: req.RecycleAfterDays,
		MinRecycleStage:  req.MinRecycleStage,
		MaxRecycleStage:  req.MaxRecycleStage,
	})
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "operator": operator})
}

// HandleListOperators lists every operator
func (h *Handler) HandleListOperators(c *gin.Context) {
	ctx := c.Request.Context()

	operators, err := h.store.ListOperators(ctx)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "operators": operators})
}

// CreateTemplateRequest is the admin payload for a new message template
type CreateTemplateRequest struct {
	OperatorID  string  `json:"operator_id" binding:"required,uuid"`
	JourneyType string  `json:"journey_type" binding:"required,oneof=acquisition retention"`
	DayNumber   int     `json:"day_number" binding:"gte=0,lte=90"`
	Channel     string  `json:"channel" binding:"required,oneof=email sms"`
	Subject     *string `json:"subject"`
	Body        string  `json:"body" binding:"required"`
	Enabled     *bool   `json:"enabled"`
}

// HandleCreateTemplate creates a message template for one journey slot
func (h *Handler) HandleCreateTemplate(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	operatorID, err := uuid.Parse(req.OperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_OPERATOR_ID", "operator_id must be a valid UUID")
		return
	}

	if req.Channel == store.ChannelEmail && req.Subject == nil {
		apierrors.BadRequest(c, "MISSING_SUBJECT", "email templates require a subject")
		return
	}

	if _, err := h.store.GetOperatorByID(ctx, operatorID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(c, "operator not found")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	template, err := h.store.CreateMessageTemplate(ctx, store.CreateMessageTemplateParams{
		OperatorID:  operatorID,
		JourneyType: req.JourneyType,
		DayNumber:   req.DayNumber,
		Channel:     req.Channel,
		Subject:     req.Subject,
		Body:        req.Body,
		Enabled:     enabled,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			apierrors.Conflict(c, "TEMPLATE_EXISTS", "a template for this journey slot already exists")
			return
		}
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "template": template})
}

// HandleListTemplates lists an operator's templates
func (h *Handler) HandleListTemplates(c *gin.Context) {
	ctx := c.Request.Context()

	operatorID, err := uuid.Parse(c.Query("operator_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_OPERATOR_ID", "operator_id must be a valid UUID")
		return
	}

	templates, err := h.store.ListMessageTemplatesByOperator(ctx, operatorID)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "templates": templates})
}
