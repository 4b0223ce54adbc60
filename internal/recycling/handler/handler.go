package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"
	recyclingProcessor "github.com/ibheelz/Todoalrojo-sub002/internal/recycling/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor *recyclingProcessor.RecyclingProcessor
	logger    *observability.Logger
}

func New(processor *recyclingProcessor.RecyclingProcessor, logger *observability.Logger) Handler {
	return Handler{processor: processor, logger: logger}
}

// CreateRuleRequest is the admin payload for a new recycling rule
type CreateRuleRequest struct {
	SourceOperatorID        string `json:"source_operator_id" binding:"required,uuid"`
	TargetOperatorID        string `json:"target_operator_id" binding:"required,uuid"`
	MinDaysSinceLastDeposit int    `json:"min_days_since_last_deposit" binding:"gte=0"`
	MinStage                int    `json:"min_stage" binding:"gte=-1,lte=3"`
	MaxStage                int    `json:"max_stage" binding:"gte=-1,lte=3"`
	ExcludeHighValue        bool   `json:"exclude_high_value"`
	MaxRecyclesPerUser      int    `json:"max_recycles_per_user" binding:"gte=0"`
	CooldownDays            int    `json:"cooldown_days" binding:"gte=0"`
	Priority                int    `json:"priority"`
}

// HandleCreateRule creates a recycling rule
func (h *Handler) HandleCreateRule(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	sourceID, err := uuid.Parse(req.SourceOperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_SOURCE_OPERATOR_ID", "source_operator_id must be a valid UUID")
		return
	}
	targetID, err := uuid.Parse(req.TargetOperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_TARGET_OPERATOR_ID", "target_operator_id must be a valid UUID")
		return
	}

	rule, err := h.processor.CreateRule(ctx, store.CreateRecyclingRuleParams{
		SourceOperatorID:        sourceID,
		TargetOperatorID:        targetID,
		MinDaysSinceLastDeposit: req.MinDaysSinceLastDeposit,
		MinStage:                req.MinStage,
		MaxStage:                req.MaxStage,
		ExcludeHighValue:        req.ExcludeHighValue,
		MaxRecyclesPerUser:      req.MaxRecyclesPerUser,
		CooldownDays:            req.CooldownDays,
		Priority:                req.Priority,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(c, "operator not found")
			return
		}
		apierrors.BadRequest(c, "INVALID_RULE", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "rule": rule})
}

// HandleListRules lists every configured recycling rule
func (h *Handler) HandleListRules(c *gin.Context) {
	ctx := c.Request.Context()

	rules, err := h.processor.ListRules(ctx)
	if err != nil {
		apierrors.InternalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rules": rules})
}

// PairRequest identifies a customer and an operator pair
type PairRequest struct {
	CustomerID       string `json:"customer_id" binding:"required,uuid"`
	SourceOperatorID string `json:"source_operator_id" binding:"required,uuid"`
	TargetOperatorID string `json:"target_operator_id" binding:"required,uuid"`
}

func (r PairRequest) ids() (customerID, sourceID, targetID uuid.UUID, err error) {
	if customerID, err = uuid.Parse(r.CustomerID); err != nil {
		return
	}
	if sourceID, err = uuid.Parse(r.SourceOperatorID); err != nil {
		return
	}
	targetID, err = uuid.Parse(r.TargetOperatorID)
	return
}

// HandleCheck evaluates one customer's eligibility without transferring
func (h *Handler) HandleCheck(c *gin.Context) {
	ctx := c.Request.Context()

	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}
	customerID, sourceID, targetID, err := req.ids()
	if err != nil {
		apierrors.BadRequest(c, "INVALID_ID", "ids must be valid UUIDs")
		return
	}

	eligibility, err := h.processor.CheckEligibility(ctx, customerID, sourceID, targetID)
	if err != nil {
		h.respondRecyclingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "eligibility": eligibility})
}

// HandleRecycle transfers one eligible customer
func (h *Handler) HandleRecycle(c *gin.Context) {
	ctx := c.Request.Context()

	var req PairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}
	customerID, sourceID, targetID, err := req.ids()
	if err != nil {
		apierrors.BadRequest(c, "INVALID_ID", "ids must be valid UUIDs")
		return
	}

	targetState, err := h.processor.Recycle(ctx, customerID, sourceID, targetID)
	if err != nil {
		h.respondRecyclingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "journey_state": targetState})
}

// RunRequest selects the operator pair and batch size for a recycling run
type RunRequest struct {
	SourceOperatorID string `json:"source_operator_id" binding:"required,uuid"`
	TargetOperatorID string `json:"target_operator_id" binding:"required,uuid"`
	Limit            int    `json:"limit" binding:"omitempty,gt=0,lte=1000"`
}

// HandleRun transfers every currently eligible customer for a pair
func (h *Handler) HandleRun(c *gin.Context) {
	ctx := c.Request.Context()

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}
	sourceID, err := uuid.Parse(req.SourceOperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_SOURCE_OPERATOR_ID", "source_operator_id must be a valid UUID")
		return
	}
	targetID, err := uuid.Parse(req.TargetOperatorID)
	if err != nil {
		apierrors.BadRequest(c, "INVALID_TARGET_OPERATOR_ID", "target_operator_id must be a valid UUID")
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = 100
	}

	summary, err := h.processor.Run(ctx, sourceID, targetID, limit)
	if err != nil {
		h.respondRecyclingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

// HandleListEligible lists currently eligible transfer candidates for a pair
func (h *Handler) HandleListEligible(c *gin.Context) {
	ctx := c.Request.Context()

	sourceID, err := uuid.Parse(c.Query("source_operator_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_SOURCE_OPERATOR_ID", "source_operator_id must be a valid UUID")
		return
	}
	targetID, err := uuid.Parse(c.Query("target_operator_id"))
	if err != nil {
		apierrors.BadRequest(c, "INVALID_TARGET_OPERATOR_ID", "target_operator_id must be a valid UUID")
		return
	}

	limit := 100
	if rawLimit := c.Query("limit"); rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit <= 0 || limit > 1000 {
			apierrors.BadRequest(c, "INVALID_LIMIT", "limit must be between 1 and 1000")
			return
		}
	}

	candidates, err := h.processor.ListEligible(ctx, sourceID, targetID, limit)
	if err != nil {
		h.respondRecyclingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "candidates": candidates})
}

func (h *Handler) respondRecyclingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recyclingProcessor.ErrJourneyNotFound):
		apierrors.NotFound(c, "journey state not found")
	case errors.Is(err, recyclingProcessor.ErrNoRuleConfigured):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, recyclingProcessor.ErrNotEligible):
		apierrors.Conflict(c, "NOT_ELIGIBLE", err.Error())
	case errors.Is(err, recyclingProcessor.ErrAlreadyRecycled):
		apierrors.Conflict(c, "ALREADY_RECYCLED", err.Error())
	default:
		apierrors.InternalError(c, err)
	}
}
