package handler

import (
	"net/http"
	"strings"

	"github.com/ibheelz/Todoalrojo-sub002/internal/apierrors"
	"github.com/ibheelz/Todoalrojo-sub002/internal/auth/processor"
	"github.com/ibheelz/Todoalrojo-sub002/internal/observability"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authProcessor processor.AuthProcessor
	logger        *observability.Logger
}

func New(authProcessor processor.AuthProcessor, logger *observability.Logger) Handler {
	return Handler{authProcessor: authProcessor, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// HandleLogin authenticates the admin and returns a session token
func (h *Handler) HandleLogin(c *gin.Context) {
	ctx := c.Request.Context()

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.ValidationError(c, err)
		return
	}

	token, err := h.authProcessor.Login(ctx, req.Email, req.Password)
	if err != nil {
		apierrors.Unauthorized(c, "invalid email or password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

// HandleJWTMiddleware guards admin routes behind a valid session token
func (h *Handler) HandleJWTMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	tokenHeader := c.GetHeader("Authorization")
	if tokenHeader == "" || !strings.HasPrefix(tokenHeader, "Bearer ") {
		apierrors.Unauthorized(c, "Authorization token is missing or invalid")
		c.Abort()
		return
	}

	tokenString := strings.TrimPrefix(tokenHeader, "Bearer ")

	claims, err := h.authProcessor.ValidateToken(ctx, tokenString)
	if err != nil {
		apierrors.Unauthorized(c, err.Error())
		c.Abort()
		return
	}

	c.Set("Admin-Email", claims.Subject)
	c.Next()
}
