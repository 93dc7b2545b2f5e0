package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jrjohn/arcana-pos-go/internal/dto/request"
	"github.com/jrjohn/arcana-pos-go/internal/dto/response"
	"github.com/jrjohn/arcana-pos-go/internal/session"
	apperrors "github.com/jrjohn/arcana-pos-go/pkg/errors"
)

// SessionManager is the part of *session.Manager the controller uses
type SessionManager interface {
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context)
	Claims() (session.Claims, bool)
}

// SessionController handles sign-in state for the register
type SessionController struct {
	sessions SessionManager
}

// NewSessionController creates a new SessionController instance
func NewSessionController(sessions SessionManager) *SessionController {
	return &SessionController{sessions: sessions}
}

// RegisterRoutes registers the session routes
func (c *SessionController) RegisterRoutes(router *gin.RouterGroup) {
	routes := router.Group("/session")
	{
		routes.GET("", c.GetSession)
		routes.POST("", c.Login)
		routes.DELETE("", c.Logout)
	}
}

// GetSession returns the signed-in user
// @Summary Current session
// @Tags Session
// @Produce json
// @Success 200 {object} response.ApiResponse[response.SessionResponse]
// @Router /api/v1/session [get]
func (c *SessionController) GetSession(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, response.NewSuccessWithData(response.NewSessionResponse(c.sessions.Claims())))
}

// Login stores the access token obtained by the UI
// @Summary Sign in
// @Tags Session
// @Accept json
// @Produce json
// @Param request body request.LoginRequest true "Access token"
// @Success 200 {object} response.ApiResponse[response.SessionResponse]
// @Failure 401 {object} response.ApiResponse[any]
// @Router /api/v1/session [post]
func (c *SessionController) Login(ctx *gin.Context) {
	var req request.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, response.NewError[any](apperrors.CodeValidationError, err.Error()))
		return
	}

	if err := c.sessions.Login(ctx.Request.Context(), req.Token); err != nil {
		message := "invalid token"
		if errors.Is(err, session.ErrExpiredToken) {
			message = "token has expired"
		}
		ctx.JSON(http.StatusUnauthorized, response.NewError[any](apperrors.CodeUnauthorized, message))
		return
	}

	ctx.JSON(http.StatusOK, response.NewSuccess(response.NewSessionResponse(c.sessions.Claims()), "signed in"))
}

// Logout signs out and discards queued writes and cached responses
// @Summary Sign out
// @Tags Session
// @Produce json
// @Success 200 {object} response.ApiResponse[any]
// @Router /api/v1/session [delete]
func (c *SessionController) Logout(ctx *gin.Context) {
	c.sessions.Logout(ctx.Request.Context())
	ctx.JSON(http.StatusOK, response.NewSuccess[any](nil, "signed out"))
}
