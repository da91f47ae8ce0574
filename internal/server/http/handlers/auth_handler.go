package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/polkiloo/stockpoints/internal/domain/errors"
	"github.com/polkiloo/stockpoints/internal/domain/model"
	"github.com/polkiloo/stockpoints/internal/server/http/dto"
	"github.com/polkiloo/stockpoints/internal/server/http/middleware"
)

// AuthHandler opens accounts and logs users in.
type AuthHandler struct {
	facade AuthFacade
}

// NewAuthHandler creates AuthHandler instance.
func NewAuthHandler(facade AuthFacade) *AuthHandler {
	return &AuthHandler{facade: facade}
}

// Register handles POST /api/user/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortAuth(c, http.StatusBadRequest, "BAD_REQUEST", "malformed credentials payload")
		return
	}

	session, err := h.facade.Register(c.Request.Context(), req.Login, req.Password)
	switch {
	case err == nil:
		writeSession(c, session)
	case errors.Is(err, domainErrors.ErrInvalidCredentials):
		abortAuth(c, http.StatusBadRequest, "INVALID_CREDENTIALS", "login and password are required")
	case errors.Is(err, domainErrors.ErrAlreadyExists):
		abortAuth(c, http.StatusConflict, "LOGIN_TAKEN", "login is already registered")
	default:
		abortAuth(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// Login handles POST /api/user/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortAuth(c, http.StatusBadRequest, "BAD_REQUEST", "malformed credentials payload")
		return
	}

	session, err := h.facade.Authenticate(c.Request.Context(), req.Login, req.Password)
	switch {
	case err == nil:
		writeSession(c, session)
	case errors.Is(err, domainErrors.ErrInvalidCredentials):
		abortAuth(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "login or password is wrong")
	default:
		abortAuth(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeSession(c *gin.Context, session *model.Session) {
	middleware.SetAuthCookie(c, session.Token)
	c.JSON(http.StatusOK, dto.AuthResponse{UserID: session.UserID, Points: session.Points})
}

func abortAuth(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Code: code, Message: message})
}
