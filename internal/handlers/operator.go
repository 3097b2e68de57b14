package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/middleware"
	"cvbuilder/api/internal/service"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "username and password required")
		return
	}

	result, err := h.operators.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, service.ErrOperatorDisabled):
			respondError(c, http.StatusServiceUnavailable, "operator login is not configured")
		default:
			h.log.Error().Err(err).Msg("operator login failed")
			respondError(c, http.StatusInternalServerError, "login failed")
		}
		return
	}

	h.setOperatorCookie(c, result.Token, int(time.Until(result.ExpiresAt).Seconds()))
	respondData(c, loginResponse{
		Username:  result.Username,
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.setOperatorCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h HandlerSet) Me(c *gin.Context) {
	claims, ok := middleware.Operator(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondData(c, gin.H{"username": claims.Username, "role": claims.Role})
}

func (h HandlerSet) setOperatorCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Operator.CookieName, value, maxAge, "/", "", !h.cfg.IsDevelopment(), true)
}
