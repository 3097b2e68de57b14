package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/errorlog"
	"cvbuilder/api/pkg/analytics"
)

type errorBatchRequest struct {
	Errors *[]analytics.ErrorLogEntry `json:"errors"`
}

func (h HandlerSet) ReportErrors(c *gin.Context) {
	var req errorBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Errors == nil {
		respondError(c, http.StatusBadRequest, "Invalid errors format")
		return
	}
	entries := *req.Errors
	ctx := c.Request.Context()

	if err := h.backends.Errors.Append(ctx, entries...); err != nil {
		h.log.Error().Err(err).Int("count", len(entries)).Msg("append client errors failed")
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	for _, e := range entries {
		h.log.Debug().
			Str("type", string(e.Type)).
			Int("status_code", e.StatusCode).
			Str("url", e.URL).
			Str("message", truncate(e.Message, 100)).
			Msg("client error received")
	}

	page, err := h.backends.Errors.List(ctx, errorlog.Filter{}, 1, 0)
	if err != nil {
		h.log.Error().Err(err).Msg("count client errors failed")
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"received": len(entries),
		"total":    page.Total,
	})
}

func (h HandlerSet) ListErrors(c *gin.Context) {
	filter := errorlog.Filter{
		Type:      analytics.ErrorType(c.Query("type")),
		SessionID: c.Query("sessionId"),
	}
	if v := c.Query("statusCode"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid statusCode")
			return
		}
		filter.StatusCode = code
	}
	limit, offset := pagination(c)

	page, err := h.backends.Errors.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list client errors failed")
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page.Entries,
		"stats":   page.Stats,
		"pagination": gin.H{
			"limit":   limit,
			"offset":  offset,
			"total":   page.Total,
			"hasMore": offset+limit < page.Total,
		},
	})
}

func (h HandlerSet) ClearErrors(c *gin.Context) {
	if err := h.backends.Errors.Clear(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("clear client errors failed")
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Error log cleared"})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
