package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/service"
	"cvbuilder/api/pkg/analytics"
)

func (h HandlerSet) Track(c *gin.Context) {
	limit := h.cfg.Analytics.MaxTrackBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, analytics.TrackResponse{Message: "Failed to read body"})
		return
	}
	if int64(len(body)) > limit {
		h.log.Warn().Int64("limit", limit).Str("client_ip", c.ClientIP()).Msg("tracking batch too large")
		c.JSON(http.StatusRequestEntityTooLarge, analytics.TrackResponse{Message: "Payload too large"})
		return
	}

	events, err := service.DecodeTrackBody(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, analytics.TrackResponse{Message: "Invalid tracking payload"})
		return
	}

	info := service.RequestInfoFromHeaders(c.Request.Header, c.ClientIP())
	result, err := h.tracking.Ingest(c.Request.Context(), events, info)
	if err != nil {
		if errors.Is(err, service.ErrNoEvents) {
			c.JSON(http.StatusBadRequest, analytics.TrackResponse{Message: "No events provided"})
			return
		}
		h.log.Error().Err(err).Str("session_id", result.SessionID).Msg("track failed")
		c.JSON(http.StatusInternalServerError, analytics.TrackResponse{Message: "Failed to track event"})
		return
	}

	c.JSON(http.StatusOK, analytics.TrackResponse{
		Success:   true,
		SessionID: result.SessionID,
		Message:   fmt.Sprintf("Recorded %d event(s)", result.Recorded),
	})
}

func (h HandlerSet) TrackStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Analytics tracking API is running",
		"timestamp": time.Now().UTC(),
	})
}
