package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cvbuilder/api/internal/middleware"
	"cvbuilder/api/internal/models"
	"cvbuilder/api/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (h HandlerSet) ListSessions(c *gin.Context) {
	filter, err := parseSessionFilter(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := pagination(c)

	sessions, err := h.backends.Sessions.GetSessions(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list sessions failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}

	var operator string
	if claims, ok := middleware.Operator(c); ok {
		operator = claims.Username
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    sessions,
		"pagination": gin.H{
			"limit":   limit,
			"offset":  offset,
			"hasMore": len(sessions) == limit,
		},
		"authenticatedUser": operator,
	})
}

func (h HandlerSet) GetSession(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	session, err := h.backends.Sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, "Session not found")
			return
		}
		h.log.Error().Err(err).Str("session_id", id).Msg("get session failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch session")
		return
	}

	events, err := h.backends.Sessions.GetSessionEvents(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", id).Msg("get session events failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch session")
		return
	}

	respondData(c, gin.H{
		"session":  session,
		"events":   events,
		"timeline": models.Timeline(events),
	})
}

func (h HandlerSet) MarkInactive(c *gin.Context) {
	id := c.Param("id")
	if err := h.backends.Sessions.MarkSessionInactive(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			respondError(c, http.StatusNotFound, "Session not found")
			return
		}
		h.log.Error().Err(err).Str("session_id", id).Msg("mark inactive failed")
		respondError(c, http.StatusInternalServerError, "Failed to update session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h HandlerSet) Stats(c *gin.Context) {
	stats, err := h.backends.Sessions.GetDashboardStats(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("dashboard stats failed")
		respondError(c, http.StatusInternalServerError, "Failed to fetch stats")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"data":        stats,
		"generatedAt": time.Now().UTC(),
	})
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseSessionFilter(c *gin.Context) (models.SessionFilter, error) {
	filter := models.SessionFilter{
		Country: c.Query("country"),
		Search:  c.Query("search"),
	}

	var err error
	if filter.StartDate, err = queryTime(c, "startDate", false); err != nil {
		return filter, err
	}
	if filter.EndDate, err = queryTime(c, "endDate", true); err != nil {
		return filter, err
	}
	if filter.MinStep, err = queryInt(c, "minStep"); err != nil {
		return filter, err
	}
	if filter.MaxStep, err = queryInt(c, "maxStep"); err != nil {
		return filter, err
	}

	if v := c.Query("paymentStatus"); v != "" {
		status := models.PaymentStatus(v)
		if !status.Valid() {
			return filter, filterError("invalid paymentStatus")
		}
		filter.PaymentStatus = status
	}

	if v := c.Query("isActive"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}
	return filter, nil
}

// queryTime accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func queryTime(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, filterError("invalid " + key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryInt(c *gin.Context, key string) (*int, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, filterError("invalid " + key)
	}
	return &n, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
