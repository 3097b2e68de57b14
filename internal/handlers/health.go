package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	ErrorLog    string `json:"errorLog"`
	Environment string `json:"environment"`
}

const statusDisabled = "disabled"

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := statusDisabled
	if h.backends.DB != nil {
		dbStatus = "ok"
		if err := h.backends.DB.Ping(ctx); err != nil {
			dbStatus = "error"
			h.log.Error().Err(err).Msg("database ping failed")
		}
	}

	cacheStatus := statusDisabled
	if h.backends.Cache != nil {
		cacheStatus = "ok"
		if err := h.backends.Cache.Ping(ctx).Err(); err != nil {
			cacheStatus = "error"
			h.log.Error().Err(err).Msg("redis ping failed")
		}
	}

	storageStatus := statusDisabled
	if h.backends.Objects != nil {
		storageStatus = "ok"
		if err := h.backends.Objects.Ping(ctx); err != nil {
			storageStatus = "error"
			h.log.Error().Err(err).Msg("object store ping failed")
		}
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      "ok",
		Store:       h.backends.Sessions.Kind(),
		Database:    dbStatus,
		Cache:       cacheStatus,
		Storage:     storageStatus,
		ErrorLog:    h.backends.Errors.Kind(),
		Environment: h.cfg.Environment,
	})
}
