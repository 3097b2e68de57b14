package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cvbuilder/api/internal/config"
	"cvbuilder/api/internal/errorlog"
	"cvbuilder/api/internal/middleware"
	"cvbuilder/api/internal/repository"
	"cvbuilder/api/internal/service"
	"cvbuilder/api/internal/storage"
)

// Backends are the stores a HandlerSet talks to. DB, Cache and Objects are
// nil when not configured.
type Backends struct {
	Sessions repository.SessionStore
	Errors   errorlog.Store
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Objects  *storage.ObjectStore
}

type HandlerSet struct {
	log       zerolog.Logger
	cfg       *config.AppConfig
	backends  Backends
	tracking  *service.TrackService
	snapshots *service.SnapshotService
	operators *service.OperatorService
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, backends Backends) HandlerSet {
	var uploader service.ObjectUploader
	if backends.Objects != nil {
		uploader = backends.Objects
	}

	return HandlerSet{
		log:       log,
		cfg:       cfg,
		backends:  backends,
		tracking:  service.NewTrackService(backends.Sessions, log.With().Str("component", "track").Logger()),
		snapshots: service.NewSnapshotService(backends.Sessions, uploader, cfg.Analytics, log.With().Str("component", "snapshot").Logger()),
		operators: service.NewOperatorService(cfg.Operator, log.With().Str("component", "operator").Logger()),
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	operator := middleware.OperatorAuth(h.operators, middleware.OperatorAuthConfig{
		CookieName: h.cfg.Operator.CookieName,
		Permissive: h.cfg.IsDevelopment(),
	})

	analytics := v1.Group("/analytics")
	{
		analytics.POST("/track", h.Track)
		analytics.GET("/track", h.TrackStatus)
		analytics.POST("/errors", h.ReportErrors)

		dashboard := analytics.Group("")
		dashboard.Use(operator)
		dashboard.GET("/errors", h.ListErrors)
		dashboard.DELETE("/errors", h.ClearErrors)
		dashboard.GET("/sessions", h.ListSessions)
		dashboard.GET("/sessions/:id", h.GetSession)
		dashboard.POST("/sessions/:id/inactive", h.MarkInactive)
		dashboard.GET("/stats", h.Stats)
	}

	v1.POST("/sessions/save", h.SaveSession)
	v1.POST("/upload-proof", h.UploadProof)

	admin := v1.Group("/admin")
	{
		admin.POST("/login", h.Login)
		admin.POST("/logout", h.Logout)
		admin.GET("/me", operator, h.Me)
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

func respondData(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
