package repository

import (
	"context"
	"errors"
	"time"

	"cvbuilder/api/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore is the storage adapter behind every analytics endpoint.
// PostgresStore persists, MemoryStore keeps rows in process and NullStore
// is the degraded mode used when no backing store is configured.
type SessionStore interface {
	// UpsertSession inserts the session seeded from info when absent,
	// otherwise updates only the columns present in patch. Page views and
	// last activity move on every call and max step reached never decreases.
	UpsertSession(ctx context.Context, id string, patch models.SessionPatch, info *models.RequestInfo) (models.Session, error)
	GetSession(ctx context.Context, id string) (models.Session, error)
	// GetSessions orders by last activity, most recent first.
	GetSessions(ctx context.Context, filter models.SessionFilter, limit, offset int) ([]models.Session, error)
	RecordEvent(ctx context.Context, event models.Event) error
	// GetSessionEvents returns events in chronological order.
	GetSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error)
	GetDashboardStats(ctx context.Context) (models.DashboardStats, error)
	MarkSessionInactive(ctx context.Context, id string) error
	// MarkIdleSessionsInactive flags active sessions whose last activity is
	// older than cutoff. It is only invoked by an external sweep.
	MarkIdleSessionsInactive(ctx context.Context, cutoff time.Time) (int64, error)
	Kind() string
}

type Options struct {
	// CompletedStep is the max step at which a session counts as completed.
	CompletedStep int
	// IdleTimeout bounds the activity gaps counted towards time spent.
	IdleTimeout time.Duration
	Now         func() time.Time
}

func (o Options) withDefaults() Options {
	if o.CompletedStep <= 0 {
		o.CompletedStep = 4
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

const (
	unknownIP        = "unknown"
	unknownUserAgent = "unknown"
)

func seedInfo(info *models.RequestInfo) (ip, userAgent string, country, city *string) {
	ip, userAgent = unknownIP, unknownUserAgent
	if info == nil {
		return
	}
	if info.IP != "" {
		ip = info.IP
	}
	if info.UserAgent != "" {
		userAgent = info.UserAgent
	}
	if info.Country != "" {
		c := info.Country
		country = &c
	}
	if info.City != "" {
		c := info.City
		city = &c
	}
	return
}
