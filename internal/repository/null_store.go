package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/internal/models"
)

// NullStore is the degraded mode: reads come back empty and writes return
// unpersisted placeholders. It never fails.
type NullStore struct {
	opts Options
	log  zerolog.Logger
}

func NewNullStore(opts Options, log zerolog.Logger) *NullStore {
	log.Warn().Msg("no analytics backing store configured, running in degraded mode")
	return &NullStore{opts: opts.withDefaults(), log: log}
}

func (s *NullStore) Kind() string { return "null" }

func (s *NullStore) UpsertSession(ctx context.Context, id string, patch models.SessionPatch, info *models.RequestInfo) (models.Session, error) {
	s.log.Debug().Str("session_id", id).Msg("upsert skipped, no backing store")

	placeholderInfo := models.RequestInfo{IP: "localhost", UserAgent: "dev-browser"}
	if info != nil {
		if info.IP != "" {
			placeholderInfo.IP = info.IP
		}
		if info.UserAgent != "" {
			placeholderInfo.UserAgent = info.UserAgent
		}
		placeholderInfo.Country = info.Country
		placeholderInfo.City = info.City
	}

	return newSession(id, patch, &placeholderInfo, s.opts.Now().UTC()), nil
}

func (s *NullStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	return models.Session{}, ErrSessionNotFound
}

func (s *NullStore) GetSessions(ctx context.Context, filter models.SessionFilter, limit, offset int) ([]models.Session, error) {
	return []models.Session{}, nil
}

func (s *NullStore) RecordEvent(ctx context.Context, event models.Event) error {
	s.log.Debug().
		Str("session_id", event.SessionID).
		Str("event_type", string(event.EventType)).
		RawJSON("event_data", rawOrNull(event.EventData)).
		Msg("event dropped, no backing store")
	return nil
}

func (s *NullStore) GetSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	return []models.Event{}, nil
}

func (s *NullStore) GetDashboardStats(ctx context.Context) (models.DashboardStats, error) {
	stats := models.DashboardStats{}
	stats.Finalize()
	return stats, nil
}

func (s *NullStore) MarkSessionInactive(ctx context.Context, id string) error {
	return nil
}

func (s *NullStore) MarkIdleSessionsInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func rawOrNull(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}
