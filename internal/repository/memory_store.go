package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"cvbuilder/api/internal/ids"
	"cvbuilder/api/internal/models"
)

// MemoryStore keeps sessions and events in process. It serves local
// development and tests with the same semantics as PostgresStore.
type MemoryStore struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*models.Session
	events   map[string][]models.Event
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*models.Session),
		events:   make(map[string][]models.Event),
	}
}

func (s *MemoryStore) Kind() string { return "memory" }

func (s *MemoryStore) UpsertSession(ctx context.Context, id string, patch models.SessionPatch, info *models.RequestInfo) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now().UTC()
	existing, ok := s.sessions[id]
	if !ok {
		session := newSession(id, patch, info, now)
		s.sessions[id] = &session
		return cloneSession(session), nil
	}

	applyPatch(existing, patch)

	gap := now.Sub(existing.LastActivity)
	if gap > 0 && gap < s.opts.IdleTimeout {
		existing.TotalTimeSpent += int(gap.Seconds())
	}
	existing.TotalPageViews++
	existing.LastActivity = now

	return cloneSession(*existing), nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return cloneSession(*session), nil
}

func (s *MemoryStore) GetSessions(ctx context.Context, filter models.SessionFilter, limit, offset int) ([]models.Session, error) {
	s.mu.Lock()
	matched := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if filter.Matches(*session) {
			matched = append(matched, cloneSession(*session))
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].LastActivity.Equal(matched[j].LastActivity) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].LastActivity.After(matched[j].LastActivity)
	})

	return paginate(matched, limit, offset), nil
}

func (s *MemoryStore) RecordEvent(ctx context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.opts.Now().UTC()
	}
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *MemoryStore) GetSessionEvents(ctx context.Context, sessionID string) ([]models.Event, error) {
	s.mu.Lock()
	events := append([]models.Event(nil), s.events[sessionID]...)
	s.mu.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (s *MemoryStore) GetDashboardStats(ctx context.Context) (models.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.DashboardStats{StepDropoffs: map[int]int{}}
	var spent int
	for _, session := range s.sessions {
		stats.TotalSessions++
		if session.IsActive {
			stats.ActiveSessions++
		}
		if session.MaxStepReached >= s.opts.CompletedStep {
			stats.CompletedForms++
		}
		if session.PaymentStatus != models.PaymentStatusPending {
			stats.PaymentUploads++
		}
		stats.StepDropoffs[session.MaxStepReached]++
		spent += session.TotalTimeSpent
	}
	if stats.TotalSessions > 0 {
		stats.AvgTimeSpent = float64(spent) / float64(stats.TotalSessions)
	}
	stats.Finalize()
	return stats, nil
}

func (s *MemoryStore) MarkSessionInactive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.IsActive = false
	return nil
}

func (s *MemoryStore) MarkIdleSessionsInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, session := range s.sessions {
		if session.IsActive && session.LastActivity.Before(cutoff) {
			session.IsActive = false
			n++
		}
	}
	return n, nil
}

func newSession(id string, patch models.SessionPatch, info *models.RequestInfo, now time.Time) models.Session {
	ip, userAgent, country, city := seedInfo(info)
	session := models.Session{
		ID:             id,
		IP:             ip,
		UserAgent:      userAgent,
		Country:        country,
		City:           city,
		StartedAt:      now,
		LastActivity:   now,
		PaymentStatus:  models.PaymentStatusPending,
		IsActive:       true,
		TotalPageViews: 1,
	}
	if patch.CurrentStep != nil {
		session.CurrentStep = *patch.CurrentStep
		session.MaxStepReached = *patch.CurrentStep
	}
	patch.CurrentStep = nil
	applyPatch(&session, patch)
	return session
}

func applyPatch(session *models.Session, patch models.SessionPatch) {
	if patch.CurrentStep != nil {
		session.CurrentStep = *patch.CurrentStep
		if *patch.CurrentStep > session.MaxStepReached {
			session.MaxStepReached = *patch.CurrentStep
		}
	}
	if patch.FormData != nil {
		merged := make(map[string]any, len(session.FormData)+len(patch.FormData))
		for k, v := range session.FormData {
			merged[k] = v
		}
		for k, v := range patch.FormData {
			merged[k] = v
		}
		session.FormData = merged
	}
	if patch.CVData != nil {
		session.CVData = append(json.RawMessage(nil), patch.CVData...)
	}
	if patch.ProfilePhoto != nil {
		session.ProfilePhoto = copyString(patch.ProfilePhoto)
	}
	if patch.PaymentProofURL != nil {
		session.PaymentProofURL = copyString(patch.PaymentProofURL)
	}
	if patch.PaymentProofData != nil {
		session.PaymentProofData = copyString(patch.PaymentProofData)
	}
	if patch.AdvancedData != nil {
		session.AdvancedData = append(json.RawMessage(nil), patch.AdvancedData...)
	}
	if status := patch.EffectivePaymentStatus(); status != nil {
		session.PaymentStatus = *status
	}
}

func cloneSession(s models.Session) models.Session {
	if s.FormData != nil {
		form := make(map[string]any, len(s.FormData))
		for k, v := range s.FormData {
			form[k] = v
		}
		s.FormData = form
	}
	s.Country = copyString(s.Country)
	s.City = copyString(s.City)
	s.ProfilePhoto = copyString(s.ProfilePhoto)
	s.PaymentProofURL = copyString(s.PaymentProofURL)
	s.PaymentProofData = copyString(s.PaymentProofData)
	return s
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
