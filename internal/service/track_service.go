package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/internal/models"
	"cvbuilder/api/internal/repository"
	"cvbuilder/api/pkg/analytics"
)

var (
	ErrNoEvents           = errors.New("no events provided")
	ErrSessionIDRequired  = errors.New("session id is required")
	ErrInvalidTrackFormat = errors.New("invalid tracking payload")
)

// TrackService turns tracking batches into session upserts and event rows.
type TrackService struct {
	store repository.SessionStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewTrackService(store repository.SessionStore, log zerolog.Logger) *TrackService {
	return &TrackService{store: store, log: log, now: time.Now}
}

type TrackResult struct {
	SessionID string
	Recorded  int
	Skipped   int
}

// DecodeTrackBody accepts either {"events": [...]} or a single event object.
func DecodeTrackBody(body []byte) ([]analytics.TrackRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrInvalidTrackFormat
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errors.Join(ErrInvalidTrackFormat, err)
	}

	if _, ok := probe["events"]; ok {
		var batch analytics.TrackBatch
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, errors.Join(ErrInvalidTrackFormat, err)
		}
		return batch.Events, nil
	}

	var single analytics.TrackRequest
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, errors.Join(ErrInvalidTrackFormat, err)
	}
	return []analytics.TrackRequest{single}, nil
}

// Ingest records each valid event in order. Events of an unrecognized type or
// with no resolvable session id are skipped and the rest of the batch still
// goes through. A payload that does not fit its event schema is recorded as
// sent. A storage failure aborts the batch.
func (s *TrackService) Ingest(ctx context.Context, events []analytics.TrackRequest, info models.RequestInfo) (TrackResult, error) {
	if len(events) == 0 {
		return TrackResult{}, ErrNoEvents
	}

	result := TrackResult{SessionID: events[0].SessionID}
	for _, req := range events {
		if !req.EventType.Recognized() {
			s.log.Warn().Str("event_type", string(req.EventType)).Msg("skipping event with invalid type")
			result.Skipped++
			continue
		}

		if req.SessionID != "" {
			result.SessionID = req.SessionID
		}
		if result.SessionID == "" {
			s.log.Warn().Str("event_type", string(req.EventType)).Msg("skipping event without session id")
			result.Skipped++
			continue
		}

		if _, err := analytics.DecodePayload(req.EventType, req.EventData); err != nil {
			s.log.Warn().Err(err).Str("event_type", string(req.EventType)).Msg("recording event with unexpected payload shape")
		}

		if _, err := s.store.UpsertSession(ctx, result.SessionID, models.SessionPatch{
			CurrentStep: req.StepIndex,
			FormData:    req.FormData,
		}, &info); err != nil {
			return result, fmt.Errorf("upsert session %s: %w", result.SessionID, err)
		}

		event := models.Event{
			SessionID: result.SessionID,
			EventType: req.EventType,
			EventData: req.EventData,
			StepIndex: req.StepIndex,
			Timestamp: s.now().UTC(),
		}
		if req.PageURL != "" {
			pageURL := req.PageURL
			event.PageURL = &pageURL
		}
		if err := s.store.RecordEvent(ctx, event); err != nil {
			return result, fmt.Errorf("record %s event: %w", req.EventType, err)
		}
		result.Recorded++
	}

	return result, nil
}

// RequestInfoFromHeaders reads the client address and geo hints set by the
// edge proxy, falling back to remoteIP.
func RequestInfoFromHeaders(h http.Header, remoteIP string) models.RequestInfo {
	info := models.RequestInfo{
		IP:        firstNonEmpty(h.Get("CF-Connecting-IP"), firstForwarded(h.Get("X-Forwarded-For")), h.Get("X-Real-IP"), remoteIP),
		UserAgent: h.Get("User-Agent"),
		Country:   h.Get("CF-IPCountry"),
		City:      h.Get("CF-IPCity"),
		Ray:       h.Get("CF-Ray"),
	}
	return info
}

func firstForwarded(v string) string {
	first, _, _ := strings.Cut(v, ",")
	return strings.TrimSpace(first)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
