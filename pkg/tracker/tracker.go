// Package tracker is the client half of the analytics pipeline: it keeps
// one session per browser-like storage space, queues events and ships them
// to the ingestion endpoint in batches.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/pkg/analytics"
	"cvbuilder/api/pkg/localstore"
)

const (
	SessionKey  = "cv_analytics_session"
	AdvancedKey = "cv_advanced_session_data"

	DefaultFlushDelay     = 2 * time.Second
	DefaultSessionTimeout = 30 * time.Minute
)

// ErrTooLarge is returned by the send path when the endpoint answers 413.
var ErrTooLarge = errors.New("batch rejected as too large")

// immediate events are sent synchronously instead of waiting for the next batch.
var immediate = map[analytics.EventType]struct{}{
	analytics.EventSessionStart:       {},
	analytics.EventPaymentProofUpload: {},
	analytics.EventPageExit:           {},
	analytics.EventAnalysisCompleted:  {},
	analytics.EventAnalysisFailed:     {},
	analytics.EventAPIError:           {},
}

type Options struct {
	// Endpoint is the absolute URL of POST /api/v1/analytics/track.
	Endpoint   string
	HTTPClient *http.Client
	Storage    localstore.Storage
	Logger     *zerolog.Logger
	FlushDelay time.Duration
	// SessionTimeout is the inactivity after which a stored session is not resumed.
	SessionTimeout time.Duration
	Now            func() time.Time
	// PageURL reports the current page path attached to every event.
	PageURL func() string
}

type Tracker struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger

	initMu sync.Mutex
	sendMu sync.Mutex

	mu        sync.Mutex
	sessionID string
	queue     []analytics.TrackRequest
	timer     *time.Timer
	advanced  *AdvancedData
	closed    bool
}

func New(opts Options) *Tracker {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Storage == nil {
		opts.Storage = localstore.NewMemory()
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultSessionTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "tracker").Logger()
	}
	return &Tracker{opts: opts, client: opts.HTTPClient, log: log}
}

type sessionRecord struct {
	SessionID    string    `json:"sessionId"`
	LastActivity time.Time `json:"lastActivity"`
}

// Init resumes the stored session when its last activity is recent enough,
// otherwise starts a new one and sends session_start. It is idempotent.
func (t *Tracker) Init(ctx context.Context) (string, error) {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	t.mu.Lock()
	if t.sessionID != "" {
		id := t.sessionID
		t.mu.Unlock()
		return id, nil
	}

	now := t.opts.Now()
	if rec, ok := t.loadSession(); ok && now.Sub(rec.LastActivity) < t.opts.SessionTimeout {
		t.sessionID = rec.SessionID
		t.advanced = t.loadAdvanced()
		t.saveSessionLocked(now)
		t.mu.Unlock()
		t.log.Debug().Str("session_id", rec.SessionID).Msg("session resumed")
		return rec.SessionID, nil
	}

	t.sessionID = newSessionID(now)
	t.advanced = newAdvancedData()
	t.saveAdvancedLocked()
	t.saveSessionLocked(now)
	id := t.sessionID
	t.mu.Unlock()

	_, err := t.Track(ctx, analytics.EventSessionStart, nil)
	return id, err
}

func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

type TrackOption func(*analytics.TrackRequest)

func WithStep(index int) TrackOption {
	return func(r *analytics.TrackRequest) { r.StepIndex = &index }
}

func WithFormData(data map[string]any) TrackOption {
	return func(r *analytics.TrackRequest) { r.FormData = data }
}

// Track queues an event. Immediate event types flush synchronously and
// return the server response; the rest are batched and return nil.
func (t *Tracker) Track(ctx context.Context, eventType analytics.EventType, payload any, opts ...TrackOption) (*analytics.TrackResponse, error) {
	if t.SessionID() == "" {
		if _, err := t.Init(ctx); err != nil {
			t.log.Debug().Err(err).Msg("session start not delivered yet")
		}
	}

	data, err := analytics.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	req := analytics.TrackRequest{
		EventType: eventType,
		EventData: data,
	}
	if t.opts.PageURL != nil {
		req.PageURL = t.opts.PageURL()
	}
	for _, opt := range opts {
		opt(&req)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, nil
	}
	req.SessionID = t.sessionID
	t.queue = append(t.queue, req)
	t.saveSessionLocked(t.opts.Now())
	t.mu.Unlock()

	if _, ok := immediate[eventType]; ok {
		return t.Flush(ctx)
	}
	t.scheduleFlush()
	return nil, nil
}

// scheduleFlush arms the single debounce timer. Calls while it is pending
// coalesce into the batch it will send.
func (t *Tracker) scheduleFlush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil || t.closed {
		return
	}
	t.timer = time.AfterFunc(t.opts.FlushDelay, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()
		if _, err := t.Flush(context.Background()); err != nil {
			t.log.Debug().Err(err).Msg("scheduled flush failed")
		}
	})
}

// Flush sends everything queued as one batch. On failure the undelivered
// events go back to the front of the queue and the error is returned.
// Delivery is at least once: a lost response after a successful write
// causes a resend. A batch rejected as too large is split, and a single
// event that is still too large is dropped.
func (t *Tracker) Flush(ctx context.Context) (*analytics.TrackResponse, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	events := t.queue
	t.queue = nil
	t.mu.Unlock()

	if len(events) == 0 {
		return nil, nil
	}

	resp, undelivered, err := t.deliver(ctx, events)
	if err != nil {
		t.mu.Lock()
		t.queue = append(undelivered, t.queue...)
		t.mu.Unlock()
		t.log.Warn().Err(err).Int("events", len(undelivered)).Msg("failed to send events")
		return nil, err
	}
	return resp, nil
}

// deliver sends events, halving any batch the endpoint rejects as too
// large. It returns the events still undelivered after a failure.
func (t *Tracker) deliver(ctx context.Context, events []analytics.TrackRequest) (*analytics.TrackResponse, []analytics.TrackRequest, error) {
	resp, err := t.send(ctx, events)
	switch {
	case err == nil:
		return resp, nil, nil
	case !errors.Is(err, ErrTooLarge):
		return nil, events, err
	case len(events) == 1:
		t.log.Warn().Str("event_type", string(events[0].EventType)).Msg("dropping event rejected as too large")
		return nil, nil, nil
	}

	mid := len(events) / 2
	first, rest, err := t.deliver(ctx, events[:mid])
	if err != nil {
		undelivered := append(append([]analytics.TrackRequest(nil), rest...), events[mid:]...)
		return nil, undelivered, err
	}
	last, rest, err := t.deliver(ctx, events[mid:])
	if err != nil {
		return nil, rest, err
	}
	if last == nil {
		last = first
	}
	return last, nil, nil
}

func (t *Tracker) send(ctx context.Context, events []analytics.TrackRequest) (*analytics.TrackResponse, error) {
	body, err := json.Marshal(analytics.TrackBatch{Events: events})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusRequestEntityTooLarge {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: %d events", ErrTooLarge, len(events))
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("track endpoint returned %d", res.StatusCode)
	}

	var out analytics.TrackResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode track response: %w", err)
	}
	return &out, nil
}

// Pending returns a copy of the events not yet delivered.
func (t *Tracker) Pending() []analytics.TrackRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]analytics.TrackRequest(nil), t.queue...)
}

// VisibilityChanged records the page moving to or from the background.
func (t *Tracker) VisibilityChanged(ctx context.Context, hidden bool) {
	eventType := analytics.EventTabVisible
	if hidden {
		eventType = analytics.EventTabHidden
	}
	_, _ = t.Track(ctx, eventType, nil)
}

// Exit records page_exit and pushes out whatever is still queued.
func (t *Tracker) Exit(ctx context.Context) error {
	if _, err := t.Track(ctx, analytics.EventPageExit, nil); err != nil {
		return err
	}
	_, err := t.Flush(ctx)
	return err
}

// ReportError records an uncaught script error.
func (t *Tracker) ReportError(ctx context.Context, message, filename string, line int) {
	_, _ = t.Track(ctx, analytics.EventError, analytics.ErrorData{
		Message:  message,
		Filename: filename,
		Lineno:   line,
	})
}

// Close stops the debounce timer and makes a final flush attempt. Events
// tracked afterwards are dropped.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.closed = true
	t.mu.Unlock()

	_, err := t.Flush(ctx)
	return err
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// newSessionID is the millisecond timestamp in base 36, a dash and seven
// random base 36 characters.
func newSessionID(now time.Time) string {
	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = base36[rand.Intn(len(base36))]
	}
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + string(suffix)
}

func (t *Tracker) loadSession() (sessionRecord, bool) {
	raw, ok := t.opts.Storage.Get(SessionKey)
	if !ok {
		return sessionRecord{}, false
	}
	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.SessionID == "" {
		return sessionRecord{}, false
	}
	return rec, true
}

func (t *Tracker) saveSessionLocked(now time.Time) {
	raw, err := json.Marshal(sessionRecord{SessionID: t.sessionID, LastActivity: now.UTC()})
	if err != nil {
		return
	}
	if err := t.opts.Storage.Set(SessionKey, string(raw)); err != nil {
		t.log.Debug().Err(err).Msg("persist session failed")
	}
}
