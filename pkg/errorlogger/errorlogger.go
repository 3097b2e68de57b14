// Package errorlogger captures failed HTTP calls, panics and unhandled
// errors on the client and ships them to the error log endpoint.
package errorlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cvbuilder/api/internal/ids"
	"cvbuilder/api/pkg/analytics"
	"cvbuilder/api/pkg/localstore"
	"cvbuilder/api/pkg/tracker"
)

const (
	StorageKey = "cv_error_log"

	DefaultFlushDelay    = 3 * time.Second
	DefaultFlushInterval = 30 * time.Second
	DefaultMaxStored     = 50

	errorBodyLimit = 64 << 10
)

var DefaultIgnorePatterns = []string{"/api/analytics", "/_next", "/favicon"}

type Options struct {
	// Endpoint is the absolute URL of POST /api/v1/analytics/errors.
	Endpoint string
	// Base performs the real requests, both for intercepted calls and for
	// shipping the log itself.
	Base    http.RoundTripper
	Storage localstore.Storage
	// FlushDelay debounces sends after a new error.
	FlushDelay time.Duration
	// FlushInterval retries the durable queue periodically. Negative disables it.
	FlushInterval  time.Duration
	MaxStored      int
	IgnorePatterns []string
	Logger         *zerolog.Logger
	Now            func() time.Time
}

type Logger struct {
	opts   Options
	client *http.Client
	log    zerolog.Logger

	sendMu sync.Mutex

	mu          sync.Mutex
	queue       []analytics.ErrorLogEntry
	timer       *time.Timer
	initialized bool
	closed      bool
	stop        chan struct{}
	done        chan struct{}
}

func New(opts Options) *Logger {
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.Storage == nil {
		opts.Storage = localstore.NewMemory()
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxStored <= 0 {
		opts.MaxStored = DefaultMaxStored
	}
	if opts.IgnorePatterns == nil {
		opts.IgnorePatterns = DefaultIgnorePatterns
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "errorlogger").Logger()
	}
	return &Logger{
		opts:   opts,
		client: &http.Client{Transport: opts.Base, Timeout: 10 * time.Second},
		log:    log,
	}
}

// Init restores errors left over from a previous run and starts the
// periodic flush. Calling it again is a no-op.
func (l *Logger) Init(ctx context.Context) {
	l.mu.Lock()
	if l.initialized {
		l.mu.Unlock()
		return
	}
	l.initialized = true

	if raw, ok := l.opts.Storage.Get(StorageKey); ok {
		var stored []analytics.ErrorLogEntry
		if err := json.Unmarshal([]byte(raw), &stored); err == nil {
			l.queue = append(stored, l.queue...)
		}
	}
	pending := len(l.queue)

	if l.opts.FlushInterval > 0 {
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go l.loop(l.opts.FlushInterval, l.stop, l.done)
	}
	l.mu.Unlock()

	if pending > 0 {
		l.log.Debug().Int("errors", pending).Msg("restored stored errors")
		l.scheduleFlush()
	}
}

func (l *Logger) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := l.Flush(context.Background()); err != nil {
				l.log.Debug().Err(err).Msg("periodic flush failed")
			}
		}
	}
}

// LogError stamps entry with an id, timestamp and the current analytics
// session, stores it durably and schedules a send.
func (l *Logger) LogError(entry analytics.ErrorLogEntry) {
	entry.ID = ids.WithPrefix("err")
	entry.Timestamp = l.opts.Now().UTC()
	if entry.SessionID == "" {
		entry.SessionID = l.sessionID()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, entry)
	l.saveLocked()
	l.mu.Unlock()

	l.log.Error().
		Str("type", string(entry.Type)).
		Int("status", entry.StatusCode).
		Str("url", entry.URL).
		Msg(entry.Message)
	l.scheduleFlush()
}

func (l *Logger) LogFetchError(url, method string, statusCode int, message string, extra map[string]any) {
	l.LogError(analytics.ErrorLogEntry{
		Type:       analytics.ErrorTypeFetch,
		URL:        url,
		Method:     method,
		StatusCode: statusCode,
		Message:    message,
		Context:    extra,
	})
}

// CaptureUnhandled records an error nothing else handled.
func (l *Logger) CaptureUnhandled(err error) {
	if err == nil {
		return
	}
	l.LogError(analytics.ErrorLogEntry{
		Type:    analytics.ErrorTypeUnhandled,
		Message: err.Error(),
	})
}

// Recover is meant to be deferred. It records a panic as a runtime error,
// tries to ship it and panics again with the same value.
func (l *Logger) Recover() {
	r := recover()
	if r == nil {
		return
	}
	l.LogError(analytics.ErrorLogEntry{
		Type:    analytics.ErrorTypeRuntime,
		Message: fmt.Sprint(r),
		Stack:   string(debug.Stack()),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = l.Flush(ctx)
	cancel()
	panic(r)
}

func (l *Logger) scheduleFlush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil || l.closed {
		return
	}
	l.timer = time.AfterFunc(l.opts.FlushDelay, func() {
		l.mu.Lock()
		l.timer = nil
		l.mu.Unlock()
		if err := l.Flush(context.Background()); err != nil {
			l.log.Debug().Err(err).Msg("scheduled flush failed")
		}
	})
}

// Flush ships the queued errors in one batch through the base transport.
// A failed send puts them back in front of anything logged meanwhile.
func (l *Logger) Flush(ctx context.Context) error {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := l.send(ctx, batch)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.queue = append(batch, l.queue...)
		l.saveLocked()
		return err
	}
	if len(l.queue) == 0 {
		_ = l.opts.Storage.Remove(StorageKey)
	} else {
		l.saveLocked()
	}
	return nil
}

func (l *Logger) send(ctx context.Context, batch []analytics.ErrorLogEntry) error {
	body, err := json.Marshal(analytics.ErrorBatch{Errors: batch})
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("error endpoint returned %d", res.StatusCode)
	}
	return nil
}

// LocalErrors returns a copy of the errors not yet delivered.
func (l *Logger) LocalErrors() []analytics.ErrorLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]analytics.ErrorLogEntry(nil), l.queue...)
}

// Close stops background flushing and makes one last delivery attempt.
// Undelivered errors stay in storage for the next Init.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	stop, done := l.stop, l.done
	l.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return l.Flush(ctx)
}

// saveLocked persists the newest MaxStored entries.
func (l *Logger) saveLocked() {
	toStore := l.queue
	if len(toStore) > l.opts.MaxStored {
		toStore = toStore[len(toStore)-l.opts.MaxStored:]
	}
	raw, err := json.Marshal(toStore)
	if err != nil {
		return
	}
	if err := l.opts.Storage.Set(StorageKey, string(raw)); err != nil {
		l.log.Debug().Err(err).Msg("persist errors failed")
	}
}

func (l *Logger) sessionID() string {
	raw, ok := l.opts.Storage.Get(tracker.SessionKey)
	if !ok {
		return ""
	}
	var rec struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ""
	}
	return rec.SessionID
}

func (l *Logger) ignored(url string) bool {
	for _, p := range l.opts.IgnorePatterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}
