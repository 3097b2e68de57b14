package tracker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvbuilder/api/pkg/analytics"
	"cvbuilder/api/pkg/localstore"
)

type collector struct {
	mu      sync.Mutex
	batches [][]analytics.TrackRequest
	// fail makes the next n requests answer 500.
	fail int
	// maxBody answers 413 for larger bodies when set.
	maxBody int
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if c.maxBody > 0 && len(raw) > c.maxBody {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	var batch analytics.TrackBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	if c.fail > 0 {
		c.fail--
		c.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	c.batches = append(c.batches, batch.Events)
	c.mu.Unlock()

	sessionID := ""
	if len(batch.Events) > 0 {
		sessionID = batch.Events[0].SessionID
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(analytics.TrackResponse{Success: true, SessionID: sessionID, Message: "ok"})
}

func (c *collector) snapshot() [][]analytics.TrackRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]analytics.TrackRequest(nil), c.batches...)
}

func types(events []analytics.TrackRequest) []analytics.EventType {
	out := make([]analytics.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

func newTestTracker(t *testing.T, c *collector, storage localstore.Storage, now func() time.Time) *Tracker {
	t.Helper()
	srv := httptest.NewServer(c)
	t.Cleanup(srv.Close)

	tr := New(Options{
		Endpoint:   srv.URL + "/api/v1/analytics/track",
		Storage:    storage,
		FlushDelay: 100 * time.Millisecond,
		Now:        now,
		PageURL:    func() string { return "/builder" },
	})
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestInitSendsSessionStartAlone(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)

	id, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-z]+-[0-9a-z]{7}$`, id)

	batches := c.snapshot()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, analytics.EventSessionStart, batches[0][0].EventType)
	assert.Equal(t, id, batches[0][0].SessionID)
	assert.Equal(t, "/builder", batches[0][0].PageURL)

	again, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, c.snapshot(), 1)
}

func TestDeferredThenExitShipsOneOrderedBatch(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()

	_, err := tr.Init(ctx)
	require.NoError(t, err)

	tr.TrackStep(ctx, 1, "experience")
	require.NoError(t, tr.Exit(ctx))

	batches := c.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, []analytics.EventType{analytics.EventStepView, analytics.EventPageExit}, types(batches[1]))
	require.NotNil(t, batches[1][0].StepIndex)
	assert.Equal(t, 1, *batches[1][0].StepIndex)

	// the pending debounce finds an empty queue
	time.Sleep(250 * time.Millisecond)
	assert.Len(t, c.snapshot(), 2)
}

func TestDebounceCoalesces(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()
	_, err := tr.Init(ctx)
	require.NoError(t, err)

	tr.TrackClick(ctx, "next", "Next")
	tr.TrackFieldFill(ctx, "fullName", 0)
	tr.VisibilityChanged(ctx, true)

	require.Eventually(t, func() bool { return len(c.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	batches := c.snapshot()
	assert.Equal(t, []analytics.EventType{
		analytics.EventButtonClick, analytics.EventFormFieldFill, analytics.EventTabHidden,
	}, types(batches[1]))
	assert.Empty(t, tr.Pending())
}

func TestFailedFlushRequeuesAtFront(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()
	_, err := tr.Init(ctx)
	require.NoError(t, err)

	c.mu.Lock()
	c.fail = 1
	c.mu.Unlock()

	_, err = tr.TrackFileUpload(ctx, FilePaymentProof, "proof.png")
	require.Error(t, err)
	assert.Equal(t, []analytics.EventType{analytics.EventPaymentProofUpload}, types(tr.Pending()))

	resp, err := tr.TrackAPIError(ctx, "/api/save", 502, "bad gateway")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Success)

	batches := c.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, []analytics.EventType{analytics.EventPaymentProofUpload, analytics.EventAPIError}, types(batches[1]))
}

func TestResumesRecentSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := localstore.NewMemory()
	require.NoError(t, store.Set(SessionKey, `{"sessionId":"abc-1234567","lastActivity":"2026-03-01T11:50:00Z"}`))

	c := &collector{}
	tr := newTestTracker(t, c, store, func() time.Time { return now })

	id, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc-1234567", id)
	assert.Empty(t, c.snapshot())

	raw, ok := store.Get(SessionKey)
	require.True(t, ok)
	var rec sessionRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.True(t, rec.LastActivity.Equal(now))
}

func TestExpiredSessionStartsFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := localstore.NewMemory()
	require.NoError(t, store.Set(SessionKey, `{"sessionId":"abc-1234567","lastActivity":"2026-03-01T11:20:00Z"}`))

	c := &collector{}
	tr := newTestTracker(t, c, store, func() time.Time { return now })

	id, err := tr.Init(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "abc-1234567", id)

	batches := c.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, analytics.EventSessionStart, batches[0][0].EventType)
}

func TestTrackInitializesLazily(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)

	_, err := tr.TrackAnalysisFailed(context.Background(), "timeout")
	require.NoError(t, err)

	batches := c.snapshot()
	require.Len(t, batches, 2)
	assert.Equal(t, analytics.EventSessionStart, batches[0][0].EventType)
	assert.Equal(t, analytics.EventAnalysisFailed, batches[1][0].EventType)
	assert.Equal(t, tr.SessionID(), batches[1][0].SessionID)
}

func TestAdvancedDataPersists(t *testing.T) {
	c := &collector{}
	store := localstore.NewMemory()
	tr := newTestTracker(t, c, store, nil)
	ctx := context.Background()

	tr.TrackAdvancedModeStart(ctx)
	tr.TrackSourceAdded(ctx, Source{ID: "s1", Type: "url", Value: "https://example.com/cv"})
	tr.TrackSourceAdded(ctx, Source{ID: "s2", Type: "text", Value: "notes"})
	tr.TrackSourceTypeChanged(ctx, "s1", "linkedin")
	tr.TrackSourceRemoved(ctx, "s2")
	tr.TrackChatMessageSent(ctx, ChatMessage{ID: "m1", Content: "shorten my summary"})
	_, err := tr.TrackAnalysisCompleted(ctx, map[string]any{"jobProfile": "engineer"})
	require.NoError(t, err)

	data := tr.AdvancedData()
	assert.Equal(t, "advanced", data.Mode)
	require.Len(t, data.Sources, 1)
	assert.Equal(t, "linkedin", data.Sources[0].Type)
	assert.False(t, data.Sources[0].AddedAt.IsZero())
	require.Len(t, data.ChatHistory, 1)
	assert.Equal(t, "user", data.ChatHistory[0].Role)
	assert.Equal(t, "engineer", data.AnalysisResult["jobProfile"])

	// a second tracker on the same storage resumes both records
	other := New(Options{Endpoint: "http://127.0.0.1:1", Storage: store})
	id, err := other.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, tr.SessionID(), id)
	assert.Equal(t, data.Sources, other.AdvancedData().Sources)
}

func TestConcurrentTrackDeliversEverything(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()
	_, err := tr.Init(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr.TrackStep(ctx, i%5, "step")
		}(i)
	}
	wg.Wait()
	require.NoError(t, tr.Exit(ctx))

	total := 0
	for _, b := range c.snapshot() {
		total += len(b)
	}
	assert.Equal(t, 22, total)
}

func TestCloseDropsLaterEvents(t *testing.T) {
	c := &collector{}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()
	_, err := tr.Init(ctx)
	require.NoError(t, err)

	tr.TrackClick(ctx, "a", "")
	require.NoError(t, tr.Close(ctx))
	require.Len(t, c.snapshot(), 2)

	tr.TrackClick(ctx, "b", "")
	assert.Empty(t, tr.Pending())
}

func TestOversizedEventIsDroppedNotRequeued(t *testing.T) {
	c := &collector{maxBody: 2048}
	tr := newTestTracker(t, c, localstore.NewMemory(), nil)
	ctx := context.Background()
	_, err := tr.Init(ctx)
	require.NoError(t, err)

	tr.TrackStepComplete(ctx, 2, map[string]any{"summary": strings.Repeat("x", 4096)})
	tr.TrackClick(ctx, "next", "Next")
	require.NoError(t, tr.Exit(ctx))
	assert.Empty(t, tr.Pending())

	var delivered []analytics.EventType
	for _, b := range c.snapshot() {
		delivered = append(delivered, types(b)...)
	}
	assert.Equal(t, []analytics.EventType{
		analytics.EventSessionStart, analytics.EventButtonClick, analytics.EventPageExit,
	}, delivered)

	// later flushes are not blocked by the dropped event
	_, err = tr.TrackFileUpload(ctx, FilePaymentProof, "proof.png")
	require.NoError(t, err)
	batches := c.snapshot()
	assert.Equal(t, []analytics.EventType{analytics.EventPaymentProofUpload}, types(batches[len(batches)-1]))
}
