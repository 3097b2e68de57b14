package errorlog

import (
	"context"
	"sync"
	"time"

	"cvbuilder/api/pkg/analytics"
)

type MemoryRing struct {
	mu      sync.Mutex
	entries []analytics.ErrorLogEntry
	cap     int
	now     func() time.Time
}

func NewMemoryRing(capacity int) *MemoryRing {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &MemoryRing{cap: capacity, now: time.Now}
}

func (r *MemoryRing) Kind() string { return "memory" }

func (r *MemoryRing) Append(ctx context.Context, entries ...analytics.ErrorLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, e := range entries {
		r.entries = append([]analytics.ErrorLogEntry{normalize(e, now)}, r.entries...)
	}
	if len(r.entries) > r.cap {
		r.entries = r.entries[:r.cap]
	}
	return nil
}

func (r *MemoryRing) List(ctx context.Context, filter Filter, limit, offset int) (Page, error) {
	r.mu.Lock()
	snapshot := append([]analytics.ErrorLogEntry(nil), r.entries...)
	r.mu.Unlock()

	return paginate(snapshot, filter, limit, offset), nil
}

func (r *MemoryRing) Clear(ctx context.Context) error {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
	return nil
}
