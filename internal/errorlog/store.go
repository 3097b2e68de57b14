package errorlog

import (
	"context"
	"strconv"
	"time"

	"cvbuilder/api/internal/ids"
	"cvbuilder/api/pkg/analytics"
)

// DefaultCap is the number of entries kept before the oldest are dropped.
const DefaultCap = 500

// Store is the capped, newest-first diagnostic error log. It is not
// authoritative and a memory-backed store is process local.
type Store interface {
	Append(ctx context.Context, entries ...analytics.ErrorLogEntry) error
	List(ctx context.Context, filter Filter, limit, offset int) (Page, error)
	Clear(ctx context.Context) error
	Kind() string
}

type Filter struct {
	Type       analytics.ErrorType
	StatusCode int
	SessionID  string
}

func (f Filter) Matches(e analytics.ErrorLogEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.StatusCode != 0 && e.StatusCode != f.StatusCode {
		return false
	}
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	return true
}

// Stats counts by type and status code over the whole log, while Total is
// the size of the filtered view.
type Stats struct {
	Total        int                         `json:"total"`
	ByType       map[analytics.ErrorType]int `json:"byType"`
	ByStatusCode map[string]int              `json:"byStatusCode"`
}

type Page struct {
	Entries []analytics.ErrorLogEntry
	// Total is the number of entries matching the filter before pagination.
	Total int
	Stats Stats
}

// normalize fills the id and timestamp a client may have left out.
func normalize(e analytics.ErrorLogEntry, now time.Time) analytics.ErrorLogEntry {
	if e.ID == "" {
		e.ID = ids.WithPrefix("err")
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now.UTC()
	}
	return e
}

// paginate builds a Page from the full log, newest first.
func paginate(all []analytics.ErrorLogEntry, filter Filter, limit, offset int) Page {
	stats := Stats{
		ByType: map[analytics.ErrorType]int{
			analytics.ErrorTypeFetch:     0,
			analytics.ErrorTypeRuntime:   0,
			analytics.ErrorTypeUnhandled: 0,
		},
		ByStatusCode: map[string]int{},
	}

	filtered := make([]analytics.ErrorLogEntry, 0, len(all))
	for _, e := range all {
		if _, ok := stats.ByType[e.Type]; ok {
			stats.ByType[e.Type]++
		}
		if e.StatusCode != 0 {
			stats.ByStatusCode[strconv.Itoa(e.StatusCode)]++
		}
		if filter.Matches(e) {
			filtered = append(filtered, e)
		}
	}
	stats.Total = len(filtered)

	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return Page{
		Entries: filtered[offset:end],
		Total:   len(filtered),
		Stats:   stats,
	}
}
