package models

import (
	"encoding/json"
	"strings"
	"time"

	"cvbuilder/api/pkg/analytics"
)

// Event is an immutable fact recorded against a session.
type Event struct {
	ID        string              `json:"id"`
	SessionID string              `json:"sessionId"`
	EventType analytics.EventType `json:"eventType"`
	EventData json.RawMessage     `json:"eventData,omitempty"`
	StepIndex *int                `json:"stepIndex,omitempty"`
	PageURL   *string             `json:"pageUrl,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

type TimelineEntry struct {
	Time    time.Time           `json:"time"`
	Type    analytics.EventType `json:"type"`
	Details json.RawMessage     `json:"details,omitempty"`
	Step    *int                `json:"step,omitempty"`
}

func Timeline(events []Event) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(events))
	for _, e := range events {
		out = append(out, TimelineEntry{
			Time:    e.Timestamp,
			Type:    e.EventType,
			Details: e.EventData,
			Step:    e.StepIndex,
		})
	}
	return out
}

// DashboardStats is derived from session rows on every request.
type DashboardStats struct {
	TotalSessions     int         `json:"totalSessions"`
	ActiveSessions    int         `json:"activeSessions"`
	CompletedForms    int         `json:"completedForms"`
	PaymentUploads    int         `json:"paymentUploads"`
	AbandonedSessions int         `json:"abandonedSessions"`
	AvgTimeSpent      float64     `json:"avgTimeSpent"`
	ConversionRate    float64     `json:"conversionRate"`
	StepDropoffs      map[int]int `json:"stepDropoffs"`
}

// Finalize fills the fields derived from the raw counts.
func (s *DashboardStats) Finalize() {
	s.AbandonedSessions = s.TotalSessions - s.CompletedForms
	if s.TotalSessions > 0 {
		s.ConversionRate = float64(s.CompletedForms) / float64(s.TotalSessions) * 100
	} else {
		s.ConversionRate = 0
	}
	if s.StepDropoffs == nil {
		s.StepDropoffs = map[int]int{}
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
