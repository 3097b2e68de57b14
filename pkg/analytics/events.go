// Package analytics holds the event vocabulary and wire shapes shared by the
// client libraries and the ingestion server.
package analytics

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventPageView           EventType = "page_view"
	EventStepView           EventType = "step_view"
	EventStepComplete       EventType = "step_complete"
	EventFormFieldFill      EventType = "form_field_fill"
	EventButtonClick        EventType = "button_click"
	EventFileUpload         EventType = "file_upload"
	EventPDFUpload          EventType = "pdf_upload"
	EventPaymentProofUpload EventType = "payment_proof_upload"
	EventTabVisible         EventType = "tab_visible"
	EventTabHidden          EventType = "tab_hidden"
	EventPageExit           EventType = "page_exit"
	EventSessionStart       EventType = "session_start"
	EventSessionEnd         EventType = "session_end"
	EventError              EventType = "error"
)

// Client-side vocabulary for the advanced (AI-assisted) wizard. The ingestion
// endpoint does not record these.
const (
	EventAdvancedModeStart    EventType = "advanced_mode_start"
	EventSourceAdded          EventType = "source_added"
	EventSourceRemoved        EventType = "source_removed"
	EventSourceTypeChanged    EventType = "source_type_changed"
	EventAnalysisStarted      EventType = "analysis_started"
	EventAnalysisCompleted    EventType = "analysis_completed"
	EventAnalysisFailed       EventType = "analysis_failed"
	EventChatMessageSent      EventType = "chat_message_sent"
	EventChatResponseReceived EventType = "chat_response_received"
	EventCVEditApplied        EventType = "cv_edit_applied"
	EventAPIError             EventType = "api_error"
)

var recognized = map[EventType]struct{}{
	EventPageView:           {},
	EventStepView:           {},
	EventStepComplete:       {},
	EventFormFieldFill:      {},
	EventButtonClick:        {},
	EventFileUpload:         {},
	EventPDFUpload:          {},
	EventPaymentProofUpload: {},
	EventTabVisible:         {},
	EventTabHidden:          {},
	EventPageExit:           {},
	EventSessionStart:       {},
	EventSessionEnd:         {},
	EventError:              {},
}

// Recognized reports whether the server records events of this type.
func (t EventType) Recognized() bool {
	_, ok := recognized[t]
	return ok
}

// RecognizedEventTypes returns the recorded vocabulary in declaration order.
func RecognizedEventTypes() []EventType {
	return []EventType{
		EventPageView, EventStepView, EventStepComplete, EventFormFieldFill,
		EventButtonClick, EventFileUpload, EventPDFUpload, EventPaymentProofUpload,
		EventTabVisible, EventTabHidden, EventPageExit, EventSessionStart,
		EventSessionEnd, EventError,
	}
}

// TrackRequest is one queued tracking call as sent by the client tracker.
type TrackRequest struct {
	SessionID string          `json:"sessionId,omitempty"`
	EventType EventType       `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	StepIndex *int            `json:"stepIndex,omitempty"`
	PageURL   string          `json:"pageUrl,omitempty"`
	FormData  map[string]any  `json:"formData,omitempty"`
}

type TrackBatch struct {
	Events []TrackRequest `json:"events"`
}

type TrackResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

type ErrorType string

const (
	ErrorTypeFetch     ErrorType = "fetch"
	ErrorTypeRuntime   ErrorType = "runtime"
	ErrorTypeUnhandled ErrorType = "unhandled"
)

// ErrorLogEntry is a lower-fidelity diagnostic record kept apart from events.
type ErrorLogEntry struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Type       ErrorType      `json:"type"`
	StatusCode int            `json:"statusCode,omitempty"`
	URL        string         `json:"url,omitempty"`
	Method     string         `json:"method,omitempty"`
	Message    string         `json:"message"`
	Stack      string         `json:"stack,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

type ErrorBatch struct {
	Errors []ErrorLogEntry `json:"errors"`
}
