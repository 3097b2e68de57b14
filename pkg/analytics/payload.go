package analytics

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Typed event payloads. Unknown fields are tolerated on decode so newer
// clients can add data without breaking ingestion.

type StepViewData struct {
	StepName string `json:"stepName,omitempty"`
}

type StepCompleteData struct {
	StepIndex int `json:"stepIndex"`
}

type FieldFillData struct {
	FieldName string `json:"fieldName"`
}

type FileUploadData struct {
	FileName string `json:"fileName"`
}

type ClickData struct {
	ButtonID   string `json:"buttonId"`
	ButtonText string `json:"buttonText,omitempty"`
}

type VisibilityData struct{}

type ErrorData struct {
	Message  string `json:"message"`
	Filename string `json:"filename,omitempty"`
	Lineno   int    `json:"lineno,omitempty"`
}

type SourceData struct {
	SourceID     string `json:"sourceId"`
	SourceType   string `json:"sourceType,omitempty"`
	SourceValue  string `json:"sourceValue,omitempty"`
	DetectedType string `json:"detectedType,omitempty"`
	NewType      string `json:"newType,omitempty"`
}

type AnalysisData struct {
	SourcesCount      int    `json:"sourcesCount,omitempty"`
	HasAdditionalText bool   `json:"hasAdditionalText,omitempty"`
	Success           bool   `json:"success,omitempty"`
	HasJobProfile     bool   `json:"hasJobProfile,omitempty"`
	Error             string `json:"error,omitempty"`
}

type ChatData struct {
	MessageID     string   `json:"messageId,omitempty"`
	ContentLength int      `json:"contentLength,omitempty"`
	HasChanges    bool     `json:"hasChanges,omitempty"`
	ChangedFields []string `json:"changedFields,omitempty"`
}

type APIErrorData struct {
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

var ErrMalformedPayload = errors.New("malformed event payload")

// DecodePayload decodes raw into the payload type registered for t. Empty
// payloads decode to nil. Types without a schema decode to map[string]any.
func DecodePayload(t EventType, raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: %s payload is not an object", ErrMalformedPayload, t)
	}

	var target any
	switch t {
	case EventStepView:
		target = &StepViewData{}
	case EventStepComplete:
		target = &StepCompleteData{}
	case EventFormFieldFill:
		target = &FieldFillData{}
	case EventFileUpload, EventPDFUpload, EventPaymentProofUpload:
		target = &FileUploadData{}
	case EventButtonClick:
		target = &ClickData{}
	case EventTabVisible, EventTabHidden:
		target = &VisibilityData{}
	case EventError:
		target = &ErrorData{}
	case EventSourceAdded, EventSourceRemoved, EventSourceTypeChanged:
		target = &SourceData{}
	case EventAnalysisStarted, EventAnalysisCompleted, EventAnalysisFailed:
		target = &AnalysisData{}
	case EventChatMessageSent, EventChatResponseReceived, EventCVEditApplied:
		target = &ChatData{}
	case EventAPIError:
		target = &APIErrorData{}
	default:
		m := map[string]any{}
		target = &m
	}

	if err := json.Unmarshal(trimmed, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, t, err)
	}
	return target, nil
}

// EncodePayload marshals a typed payload for transport. A nil payload yields nil.
func EncodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return b, nil
}
