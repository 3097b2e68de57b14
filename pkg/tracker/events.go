package tracker

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"cvbuilder/api/pkg/analytics"
)

// Wizard helpers. Each one is a thin wrapper over Track with the typed payload.

func (t *Tracker) TrackStep(ctx context.Context, stepIndex int, stepName string) {
	_, _ = t.Track(ctx, analytics.EventStepView, analytics.StepViewData{StepName: stepName}, WithStep(stepIndex))
}

func (t *Tracker) TrackStepComplete(ctx context.Context, stepIndex int, formData map[string]any) {
	_, _ = t.Track(ctx, analytics.EventStepComplete, analytics.StepCompleteData{StepIndex: stepIndex},
		WithStep(stepIndex), WithFormData(formData))
}

func (t *Tracker) TrackFieldFill(ctx context.Context, fieldName string, stepIndex int) {
	_, _ = t.Track(ctx, analytics.EventFormFieldFill, analytics.FieldFillData{FieldName: fieldName}, WithStep(stepIndex))
}

type FileKind string

const (
	FilePDF          FileKind = "pdf"
	FilePaymentProof FileKind = "payment_proof"
)

// TrackFileUpload records a pdf or payment proof upload. Payment proofs are
// sent immediately.
func (t *Tracker) TrackFileUpload(ctx context.Context, kind FileKind, fileName string) (*analytics.TrackResponse, error) {
	eventType := analytics.EventPDFUpload
	if kind == FilePaymentProof {
		eventType = analytics.EventPaymentProofUpload
	}
	return t.Track(ctx, eventType, analytics.FileUploadData{FileName: fileName})
}

func (t *Tracker) TrackClick(ctx context.Context, buttonID, buttonText string) {
	_, _ = t.Track(ctx, analytics.EventButtonClick, analytics.ClickData{ButtonID: buttonID, ButtonText: buttonText})
}

type Source struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Value        string    `json:"value"`
	DetectedType string    `json:"detectedType,omitempty"`
	AddedAt      time.Time `json:"addedAt"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Changes is set on assistant messages that proposed CV edits.
	Changes map[string]any `json:"changes,omitempty"`
}

// AdvancedData is the locally kept state of the AI-assisted wizard.
type AdvancedData struct {
	Mode           string         `json:"mode"`
	Sources        []Source       `json:"sources"`
	AnalysisResult map[string]any `json:"analysisResult,omitempty"`
	ChatHistory    []ChatMessage  `json:"chatHistory"`
}

func newAdvancedData() *AdvancedData {
	return &AdvancedData{Mode: "simple", Sources: []Source{}, ChatHistory: []ChatMessage{}}
}

func (d *AdvancedData) clone() AdvancedData {
	out := *d
	out.Sources = append([]Source(nil), d.Sources...)
	out.ChatHistory = append([]ChatMessage(nil), d.ChatHistory...)
	return out
}

// AdvancedData returns a copy of the current advanced wizard state.
func (t *Tracker) AdvancedData() AdvancedData {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advanced == nil {
		return newAdvancedData().clone()
	}
	return t.advanced.clone()
}

// updateAdvanced starts the session first so a fresh session does not
// overwrite the mutation with empty state.
func (t *Tracker) updateAdvanced(ctx context.Context, fn func(*AdvancedData)) {
	if t.SessionID() == "" {
		_, _ = t.Init(ctx)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.advanced == nil {
		t.advanced = newAdvancedData()
	}
	fn(t.advanced)
	t.saveAdvancedLocked()
}

func (t *Tracker) TrackAdvancedModeStart(ctx context.Context) {
	t.updateAdvanced(ctx, func(d *AdvancedData) { d.Mode = "advanced" })
	_, _ = t.Track(ctx, analytics.EventAdvancedModeStart, nil)
}

func (t *Tracker) TrackSourceAdded(ctx context.Context, src Source) {
	if src.AddedAt.IsZero() {
		src.AddedAt = t.opts.Now().UTC()
	}
	t.updateAdvanced(ctx, func(d *AdvancedData) { d.Sources = append(d.Sources, src) })
	_, _ = t.Track(ctx, analytics.EventSourceAdded, analytics.SourceData{
		SourceID:     src.ID,
		SourceType:   src.Type,
		SourceValue:  src.Value,
		DetectedType: src.DetectedType,
	})
}

func (t *Tracker) TrackSourceRemoved(ctx context.Context, sourceID string) {
	t.updateAdvanced(ctx, func(d *AdvancedData) {
		kept := d.Sources[:0]
		for _, s := range d.Sources {
			if s.ID != sourceID {
				kept = append(kept, s)
			}
		}
		d.Sources = kept
	})
	_, _ = t.Track(ctx, analytics.EventSourceRemoved, analytics.SourceData{SourceID: sourceID})
}

func (t *Tracker) TrackSourceTypeChanged(ctx context.Context, sourceID, newType string) {
	t.updateAdvanced(ctx, func(d *AdvancedData) {
		for i := range d.Sources {
			if d.Sources[i].ID == sourceID {
				d.Sources[i].Type = newType
			}
		}
	})
	_, _ = t.Track(ctx, analytics.EventSourceTypeChanged, analytics.SourceData{SourceID: sourceID, NewType: newType})
}

func (t *Tracker) TrackAnalysisStarted(ctx context.Context, sourcesCount int, hasAdditionalText bool) {
	_, _ = t.Track(ctx, analytics.EventAnalysisStarted, analytics.AnalysisData{
		SourcesCount:      sourcesCount,
		HasAdditionalText: hasAdditionalText,
	})
}

func (t *Tracker) TrackAnalysisCompleted(ctx context.Context, result map[string]any) (*analytics.TrackResponse, error) {
	t.updateAdvanced(ctx, func(d *AdvancedData) { d.AnalysisResult = result })
	_, hasJob := result["jobProfile"]
	return t.Track(ctx, analytics.EventAnalysisCompleted, analytics.AnalysisData{Success: true, HasJobProfile: hasJob})
}

func (t *Tracker) TrackAnalysisFailed(ctx context.Context, errMsg string) (*analytics.TrackResponse, error) {
	return t.Track(ctx, analytics.EventAnalysisFailed, analytics.AnalysisData{Error: errMsg})
}

func (t *Tracker) TrackChatMessageSent(ctx context.Context, msg ChatMessage) {
	t.appendChat(ctx, &msg, "user")
	_, _ = t.Track(ctx, analytics.EventChatMessageSent, analytics.ChatData{
		MessageID:     msg.ID,
		ContentLength: len(msg.Content),
	})
}

func (t *Tracker) TrackChatResponseReceived(ctx context.Context, msg ChatMessage) {
	t.appendChat(ctx, &msg, "assistant")
	_, _ = t.Track(ctx, analytics.EventChatResponseReceived, analytics.ChatData{
		MessageID:     msg.ID,
		ContentLength: len(msg.Content),
		HasChanges:    len(msg.Changes) > 0,
	})
}

func (t *Tracker) appendChat(ctx context.Context, msg *ChatMessage, role string) {
	if msg.Role == "" {
		msg.Role = role
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = t.opts.Now().UTC()
	}
	t.updateAdvanced(ctx, func(d *AdvancedData) { d.ChatHistory = append(d.ChatHistory, *msg) })
}

func (t *Tracker) TrackCVEditApplied(ctx context.Context, changes map[string]any) {
	fields := make([]string, 0, len(changes))
	for k := range changes {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	_, _ = t.Track(ctx, analytics.EventCVEditApplied, analytics.ChatData{ChangedFields: fields, HasChanges: len(fields) > 0})
}

func (t *Tracker) TrackAPIError(ctx context.Context, url string, statusCode int, errMsg string) (*analytics.TrackResponse, error) {
	return t.Track(ctx, analytics.EventAPIError, analytics.APIErrorData{URL: url, StatusCode: statusCode, Error: errMsg})
}

func (t *Tracker) loadAdvanced() *AdvancedData {
	raw, ok := t.opts.Storage.Get(AdvancedKey)
	if !ok {
		return newAdvancedData()
	}
	d := newAdvancedData()
	if err := json.Unmarshal([]byte(raw), d); err != nil {
		return newAdvancedData()
	}
	if d.Sources == nil {
		d.Sources = []Source{}
	}
	if d.ChatHistory == nil {
		d.ChatHistory = []ChatMessage{}
	}
	return d
}

func (t *Tracker) saveAdvancedLocked() {
	raw, err := json.Marshal(t.advanced)
	if err != nil {
		return
	}
	if err := t.opts.Storage.Set(AdvancedKey, string(raw)); err != nil {
		t.log.Debug().Err(err).Msg("persist advanced data failed")
	}
}
