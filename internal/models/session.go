package models

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusUploaded PaymentStatus = "uploaded"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusUploaded, PaymentStatusVerified, PaymentStatusRejected:
		return true
	}
	return false
}

// Session is one visitor's continuous interaction with the wizard.
type Session struct {
	ID               string          `json:"id"`
	IP               string          `json:"ip"`
	UserAgent        string          `json:"userAgent"`
	Country          *string         `json:"country,omitempty"`
	City             *string         `json:"city,omitempty"`
	Device           *string         `json:"device,omitempty"`
	Browser          *string         `json:"browser,omitempty"`
	OS               *string         `json:"os,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	LastActivity     time.Time       `json:"lastActivity"`
	CurrentStep      int             `json:"currentStep"`
	MaxStepReached   int             `json:"maxStepReached"`
	FormData         map[string]any  `json:"formData,omitempty"`
	CVData           json.RawMessage `json:"cvData,omitempty"`
	ProfilePhoto     *string         `json:"profilePhoto,omitempty"`
	PaymentProofURL  *string         `json:"paymentProofUrl,omitempty"`
	PaymentProofData *string         `json:"paymentProofData,omitempty"`
	AdvancedData     json.RawMessage `json:"advancedData,omitempty"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	IsActive         bool            `json:"isActive"`
	TotalPageViews   int             `json:"totalPageViews"`
	TotalTimeSpent   int             `json:"totalTimeSpent"`
}

// SessionPatch carries the columns an upsert touches. Nil fields are left alone.
type SessionPatch struct {
	CurrentStep      *int
	FormData         map[string]any
	CVData           json.RawMessage
	ProfilePhoto     *string
	PaymentProofURL  *string
	PaymentProofData *string
	AdvancedData     json.RawMessage
	PaymentStatus    *PaymentStatus
}

// EffectivePaymentStatus resolves the status an upsert writes: an explicit
// status wins, a new proof URL implies uploaded, otherwise nil.
func (p SessionPatch) EffectivePaymentStatus() *PaymentStatus {
	if p.PaymentStatus != nil {
		return p.PaymentStatus
	}
	if p.PaymentProofURL != nil {
		status := PaymentStatusUploaded
		return &status
	}
	return nil
}

// RequestInfo describes the client behind the first event of a session.
type RequestInfo struct {
	IP        string
	UserAgent string
	Country   string
	City      string
	Ray       string
}

type SessionFilter struct {
	StartDate     *time.Time
	EndDate       *time.Time
	Country       string
	MinStep       *int
	MaxStep       *int
	PaymentStatus PaymentStatus
	IsActive      *bool
	Search        string
}

// Matches applies the filter to an in-process session.
func (f SessionFilter) Matches(s Session) bool {
	if f.StartDate != nil && s.StartedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && s.StartedAt.After(*f.EndDate) {
		return false
	}
	if f.Country != "" && (s.Country == nil || *s.Country != f.Country) {
		return false
	}
	if f.MinStep != nil && s.MaxStepReached < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && s.MaxStepReached > *f.MaxStep {
		return false
	}
	if f.PaymentStatus != "" && s.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.IsActive != nil && s.IsActive != *f.IsActive {
		return false
	}
	if f.Search != "" && !containsFold(s.IP, f.Search) {
		return false
	}
	return true
}
