package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestEffectivePaymentStatus(t *testing.T) {
	require.Nil(t, SessionPatch{}.EffectivePaymentStatus())

	withProof := SessionPatch{PaymentProofURL: ptr("https://cdn/p.png")}
	require.Equal(t, PaymentStatusUploaded, *withProof.EffectivePaymentStatus())

	explicit := SessionPatch{PaymentProofURL: ptr("x"), PaymentStatus: ptr(PaymentStatusVerified)}
	require.Equal(t, PaymentStatusVerified, *explicit.EffectivePaymentStatus())
}

func TestSessionFilterMatches(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := Session{
		ID:             "s1",
		IP:             "10.1.2.3",
		Country:        ptr("SY"),
		StartedAt:      start,
		MaxStepReached: 3,
		PaymentStatus:  PaymentStatusUploaded,
		IsActive:       true,
	}

	cases := []struct {
		name   string
		filter SessionFilter
		want   bool
	}{
		{"empty", SessionFilter{}, true},
		{"start before", SessionFilter{StartDate: ptr(start.Add(-time.Hour))}, true},
		{"start after", SessionFilter{StartDate: ptr(start.Add(time.Hour))}, false},
		{"end before", SessionFilter{EndDate: ptr(start.Add(-time.Hour))}, false},
		{"country", SessionFilter{Country: "SY"}, true},
		{"other country", SessionFilter{Country: "DE"}, false},
		{"min step", SessionFilter{MinStep: ptr(3)}, true},
		{"min step above", SessionFilter{MinStep: ptr(4)}, false},
		{"max step below", SessionFilter{MaxStep: ptr(2)}, false},
		{"payment", SessionFilter{PaymentStatus: PaymentStatusUploaded}, true},
		{"payment other", SessionFilter{PaymentStatus: PaymentStatusPending}, false},
		{"inactive", SessionFilter{IsActive: ptr(false)}, false},
		{"ip substring", SessionFilter{Search: "1.2"}, true},
		{"ip miss", SessionFilter{Search: "192."}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.filter.Matches(s))
		})
	}
}

func TestDashboardStatsFinalize(t *testing.T) {
	stats := DashboardStats{TotalSessions: 8, CompletedForms: 2}
	stats.Finalize()
	require.Equal(t, 6, stats.AbandonedSessions)
	require.InDelta(t, 25.0, stats.ConversionRate, 0.0001)
	require.NotNil(t, stats.StepDropoffs)

	empty := DashboardStats{}
	empty.Finalize()
	require.Zero(t, empty.ConversionRate)
	require.Equal(t, empty.TotalSessions, empty.CompletedForms+empty.AbandonedSessions)
}
