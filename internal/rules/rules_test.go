package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inductor-io/inductor/internal/fleet"
)

var rulesNow = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

func testTrainset() *fleet.Trainset {
	last := rulesNow.Add(-2 * 24 * time.Hour)

	return &fleet.Trainset{
		ID:             "ts-001",
		Number:         "TS-001",
		Status:         fleet.StatusAvailable,
		Depot:          "Muttom",
		Location:       "Muttom",
		CurrentMileage: 50_000,
		TotalMileage:   240_000,
		LastCleaning:   &last,
		IsActive:       true,
	}
}

func contextWith(ts *fleet.Trainset) *fleet.Context {
	return &fleet.Context{
		Date:      rulesNow,
		Shift:     fleet.ShiftMorning,
		Trainsets: []fleet.Trainset{*ts},
	}
}

func validCert(trainsetID string, daysToExpiry int) fleet.FitnessCertificate {
	return fleet.FitnessCertificate{
		ID:         "cert-" + trainsetID,
		TrainsetID: trainsetID,
		IssuedAt:   rulesNow.Add(-90 * 24 * time.Hour),
		ExpiresAt:  rulesNow.Add(time.Duration(daysToExpiry) * 24 * time.Hour),
		Status:     fleet.CertificateValid,
	}
}

func TestCertificateBands(t *testing.T) {
	tests := []struct {
		name         string
		daysToExpiry int
		wantScore    float64
		wantTag      Tag
	}{
		{"comfortable", 45, 100, TagOK},
		{"notice", 20, 80, TagOK},
		{"closing in", 10, 60, TagWarning},
		{"urgent", 3, 30, TagWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testTrainset()
			ctx := contextWith(ts)
			ctx.Certificates = []fleet.FitnessCertificate{validCert(ts.ID, tt.daysToExpiry)}

			result := EvaluateCertificate(ts, ctx, rulesNow)

			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantTag, result.Tag)
			assert.True(t, result.CanInduct)
		})
	}
}

func TestCertificateMissingIsCritical(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)

	result := EvaluateCertificate(ts, ctx, rulesNow)

	assert.Zero(t, result.Score)
	assert.Equal(t, TagCritical, result.Tag)
	assert.False(t, result.CanInduct)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "no fitness certificate")
}

func TestCertificateExpiredIsCritical(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)

	cert := validCert(ts.ID, 30)
	cert.ExpiresAt = rulesNow.Add(-time.Hour)
	ctx.Certificates = []fleet.FitnessCertificate{cert}

	result := EvaluateCertificate(ts, ctx, rulesNow)

	assert.Zero(t, result.Score)
	assert.Equal(t, TagCritical, result.Tag)
	assert.False(t, result.CanInduct)
}

func TestCertificateSuspendedIsCritical(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)

	cert := validCert(ts.ID, 30)
	cert.Status = fleet.CertificateSuspended
	ctx.Certificates = []fleet.FitnessCertificate{cert}

	result := EvaluateCertificate(ts, ctx, rulesNow)

	assert.False(t, result.CanInduct)
	assert.Contains(t, result.Warnings[0], "SUSPENDED")
}

func openCard(trainsetID string, n int, priority fleet.JobCardPriority) []fleet.JobCard {
	cards := make([]fleet.JobCard, 0, n)

	for i := range n {
		cards = append(cards, fleet.JobCard{
			ID:         "jc-" + string(rune('a'+i)),
			TrainsetID: trainsetID,
			Priority:   priority,
			Status:     fleet.JobCardOpen,
		})
	}

	return cards
}

func TestWorkOrderBlockingCardDisqualifies(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.JobCards = openCard(ts.ID, 1, fleet.PriorityCritical)

	result := EvaluateWorkOrder(ts, ctx)

	assert.Equal(t, float64(20), result.Score)
	assert.Equal(t, TagCritical, result.Tag)
	assert.False(t, result.CanInduct)
}

func TestWorkOrderBacklog(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.JobCards = openCard(ts.ID, 4, fleet.PriorityLow)

	result := EvaluateWorkOrder(ts, ctx)

	assert.Equal(t, float64(40), result.Score)
	assert.Equal(t, TagWarning, result.Tag)
	assert.True(t, result.CanInduct)
}

func TestWorkOrderFewOpenCards(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.JobCards = openCard(ts.ID, 2, fleet.PriorityMedium)

	result := EvaluateWorkOrder(ts, ctx)

	assert.Equal(t, float64(70), result.Score)
	assert.True(t, result.CanInduct)
}

func TestWorkOrderTerminalCardsIgnored(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.JobCards = []fleet.JobCard{{
		ID:         "jc-done",
		TrainsetID: ts.ID,
		Priority:   fleet.PriorityCritical,
		Status:     fleet.JobCardCompleted,
	}}

	result := EvaluateWorkOrder(ts, ctx)

	assert.Equal(t, float64(100), result.Score)
	assert.True(t, result.CanInduct)
}

func TestBrandingNeutralWithoutCampaign(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)

	result := EvaluateBranding(ts, ctx, rulesNow)

	assert.Equal(t, brandNeutral, result.Score)
	assert.Equal(t, TagOK, result.Tag)
	assert.True(t, result.CanInduct)
}

func TestBrandingTopTierBehindSchedule(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.Branding = []fleet.BrandingRecord{{
		ID:                "brand-1",
		TrainsetID:        ts.ID,
		Campaign:          "Skyline Cola",
		Priority:          90,
		TargetHoursPerDay: 12,
		DeliveredHours:    0,
		ContractStart:     rulesNow.Add(-10 * 24 * time.Hour),
		ContractEnd:       rulesNow.Add(20 * 24 * time.Hour),
	}}

	result := EvaluateBranding(ts, ctx, rulesNow)

	assert.Equal(t, float64(100), result.Score)
	assert.Equal(t, TagWarning, result.Tag)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Skyline Cola")
}

func TestBrandingExpiredCampaignIgnored(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.Branding = []fleet.BrandingRecord{{
		ID:            "brand-old",
		TrainsetID:    ts.ID,
		Campaign:      "Last Summer",
		Priority:      95,
		ContractStart: rulesNow.Add(-60 * 24 * time.Hour),
		ContractEnd:   rulesNow.Add(-30 * 24 * time.Hour),
	}}

	result := EvaluateBranding(ts, ctx, rulesNow)

	assert.Equal(t, brandNeutral, result.Score)
}

func TestMileageBands(t *testing.T) {
	tests := []struct {
		name      string
		mileage   float64
		wantScore float64
	}{
		{"near mean", 50_000, 100},
		{"skewed", 41_000, 60},
		{"far off", 30_000, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testTrainset()
			ts.CurrentMileage = tt.mileage

			// A peer pins the fleet mean at 50k.
			peer := *testTrainset()
			peer.ID = "ts-002"
			peer.CurrentMileage = 100_000 - tt.mileage

			ctx := &fleet.Context{Trainsets: []fleet.Trainset{*ts, peer}}

			result := EvaluateMileage(ts, ctx)

			assert.Equal(t, tt.wantScore, result.Score)
		})
	}
}

func TestCleaningBands(t *testing.T) {
	tests := []struct {
		name      string
		daysAgo   int
		wantScore float64
		wantTag   Tag
	}{
		{"fresh", 2, 100, TagOK},
		{"due", 9, 60, TagWarning},
		{"long overdue", 20, 20, TagWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testTrainset()
			last := rulesNow.Add(-time.Duration(tt.daysAgo) * 24 * time.Hour)
			ts.LastCleaning = &last

			result := EvaluateCleaning(ts, rulesNow, DefaultCleaningCycle)

			assert.Equal(t, tt.wantScore, result.Score)
			assert.Equal(t, tt.wantTag, result.Tag)
		})
	}
}

func TestCleaningNeverCleanedScoresOverdue(t *testing.T) {
	ts := testTrainset()
	ts.LastCleaning = nil

	result := EvaluateCleaning(ts, rulesNow, DefaultCleaningCycle)

	assert.Equal(t, float64(20), result.Score)
	assert.Equal(t, TagWarning, result.Tag)
}

func TestStablingComplexity(t *testing.T) {
	tests := []struct {
		name           string
		location       string
		wantComplexity int
		wantScore      float64
	}{
		{"at home depot", "Muttom", 0, 100},
		{"away from depot", "Aluva Yard", 2, 60},
		{"terminal away from depot", "Aluva Terminal", 3, 60},
		{"no location recorded", "", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testTrainset()
			ts.Location = tt.location

			assert.Equal(t, tt.wantComplexity, ShuntingComplexity(ts))

			result := EvaluateStabling(ts)
			assert.Equal(t, tt.wantScore, result.Score)
		})
	}
}

func TestEvaluateAggregatesAllSixRules(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.Certificates = []fleet.FitnessCertificate{validCert(ts.ID, 45)}

	set := Evaluate(ts, ctx, Params{Now: rulesNow})

	require.Len(t, set.All(), 6)
	assert.True(t, set.Eligible())
	assert.False(t, set.HasCritical())
}

func TestSetEligibleRequiresBothHardRules(t *testing.T) {
	ts := testTrainset()
	ctx := contextWith(ts)
	ctx.Certificates = []fleet.FitnessCertificate{validCert(ts.ID, 45)}
	ctx.JobCards = openCard(ts.ID, 1, fleet.PriorityHigh)

	set := Evaluate(ts, ctx, Params{Now: rulesNow})

	assert.False(t, set.Eligible())
	assert.True(t, set.HasCritical())
}
