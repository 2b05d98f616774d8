package api

import (
	"fmt"
	"time"

	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/simulator"
)

// planDateLayout is the wire format for plan dates.
const planDateLayout = "2006-01-02"

type (
	// PlanTarget carries the (date, shift) pair every command operates on.
	// An empty date means today; an empty shift means MORNING.
	PlanTarget struct {
		Date  string `json:"date,omitempty"`
		Shift string `json:"shift,omitempty"`
	}

	// GenerateDecisionRequest is the body of POST /api/v1/decisions/generate.
	GenerateDecisionRequest struct {
		PlanTarget
	}

	// OptimizeRequest is the body of POST /api/v1/optimize. Params left nil
	// use the deployment defaults.
	OptimizeRequest struct {
		PlanTarget

		Params *optimizer.Params `json:"params,omitempty"`
	}

	// WhatIfRequest is the body of POST /api/v1/what-if.
	WhatIfRequest struct {
		PlanTarget

		Scenarios []simulator.Scenario `json:"scenarios"`
	}

	// HealthStatus is the health check response.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
		EventSeq    uint64 `json:"eventSeq"`
	}

	// RunListResponse wraps the known optimization runs, newest first.
	RunListResponse struct {
		Runs []optimizer.RunView `json:"runs"`
	}
)

// resolve parses the target into concrete values, defaulting to today's
// morning shift.
func (t PlanTarget) resolve(now time.Time) (time.Time, fleet.Shift, error) {
	date := now.Truncate(24 * time.Hour)

	if t.Date != "" {
		parsed, err := time.Parse(planDateLayout, t.Date)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("invalid date %q: expected YYYY-MM-DD", t.Date)
		}

		date = parsed
	}

	shift := fleet.ShiftMorning

	if t.Shift != "" {
		parsed, err := fleet.ParseShift(t.Shift)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("invalid shift %q", t.Shift)
		}

		shift = parsed
	}

	return date, shift, nil
}
