package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/optimizer"
	"github.com/inductor-io/inductor/internal/simulator"
)

var errContentType = errors.New("Content-Type must be application/json")

// handleGenerateDecision runs the decision engine for the requested plan
// target and returns the full ranked decision.
func (s *Server) handleGenerateDecision(w http.ResponseWriter, r *http.Request) {
	var req GenerateDecisionRequest

	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	date, shift, err := req.resolve(time.Now().UTC())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	d, err := s.engine.Generate(r.Context(), date, shift)

	switch {
	case errors.Is(err, decision.ErrContextEmpty):
		WriteErrorResponse(w, r, s.logger, Conflict("Fleet snapshot is empty; nothing to rank"))

		return
	case errors.Is(err, decision.ErrStoreUnavailable):
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Fleet store unavailable"))

		return
	case err != nil:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Decision generation failed"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, d)
}

// handleOptimize submits an asynchronous optimization run and returns 202
// with the queued run view.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest

	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	date, shift, err := req.resolve(time.Now().UTC())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	params := optimizer.DefaultParams()
	if req.Params != nil {
		params = *req.Params
	}

	view, err := s.registry.Start(date, shift, params)

	switch {
	case errors.Is(err, optimizer.ErrInvalidParams):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	case err != nil:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to submit optimization run"))

		return
	}

	s.writeJSON(w, r, http.StatusAccepted, view)
}

// handleListRuns returns every known optimization run, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, RunListResponse{Runs: s.registry.List()})
}

// handleGetRun returns the current view of one optimization run.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	view, err := s.registry.Get(r.PathValue("id"))
	if errors.Is(err, optimizer.ErrRunNotFound) {
		WriteErrorResponse(w, r, s.logger, NotFound("Optimization run not found"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, view)
}

// handleCancelRun requests cancellation; the run stops at the next
// generation boundary, keeping its partial Pareto front.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.registry.Cancel(id)

	switch {
	case errors.Is(err, optimizer.ErrRunNotFound):
		WriteErrorResponse(w, r, s.logger, NotFound("Optimization run not found"))

		return
	case errors.Is(err, optimizer.ErrRunNotCancellable):
		WriteErrorResponse(w, r, s.logger, Conflict("Optimization run already finished"))

		return
	case err != nil:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to cancel optimization run"))

		return
	}

	view, err := s.registry.Get(id)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to load optimization run"))

		return
	}

	s.writeJSON(w, r, http.StatusAccepted, view)
}

// handleWhatIf evaluates the submitted scenarios against the baseline and
// returns the memoized comparison.
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	var req WhatIfRequest

	if err := s.decodeJSON(w, r, &req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	date, shift, err := req.resolve(time.Now().UTC())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	result, err := s.simulator.Run(r.Context(), date, shift, req.Scenarios)

	switch {
	case errors.Is(err, simulator.ErrNoScenarios):
		WriteErrorResponse(w, r, s.logger, BadRequest("At least one scenario is required"))

		return
	case errors.Is(err, simulator.ErrUnknownModification):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	case errors.Is(err, simulator.ErrTrainsetNotFound):
		WriteErrorResponse(w, r, s.logger, UnprocessableEntity(err.Error()))

		return
	case err != nil:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Simulation failed"))

		return
	}

	s.writeJSON(w, r, http.StatusOK, result)
}

// handleGetWhatIf returns a memoized simulation, as JSON or CSV depending
// on the format query parameter or Accept header.
func (s *Server) handleGetWhatIf(w http.ResponseWriter, r *http.Request) {
	result, err := s.simulator.Get(r.PathValue("id"))
	if errors.Is(err, simulator.ErrSimulationNotFound) {
		WriteErrorResponse(w, r, s.logger, NotFound("Simulation not found"))

		return
	}

	wantsCSV := r.URL.Query().Get("format") == "csv" ||
		strings.Contains(r.Header.Get("Accept"), "text/csv")

	if wantsCSV {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="simulation-`+result.ID+`.csv"`)

		if err := result.ExportCSV(w); err != nil {
			s.logger.Error("Failed to export simulation CSV")
		}

		return
	}

	s.writeJSON(w, r, http.StatusOK, result)
}

// handleSweep triggers one status sweep outside the hourly schedule.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.loop.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Status sweep failed: "+err.Error()))

		return
	}

	s.writeJSON(w, r, http.StatusOK, report)
}
