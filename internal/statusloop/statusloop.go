// Package statusloop runs the autonomous fleet supervisor: an hourly sweep
// that applies the status transition graph to every active trainset, plus
// the nightly cleaning rotation between the configured window boundaries.
// Every transition, applied or refused, leaves an audit row and an event.
package statusloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/clock"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/metrics"
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("status loop already started")

// Deployment defaults. The cleaning window matches depot practice: crews
// start at 22:00 and release trainsets at midnight.
const (
	DefaultSweepInterval     = time.Hour
	DefaultCleaningFraction  = 0.3
	DefaultCleaningStaleness = 20 * time.Hour
	DefaultCleaningHorizon   = 24 * time.Hour

	sweepTimeout = 30 * time.Second
)

// DefaultCleaningStart and DefaultCleaningEnd bound the nightly window.
var (
	DefaultCleaningStart = clock.TimeOfDay{Hour: 22}
	DefaultCleaningEnd   = clock.TimeOfDay{Hour: 0}
)

type (
	// Store is the persistence surface the loop needs.
	Store interface {
		Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error)
		UpdateTrainsetStatus(ctx context.Context, id string, from, to fleet.Status, reason string, at time.Time) error
		StampCleaning(ctx context.Context, id string, last, next time.Time) error
		SaveAudit(ctx context.Context, audit fleet.StatusAudit) error
	}

	// Publisher is the event surface the loop needs.
	Publisher interface {
		Publish(topic bus.Topic, payload any) bus.Event
	}

	// AppliedTransition is one status change a sweep carried out.
	AppliedTransition struct {
		TrainsetID string       `json:"trainset_id"`
		From       fleet.Status `json:"from"`
		To         fleet.Status `json:"to"`
		Reason     string       `json:"reason"`
	}

	// SweepReport summarizes one pass over the fleet. Sweeps are idempotent:
	// rerunning against an unchanged fleet applies nothing.
	SweepReport struct {
		At          time.Time           `json:"at"`
		Examined    int                 `json:"examined"`
		Transitions []AppliedTransition `json:"transitions"`
		Refused     int                 `json:"refused"`
		Errors      []string            `json:"errors,omitempty"`
	}

	// StatusChangedPayload is the trainset.status_changed event body.
	StatusChangedPayload struct {
		TrainsetID string       `json:"trainset_id"`
		From       fleet.Status `json:"from"`
		To         fleet.Status `json:"to"`
		Reason     string       `json:"reason"`
		At         time.Time    `json:"at"`
	}

	// AlertPayload is the body of maintenance and emergency alerts.
	AlertPayload struct {
		TrainsetID string `json:"trainset_id"`
		Reason     string `json:"reason"`
	}

	// Loop is the supervisor. Start launches the background goroutine;
	// Sweep and the window methods are also callable directly, which is how
	// the command surface exposes a manual sweep.
	Loop struct {
		store     Store
		publisher Publisher
		logger    *slog.Logger
		clk       clock.Clock
		rng       *rand.Rand

		interval          time.Duration
		cleaningStart     clock.TimeOfDay
		cleaningEnd       clock.TimeOfDay
		cleaningFraction  float64
		cleaningStaleness time.Duration
		cleaningHorizon   time.Duration

		startOnce sync.Once
		stopOnce  sync.Once
		stop      chan struct{}
		done      chan struct{}
	}

	// Option configures optional loop behavior.
	Option func(*Loop)
)

// WithClock substitutes the time source, for tests.
func WithClock(clk clock.Clock) Option {
	return func(l *Loop) {
		l.clk = clk
	}
}

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithCleaningWindow overrides the nightly window boundaries.
func WithCleaningWindow(start, end clock.TimeOfDay) Option {
	return func(l *Loop) {
		l.cleaningStart = start
		l.cleaningEnd = end
	}
}

// WithSeed fixes the random source used for cleaning selection, for tests.
func WithSeed(seed int64) Option {
	return func(l *Loop) {
		l.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a status loop with default cadence and window.
func New(store Store, publisher Publisher, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		store:             store,
		publisher:         publisher,
		logger:            logger,
		clk:               clock.System(),
		interval:          DefaultSweepInterval,
		cleaningStart:     DefaultCleaningStart,
		cleaningEnd:       DefaultCleaningEnd,
		cleaningFraction:  DefaultCleaningFraction,
		cleaningStaleness: DefaultCleaningStaleness,
		cleaningHorizon:   DefaultCleaningHorizon,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.rng == nil {
		l.rng = rand.New(rand.NewSource(l.clk.Now().UnixNano()))
	}

	return l
}

// Start launches the supervisor goroutine.
func (l *Loop) Start() error {
	var started bool

	l.startOnce.Do(func() {
		started = true

		go l.run()

		l.logger.Info("Status loop started",
			slog.Duration("sweep_interval", l.interval),
			slog.String("cleaning_start", l.cleaningStart.String()),
			slog.String("cleaning_end", l.cleaningEnd.String()),
		)
	})

	if !started {
		return ErrAlreadyStarted
	}

	return nil
}

// Stop halts the supervisor and waits for the goroutine to exit.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.done

		l.logger.Info("Status loop stopped")
	})
}

func (l *Loop) run() {
	defer close(l.done)

	now := l.clk.Now()

	ticker := l.clk.NewTicker(l.interval)
	defer ticker.Stop()

	startTimer := l.clk.NewTimer(l.cleaningStart.Next(now).Sub(now))
	defer startTimer.Stop()

	endTimer := l.clk.NewTimer(l.cleaningEnd.Next(now).Sub(now))
	defer endTimer.Stop()

	for {
		select {
		case <-l.stop:
			return

		case at := <-ticker.C():
			l.runSweep(at)

		case at := <-startTimer.C():
			l.runWindow(at, l.BeginCleaningWindow, "cleaning window start")
			startTimer.Reset(l.cleaningStart.Next(at.Add(time.Minute)).Sub(at))

		case at := <-endTimer.C():
			l.runWindow(at, l.EndCleaningWindow, "cleaning window end")
			endTimer.Reset(l.cleaningEnd.Next(at.Add(time.Minute)).Sub(at))
		}
	}
}

func (l *Loop) runSweep(at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := l.Sweep(ctx, at)
	if err != nil {
		l.logger.Error("Status sweep failed", slog.String("error", err.Error()))

		return
	}

	l.logger.Info("Status sweep completed",
		slog.Int("examined", report.Examined),
		slog.Int("transitions", len(report.Transitions)),
		slog.Int("refused", report.Refused),
		slog.Int("errors", len(report.Errors)),
	)
}

func (l *Loop) runWindow(at time.Time, fn func(context.Context, time.Time) (*SweepReport, error), what string) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	report, err := fn(ctx, at)
	if err != nil {
		l.logger.Error("Cleaning window pass failed",
			slog.String("window", what),
			slog.String("error", err.Error()),
		)

		return
	}

	l.logger.Info("Cleaning window pass completed",
		slog.String("window", what),
		slog.Int("transitions", len(report.Transitions)),
	)
}

// Sweep examines every active trainset and applies the due transitions:
// expired fitness forces OUT_OF_ORDER, renewed fitness releases it, passed
// maintenance due dates pull sets into MAINTENANCE, and completed
// maintenance releases them. A failing trainset never aborts the sweep.
func (l *Loop) Sweep(ctx context.Context, at time.Time) (*SweepReport, error) {
	snapshot, err := l.store.Snapshot(ctx, at, shiftAt(at))
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet snapshot: %w", err)
	}

	report := &SweepReport{At: at}

	for _, ts := range snapshot.ActiveTrainsets() {
		report.Examined++

		to, reason := l.dueTransition(&ts, snapshot, at)
		if reason == "" {
			continue
		}

		if err := l.apply(ctx, report, &ts, to, reason, at); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("trainset %s: %v", ts.ID, err))
		}
	}

	return report, nil
}

// dueTransition decides the single transition (if any) a trainset owes at
// this instant. Fitness expiry dominates everything else.
func (l *Loop) dueTransition(ts *fleet.Trainset, snapshot *fleet.Context, at time.Time) (fleet.Status, string) {
	fitnessValid := l.fitnessValid(ts, snapshot, at)

	if !fitnessValid && ts.Status != fleet.StatusOutOfOrder {
		return fleet.StatusOutOfOrder, fleet.ReasonFitnessExpired
	}

	if fitnessValid && ts.Status == fleet.StatusOutOfOrder {
		return fleet.StatusAvailable, fleet.ReasonFitnessRenewed
	}

	maintenanceDue := ts.NextMaintenance != nil && !at.Before(*ts.NextMaintenance)

	if maintenanceDue && (ts.Status == fleet.StatusAvailable || ts.Status == fleet.StatusInService) {
		return fleet.StatusMaintenance, fleet.ReasonMaintenanceDue
	}

	if !maintenanceDue && ts.Status == fleet.StatusMaintenance && !l.hasBlockingCards(ts, snapshot) {
		return fleet.StatusAvailable, fleet.ReasonMaintenanceCompleted
	}

	return ts.Status, ""
}

func (l *Loop) fitnessValid(ts *fleet.Trainset, snapshot *fleet.Context, at time.Time) bool {
	if cert := snapshot.CertificateFor(ts.ID); cert != nil {
		return cert.IsValidAt(at)
	}

	// No certificate record at all: fall back to the stamped expiry.
	return ts.FitnessExpiry != nil && at.Before(*ts.FitnessExpiry)
}

func (l *Loop) hasBlockingCards(ts *fleet.Trainset, snapshot *fleet.Context) bool {
	for _, card := range snapshot.OpenJobCardsFor(ts.ID) {
		if card.Priority.Blocking() {
			return true
		}
	}

	return false
}

// BeginCleaningWindow moves a random share of stale AVAILABLE trainsets
// into CLEANING and stamps their cleaning dates. The share is computed over
// the whole stale pool including trainsets already in CLEANING, so a window
// that fires twice tops the rotation up to the same target instead of
// selecting a fresh share each time.
func (l *Loop) BeginCleaningWindow(ctx context.Context, at time.Time) (*SweepReport, error) {
	snapshot, err := l.store.Snapshot(ctx, at, shiftAt(at))
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet snapshot: %w", err)
	}

	report := &SweepReport{At: at}

	var candidates []fleet.Trainset

	cleaning := 0

	for _, ts := range snapshot.ActiveTrainsets() {
		report.Examined++

		if ts.Status == fleet.StatusCleaning {
			cleaning++

			continue
		}

		if ts.Status != fleet.StatusAvailable {
			continue
		}

		if ts.LastCleaning != nil && at.Sub(*ts.LastCleaning) < l.cleaningStaleness {
			continue
		}

		candidates = append(candidates, ts)
	}

	take := int(math.Ceil(float64(len(candidates)+cleaning)*l.cleaningFraction)) - cleaning

	if take <= 0 || len(candidates) == 0 {
		return report, nil
	}

	if take > len(candidates) {
		take = len(candidates)
	}

	l.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for i := 0; i < take; i++ {
		ts := candidates[i]

		if err := l.apply(ctx, report, &ts, fleet.StatusCleaning, fleet.ReasonScheduledCleaning, at); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("trainset %s: %v", ts.ID, err))

			continue
		}

		if err := l.store.StampCleaning(ctx, ts.ID, at, at.Add(l.cleaningHorizon)); err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("trainset %s: failed to stamp cleaning: %v", ts.ID, err))
		}
	}

	return report, nil
}

// EndCleaningWindow releases every CLEANING trainset back to AVAILABLE.
func (l *Loop) EndCleaningWindow(ctx context.Context, at time.Time) (*SweepReport, error) {
	snapshot, err := l.store.Snapshot(ctx, at, shiftAt(at))
	if err != nil {
		return nil, fmt.Errorf("failed to load fleet snapshot: %w", err)
	}

	report := &SweepReport{At: at}

	for _, ts := range snapshot.ActiveTrainsets() {
		report.Examined++

		if ts.Status != fleet.StatusCleaning {
			continue
		}

		if err := l.apply(ctx, report, &ts, fleet.StatusAvailable, fleet.ReasonCleaningCompleted, at); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("trainset %s: %v", ts.ID, err))
		}
	}

	return report, nil
}

// apply validates and executes one transition, writing the audit row and
// publishing the events. Refused edges are audited with Applied=false and
// raise a system notification instead of an error.
func (l *Loop) apply(ctx context.Context, report *SweepReport, ts *fleet.Trainset, to fleet.Status, reason string, at time.Time) error {
	if err := fleet.ValidateTransition(ts.Status, to); err != nil {
		if errors.Is(err, fleet.ErrSelfTransition) {
			return nil
		}

		report.Refused++

		l.logger.Warn("Status transition refused",
			slog.String("trainset_id", ts.ID),
			slog.String("from", string(ts.Status)),
			slog.String("to", string(to)),
			slog.String("reason", reason),
		)

		l.publisher.Publish(bus.TopicSystemNotification, StatusChangedPayload{
			TrainsetID: ts.ID,
			From:       ts.Status,
			To:         to,
			Reason:     reason,
			At:         at,
		})

		return l.saveAudit(ctx, ts, to, reason, false, at)
	}

	if err := l.store.UpdateTrainsetStatus(ctx, ts.ID, ts.Status, to, reason, at); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if err := l.saveAudit(ctx, ts, to, reason, true, at); err != nil {
		return err
	}

	report.Transitions = append(report.Transitions, AppliedTransition{
		TrainsetID: ts.ID,
		From:       ts.Status,
		To:         to,
		Reason:     reason,
	})

	metrics.SweepTransitions.WithLabelValues(string(to)).Inc()

	l.publisher.Publish(bus.TopicTrainsetStatusChanged, StatusChangedPayload{
		TrainsetID: ts.ID,
		From:       ts.Status,
		To:         to,
		Reason:     reason,
		At:         at,
	})

	switch reason {
	case fleet.ReasonFitnessExpired:
		l.publisher.Publish(bus.TopicEmergencyAlert, AlertPayload{
			TrainsetID: ts.ID,
			Reason:     reason,
		})
	case fleet.ReasonMaintenanceDue:
		l.publisher.Publish(bus.TopicMaintenanceAlert, AlertPayload{
			TrainsetID: ts.ID,
			Reason:     reason,
		})
	}

	return nil
}

func (l *Loop) saveAudit(ctx context.Context, ts *fleet.Trainset, to fleet.Status, reason string, applied bool, at time.Time) error {
	audit := fleet.StatusAudit{
		ID:         uuid.NewString(),
		TrainsetID: ts.ID,
		FromStatus: ts.Status,
		ToStatus:   to,
		Reason:     reason,
		Applied:    applied,
		OccurredAt: at,
	}

	if err := l.store.SaveAudit(ctx, audit); err != nil {
		return fmt.Errorf("failed to save audit: %w", err)
	}

	return nil
}

// shiftAt maps a wall-clock hour to the operating shift in effect.
func shiftAt(t time.Time) fleet.Shift {
	switch hour := t.Hour(); {
	case hour >= 4 && hour < 12:
		return fleet.ShiftMorning
	case hour >= 12 && hour < 17:
		return fleet.ShiftAfternoon
	case hour >= 17 && hour < 23:
		return fleet.ShiftEvening
	default:
		return fleet.ShiftNight
	}
}
