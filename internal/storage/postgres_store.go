package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/lib/pq"

	"github.com/inductor-io/inductor/internal/decision"
	"github.com/inductor-io/inductor/internal/fleet"
	"github.com/inductor-io/inductor/internal/optimizer"
)

// Retryable PostgreSQL error codes: serialization failure and deadlock.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"

	txRetryAttempts = 3
	txRetryDelay    = 50 * time.Millisecond
)

// PostgresFleetStore implements FleetStore with a PostgreSQL backend.
// Logical transactions retry on serialization failures and deadlocks;
// everything else surfaces immediately.
type PostgresFleetStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPostgresFleetStore creates a PostgreSQL-backed fleet store over an
// established connection.
func NewPostgresFleetStore(conn *Connection, logger *slog.Logger) *PostgresFleetStore {
	return &PostgresFleetStore{conn: conn, logger: logger}
}

// Close implements FleetStore.
func (s *PostgresFleetStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// withRetry runs fn, retrying transient serialization and deadlock errors.
func (s *PostgresFleetStore) withRetry(fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(txRetryAttempts),
		retry.Delay(txRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
	)
}

func isRetryable(err error) bool {
	var pqErr *pq.Error

	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqSerializationFailure || string(pqErr.Code) == pqDeadlockDetected
	}

	return false
}

// Snapshot implements FleetStore. The entity reads share one deadline
// so a stuck query cannot hold the caller past the snapshot budget.
func (s *PostgresFleetStore) Snapshot(ctx context.Context, date time.Time, shift fleet.Shift) (*fleet.Context, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	snapshot := &fleet.Context{
		Date:    date,
		Shift:   shift,
		TakenAt: date,
	}

	var err error

	if snapshot.Trainsets, err = s.loadTrainsets(ctx); err != nil {
		return nil, err
	}

	if snapshot.Certificates, err = s.loadCertificates(ctx); err != nil {
		return nil, err
	}

	if snapshot.JobCards, err = s.loadJobCards(ctx); err != nil {
		return nil, err
	}

	if snapshot.Branding, err = s.loadBranding(ctx); err != nil {
		return nil, err
	}

	if snapshot.CleaningSlots, err = s.loadCleaningSlots(ctx); err != nil {
		return nil, err
	}

	if snapshot.PriorSchedules, err = s.loadPriorSchedules(ctx, date); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (s *PostgresFleetStore) loadTrainsets(ctx context.Context) ([]fleet.Trainset, error) {
	query := `
		SELECT id, number, manufacturer, model, year_built, capacity, max_speed,
		       status, depot, location, current_mileage, total_mileage,
		       operational_hours, last_maintenance_at, next_maintenance_due_at,
		       last_cleaning_at, next_cleaning_due_at, fitness_expiry_at, is_active
		FROM trainsets
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trainsets: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var trainsets []fleet.Trainset

	for rows.Next() {
		var ts fleet.Trainset

		err := rows.Scan(&ts.ID, &ts.Number, &ts.Manufacturer, &ts.Model,
			&ts.YearBuilt, &ts.Capacity, &ts.MaxSpeed, &ts.Status, &ts.Depot,
			&ts.Location, &ts.CurrentMileage, &ts.TotalMileage,
			&ts.OperationalHours, &ts.LastMaintenance, &ts.NextMaintenance,
			&ts.LastCleaning, &ts.NextCleaning, &ts.FitnessExpiry, &ts.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trainset: %w", err)
		}

		trainsets = append(trainsets, ts)
	}

	return trainsets, rows.Err()
}

func (s *PostgresFleetStore) loadCertificates(ctx context.Context) ([]fleet.FitnessCertificate, error) {
	query := `
		SELECT id, trainset_id, issued_at, expires_at, status, issuing_authority
		FROM fitness_certificates
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fitness certificates: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var certs []fleet.FitnessCertificate

	for rows.Next() {
		var cert fleet.FitnessCertificate

		err := rows.Scan(&cert.ID, &cert.TrainsetID, &cert.IssuedAt,
			&cert.ExpiresAt, &cert.Status, &cert.IssuingAuthority)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fitness certificate: %w", err)
		}

		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

func (s *PostgresFleetStore) loadJobCards(ctx context.Context) ([]fleet.JobCard, error) {
	query := `
		SELECT id, trainset_id, external_id, title, description, priority,
		       status, category, estimated_hours, actual_hours, scheduled_at,
		       due_at, completed_at
		FROM job_cards
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query job cards: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var cards []fleet.JobCard

	for rows.Next() {
		var card fleet.JobCard

		err := rows.Scan(&card.ID, &card.TrainsetID, &card.ExternalID,
			&card.Title, &card.Description, &card.Priority, &card.Status,
			&card.Category, &card.EstimatedHours, &card.ActualHours,
			&card.ScheduledAt, &card.DueAt, &card.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job card: %w", err)
		}

		cards = append(cards, card)
	}

	return cards, rows.Err()
}

func (s *PostgresFleetStore) loadBranding(ctx context.Context) ([]fleet.BrandingRecord, error) {
	query := `
		SELECT id, trainset_id, campaign, priority, target_hours_per_day,
		       delivered_hours, contract_start, contract_end
		FROM branding_records
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query branding records: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []fleet.BrandingRecord

	for rows.Next() {
		var record fleet.BrandingRecord

		err := rows.Scan(&record.ID, &record.TrainsetID, &record.Campaign,
			&record.Priority, &record.TargetHoursPerDay, &record.DeliveredHours,
			&record.ContractStart, &record.ContractEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branding record: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func (s *PostgresFleetStore) loadCleaningSlots(ctx context.Context) ([]fleet.CleaningSlot, error) {
	query := `
		SELECT id, bay, starts_at, ends_at, capacity, assigned_ids
		FROM cleaning_slots
		ORDER BY id
	`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleaning slots: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var slots []fleet.CleaningSlot

	for rows.Next() {
		var slot fleet.CleaningSlot

		err := rows.Scan(&slot.ID, &slot.Bay, &slot.StartsAt, &slot.EndsAt,
			&slot.Capacity, pq.Array(&slot.AssignedIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to scan cleaning slot: %w", err)
		}

		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

func (s *PostgresFleetStore) loadPriorSchedules(ctx context.Context, date time.Time) ([]fleet.Schedule, error) {
	query := `
		SELECT id, plan_date, shift, entries
		FROM schedules
		WHERE plan_date < $1
		ORDER BY plan_date DESC, id
		LIMIT $2
	`

	rows, err := s.conn.QueryContext(ctx, query, date, priorScheduleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query prior schedules: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var schedules []fleet.Schedule

	for rows.Next() {
		var (
			schedule fleet.Schedule
			entries  []byte
		)

		if err := rows.Scan(&schedule.ID, &schedule.Date, &schedule.Shift, &entries); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		if err := json.Unmarshal(entries, &schedule.Entries); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule %s entries: %w", schedule.ID, err)
		}

		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// UpsertTrainset implements FleetStore.
func (s *PostgresFleetStore) UpsertTrainset(ctx context.Context, ts fleet.Trainset) error {
	if err := ts.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO trainsets (
			id, number, manufacturer, model, year_built, capacity, max_speed,
			status, depot, location, current_mileage, total_mileage,
			operational_hours, last_maintenance_at, next_maintenance_due_at,
			last_cleaning_at, next_cleaning_due_at, fitness_expiry_at, is_active
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET
			number = EXCLUDED.number,
			manufacturer = EXCLUDED.manufacturer,
			model = EXCLUDED.model,
			year_built = EXCLUDED.year_built,
			capacity = EXCLUDED.capacity,
			max_speed = EXCLUDED.max_speed,
			status = EXCLUDED.status,
			depot = EXCLUDED.depot,
			location = EXCLUDED.location,
			current_mileage = EXCLUDED.current_mileage,
			total_mileage = EXCLUDED.total_mileage,
			operational_hours = EXCLUDED.operational_hours,
			last_maintenance_at = EXCLUDED.last_maintenance_at,
			next_maintenance_due_at = EXCLUDED.next_maintenance_due_at,
			last_cleaning_at = EXCLUDED.last_cleaning_at,
			next_cleaning_due_at = EXCLUDED.next_cleaning_due_at,
			fitness_expiry_at = EXCLUDED.fitness_expiry_at,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, ts.ID, ts.Number,
			ts.Manufacturer, ts.Model, ts.YearBuilt, ts.Capacity, ts.MaxSpeed,
			ts.Status, ts.Depot, ts.Location, ts.CurrentMileage,
			ts.TotalMileage, ts.OperationalHours, ts.LastMaintenance,
			ts.NextMaintenance, ts.LastCleaning, ts.NextCleaning,
			ts.FitnessExpiry, ts.IsActive)
		if err != nil {
			return fmt.Errorf("failed to upsert trainset %s: %w", ts.ID, err)
		}

		return nil
	})
}

// UpsertCertificate implements FleetStore.
func (s *PostgresFleetStore) UpsertCertificate(ctx context.Context, cert fleet.FitnessCertificate) error {
	query := `
		INSERT INTO fitness_certificates (id, trainset_id, issued_at, expires_at, status, issuing_authority)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			issued_at = EXCLUDED.issued_at,
			expires_at = EXCLUDED.expires_at,
			status = EXCLUDED.status,
			issuing_authority = EXCLUDED.issuing_authority,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, cert.ID, cert.TrainsetID,
			cert.IssuedAt, cert.ExpiresAt, cert.Status, cert.IssuingAuthority)
		if err != nil {
			return fmt.Errorf("failed to upsert certificate %s: %w", cert.ID, err)
		}

		return nil
	})
}

// UpsertJobCard implements FleetStore.
func (s *PostgresFleetStore) UpsertJobCard(ctx context.Context, card fleet.JobCard) error {
	query := `
		INSERT INTO job_cards (
			id, trainset_id, external_id, title, description, priority, status,
			category, estimated_hours, actual_hours, scheduled_at, due_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			category = EXCLUDED.category,
			estimated_hours = EXCLUDED.estimated_hours,
			actual_hours = EXCLUDED.actual_hours,
			scheduled_at = EXCLUDED.scheduled_at,
			due_at = EXCLUDED.due_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, card.ID, card.TrainsetID,
			card.ExternalID, card.Title, card.Description, card.Priority,
			card.Status, card.Category, card.EstimatedHours, card.ActualHours,
			card.ScheduledAt, card.DueAt, card.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert job card %s: %w", card.ID, err)
		}

		return nil
	})
}

// UpsertBranding implements FleetStore.
func (s *PostgresFleetStore) UpsertBranding(ctx context.Context, record fleet.BrandingRecord) error {
	query := `
		INSERT INTO branding_records (
			id, trainset_id, campaign, priority, target_hours_per_day,
			delivered_hours, contract_start, contract_end
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			campaign = EXCLUDED.campaign,
			priority = EXCLUDED.priority,
			target_hours_per_day = EXCLUDED.target_hours_per_day,
			delivered_hours = EXCLUDED.delivered_hours,
			contract_start = EXCLUDED.contract_start,
			contract_end = EXCLUDED.contract_end,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, record.ID, record.TrainsetID,
			record.Campaign, record.Priority, record.TargetHoursPerDay,
			record.DeliveredHours, record.ContractStart, record.ContractEnd)
		if err != nil {
			return fmt.Errorf("failed to upsert branding record %s: %w", record.ID, err)
		}

		return nil
	})
}

// UpsertCleaningSlot implements FleetStore.
func (s *PostgresFleetStore) UpsertCleaningSlot(ctx context.Context, slot fleet.CleaningSlot) error {
	if err := slot.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO cleaning_slots (id, bay, starts_at, ends_at, capacity, assigned_ids)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			bay = EXCLUDED.bay,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			capacity = EXCLUDED.capacity,
			assigned_ids = EXCLUDED.assigned_ids,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, slot.ID, slot.Bay,
			slot.StartsAt, slot.EndsAt, slot.Capacity, pq.Array(slot.AssignedIDs))
		if err != nil {
			return fmt.Errorf("failed to upsert cleaning slot %s: %w", slot.ID, err)
		}

		return nil
	})
}

// UpdateTrainsetStatus implements FleetStore. The UPDATE is guarded on the
// expected current status; zero rows affected distinguishes a conflict from
// a missing trainset.
func (s *PostgresFleetStore) UpdateTrainsetStatus(ctx context.Context, id string, from, to fleet.Status, _ string, at time.Time) error {
	query := `
		UPDATE trainsets
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	return s.withRetry(func() error {
		result, err := s.conn.ExecContext(ctx, query, to, at, id, from)
		if err != nil {
			return fmt.Errorf("failed to update trainset %s status: %w", id, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if affected == 0 {
			var current fleet.Status

			err := s.conn.QueryRowContext(ctx,
				`SELECT status FROM trainsets WHERE id = $1`, id).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: trainset %s", ErrNotFound, id)
			}

			if err != nil {
				return fmt.Errorf("failed to read trainset %s status: %w", id, err)
			}

			return fmt.Errorf("%w: trainset %s is %s, expected %s", ErrConflict, id, current, from)
		}

		return nil
	})
}

// StampCleaning implements FleetStore.
func (s *PostgresFleetStore) StampCleaning(ctx context.Context, id string, last, next time.Time) error {
	query := `
		UPDATE trainsets
		SET last_cleaning_at = $1, next_cleaning_due_at = $2, updated_at = NOW()
		WHERE id = $3
	`

	return s.withRetry(func() error {
		result, err := s.conn.ExecContext(ctx, query, last, next, id)
		if err != nil {
			return fmt.Errorf("failed to stamp cleaning for trainset %s: %w", id, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}

		if affected == 0 {
			return fmt.Errorf("%w: trainset %s", ErrNotFound, id)
		}

		return nil
	})
}

// SaveAudit implements FleetStore.
func (s *PostgresFleetStore) SaveAudit(ctx context.Context, audit fleet.StatusAudit) error {
	query := `
		INSERT INTO status_audit (id, trainset_id, from_status, to_status, reason, applied, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, audit.ID, audit.TrainsetID,
			audit.FromStatus, audit.ToStatus, audit.Reason, audit.Applied,
			audit.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to save audit for trainset %s: %w", audit.TrainsetID, err)
		}

		return nil
	})
}

// ListAudits implements FleetStore.
func (s *PostgresFleetStore) ListAudits(ctx context.Context, trainsetID string) ([]fleet.StatusAudit, error) {
	query := `
		SELECT id, trainset_id, from_status, to_status, reason, applied, occurred_at
		FROM status_audit
		WHERE trainset_id = $1
		ORDER BY occurred_at DESC
	`

	rows, err := s.conn.QueryContext(ctx, query, trainsetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audits: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var audits []fleet.StatusAudit

	for rows.Next() {
		var audit fleet.StatusAudit

		err := rows.Scan(&audit.ID, &audit.TrainsetID, &audit.FromStatus,
			&audit.ToStatus, &audit.Reason, &audit.Applied, &audit.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}

		audits = append(audits, audit)
	}

	return audits, rows.Err()
}

// SaveDecision implements FleetStore. The full decision document is stored
// as JSONB next to the indexed columns used for lookups.
func (s *PostgresFleetStore) SaveDecision(ctx context.Context, d *decision.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision %s: %w", d.ID, err)
	}

	query := `
		INSERT INTO induction_decisions (id, generated_at, plan_date, shift, confidence, inputs_hash, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, d.ID, d.GeneratedAt, d.Date,
			d.Shift, d.Confidence, d.InputsHash, payload)
		if err != nil {
			return fmt.Errorf("failed to save decision %s: %w", d.ID, err)
		}

		return nil
	})
}

// GetDecision implements FleetStore.
func (s *PostgresFleetStore) GetDecision(ctx context.Context, id string) (*decision.Decision, error) {
	var payload []byte

	err := s.conn.QueryRowContext(ctx,
		`SELECT payload FROM induction_decisions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: decision %s", ErrNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load decision %s: %w", id, err)
	}

	var d decision.Decision

	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision %s: %w", id, err)
	}

	return &d, nil
}

// SaveSchedule implements FleetStore. Entries travel as JSONB; ranks were
// validated before the write.
func (s *PostgresFleetStore) SaveSchedule(ctx context.Context, schedule *fleet.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	entries, err := json.Marshal(schedule.Entries)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s entries: %w", schedule.ID, err)
	}

	query := `
		INSERT INTO schedules (id, plan_date, shift, entries)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET
			entries = EXCLUDED.entries,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, schedule.ID, schedule.Date,
			schedule.Shift, entries)
		if err != nil {
			return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
		}

		return nil
	})
}

// SaveRun implements FleetStore.
func (s *PostgresFleetStore) SaveRun(ctx context.Context, view optimizer.RunView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal optimization run %s: %w", view.ID, err)
	}

	query := `
		INSERT INTO optimization_runs (id, state, plan_date, shift, submitted_at, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			payload = EXCLUDED.payload,
			updated_at = NOW()
	`

	return s.withRetry(func() error {
		_, err := s.conn.ExecContext(ctx, query, view.ID, view.State,
			view.Date, view.Shift, view.SubmittedAt, payload)
		if err != nil {
			return fmt.Errorf("failed to save optimization run %s: %w", view.ID, err)
		}

		return nil
	})
}

// GetRun implements FleetStore.
func (s *PostgresFleetStore) GetRun(ctx context.Context, id string) (optimizer.RunView, error) {
	var payload []byte

	err := s.conn.QueryRowContext(ctx,
		`SELECT payload FROM optimization_runs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return optimizer.RunView{}, fmt.Errorf("%w: optimization run %s", ErrNotFound, id)
	}

	if err != nil {
		return optimizer.RunView{}, fmt.Errorf("failed to load optimization run %s: %w", id, err)
	}

	var view optimizer.RunView

	if err := json.Unmarshal(payload, &view); err != nil {
		return optimizer.RunView{}, fmt.Errorf("failed to unmarshal optimization run %s: %w", id, err)
	}

	return view, nil
}
