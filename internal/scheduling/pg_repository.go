package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	var until *time.Time

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.OrganizationID,
		&s.DayOfWeek,
		&s.StartMinutes,
		&s.EndMinutes,
		&s.SlotDurationMinutes,
		&s.Active,
		&s.EffectiveFrom,
		&until,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	s.EffectiveFrom = DateOnly(s.EffectiveFrom)
	if until != nil {
		u := DateOnly(*until)
		s.EffectiveUntil = &u
	}
	return &s, nil
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var t TimeSlot

	err := row.Scan(
		&t.ID,
		&t.ScheduleID,
		&t.DoctorID,
		&t.OrganizationID,
		&t.Date,
		&t.StartMinutes,
		&t.EndMinutes,
		&t.Status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	t.Date = DateOnly(t.Date)
	return &t, nil
}

func scanException(row pgx.Row) (*ScheduleException, error) {
	var e ScheduleException

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.OrganizationID,
		&e.Date,
		&e.StartMinutes,
		&e.EndMinutes,
		&e.Reason,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	e.Date = DateOnly(e.Date)
	return &e, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.OrganizationID,
		&a.TimeSlotID,
		&a.EncounterID,
		&a.Date,
		&a.StartMinutes,
		&a.EndMinutes,
		&a.Status,
		&a.ReasonForVisit,
		&a.CancellationReason,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Date = DateOnly(a.Date)
	return &a, nil
}

const scheduleColumns = `id, doctor_id, organization_id, day_of_week, start_minutes, end_minutes,
	slot_duration_minutes, active, effective_from, effective_until, created_at, updated_at`

const slotColumns = `id, schedule_id, doctor_id, organization_id, slot_date, start_minutes,
	end_minutes, status, created_at, updated_at`

const exceptionColumns = `id, doctor_id, organization_id, exception_date, start_minutes,
	end_minutes, reason, active, created_at, updated_at`

const appointmentColumns = `id, patient_id, doctor_id, organization_id, time_slot_id, encounter_id,
	appointment_date, start_minutes, end_minutes, status, reason_for_visit,
	cancellation_reason, cancelled_at, cancelled_by, created_at, updated_at`

// Schedules

func (r *PgRepository) CreateSchedule(ctx context.Context, s *Schedule) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedules (id, doctor_id, organization_id, day_of_week, start_minutes,
			end_minutes, slot_duration_minutes, active, effective_from, effective_until,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`, s.ID, s.DoctorID, s.OrganizationID, s.DayOfWeek, s.StartMinutes, s.EndMinutes,
		s.SlotDurationMinutes, s.Active, s.EffectiveFrom, s.EffectiveUntil)

	if err := row.Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, s *Schedule) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedules
		SET day_of_week = $2,
		    start_minutes = $3,
		    end_minutes = $4,
		    slot_duration_minutes = $5,
		    active = $6,
		    effective_from = $7,
		    effective_until = $8,
		    updated_at = now()
		WHERE id = $1
	`, s.ID, s.DayOfWeek, s.StartMinutes, s.EndMinutes, s.SlotDurationMinutes,
		s.Active, s.EffectiveFrom, s.EffectiveUntil)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *PgRepository) GetScheduleByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

func (r *PgRepository) ListSchedulesByDoctor(ctx context.Context, doctorID uuid.UUID, includeInactive bool) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_id = $1
		  AND (active OR $2)
		ORDER BY day_of_week, start_minutes
	`, doctorID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *PgRepository) ListActiveSchedulesForDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE doctor_id = $1
		  AND day_of_week = $2
		  AND active
		ORDER BY start_minutes
	`, doctorID, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func collectSchedules(rows pgx.Rows) ([]Schedule, error) {
	var result []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Time slots

func (r *PgRepository) InsertSlots(ctx context.Context, slots []TimeSlot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO time_slots (id, schedule_id, doctor_id, organization_id, slot_date,
				start_minutes, end_minutes, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, slots[i].ID, slots[i].ScheduleID, slots[i].DoctorID, slots[i].OrganizationID,
			slots[i].Date, slots[i].StartMinutes, slots[i].EndMinutes, slots[i].Status)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return ErrSlotsExist
			}
			return fmt.Errorf("insert slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]TimeSlot, error) {
	where := []string{"doctor_id = $1"}
	args := []any{f.DoctorID}

	if f.OrganizationID != uuid.Nil {
		args = append(args, f.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, DateOnly(f.From))
		where = append(where, fmt.Sprintf("slot_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, DateOnly(f.To))
		where = append(where, fmt.Sprintf("slot_date <= $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY slot_date, start_minutes`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		t, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateSlotStatus is the compare-and-set backing the double-booking guard:
// the WHERE clause checks the expected status in the same statement that
// writes the new one.
func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
	`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgRepository) UpdateSlotStatusInWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, startMin, endMin int, from, to SlotStatus) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET status = $6,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND start_minutes < $4
		  AND end_minutes > $3
		  AND status = $5
	`, doctorID, DateOnly(date), startMin, endMin, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ExpireSlotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE time_slots
		SET status = $2,
		    updated_at = now()
		WHERE slot_date < $1
		  AND status = $3
	`, DateOnly(cutoff), SlotExpired, SlotAvailable)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Schedule exceptions

func (r *PgRepository) CreateException(ctx context.Context, e *ScheduleException) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_exceptions (id, doctor_id, organization_id, exception_date,
			start_minutes, end_minutes, reason, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, e.ID, e.DoctorID, e.OrganizationID, e.Date, e.StartMinutes, e.EndMinutes, e.Reason, e.Active)

	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("insert exception: %w", err)
	}
	return nil
}

func (r *PgRepository) GetExceptionByID(ctx context.Context, id uuid.UUID) (*ScheduleException, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+exceptionColumns+`
		FROM schedule_exceptions
		WHERE id = $1
	`, id)
	return scanException(row)
}

func (r *PgRepository) DeactivateException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE schedule_exceptions
		SET active = false,
		    updated_at = now()
		WHERE id = $1
		  AND active
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func (r *PgRepository) ListExceptionsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+exceptionColumns+`
		FROM schedule_exceptions
		WHERE doctor_id = $1
		  AND exception_date = $2
		  AND active
		ORDER BY created_at
	`, doctorID, DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExceptions(rows)
}

func (r *PgRepository) ListExceptions(ctx context.Context, f ExceptionFilter) ([]ScheduleException, error) {
	where := []string{"active"}
	var args []any

	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.OrganizationID != nil {
		args = append(args, *f.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, DateOnly(*f.From))
		where = append(where, fmt.Sprintf("exception_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, DateOnly(*f.To))
		where = append(where, fmt.Sprintf("exception_date <= $%d", len(args)))
	}

	query := `
		SELECT ` + exceptionColumns + `
		FROM schedule_exceptions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY exception_date, created_at`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExceptions(rows)
}

func collectExceptions(rows pgx.Rows) ([]ScheduleException, error) {
	var result []ScheduleException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, organization_id, time_slot_id,
			appointment_date, start_minutes, end_minutes, status, reason_for_visit,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.DoctorID, a.OrganizationID, a.TimeSlotID,
		a.Date, a.StartMinutes, a.EndMinutes, a.Status, a.ReasonForVisit)

	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	where := []string{"true"}
	var args []any

	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.DoctorID != nil {
		args = append(args, *f.DoctorID)
		where = append(where, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if f.OrganizationID != nil {
		args = append(args, *f.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, DateOnly(*f.From))
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, DateOnly(*f.To))
		where = append(where, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where = append(where, fmt.Sprintf("reason_for_visit ILIKE $%d", len(args)))
	}

	orderBy := "appointment_date, start_minutes"
	if f.SortBy == "created_at" {
		orderBy = "created_at"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + orderBy + ` ` + direction

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveAppointmentsForDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status IN ($3, $4)
		ORDER BY start_minutes
	`, doctorID, DateOnly(date), StatusScheduled, StatusCheckedIn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, to)
	return scanAppointment(row)
}

func (r *PgRepository) SetAppointmentCancelled(ctx context.Context, id uuid.UUID, from AppointmentStatus, reason string, actorID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    cancellation_reason = $4,
		    cancelled_at = $5,
		    cancelled_by = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, StatusCancelled, reason, at, actorID)
	return scanAppointment(row)
}

func (r *PgRepository) SetAppointmentEncounter(ctx context.Context, id uuid.UUID, from AppointmentStatus, encounterID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    encounter_id = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, StatusInProgress, encounterID)
	return scanAppointment(row)
}

// Audit log

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.ActorID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
