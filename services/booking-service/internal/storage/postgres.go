package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/shopbook/libs/db"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/model"
)

const appointmentColumns = `id::text, owner_id, service_name, service_price, duration_minutes,
	start_time, status, notes, created_at, updated_at`

// serializationRetries bounds how often a transaction aborted by SSI is replayed before the
// store gives up and reports ErrBusy.
const serializationRetries = 3

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists appointments in Postgres. The appointments_no_overlap exclusion
// constraint is the final arbiter of the single-timeline invariant; transactions run at
// SERIALIZABLE so the read-then-write booking sequence is isolated as well.
type PostgresStore struct {
	pool *db.Pool
	pgReader
}

func NewPostgresStore(pool *db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, pgReader: pgReader{q: pool}}
}

func (s *PostgresStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt < serializationRetries; attempt++ {
		err = s.runTx(ctx, fn)
		if !db.HasCode(err, db.CodeSerializationFailure, db.CodeDeadlockDetected) {
			return translate(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrBusy, err)
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{pgReader: pgReader{q: tx, forUpdate: true}, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// translate maps driver errors onto the store sentinels and passes everything else through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrBusy):
		return err
	case db.HasCode(err, db.CodeExclusionViolation, db.CodeUniqueViolation):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	default:
		return err
	}
}

type pgReader struct {
	q         querier
	forUpdate bool
}

func (r pgReader) FindByID(ctx context.Context, id string) (model.Appointment, error) {
	if !validID(id) {
		return model.Appointment{}, ErrNotFound
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if r.forUpdate {
		sql += ` FOR UPDATE`
	}
	appt, err := scanAppointment(r.q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, fmt.Errorf("find appointment: %w", err)
	}
	return appt, nil
}

func (r pgReader) FindInRange(ctx context.Context, from, to time.Time, statuses []model.Status, excludeID string) ([]model.Appointment, error) {
	return r.List(ctx, ListFilter{From: from, To: to, Statuses: statuses, ExcludeID: excludeID})
}

func (r pgReader) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1 = '' OR owner_id = $1)
			AND ($2::timestamptz IS NULL OR start_time >= $2)
			AND ($3::timestamptz IS NULL OR start_time <= $3)
			AND (cardinality($4::text[]) = 0 OR status = ANY($4))
			AND ($5 = '' OR id::text <> $5)
		ORDER BY start_time ASC, id ASC
		LIMIT NULLIF($6, 0)
	`, f.OwnerID, nullTime(f.From), nullTime(f.To), statusStrings(f.Statuses), f.ExcludeID, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

func (r pgReader) ListDue(ctx context.Context, now time.Time, ownerID string, limit int) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
			AND start_time < $1
			AND ($2 = '' OR owner_id = $2)
		ORDER BY start_time ASC
		LIMIT NULLIF($3, 0)
	`, now, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list due appointments: %w", err)
	}
	return collect(rows)
}

type pgTx struct {
	pgReader
	tx pgx.Tx
}

func (t *pgTx) Insert(ctx context.Context, appt model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, owner_id, service_name, service_price, duration_minutes, start_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, appt.ID, appt.OwnerID, appt.Service.Name, appt.Service.Price, appt.Service.DurationMinutes,
		appt.StartTime, string(appt.Status), appt.Notes, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert appointment: %w", err))
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, appt model.Appointment) error {
	if !validID(appt.ID) {
		return ErrNotFound
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET service_name = $2,
			service_price = $3,
			duration_minutes = $4,
			start_time = $5,
			status = $6,
			notes = $7,
			updated_at = $8
		WHERE id = $1
	`, appt.ID, appt.Service.Name, appt.Service.Price, appt.Service.DurationMinutes,
		appt.StartTime, string(appt.Status), appt.Notes, appt.UpdatedAt)
	if err != nil {
		return translate(fmt.Errorf("update appointment: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	err := row.Scan(
		&appt.ID,
		&appt.OwnerID,
		&appt.Service.Name,
		&appt.Service.Price,
		&appt.Service.DurationMinutes,
		&appt.StartTime,
		&status,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = model.Status(status)
	return appt, nil
}

func collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Ids are uuids; anything else cannot exist and must not reach the uuid cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func statusStrings(statuses []model.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
