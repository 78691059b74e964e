package booking

import (
	"context"
	"errors"
	"fmt"
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

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorName,
		&s.Specialization,
		&s.StartTime,
		&s.TotalSlots,
		&s.AvailableSlots,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var reason *string

	err := row.Scan(
		&b.ID,
		&b.SlotID,
		&b.PatientName,
		&b.PatientEmail,
		&b.PatientAge,
		&b.PatientGender,
		&reason,
		&b.Status,
		&b.SeatsBooked,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Reason = reason
	return &b, nil
}

const slotColumns = `id, doctor_name, specialization, start_time, total_slots, available_slots, created_at, updated_at`
const bookingColumns = `id, slot_id, patient_name, patient_email, patient_age, patient_gender, reason, status, seats_booked, created_at, updated_at`

// Interface methods

func (r *PgRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_name, specialization, start_time, total_slots, available_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+slotColumns+`
	`, slot.ID, slot.DoctorName, slot.Specialization, slot.StartTime, slot.TotalSlots, slot.AvailableSlots)

	created, err := scanSlot(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateSlot
		}
		return err
	}

	*slot = *created
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorName string) ([]Slot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM slots
		ORDER BY start_time ASC
	`
	args := []any{}
	if doctorName != "" {
		query = `
			SELECT ` + slotColumns + `
			FROM slots
			WHERE doctor_name = $1
			ORDER BY start_time ASC
		`
		args = append(args, doctorName)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// TryReserve decrements available_slots only when the slot still has enough
// seats. The WHERE clause makes check and decrement one statement, so two
// racing callers can never both pass the check for the last seat.
func (r *PgRepository) TryReserve(ctx context.Context, id uuid.UUID, seats int) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET available_slots = available_slots - $2,
		    updated_at = now()
		WHERE id = $1
		  AND available_slots >= $2
		RETURNING `+slotColumns+`
	`, id, seats)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrNoCapacity
		}
		return nil, err
	}

	return slot, nil
}

func (r *PgRepository) Release(ctx context.Context, id uuid.UUID, seats int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE slots
		SET available_slots = LEAST(available_slots + $2, total_slots),
		    updated_at = now()
		WHERE id = $1
	`, id, seats)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *PgRepository) CreateBooking(ctx context.Context, b *Booking) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, slot_id, patient_name, patient_email, patient_age, patient_gender, reason, status, seats_booked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+bookingColumns+`
	`, b.ID, b.SlotID, b.PatientName, b.PatientEmail, b.PatientAge, b.PatientGender, b.Reason, b.Status, b.SeatsBooked)

	created, err := scanBooking(row)
	if err != nil {
		return err
	}

	*b = *created
	return nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE slot_id = $1
		ORDER BY created_at ASC
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)

	return scanBooking(row)
}

func (r *PgRepository) FindStalePending(ctx context.Context, olderThan time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'PENDING'
		  AND created_at < $1
	`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	return result, rows.Err()
}

// ListSlotOverviews left-joins slots with their bookings; slots with no
// bookings still appear.
func (r *PgRepository) ListSlotOverviews(ctx context.Context) ([]SlotOverview, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.doctor_name, s.specialization, s.start_time, s.total_slots, s.available_slots, s.created_at, s.updated_at,
		       b.id, b.slot_id, b.patient_name, b.patient_email, b.patient_age, b.patient_gender, b.reason, b.status, b.seats_booked, b.created_at, b.updated_at
		FROM slots s
		LEFT JOIN bookings b ON b.slot_id = s.id
		ORDER BY s.start_time ASC, b.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*SlotOverview)
	var order []uuid.UUID

	for rows.Next() {
		var s Slot
		var bID, bSlotID *uuid.UUID
		var bName, bEmail, bGender, bStatus *string
		var bReason *string
		var bAge, bSeats *int
		var bCreated, bUpdated *time.Time

		err := rows.Scan(
			&s.ID, &s.DoctorName, &s.Specialization, &s.StartTime, &s.TotalSlots, &s.AvailableSlots, &s.CreatedAt, &s.UpdatedAt,
			&bID, &bSlotID, &bName, &bEmail, &bAge, &bGender, &bReason, &bStatus, &bSeats, &bCreated, &bUpdated,
		)
		if err != nil {
			return nil, err
		}

		ov, ok := byID[s.ID]
		if !ok {
			ov = &SlotOverview{Slot: s}
			byID[s.ID] = ov
			order = append(order, s.ID)
		}

		if bID != nil {
			ov.Bookings = append(ov.Bookings, Booking{
				ID:            *bID,
				SlotID:        *bSlotID,
				PatientName:   *bName,
				PatientEmail:  *bEmail,
				PatientAge:    *bAge,
				PatientGender: *bGender,
				Reason:        bReason,
				Status:        Status(*bStatus),
				SeatsBooked:   *bSeats,
				CreatedAt:     *bCreated,
				UpdatedAt:     *bUpdated,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]SlotOverview, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.BookingID, ev.Payload, nullableTime(ev.CreatedAt))
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
