package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicrew/clinic-slot-booking/internal/config"
	"github.com/medicrew/clinic-slot-booking/internal/metrics"
)

const (
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventHoldCreated      = "HOLD_CREATED"
	EventHoldConfirmed    = "HOLD_CONFIRMED"
	EventBookingExpired   = "BOOKING_EXPIRED"
)

// Each booking claims one seat. Kept as a constant rather than a request
// field so the release amounts always mirror the reserve amounts.
const seatsPerBooking = 1

var (
	// ErrBookingFailed means the reservation lost the capacity check: the
	// slot is full or does not exist. No booking record is created.
	ErrBookingFailed     = errors.New("booking failed: slot full or unavailable")
	ErrHoldExpired       = errors.New("hold has expired")
	ErrInvalidTransition = errors.New("invalid booking status transition")
	ErrInvalidCapacity   = errors.New("total slots must be at least 1")
)

type Service struct {
	repo   Repository
	cfg    config.Config
	logger zerolog.Logger
}

func NewService(repo Repository, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

type CreateSlotParams struct {
	DoctorName     string
	Specialization string
	StartTime      time.Time
	TotalSlots     int
}

type BookingRequest struct {
	SlotID        uuid.UUID
	PatientName   string
	PatientEmail  string
	PatientAge    int
	PatientGender string
	Reason        *string
}

// CreateSlot normalizes the start time to whole minutes before storing, so
// two creates for the same doctor within the same minute collide as
// duplicates and listings sort predictably.
func (s *Service) CreateSlot(ctx context.Context, params CreateSlotParams) (*Slot, error) {
	if params.TotalSlots < 1 {
		return nil, ErrInvalidCapacity
	}

	slot := &Slot{
		ID:             uuid.New(),
		DoctorName:     params.DoctorName,
		Specialization: params.Specialization,
		StartTime:      params.StartTime.UTC().Truncate(time.Minute),
		TotalSlots:     params.TotalSlots,
		AvailableSlots: params.TotalSlots,
	}

	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, err
		}
		return nil, fmt.Errorf("create slot: %w", err)
	}

	return slot, nil
}

func (s *Service) ListSlots(ctx context.Context, doctorName string) ([]Slot, error) {
	slots, err := s.repo.ListSlots(ctx, doctorName)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *Service) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteSlot(ctx, id); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

func (s *Service) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	if _, err := s.repo.GetSlotByID(ctx, slotID); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}

	bookings, err := s.repo.ListBookingsBySlot(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

func (s *Service) SlotOverviews(ctx context.Context) ([]SlotOverview, error) {
	overviews, err := s.repo.ListSlotOverviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("list slot overviews: %w", err)
	}
	return overviews, nil
}

// BookSlot reserves a seat and records the booking as CONFIRMED in one
// request. The reserve is the atomic check-and-decrement; if the record
// insert fails afterwards the seat is released again so capacity cannot
// leak.
func (s *Service) BookSlot(ctx context.Context, req BookingRequest) (*Booking, *Slot, error) {
	booking, slot, err := s.reserveAndRecord(ctx, req, StatusConfirmed)
	if err != nil {
		return nil, nil, err
	}

	metrics.IncBooking("confirmed")
	s.logEvent(ctx, booking.ID, EventBookingConfirmed, map[string]any{
		"slot_id":         slot.ID.String(),
		"remaining_slots": slot.AvailableSlots,
	})

	return booking, slot, nil
}

// HoldSlot reserves a seat but records the booking as PENDING. The caller
// must confirm it before the pending TTL elapses or the reclamation sweep
// takes the seat back.
func (s *Service) HoldSlot(ctx context.Context, req BookingRequest) (*Booking, *Slot, error) {
	booking, slot, err := s.reserveAndRecord(ctx, req, StatusPending)
	if err != nil {
		return nil, nil, err
	}

	metrics.IncBooking("held")
	s.logEvent(ctx, booking.ID, EventHoldCreated, map[string]any{
		"slot_id":    slot.ID.String(),
		"expires_at": booking.CreatedAt.Add(s.cfg.PendingTTL),
	})

	return booking, slot, nil
}

func (s *Service) reserveAndRecord(ctx context.Context, req BookingRequest, status Status) (*Booking, *Slot, error) {
	slot, err := s.repo.TryReserve(ctx, req.SlotID, seatsPerBooking)
	if err != nil {
		if errors.Is(err, ErrNoCapacity) {
			metrics.IncBooking("rejected")
			return nil, nil, ErrBookingFailed
		}
		metrics.IncBooking("error")
		return nil, nil, fmt.Errorf("reserve seat: %w", err)
	}

	booking := &Booking{
		ID:            uuid.New(),
		SlotID:        req.SlotID,
		PatientName:   req.PatientName,
		PatientEmail:  req.PatientEmail,
		PatientAge:    req.PatientAge,
		PatientGender: req.PatientGender,
		Reason:        req.Reason,
		Status:        status,
		SeatsBooked:   seatsPerBooking,
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		// The seat is already decremented; give it back before surfacing
		// the fault, otherwise capacity leaks permanently.
		if relErr := s.repo.Release(ctx, req.SlotID, seatsPerBooking); relErr != nil {
			s.logger.Error().Err(relErr).
				Str("slot_id", req.SlotID.String()).
				Msg("compensating release failed, slot capacity leaked")
		}
		metrics.IncBooking("error")
		return nil, nil, fmt.Errorf("create booking record: %w", err)
	}

	return booking, slot, nil
}

// ConfirmBooking moves a pending hold to confirmed.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load booking: %w", err)
	}

	if b.Status == StatusExpired {
		return nil, ErrHoldExpired
	}
	if b.Status != StatusPending {
		return nil, ErrInvalidTransition
	}

	deadline := b.CreatedAt.Add(s.cfg.PendingTTL)
	if time.Now().After(deadline) {
		// Stale hold the sweep has not reached yet. Expire it here, using
		// the same conditional transition so only one of us releases.
		if _, updErr := s.repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusExpired); updErr == nil {
			if relErr := s.repo.Release(ctx, b.SlotID, b.SeatsBooked); relErr != nil {
				s.logger.Error().Err(relErr).
					Str("booking_id", b.ID.String()).
					Msg("release after confirm-time expiry failed")
			}
			s.logEvent(ctx, b.ID, EventBookingExpired, map[string]any{"reason": "confirm_after_deadline"})
		}
		return nil, ErrHoldExpired
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusConfirmed)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost the race with the sweep.
			return nil, ErrHoldExpired
		}
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventHoldConfirmed, map[string]any{})

	return updated, nil
}

// ReclaimStale expires pending bookings older than the pending TTL and
// returns their seats to the slot ledger. The PENDING -> EXPIRED conditional
// transition is the idempotence guard: a record a concurrent run already
// expired is skipped, so seats are released exactly once. Failures on one
// record do not stop the run. Returns the number of seats released.
func (s *Service) ReclaimStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.PendingTTL)

	stale, err := s.repo.FindStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale pending bookings: %w", err)
	}

	released := 0
	for _, b := range stale {
		if _, err := s.repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusExpired); err != nil {
			if !errors.Is(err, ErrBookingNotFound) {
				s.logger.Error().Err(err).
					Str("booking_id", b.ID.String()).
					Msg("failed to expire booking")
			}
			continue
		}

		if err := s.repo.Release(ctx, b.SlotID, b.SeatsBooked); err != nil {
			s.logger.Error().Err(err).
				Str("booking_id", b.ID.String()).
				Str("slot_id", b.SlotID.String()).
				Msg("failed to release seats for expired booking")
			continue
		}

		released += b.SeatsBooked
		s.logEvent(ctx, b.ID, EventBookingExpired, map[string]any{
			"reason":         "sweep",
			"seats_released": b.SeatsBooked,
		})
	}

	if released > 0 {
		metrics.AddSeatsReclaimed(released)
	}

	return released, nil
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID

	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("booking_id", bookingID.String()).
			Msg("failed to insert event log")
	}
}
