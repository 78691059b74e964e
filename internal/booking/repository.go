package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound    = errors.New("slot not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrDuplicateSlot   = errors.New("slot already exists for this doctor and start time")
	// ErrNoCapacity is returned by TryReserve when the conditional decrement
	// matched no row, either because the slot is full or does not exist.
	ErrNoCapacity = errors.New("slot has no remaining capacity")
)

// Repository contains all store interactions needed by the service. Both the
// Postgres and the in-memory implementation must satisfy the same atomicity
// contract on TryReserve, Release and UpdateBookingStatus.
type Repository interface {
	// Slot ledger
	CreateSlot(ctx context.Context, slot *Slot) error
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlots(ctx context.Context, doctorName string) ([]Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error

	// TryReserve is the single atomic check-and-decrement: it succeeds only
	// if the slot exists and has at least seats available, and no two
	// concurrent callers can both pass the check for the same seats. Returns
	// the post-decrement slot.
	TryReserve(ctx context.Context, id uuid.UUID, seats int) (*Slot, error)
	// Release returns seats to a slot, clamped so available never exceeds total.
	Release(ctx context.Context, id uuid.UUID, seats int) error

	// Booking records
	CreateBooking(ctx context.Context, b *Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error)
	// UpdateBookingStatus transitions a booking from one status to another,
	// conditionally: it fails with ErrBookingNotFound when the booking is
	// missing or no longer in the from status.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)

	// Reclamation sweep
	FindStalePending(ctx context.Context, olderThan time.Time) ([]Booking, error)

	// Admin listing
	ListSlotOverviews(ctx context.Context) ([]SlotOverview, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
