package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSlot(t *testing.T, repo *MemoryRepository, total int) *Slot {
	t.Helper()
	slot := &Slot{
		ID:             uuid.New(),
		DoctorName:     "Dr. Grey",
		Specialization: "General Practice",
		StartTime:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		TotalSlots:     total,
		AvailableSlots: total,
	}
	require.NoError(t, repo.CreateSlot(context.Background(), slot))
	return slot
}

func TestTryReserveUnknownSlot(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.TryReserve(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestTryReserveInsufficientSeats(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlot(t, repo, 1)
	ctx := context.Background()

	updated, err := repo.TryReserve(ctx, slot.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AvailableSlots)

	_, err = repo.TryReserve(ctx, slot.ID, 1)
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestReleaseClampsAtTotal(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlot(t, repo, 2)
	ctx := context.Background()

	require.NoError(t, repo.Release(ctx, slot.ID, 5))

	s, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.AvailableSlots)
}

func TestUpdateBookingStatusIsConditional(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlot(t, repo, 1)
	ctx := context.Background()

	b := &Booking{
		ID:            uuid.New(),
		SlotID:        slot.ID,
		PatientName:   "Bob",
		PatientEmail:  "bob@example.com",
		PatientAge:    52,
		PatientGender: "male",
		Status:        StatusPending,
		SeatsBooked:   1,
	}
	require.NoError(t, repo.CreateBooking(ctx, b))

	updated, err := repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, updated.Status)

	// Already expired: the guarded transition reports not found.
	_, err = repo.UpdateBookingStatus(ctx, b.ID, StatusPending, StatusExpired)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestDeleteSlotRemovesDependentBookings(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlot(t, repo, 1)
	ctx := context.Background()

	b := &Booking{
		ID:          uuid.New(),
		SlotID:      slot.ID,
		PatientName: "Bob",
		Status:      StatusConfirmed,
		SeatsBooked: 1,
	}
	require.NoError(t, repo.CreateBooking(ctx, b))

	require.NoError(t, repo.DeleteSlot(ctx, slot.ID))

	_, err := repo.GetBookingByID(ctx, b.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestFindStalePendingSkipsFreshAndConfirmed(t *testing.T) {
	repo := NewMemoryRepository()
	slot := seedSlot(t, repo, 3)
	ctx := context.Background()

	old := time.Now().Add(-10 * time.Minute)

	stale := &Booking{ID: uuid.New(), SlotID: slot.ID, Status: StatusPending, SeatsBooked: 1, CreatedAt: old}
	confirmed := &Booking{ID: uuid.New(), SlotID: slot.ID, Status: StatusConfirmed, SeatsBooked: 1, CreatedAt: old}
	fresh := &Booking{ID: uuid.New(), SlotID: slot.ID, Status: StatusPending, SeatsBooked: 1}
	for _, b := range []*Booking{stale, confirmed, fresh} {
		require.NoError(t, repo.CreateBooking(ctx, b))
	}

	found, err := repo.FindStalePending(ctx, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}
