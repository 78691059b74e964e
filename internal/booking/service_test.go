package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicrew/clinic-slot-booking/internal/config"
)

func newTestService(repo Repository, pendingTTL time.Duration) *Service {
	cfg := config.Config{PendingTTL: pendingTTL}
	return NewService(repo, cfg, zerolog.Nop())
}

func testBookingRequest(slotID uuid.UUID) BookingRequest {
	return BookingRequest{
		SlotID:        slotID,
		PatientName:   "Alice Example",
		PatientEmail:  "alice@example.com",
		PatientAge:    34,
		PatientGender: "female",
	}
}

func mustCreateSlot(t *testing.T, svc *Service, total int) *Slot {
	t.Helper()
	slot, err := svc.CreateSlot(context.Background(), CreateSlotParams{
		DoctorName:     "Dr. House",
		Specialization: "Diagnostics",
		StartTime:      time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		TotalSlots:     total,
	})
	require.NoError(t, err)
	return slot
}

func TestCreateSlotNormalizesStartTime(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)

	slot, err := svc.CreateSlot(context.Background(), CreateSlotParams{
		DoctorName:     "Dr. A",
		Specialization: "Cardiology",
		StartTime:      time.Date(2024, 1, 1, 10, 0, 30, 500, time.UTC),
		TotalSlots:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), slot.StartTime)
	assert.Equal(t, 3, slot.TotalSlots)
	assert.Equal(t, 3, slot.AvailableSlots)
}

func TestCreateSlotDuplicateWithinSameMinute(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)
	ctx := context.Background()

	_, err := svc.CreateSlot(ctx, CreateSlotParams{
		DoctorName:     "Dr. A",
		Specialization: "Cardiology",
		StartTime:      time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC),
		TotalSlots:     1,
	})
	require.NoError(t, err)

	// Different second, same minute after normalization.
	_, err = svc.CreateSlot(ctx, CreateSlotParams{
		DoctorName:     "Dr. A",
		Specialization: "Cardiology",
		StartTime:      time.Date(2024, 1, 1, 10, 0, 45, 0, time.UTC),
		TotalSlots:     1,
	})
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	// Same minute but a different doctor is fine.
	_, err = svc.CreateSlot(ctx, CreateSlotParams{
		DoctorName:     "Dr. B",
		Specialization: "Cardiology",
		StartTime:      time.Date(2024, 1, 1, 10, 0, 45, 0, time.UTC),
		TotalSlots:     1,
	})
	assert.NoError(t, err)
}

func TestCreateSlotRejectsZeroCapacity(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)

	_, err := svc.CreateSlot(context.Background(), CreateSlotParams{
		DoctorName:     "Dr. A",
		Specialization: "Cardiology",
		StartTime:      time.Now(),
		TotalSlots:     0,
	})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestListSlotsOrderedAndFiltered(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)
	ctx := context.Background()

	for _, tc := range []struct {
		doctor string
		hour   int
	}{
		{"Dr. B", 14},
		{"Dr. A", 9},
		{"Dr. A", 11},
	} {
		_, err := svc.CreateSlot(ctx, CreateSlotParams{
			DoctorName:     tc.doctor,
			Specialization: "General Practice",
			StartTime:      time.Date(2024, 1, 1, tc.hour, 0, 0, 0, time.UTC),
			TotalSlots:     2,
		})
		require.NoError(t, err)
	}

	all, err := svc.ListSlots(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartTime.Before(all[1].StartTime))
	assert.True(t, all[1].StartTime.Before(all[2].StartTime))

	filtered, err := svc.ListSlots(ctx, "Dr. A")
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, s := range filtered {
		assert.Equal(t, "Dr. A", s.DoctorName)
	}
}

func TestDeleteSlotNotFound(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)

	err := svc.DeleteSlot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestBookSlotUntilExhausted(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, time.Minute)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 3)

	for i := 3; i > 0; i-- {
		b, updated, err := svc.BookSlot(ctx, testBookingRequest(slot.ID))
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, b.Status)
		assert.Equal(t, i-1, updated.AvailableSlots)
	}

	_, _, err := svc.BookSlot(ctx, testBookingRequest(slot.ID))
	assert.ErrorIs(t, err, ErrBookingFailed)

	// Fourth attempt must not leave a record behind.
	bookings, err := svc.ListBookingsBySlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 3)
}

func TestBookSlotUnknownSlot(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)

	_, _, err := svc.BookSlot(context.Background(), testBookingRequest(uuid.New()))
	assert.ErrorIs(t, err, ErrBookingFailed)
}

func TestConcurrentBookingExactlyOneWinner(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, time.Minute)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 1)

	const attempts = 20
	var wg sync.WaitGroup
	wg.Add(attempts)
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, _, err := svc.BookSlot(ctx, testBookingRequest(slot.ID))
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrBookingFailed)
			losses++
		}
	}

	assert.Equal(t, 1, wins, "exactly one booking should win the last seat")
	assert.Equal(t, attempts-1, losses)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.AvailableSlots)

	bookings, err := repo.ListBookingsBySlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestConcurrentBookingNoOversell(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, time.Minute)
	ctx := context.Background()

	const capacity = 5
	const attempts = 50
	slot := mustCreateSlot(t, svc, capacity)

	var wg sync.WaitGroup
	wg.Add(attempts)
	var wins int64
	var mu sync.Mutex

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := svc.BookSlot(ctx, testBookingRequest(slot.ID)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, capacity, wins)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.AvailableSlots)

	// Reconciliation invariant: seats held by live bookings == total - available.
	bookings, err := repo.ListBookingsBySlot(ctx, slot.ID)
	require.NoError(t, err)
	held := 0
	for _, b := range bookings {
		if b.Status == StatusConfirmed || b.Status == StatusPending {
			held += b.SeatsBooked
		}
	}
	assert.Equal(t, final.TotalSlots-final.AvailableSlots, held)
}

// faultyRepo fails booking-record creation to exercise the compensating
// release path.
type faultyRepo struct {
	*MemoryRepository
}

func (r *faultyRepo) CreateBooking(ctx context.Context, b *Booking) error {
	return errors.New("storage fault")
}

func TestCompensatingReleaseOnRecordFault(t *testing.T) {
	mem := NewMemoryRepository()
	svc := newTestService(&faultyRepo{MemoryRepository: mem}, time.Minute)
	ctx := context.Background()

	slot := mustCreateSlot(t, newTestService(mem, time.Minute), 2)

	_, _, err := svc.BookSlot(ctx, testBookingRequest(slot.ID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBookingFailed)

	// Capacity restored, no orphaned record.
	final, err := mem.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.AvailableSlots)

	bookings, err := mem.ListBookingsBySlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestHoldThenConfirm(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, time.Minute)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 1)

	hold, updated, err := svc.HoldSlot(ctx, testBookingRequest(slot.ID))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, hold.Status)
	assert.Equal(t, 0, updated.AvailableSlots)

	confirmed, err := svc.ConfirmBooking(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// Confirming twice is an invalid transition.
	_, err = svc.ConfirmBooking(ctx, hold.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmUnknownBooking(t *testing.T) {
	svc := newTestService(NewMemoryRepository(), time.Minute)

	_, err := svc.ConfirmBooking(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestReclaimStaleReleasesSeats(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, 10*time.Millisecond)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 1)

	hold, _, err := svc.HoldSlot(ctx, testBookingRequest(slot.ID))
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	released, err := svc.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	b, err := repo.GetBookingByID(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, b.Status)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.AvailableSlots)

	// Seat is free again: a fresh booking succeeds.
	_, _, err = svc.BookSlot(ctx, testBookingRequest(slot.ID))
	assert.NoError(t, err)
}

func TestReclaimStaleIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, 10*time.Millisecond)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 3)

	_, _, err := svc.HoldSlot(ctx, testBookingRequest(slot.ID))
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	released, err := svc.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	// Second run must not release the same seats again.
	released, err = svc.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.AvailableSlots)
}

func TestConfirmAfterDeadlineExpiresHold(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, 10*time.Millisecond)
	ctx := context.Background()

	slot := mustCreateSlot(t, svc, 1)

	hold, _, err := svc.HoldSlot(ctx, testBookingRequest(slot.ID))
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	_, err = svc.ConfirmBooking(ctx, hold.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)

	b, err := repo.GetBookingByID(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, b.Status)

	final, err := repo.GetSlotByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.AvailableSlots)

	// The sweep finds nothing left to do.
	released, err := svc.ReclaimStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestSlotOverviewsIncludeEmptySlots(t *testing.T) {
	repo := NewMemoryRepository()
	svc := newTestService(repo, time.Minute)
	ctx := context.Background()

	booked := mustCreateSlot(t, svc, 2)
	_, err := svc.CreateSlot(ctx, CreateSlotParams{
		DoctorName:     "Dr. Empty",
		Specialization: "Dermatology",
		StartTime:      time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		TotalSlots:     2,
	})
	require.NoError(t, err)

	_, _, err = svc.BookSlot(ctx, testBookingRequest(booked.ID))
	require.NoError(t, err)

	overviews, err := svc.SlotOverviews(ctx)
	require.NoError(t, err)
	require.Len(t, overviews, 2)

	byDoctor := make(map[string]SlotOverview)
	for _, ov := range overviews {
		byDoctor[ov.DoctorName] = ov
	}
	assert.Len(t, byDoctor["Dr. House"].Bookings, 1)
	assert.Empty(t, byDoctor["Dr. Empty"].Bookings)
}
