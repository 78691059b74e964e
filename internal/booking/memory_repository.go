package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-process store. It backs the service
// in dev mode when no Postgres DSN is configured, and the unit tests. The
// single mutex gives TryReserve and UpdateBookingStatus the same
// check-and-mutate atomicity the Postgres conditional updates provide.
type MemoryRepository struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*Slot
	bookings map[uuid.UUID]*Booking
	events   []EventLog
	nextEvID int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:    make(map[uuid.UUID]*Slot),
		bookings: make(map[uuid.UUID]*Booking),
	}
}

func (r *MemoryRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.slots {
		if s.DoctorName == slot.DoctorName && s.StartTime.Equal(slot.StartTime) {
			return ErrDuplicateSlot
		}
	}

	now := time.Now()
	slot.CreatedAt = now
	slot.UpdatedAt = now

	cp := *slot
	r.slots[slot.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListSlots(ctx context.Context, doctorName string) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for _, s := range r.slots {
		if doctorName != "" && s.DoctorName != doctorName {
			continue
		}
		result = append(result, *s)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})

	return result, nil
}

func (r *MemoryRepository) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(r.slots, id)

	// Mirrors the ON DELETE CASCADE in the Postgres schema.
	for bid, b := range r.bookings {
		if b.SlotID == id {
			delete(r.bookings, bid)
		}
	}

	return nil
}

func (r *MemoryRepository) TryReserve(ctx context.Context, id uuid.UUID, seats int) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok || s.AvailableSlots < seats {
		return nil, ErrNoCapacity
	}

	s.AvailableSlots -= seats
	s.UpdatedAt = time.Now()

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) Release(ctx context.Context, id uuid.UUID, seats int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}

	s.AvailableSlots += seats
	if s.AvailableSlots > s.TotalSlots {
		s.AvailableSlots = s.TotalSlots
	}
	s.UpdatedAt = time.Now()

	return nil
}

func (r *MemoryRepository) CreateBooking(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *MemoryRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) ListBookingsBySlot(ctx context.Context, slotID uuid.UUID) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.bookingsForSlotLocked(slotID), nil
}

func (r *MemoryRepository) bookingsForSlotLocked(slotID uuid.UUID) []Booking {
	var result []Booking
	for _, b := range r.bookings {
		if b.SlotID == slotID {
			result = append(result, *b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

func (r *MemoryRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}

	b.Status = to
	b.UpdatedAt = time.Now()

	cp := *b
	return &cp, nil
}

func (r *MemoryRepository) FindStalePending(ctx context.Context, olderThan time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Booking
	for _, b := range r.bookings {
		if b.Status == StatusPending && b.CreatedAt.Before(olderThan) {
			result = append(result, *b)
		}
	}

	return result, nil
}

func (r *MemoryRepository) ListSlotOverviews(ctx context.Context) ([]SlotOverview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []SlotOverview
	for _, s := range r.slots {
		result = append(result, SlotOverview{
			Slot:     *s,
			Bookings: r.bookingsForSlotLocked(s.ID),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})

	return result, nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEvID++
	ev.ID = r.nextEvID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.events = append(r.events, ev)
	return nil
}
