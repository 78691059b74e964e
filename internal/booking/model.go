package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
)

// Slot is one bookable appointment unit: one doctor at one start time with a
// finite number of seats. AvailableSlots is mutated only through
// Repository.TryReserve and Repository.Release.
type Slot struct {
	ID             uuid.UUID
	DoctorName     string
	Specialization string
	StartTime      time.Time
	TotalSlots     int
	AvailableSlots int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Booking is one reservation record against a Slot. A booking only exists if
// its seats were already taken out of the slot's available count.
type Booking struct {
	ID            uuid.UUID
	SlotID        uuid.UUID
	PatientName   string
	PatientEmail  string
	PatientAge    int
	PatientGender string
	Reason        *string
	Status        Status
	SeatsBooked   int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SlotOverview pairs a slot with its bookings for the admin listing.
type SlotOverview struct {
	Slot
	Bookings []Booking
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
