package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medicrew/clinic-slot-booking/internal/booking"
)

type CreateSlotRequest struct {
	DoctorName     string    `json:"doctor_name" validate:"required"`
	Specialization string    `json:"specialization" validate:"required"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	TotalSlots     int       `json:"total_slots" validate:"required,min=1"`
}

type CreateBookingRequest struct {
	SlotID        string  `json:"slot_id" validate:"required,uuid"`
	PatientName   string  `json:"patient_name" validate:"required"`
	PatientEmail  string  `json:"patient_email" validate:"required,email"`
	PatientAge    int     `json:"patient_age" validate:"required,min=0,max=130"`
	PatientGender string  `json:"patient_gender" validate:"required"`
	Reason        *string `json:"reason,omitempty"`
}

type SlotResponse struct {
	ID             uuid.UUID `json:"id"`
	DoctorName     string    `json:"doctor_name"`
	Specialization string    `json:"specialization"`
	StartTime      time.Time `json:"start_time"`
	TotalSlots     int       `json:"total_slots"`
	AvailableSlots int       `json:"available_slots"`
}

type BookingResponse struct {
	ID             uuid.UUID `json:"id"`
	SlotID         uuid.UUID `json:"slot_id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	PatientAge     int       `json:"patient_age"`
	PatientGender  string    `json:"patient_gender"`
	Reason         *string   `json:"reason,omitempty"`
	Status         string    `json:"status"`
	SeatsBooked    int       `json:"seats_booked"`
	CreatedAt      time.Time `json:"created_at"`
	RemainingSlots *int      `json:"remaining_slots,omitempty"`
}

type SlotOverviewResponse struct {
	SlotResponse
	Bookings []BookingResponse `json:"bookings"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:             s.ID,
		DoctorName:     s.DoctorName,
		Specialization: s.Specialization,
		StartTime:      s.StartTime,
		TotalSlots:     s.TotalSlots,
		AvailableSlots: s.AvailableSlots,
	}
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		SlotID:        b.SlotID,
		PatientName:   b.PatientName,
		PatientEmail:  b.PatientEmail,
		PatientAge:    b.PatientAge,
		PatientGender: b.PatientGender,
		Reason:        b.Reason,
		Status:        string(b.Status),
		SeatsBooked:   b.SeatsBooked,
		CreatedAt:     b.CreatedAt,
	}
}
