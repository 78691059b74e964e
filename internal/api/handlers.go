package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medicrew/clinic-slot-booking/internal/booking"
)

func createSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if msg := validateStruct(req); msg != "" {
			writeError(w, http.StatusBadRequest, "validation_failed", msg)
			return
		}

		slot, err := svc.CreateSlot(r.Context(), booking.CreateSlotParams{
			DoctorName:     req.DoctorName,
			Specialization: req.Specialization,
			StartTime:      req.StartTime,
			TotalSlots:     req.TotalSlots,
		})
		if err != nil {
			switch {
			case errors.Is(err, booking.ErrDuplicateSlot):
				writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
			case errors.Is(err, booking.ErrInvalidCapacity):
				writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context(), r.URL.Query().Get("doctor"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toSlotResponse(&slots[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func slotOverviewHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overviews, err := svc.SlotOverviews(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]SlotOverviewResponse, 0, len(overviews))
		for i := range overviews {
			ov := SlotOverviewResponse{
				SlotResponse: toSlotResponse(&overviews[i].Slot),
				Bookings:     make([]BookingResponse, 0, len(overviews[i].Bookings)),
			}
			for j := range overviews[i].Bookings {
				ov.Bookings = append(ov.Bookings, toBookingResponse(&overviews[i].Bookings[j]))
			}
			resp = append(resp, ov)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), id); err != nil {
			if errors.Is(err, booking.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		bookings, err := svc.ListBookingsBySlot(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrSlotNotFound) {
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]BookingResponse, 0, len(bookings))
		for i := range bookings {
			resp = append(resp, toBookingResponse(&bookings[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bookSlotHandler(svc *booking.Service) http.HandlerFunc {
	return bookingHandler(svc, (*booking.Service).BookSlot)
}

func holdSlotHandler(svc *booking.Service) http.HandlerFunc {
	return bookingHandler(svc, (*booking.Service).HoldSlot)
}

func bookingHandler(svc *booking.Service, book func(*booking.Service, context.Context, booking.BookingRequest) (*booking.Booking, *booking.Slot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if msg := validateStruct(req); msg != "" {
			writeError(w, http.StatusBadRequest, "validation_failed", msg)
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		b, slot, err := book(svc, r.Context(), booking.BookingRequest{
			SlotID:        slotID,
			PatientName:   req.PatientName,
			PatientEmail:  req.PatientEmail,
			PatientAge:    req.PatientAge,
			PatientGender: req.PatientGender,
			Reason:        req.Reason,
		})
		if err != nil {
			if errors.Is(err, booking.ErrBookingFailed) {
				writeError(w, http.StatusConflict, "booking_failed", "slot full or unavailable")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := toBookingResponse(b)
		remaining := slot.AvailableSlots
		resp.RemainingSlots = &remaining

		writeJSON(w, http.StatusCreated, resp)
	}
}

func confirmBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		b, err := svc.ConfirmBooking(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, booking.ErrBookingNotFound):
				writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
			case errors.Is(err, booking.ErrHoldExpired):
				writeError(w, http.StatusConflict, "hold_expired", err.Error())
			case errors.Is(err, booking.ErrInvalidTransition):
				writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}
