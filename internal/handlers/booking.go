package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/middleware"
	"github.com/evswap/swap-station/internal/models"
)

// BookingService is the slice of the booking lifecycle the HTTP layer needs.
type BookingService interface {
	Create(ctx context.Context, driverID, vehicleID string, stationID primitive.ObjectID) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID primitive.ObjectID, requesterID string) error
	Confirm(ctx context.Context, bookingID primitive.ObjectID, staffID string) (*models.Booking, error)
	Get(ctx context.Context, bookingID primitive.ObjectID, driverID string) (*models.Booking, error)
	MyBookings(ctx context.Context, driverID string) ([]models.Booking, error)
}

// BookingHandler handles booking requests.
type BookingHandler struct {
	bookings BookingService
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(bookings BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Create handles POST /api/booking.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req models.CreateBookingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.VehicleID == "" || req.StationID == "" {
		http.Error(w, "vehicle_id and station_id are required", http.StatusBadRequest)
		return
	}
	stationID, err := primitive.ObjectIDFromHex(req.StationID)
	if err != nil {
		http.Error(w, "Invalid station_id", http.StatusBadRequest)
		return
	}

	b, err := h.bookings.Create(r.Context(), claims.UserID, req.VehicleID, stationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// MyBookings handles GET /api/booking/my-bookings.
func (h *BookingHandler) MyBookings(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}

	list, err := h.bookings.MyBookings(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	writeJSON(w, http.StatusOK, list)
}

// MyBooking handles GET /api/booking/my-bookings/{id}.
func (h *BookingHandler) MyBooking(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	b, err := h.bookings.Get(r.Context(), id, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Cancel handles PATCH /api/booking/my-bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	if err := h.bookings.Cancel(r.Context(), id, claims.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Confirm handles PATCH /api/booking/{id}/confirm (staff only, enforced by
// middleware).
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	id, err := primitive.ObjectIDFromHex(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid booking id", http.StatusBadRequest)
		return
	}

	b, err := h.bookings.Confirm(r.Context(), id, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
