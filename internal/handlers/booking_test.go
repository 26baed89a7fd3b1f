package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/booking"
	"github.com/evswap/swap-station/internal/inventory"
	"github.com/evswap/swap-station/internal/middleware"
	"github.com/evswap/swap-station/internal/models"
)

type mockBookingService struct {
	mock.Mock
}

func (m *mockBookingService) Create(ctx context.Context, driverID, vehicleID string, stationID primitive.ObjectID) (*models.Booking, error) {
	args := m.Called(ctx, driverID, vehicleID, stationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingService) Cancel(ctx context.Context, bookingID primitive.ObjectID, requesterID string) error {
	args := m.Called(ctx, bookingID, requesterID)
	return args.Error(0)
}

func (m *mockBookingService) Confirm(ctx context.Context, bookingID primitive.ObjectID, staffID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, staffID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingService) Get(ctx context.Context, bookingID primitive.ObjectID, driverID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingService) MyBookings(ctx context.Context, driverID string) ([]models.Booking, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func withClaims(r *http.Request, claims *models.Claims) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, claims)
	return r.WithContext(ctx)
}

func driverClaims() *models.Claims {
	return &models.Claims{UserID: "driver-1", Username: "driver", Role: models.RoleDriver}
}

func TestCreateBooking(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)

	stationID := primitive.NewObjectID()
	created := &models.Booking{
		ID:               primitive.NewObjectID(),
		DriverID:         "driver-1",
		VehicleID:        "vehicle-1",
		StationID:        stationID,
		Status:           models.BookingPending,
		ConfirmationCode: "ABC123",
	}
	svc.On("Create", mock.Anything, "driver-1", "vehicle-1", stationID).Return(created, nil)

	body, _ := json.Marshal(models.CreateBookingRequest{VehicleID: "vehicle-1", StationID: stationID.Hex()})
	req := httptest.NewRequest(http.MethodPost, "/api/booking", bytes.NewReader(body))
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var got models.Booking
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ABC123", got.ConfirmationCode)
	svc.AssertExpectations(t)
}

func TestCreateBookingMissingFields(t *testing.T) {
	handler := NewBookingHandler(new(mockBookingService))

	body, _ := json.Marshal(models.CreateBookingRequest{VehicleID: "vehicle-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/booking", bytes.NewReader(body))
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingInvalidStationID(t *testing.T) {
	handler := NewBookingHandler(new(mockBookingService))

	body, _ := json.Marshal(models.CreateBookingRequest{VehicleID: "vehicle-1", StationID: "not-hex"})
	req := httptest.NewRequest(http.MethodPost, "/api/booking", bytes.NewReader(body))
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingWithoutClaims(t *testing.T) {
	handler := NewBookingHandler(new(mockBookingService))

	req := httptest.NewRequest(http.MethodPost, "/api/booking", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateBookingConflicts(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryable  bool
	}{
		{"duplicate active booking", booking.ErrDuplicateActiveBooking, http.StatusConflict, false},
		{"capacity exceeded", inventory.ErrCapacityExceeded, http.StatusConflict, true},
		{"station missing", inventory.ErrStationNotFound, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockBookingService)
			handler := NewBookingHandler(svc)
			stationID := primitive.NewObjectID()
			svc.On("Create", mock.Anything, "driver-1", "vehicle-1", stationID).Return(nil, tt.err)

			body, _ := json.Marshal(models.CreateBookingRequest{VehicleID: "vehicle-1", StationID: stationID.Hex()})
			req := httptest.NewRequest(http.MethodPost, "/api/booking", bytes.NewReader(body))
			req = withClaims(req, driverClaims())
			rec := httptest.NewRecorder()

			handler.Create(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp ErrorResponse
			assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.retryable, resp.Retryable)
		})
	}
}

func TestMyBookingsEmptyList(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)
	svc.On("MyBookings", mock.Anything, "driver-1").Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/booking/my-bookings", nil)
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	handler.MyBookings(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestCancelBooking(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)
	id := primitive.NewObjectID()
	svc.On("Cancel", mock.Anything, id, "driver-1").Return(nil)

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/booking/my-bookings/{id}/cancel", handler.Cancel)

	req := httptest.NewRequest(http.MethodPatch, "/api/booking/my-bookings/"+id.Hex()+"/cancel", nil)
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestCancelBookingForbidden(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)
	id := primitive.NewObjectID()
	svc.On("Cancel", mock.Anything, id, "driver-1").Return(booking.ErrForbidden)

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/booking/my-bookings/{id}/cancel", handler.Cancel)

	req := httptest.NewRequest(http.MethodPatch, "/api/booking/my-bookings/"+id.Hex()+"/cancel", nil)
	req = withClaims(req, driverClaims())
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestConfirmBooking(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)
	id := primitive.NewObjectID()
	confirmed := &models.Booking{ID: id, Status: models.BookingConfirmed, ConfirmedBy: "staff-1"}
	svc.On("Confirm", mock.Anything, id, "staff-1").Return(confirmed, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/booking/{id}/confirm", handler.Confirm)

	req := httptest.NewRequest(http.MethodPatch, "/api/booking/"+id.Hex()+"/confirm", nil)
	req = withClaims(req, &models.Claims{UserID: "staff-1", Username: "staff", Role: models.RoleStaff})
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.Booking
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.BookingConfirmed, got.Status)
}

func TestConfirmBookingAlreadyConfirmed(t *testing.T) {
	svc := new(mockBookingService)
	handler := NewBookingHandler(svc)
	id := primitive.NewObjectID()
	svc.On("Confirm", mock.Anything, id, "staff-1").Return(nil, booking.ErrInvalidTransition)

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /api/booking/{id}/confirm", handler.Confirm)

	req := httptest.NewRequest(http.MethodPatch, "/api/booking/"+id.Hex()+"/confirm", nil)
	req = withClaims(req, &models.Claims{UserID: "staff-1", Username: "staff", Role: models.RoleStaff})
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
