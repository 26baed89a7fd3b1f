package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/evswap/swap-station/internal/booking"
	"github.com/evswap/swap-station/internal/codes"
	"github.com/evswap/swap-station/internal/inventory"
	"github.com/evswap/swap-station/internal/models"
	"github.com/evswap/swap-station/internal/swap"
)

// ErrorResponse is the structured error body. Transaction is set when a swap
// request failed but a durable FAILED record exists, so the client can tell
// "already happened" from "nothing happened".
type ErrorResponse struct {
	Error       string                  `json:"error"`
	Retryable   bool                    `json:"retryable,omitempty"`
	Transaction *models.SwapTransaction `json:"transaction,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.WithError(err).Error("failed to encode response")
		}
	}
}

// statusFor maps domain errors onto the HTTP surface: 404 for not-found,
// 403 for ownership failures, 409 for conflicts the client must re-read
// state to resolve, and 409 with retryable set for capacity conditions.
func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, booking.ErrNotFound),
		errors.Is(err, codes.ErrCodeNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, inventory.ErrStationNotFound),
		errors.Is(err, swap.ErrNoMountedBattery):
		return http.StatusNotFound, false
	case errors.Is(err, booking.ErrForbidden):
		return http.StatusForbidden, false
	case errors.Is(err, booking.ErrDuplicateActiveBooking),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, inventory.ErrStateConflict),
		errors.Is(err, swap.ErrStateConflict),
		errors.Is(err, swap.ErrBookingNotConfirmable),
		errors.Is(err, codes.ErrCodeExpired):
		return http.StatusConflict, false
	case errors.Is(err, inventory.ErrCapacityExceeded),
		errors.Is(err, swap.ErrNoBatteryAvailable),
		errors.Is(err, codes.ErrCodeUnavailable):
		return http.StatusConflict, true
	default:
		return http.StatusInternalServerError, false
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, retryable := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		writeJSON(w, status, ErrorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Retryable: retryable})
}
