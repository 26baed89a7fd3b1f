package handlers

import (
	"context"
	"net/http"

	"github.com/evswap/swap-station/internal/middleware"
	"github.com/evswap/swap-station/internal/models"
)

// SwapService is the slice of the swap transaction engine the HTTP layer needs.
type SwapService interface {
	OldBatteryInfo(ctx context.Context, code string) (*models.BatteryInfo, error)
	NewBatteryInfo(ctx context.Context, code string) (*models.BatteryInfo, error)
	Execute(ctx context.Context, code string) (*models.SwapTransaction, error)
	History(ctx context.Context, driverID string) ([]models.SwapTransaction, error)
}

// SwapHandler handles swap transaction requests.
type SwapHandler struct {
	swaps SwapService
}

// NewSwapHandler creates a new swap transaction handler.
func NewSwapHandler(swaps SwapService) *SwapHandler {
	return &SwapHandler{swaps: swaps}
}

func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code query parameter is required", http.StatusBadRequest)
		return "", false
	}
	return code, true
}

// OldBattery handles GET /api/swap-transaction/old-battery?code=...
func (h *SwapHandler) OldBattery(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	info, err := h.swaps.OldBatteryInfo(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// NewBattery handles GET /api/swap-transaction/new-battery?code=...
func (h *SwapHandler) NewBattery(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}
	info, err := h.swaps.NewBatteryInfo(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// SwapByCode handles POST /api/swap-transaction/swap-by-code?code=...
//
// A replayed code returns the stored transaction with 200 regardless of its
// outcome; a first attempt that fails returns the conflict status together
// with the FAILED record, so the caller can always tell what happened.
func (h *SwapHandler) SwapByCode(w http.ResponseWriter, r *http.Request) {
	code, ok := codeParam(w, r)
	if !ok {
		return
	}

	tx, err := h.swaps.Execute(r.Context(), code)
	if err != nil {
		if tx != nil {
			status, retryable := statusFor(err)
			writeJSON(w, status, ErrorResponse{Error: err.Error(), Retryable: retryable, Transaction: tx})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// MyTransactions handles GET /api/swap-transaction/my.
func (h *SwapHandler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return
	}
	list, err := h.swaps.History(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []models.SwapTransaction{}
	}
	writeJSON(w, http.StatusOK, list)
}
