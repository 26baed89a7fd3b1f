package handlers

import (
	"context"
	"net/http"

	"github.com/evswap/swap-station/internal/models"
)

// BatteryService is the slice of the inventory store the HTTP layer needs.
type BatteryService interface {
	GetBattery(ctx context.Context, code string) (*models.Battery, error)
}

// BatteryHandler handles battery lookup requests.
type BatteryHandler struct {
	inv BatteryService
}

// NewBatteryHandler creates a new battery handler.
func NewBatteryHandler(inv BatteryService) *BatteryHandler {
	return &BatteryHandler{inv: inv}
}

// Get handles GET /api/battery/{code}: looks a pack up by its scannable code,
// for staff checking a battery at the station.
func (h *BatteryHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		http.Error(w, "battery code is required", http.StatusBadRequest)
		return
	}
	battery, err := h.inv.GetBattery(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battery.Info())
}
