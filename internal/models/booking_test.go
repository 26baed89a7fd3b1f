package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name  string
		from  BookingStatus
		to    BookingStatus
		legal bool
	}{
		{"pending to confirmed", BookingPending, BookingConfirmed, true},
		{"pending to cancelled", BookingPending, BookingCancelled, true},
		{"pending to completed", BookingPending, BookingCompleted, true},
		{"pending to expired", BookingPending, BookingExpired, true},
		{"confirmed to completed", BookingConfirmed, BookingCompleted, true},
		{"confirmed to cancelled", BookingConfirmed, BookingCancelled, false},
		{"confirmed to pending", BookingConfirmed, BookingPending, false},
		{"confirmed to expired", BookingConfirmed, BookingExpired, false},
		{"completed is terminal", BookingCompleted, BookingPending, false},
		{"cancelled is terminal", BookingCancelled, BookingConfirmed, false},
		{"expired is terminal", BookingExpired, BookingConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.legal, CanTransition(tt.from, tt.to))
		})
	}
}

func TestBookingIsActive(t *testing.T) {
	assert.True(t, (&Booking{Status: BookingPending}).IsActive())
	assert.True(t, (&Booking{Status: BookingConfirmed}).IsActive())
	assert.False(t, (&Booking{Status: BookingCancelled}).IsActive())
	assert.False(t, (&Booking{Status: BookingCompleted}).IsActive())
	assert.False(t, (&Booking{Status: BookingExpired}).IsActive())
}
