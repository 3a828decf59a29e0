package repository

import (
	"testing"

	"github.com/iliyamo/lawncare-booking/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{model.BookingRequested, model.BookingScheduled, true},
		{model.BookingRequested, model.BookingCancelled, true},
		{model.BookingRequested, model.BookingCompleted, false},
		{model.BookingScheduled, model.BookingInProgress, true},
		{model.BookingInProgress, model.BookingCompleted, true},
		{model.BookingInProgress, model.BookingCancelled, false},
		{model.BookingCompleted, model.BookingCancelled, false},
		{model.BookingCancelled, model.BookingScheduled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}
