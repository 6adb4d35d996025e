// Package storage holds the checks shared by every reservation.Store backend.
package storage

import (
	"errors"
	"fmt"

	"github.com/avstrong/slotreserve/internal/reservation"
)

var (
	ErrInvalidCapacity = errors.New("capacity must be positive")
	ErrSlotMismatch    = errors.New("built reservation does not match slot")
	ErrEmptyBookingID  = errors.New("built reservation has no booking id")
)

// CheckBuilt validates the arguments of TryReserve and the reservation its
// builder produced.
func CheckBuilt(key reservation.SlotKey, capacity int, res reservation.Reservation) error {
	if capacity < 1 {
		return fmt.Errorf("capacity %d: %w", capacity, ErrInvalidCapacity)
	}

	if res.BookingID == "" {
		return ErrEmptyBookingID
	}

	if res.Slot != key {
		return fmt.Errorf("reservation for %s under key %s: %w", res.Slot, key, ErrSlotMismatch)
	}

	return nil
}
