package reservation

import (
	"time"

	"github.com/avstrong/slotreserve/internal/catalog"
	"github.com/avstrong/slotreserve/internal/schedule"
)

// SlotKey identifies one bookable unit: a day and a label from the slot grid.
type SlotKey struct {
	Date schedule.Date `json:"date"`
	Time string        `json:"time"`
}

func (k SlotKey) String() string {
	return k.Date.String() + " " + k.Time
}

// Request is raw caller input; the engine validates and never modifies it.
type Request struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes"`
}

type Reservation struct {
	BookingID string    `json:"booking_id"`
	Slot      SlotKey   `json:"slot"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	ServiceID string    `json:"service_id"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type Booking struct {
	Reservation
	ServiceName  string `json:"service_name"`
	Price        int64  `json:"price"`
	DisplayPrice string `json:"display_price"`
}

type MenuItem struct {
	catalog.Service
	DisplayPrice string `json:"display_price"`
}

type Occupancy struct {
	Slot       SlotKey `json:"slot"`
	Count      int     `json:"count"`
	Capacity   int     `json:"capacity"`
	IsFull     bool    `json:"is_full"`
	IsLastSlot bool    `json:"is_last_slot"`
}

func NewOccupancy(slot SlotKey, count, capacity int) Occupancy {
	return Occupancy{
		Slot:       slot,
		Count:      count,
		Capacity:   capacity,
		IsFull:     count >= capacity,
		IsLastSlot: count == capacity-1,
	}
}

type RestoreResult struct {
	Restored  int `json:"restored"`
	Expired   int `json:"expired"`
	Rejected  int `json:"rejected"`
	Duplicate int `json:"duplicate"`
}
