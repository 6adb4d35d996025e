package handoff

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
)

func booking(notes string) reservation.Booking {
	return reservation.Booking{
		Reservation: reservation.Reservation{
			BookingID: "PS-7KQ2ZD",
			Slot:      reservation.SlotKey{Date: schedule.MustParseDate("2025-06-01"), Time: "10:00 AM"},
			Name:      "Asha Rao",
			Phone:     "9876543210",
			ServiceID: "hair-spa",
			Notes:     notes,
			CreatedAt: time.Date(2025, 5, 30, 12, 0, 0, 0, time.UTC),
		},
		ServiceName:  "Luxury Hair Spa",
		Price:        1800,
		DisplayPrice: "₹1,800",
	}
}

func TestFormatter_Message(t *testing.T) {
	f := New(Config{Phone: "98200 12345"}) //nolint:exhaustruct

	want := "RESERVATION REQUEST: ProStyle\n" +
		"-------------------------\n" +
		"ID: PS-7KQ2ZD\n" +
		"CLIENT: Asha Rao\n" +
		"PHONE: 9876543210\n" +
		"SERVICE: Luxury Hair Spa\n" +
		"DATE: 2025-06-01\n" +
		"TIME: 10:00 AM\n" +
		"NOTES: None"

	if got := f.Message(booking("")); got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}

	if got := f.Message(booking("no fragrance")); !strings.HasSuffix(got, "NOTES: no fragrance") {
		t.Fatalf("notes missing: %q", got)
	}
}

func TestFormatter_Link(t *testing.T) {
	f := New(Config{Brand: "Salon & Co", Phone: "(98200) 12345", CountryCode: "+44"})

	h := f.For(booking("fringe & layers"))

	if !strings.HasPrefix(h.Link, "https://wa.me/449820012345?text=") {
		t.Fatalf("unexpected link %q", h.Link)
	}

	if strings.Contains(h.Link, "+") || strings.Contains(h.Link, " ") {
		t.Fatalf("link must percent-encode spaces: %q", h.Link)
	}

	u, err := url.Parse(h.Link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}

	if got := u.Query().Get("text"); got != h.Message {
		t.Fatalf("decoded text %q, want %q", got, h.Message)
	}

	if !strings.HasPrefix(h.Message, "RESERVATION REQUEST: Salon & Co\n") {
		t.Fatalf("brand missing: %q", h.Message)
	}
}

func TestFormatter_NoPhone(t *testing.T) {
	f := New(Config{}) //nolint:exhaustruct

	h := f.For(booking(""))
	if h.Link != "" || h.Message == "" {
		t.Fatalf("unexpected handoff %+v", h)
	}
}
