package schedule

import (
	"errors"
	"testing"
	"time"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewPolicy_DefaultGrid(t *testing.T) {
	p, err := NewPolicy(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	slots := p.Slots()
	if len(slots) != 27 {
		t.Fatalf("expected 27 slots, got %d", len(slots))
	}

	if slots[0] != "09:00 AM" || slots[len(slots)-1] != "10:00 PM" {
		t.Fatalf("unexpected bounds %q .. %q", slots[0], slots[len(slots)-1])
	}

	if slots[6] != "12:00 PM" {
		t.Fatalf("expected noon at index 6, got %q", slots[6])
	}

	slots[0] = "mutated"
	if p.Slots()[0] != "09:00 AM" {
		t.Fatal("Slots must return a copy")
	}
}

func TestNewPolicy_InvalidGrid(t *testing.T) {
	cases := map[string]Config{
		"bad start":  {Start: "9am", End: "22:00", Step: time.Hour},
		"bad end":    {Start: "09:00", End: "", Step: time.Hour},
		"zero step":  {Start: "09:00", End: "22:00"},
		"end before": {Start: "12:00", End: "09:00", Step: time.Hour},
		"sub minute": {Start: "09:00", End: "10:00", Step: 30 * time.Second},
	}

	for name, conf := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewPolicy(conf); !errors.Is(err, ErrInvalidGrid) {
				t.Fatalf("expected ErrInvalidGrid, got %v", err)
			}
		})
	}
}

func TestPolicy_IsValidSlotTime(t *testing.T) {
	p, err := NewPolicy(DefaultConfig())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	for _, label := range []string{"09:00 AM", "10:00 AM", "01:30 PM", "10:00 PM"} {
		if !p.IsValidSlotTime(label) {
			t.Errorf("%q should be valid", label)
		}
	}

	for _, label := range []string{"", "08:30 AM", "10:30 PM", "10:00", "10:15 AM", "10:00 am"} {
		if p.IsValidSlotTime(label) {
			t.Errorf("%q should be invalid", label)
		}
	}
}

func TestPolicy_TodayUsesFixedLocation(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	conf := DefaultConfig()
	conf.Location = kolkata
	// 20:00 UTC on May 31 is already June 1 in IST.
	conf.Now = fixedNow(time.Date(2025, 5, 31, 20, 0, 0, 0, time.UTC))

	p, err := NewPolicy(conf)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	if got := p.Today(); got != MustParseDate("2025-06-01") {
		t.Fatalf("expected 2025-06-01, got %s", got)
	}
}

func TestPolicy_IsValidDate(t *testing.T) {
	conf := DefaultConfig()
	conf.Location = time.UTC
	conf.Now = fixedNow(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))

	p, err := NewPolicy(conf)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	today := MustParseDate("2025-06-01")

	if p.IsValidDate(today.AddDays(-1)) {
		t.Error("yesterday must be invalid")
	}

	if !p.IsValidDate(today) {
		t.Error("today must be valid")
	}

	if !p.IsValidDate(today.AddDays(30)) {
		t.Error("future dates must be valid")
	}

	if p.IsValidDate(Date{}) {
		t.Error("zero date must be invalid")
	}
}
