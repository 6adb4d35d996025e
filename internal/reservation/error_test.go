package reservation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/avstrong/slotreserve/internal/schedule"
)

func TestValidationError(t *testing.T) {
	ve := newValidationError()
	ve.addError("time", "provide time")
	ve.addError("name", "provide name")
	ve.addError("name", "too long")

	want := "invalid request: name: provide name; too long, time: provide time"
	if ve.Error() != want {
		t.Fatalf("got %q", ve.Error())
	}

	wrapped := fmt.Errorf("submit: %w", ve)
	if IsValidationError(wrapped) != ve || !ve.Has("time") || ve.Has("phone") {
		t.Fatal("validation error not recognised")
	}

	if RejectionKind(wrapped) != KindValidation {
		t.Fatalf("kind %q", RejectionKind(wrapped))
	}
}

func TestCapacityError(t *testing.T) {
	slot := SlotKey{Date: schedule.MustParseDate("2025-06-01"), Time: "10:00 AM"}
	err := fmt.Errorf("reserve: %w", NewCapacityError(slot, 2, 2))

	ce := IsCapacityError(err)
	if ce == nil || ce.Error() != "slot 2025-06-01 10:00 AM is full (2 of 2)" {
		t.Fatalf("unexpected %v", err)
	}

	if occ := ce.SlotOccupancy(); !occ.IsFull || occ.IsLastSlot {
		t.Fatalf("unexpected occupancy %+v", occ)
	}

	if RejectionKind(err) != KindCapacity || IsValidationError(err) != nil || IsInternalError(err) != nil {
		t.Fatal("capacity error misclassified")
	}
}

func TestInternalError(t *testing.T) {
	cause := errors.New("disk full")
	err := newInternalError("reserve slot", cause)

	if !errors.Is(err, ErrInternalFault) || !errors.Is(err, cause) {
		t.Fatal("internal error must match the fault sentinel and its cause")
	}

	if err.Error() != "reserve slot: disk full" {
		t.Fatalf("got %q", err.Error())
	}

	if RejectionKind(errors.New("plain")) != KindInternal || RejectionKind(nil) != "" {
		t.Fatal("unexpected kinds")
	}
}

func TestNewOccupancy(t *testing.T) {
	slot := SlotKey{Date: schedule.MustParseDate("2025-06-01"), Time: "10:00 AM"}

	tests := []struct {
		count          int
		isFull, isLast bool
	}{
		{0, false, false},
		{1, false, true},
		{2, true, false},
	}

	for _, tt := range tests {
		occ := NewOccupancy(slot, tt.count, 2)
		if occ.IsFull != tt.isFull || occ.IsLastSlot != tt.isLast {
			t.Fatalf("count %d: %+v", tt.count, occ)
		}
	}
}
