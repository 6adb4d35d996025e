package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
	"github.com/avstrong/slotreserve/internal/storage"
)

var today = schedule.MustParseDate("2025-06-01")

func key(d schedule.Date, label string) reservation.SlotKey {
	return reservation.SlotKey{Date: d, Time: label}
}

func builder(k reservation.SlotKey, id string) func() reservation.Reservation {
	return func() reservation.Reservation {
		return reservation.Reservation{
			BookingID: id,
			Slot:      k,
			Name:      "Client " + id,
			Phone:     "9876543210",
			ServiceID: "signature-cut",
			CreatedAt: time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC),
		}
	}
}

func newDB(t *testing.T) *DB {
	t.Helper()

	policy, err := schedule.NewPolicy(schedule.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	//nolint:exhaustruct
	return New(Config{SlotOrder: policy.SlotIndex})
}

func TestDB_TryReserve_Capacity(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	k := key(today, "10:00 AM")

	for i, id := range []string{"PS-AAAAA1", "PS-AAAAA2"} {
		res, err := db.TryReserve(ctx, k, 2, builder(k, id))
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}

		if res.BookingID != id {
			t.Fatalf("got %q", res.BookingID)
		}
	}

	built := false

	_, err := db.TryReserve(ctx, k, 2, func() reservation.Reservation {
		built = true

		return builder(k, "PS-AAAAA3")()
	})

	capErr := reservation.IsCapacityError(err)
	if capErr == nil {
		t.Fatalf("expected capacity error, got %v", err)
	}

	if capErr.Occupancy != 2 || capErr.Capacity != 2 || capErr.Slot != k {
		t.Fatalf("unexpected %+v", capErr)
	}

	if built {
		t.Fatal("builder must not run for a full slot")
	}

	if n, _ := db.OccupancyOf(ctx, k); n != 2 {
		t.Fatalf("occupancy %d", n)
	}

	if n, _ := db.OccupancyOf(ctx, key(today, "10:30 AM")); n != 0 {
		t.Fatalf("other slot occupancy %d", n)
	}
}

func TestDB_TryReserve_DuplicateID(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	yesterday := key(today.AddDays(-1), "09:00 AM")
	k := key(today, "09:00 AM")

	if _, err := db.TryReserve(ctx, yesterday, 2, builder(yesterday, "PS-DUP001")); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if _, err := db.TryReserve(ctx, k, 2, builder(k, "PS-DUP001")); !errors.Is(err, reservation.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	if n, _ := db.SweepExpired(ctx, today); n != 1 {
		t.Fatalf("expected 1 swept, got %d", n)
	}

	// Swept IDs stay issued.
	if _, err := db.TryReserve(ctx, k, 2, builder(k, "PS-DUP001")); !errors.Is(err, reservation.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID after sweep, got %v", err)
	}

	if n, _ := db.OccupancyOf(ctx, k); n != 0 {
		t.Fatalf("duplicate must not mutate, occupancy %d", n)
	}
}

func TestDB_TryReserve_BadInput(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	k := key(today, "09:00 AM")

	if _, err := db.TryReserve(ctx, k, 0, builder(k, "PS-000001")); !errors.Is(err, storage.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}

	other := key(today, "09:30 AM")
	if _, err := db.TryReserve(ctx, k, 2, builder(other, "PS-000001")); !errors.Is(err, storage.ErrSlotMismatch) {
		t.Fatalf("expected ErrSlotMismatch, got %v", err)
	}

	if _, err := db.TryReserve(ctx, k, 2, builder(k, "")); !errors.Is(err, storage.ErrEmptyBookingID) {
		t.Fatalf("expected ErrEmptyBookingID, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if _, err := db.TryReserve(cancelled, k, 2, builder(k, "PS-000001")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if list, _ := db.List(ctx); len(list) != 0 {
		t.Fatalf("nothing should be stored, got %d", len(list))
	}
}

func TestDB_SweepExpired(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	for i, d := range []schedule.Date{today.AddDays(-1), today, today.AddDays(1)} {
		k := key(d, "11:00 AM")
		if _, err := db.TryReserve(ctx, k, 2, builder(k, fmt.Sprintf("PS-SWEEP%d", i))); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	removed, err := db.SweepExpired(ctx, today)
	if err != nil || removed != 1 {
		t.Fatalf("first sweep removed %d, err %v", removed, err)
	}

	list, _ := db.List(ctx)
	if len(list) != 2 || list[0].Slot.Date != today || list[1].Slot.Date != today.AddDays(1) {
		t.Fatalf("unexpected survivors %+v", list)
	}

	removed, err = db.SweepExpired(ctx, today)
	if err != nil || removed != 0 {
		t.Fatalf("second sweep removed %d, err %v", removed, err)
	}
}

func TestDB_ConcurrentTryReserve(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	k := key(today, "07:00 PM")

	const workers = 64

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			_, err := db.TryReserve(ctx, k, 3, builder(k, fmt.Sprintf("PS-C%05d", i)))

			switch {
			case err == nil:
				ok.Add(1)
			case reservation.IsCapacityError(err) != nil:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if ok.Load() != 3 || rejected.Load() != workers-3 {
		t.Fatalf("ok=%d rejected=%d", ok.Load(), rejected.Load())
	}
}

func TestDB_SweepDuringReserve(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()

			d := today.AddDays(i%3 - 1)
			k := key(d, "08:00 PM")
			_, _ = db.TryReserve(ctx, k, 1000, builder(k, fmt.Sprintf("PS-R%05d", i)))
		}()

		go func() {
			defer wg.Done()

			_, _ = db.SweepExpired(ctx, today)
		}()
	}

	wg.Wait()

	if _, err := db.SweepExpired(ctx, today); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	list, _ := db.List(ctx)
	for _, res := range list {
		if res.Slot.Date.Before(today) {
			t.Fatalf("expired reservation survived: %+v", res)
		}
	}

	// i%3 == 1 and i%3 == 2 map to today and tomorrow.
	want := 0
	for i := 0; i < 200; i++ {
		if i%3 != 0 {
			want++
		}
	}

	if len(list) != want {
		t.Fatalf("expected %d current reservations, got %d", want, len(list))
	}
}

func TestDB_ListOrder(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	inserts := []struct {
		d     schedule.Date
		label string
		id    string
	}{
		{today.AddDays(1), "09:00 AM", "PS-000004"},
		{today, "01:00 PM", "PS-000003"},
		{today, "09:30 AM", "PS-000002"},
		{today, "09:30 AM", "PS-000001"},
	}

	for _, in := range inserts {
		k := key(in.d, in.label)
		if _, err := db.TryReserve(ctx, k, 2, builder(k, in.id)); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	list, err := db.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	got := make([]string, 0, len(list))
	for _, res := range list {
		got = append(got, res.BookingID)
	}

	want := []string{"PS-000002", "PS-000001", "PS-000003", "PS-000004"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
