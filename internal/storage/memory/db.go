package memory

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
	"github.com/avstrong/slotreserve/internal/storage"
)

type Config struct {
	L *logger.Logger
	// SlotOrder ranks time labels for List; labels it does not know sort last.
	SlotOrder func(label string) (int, bool)
}

// DB is a process-local reservation store. A single mutex guards every map,
// so check-and-insert and the expiry sweep never interleave.
type DB struct {
	mu        sync.Mutex
	l         *logger.Logger
	slotOrder func(label string) (int, bool)
	slots     map[reservation.SlotKey][]reservation.Reservation

	// issued remembers every booking ID ever inserted, including swept ones.
	issued  map[string]struct{}
	seq     map[string]uint64
	nextSeq uint64
}

func New(conf Config) *DB {
	l := conf.L
	if l == nil {
		l = logger.New(log.New(io.Discard, "", 0))
	}

	//nolint:exhaustruct
	return &DB{
		l:         l.Named("memory"),
		slotOrder: conf.SlotOrder,
		slots:     make(map[reservation.SlotKey][]reservation.Reservation),
		issued:    make(map[string]struct{}),
		seq:       make(map[string]uint64),
	}
}

func (db *DB) OccupancyOf(_ context.Context, key reservation.SlotKey) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return len(db.slots[key]), nil
}

func (db *DB) TryReserve(
	ctx context.Context,
	key reservation.SlotKey,
	capacity int,
	build func() reservation.Reservation,
) (reservation.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return reservation.Reservation{}, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if capacity < 1 {
		return reservation.Reservation{}, fmt.Errorf("capacity %d: %w", capacity, storage.ErrInvalidCapacity)
	}

	occupancy := len(db.slots[key])
	if occupancy >= capacity {
		return reservation.Reservation{}, reservation.NewCapacityError(key, occupancy, capacity)
	}

	res := build()

	if err := storage.CheckBuilt(key, capacity, res); err != nil {
		return reservation.Reservation{}, err
	}

	if _, ok := db.issued[res.BookingID]; ok {
		return reservation.Reservation{}, fmt.Errorf("booking %s: %w", res.BookingID, reservation.ErrDuplicateID)
	}

	db.nextSeq++
	db.seq[res.BookingID] = db.nextSeq
	db.issued[res.BookingID] = struct{}{}
	db.slots[key] = append(db.slots[key], res)

	return res, nil
}

func (db *DB) SweepExpired(_ context.Context, today schedule.Date) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var removed int

	for key, list := range db.slots {
		if !key.Date.Before(today) {
			continue
		}

		for _, res := range list {
			delete(db.seq, res.BookingID)
		}

		removed += len(list)
		delete(db.slots, key)
	}

	if removed > 0 {
		db.l.LogDebugf("Removed %d reservations dated before %s", removed, today)
	}

	return removed, nil
}

func (db *DB) List(_ context.Context) ([]reservation.Reservation, error) {
	db.mu.Lock()

	out := make([]reservation.Reservation, 0, len(db.seq))
	for _, list := range db.slots {
		out = append(out, list...)
	}

	seq := make(map[string]uint64, len(db.seq))
	for id, n := range db.seq {
		seq[id] = n
	}

	db.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if c := a.Slot.Date.Compare(b.Slot.Date); c != 0 {
			return c < 0
		}

		if a.Slot.Time != b.Slot.Time {
			ra, rb := db.rank(a.Slot.Time), db.rank(b.Slot.Time)
			if ra != rb {
				return ra < rb
			}

			return a.Slot.Time < b.Slot.Time
		}

		return seq[a.BookingID] < seq[b.BookingID]
	})

	return out, nil
}

func (db *DB) rank(label string) int {
	if db.slotOrder != nil {
		if idx, ok := db.slotOrder(label); ok {
			return idx
		}
	}

	return int(^uint(0) >> 1)
}
