package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
	"github.com/avstrong/slotreserve/internal/storage"
)

const memoryPath = ":memory:"

type Config struct {
	L *logger.Logger
	// Path is a database file; ":memory:" keeps everything in the process.
	Path      string
	SlotOrder func(label string) (int, bool)
}

// Store persists reservations in SQLite. The pool holds a single connection
// and writes additionally go through mu, so the count-then-insert in
// TryReserve and the DELETE in SweepExpired are serialized.
type Store struct {
	mu        sync.Mutex
	db        *sql.DB
	l         *logger.Logger
	slotOrder func(label string) (int, bool)
}

func New(ctx context.Context, conf Config) (*Store, error) {
	path := conf.Path
	if path == "" {
		path = memoryPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := conf.L
	if l == nil {
		l = logger.New(log.New(io.Discard, "", 0))
	}

	//nolint:exhaustruct
	s := &Store{
		db:        db,
		l:         l.Named("sqlite"),
		slotOrder: conf.SlotOrder,
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
	}

	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id TEXT NOT NULL UNIQUE,
			slot_date TEXT NOT NULL,
			slot_time TEXT NOT NULL,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			service_id TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_slot ON reservations(slot_date, slot_time)`,
		`CREATE TABLE IF NOT EXISTS issued_ids (
			booking_id TEXT PRIMARY KEY
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}

	return nil
}

func (s *Store) OccupancyOf(ctx context.Context, key reservation.SlotKey) (int, error) {
	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE slot_date = ? AND slot_time = ?`,
		key.Date.String(), key.Time,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count slot %s: %w", key, err)
	}

	return n, nil
}

//nolint:cyclop
func (s *Store) TryReserve(
	ctx context.Context,
	key reservation.SlotKey,
	capacity int,
	build func() reservation.Reservation,
) (reservation.Reservation, error) {
	if capacity < 1 {
		return reservation.Reservation{}, fmt.Errorf("capacity %d: %w", capacity, storage.ErrInvalidCapacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	var occupancy int

	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE slot_date = ? AND slot_time = ?`,
		key.Date.String(), key.Time,
	).Scan(&occupancy)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("count slot %s: %w", key, err)
	}

	if occupancy >= capacity {
		return reservation.Reservation{}, reservation.NewCapacityError(key, occupancy, capacity)
	}

	res := build()

	if err := storage.CheckBuilt(key, capacity, res); err != nil {
		return reservation.Reservation{}, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO issued_ids (booking_id) VALUES (?)`, res.BookingID); err != nil {
		if isUniqueViolation(err) {
			return reservation.Reservation{}, fmt.Errorf("booking %s: %w", res.BookingID, reservation.ErrDuplicateID)
		}

		return reservation.Reservation{}, fmt.Errorf("record booking id %s: %w", res.BookingID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (booking_id, slot_date, slot_time, name, phone, service_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.BookingID, key.Date.String(), key.Time, res.Name, res.Phone, res.ServiceID, res.Notes,
		res.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reservation.Reservation{}, fmt.Errorf("booking %s: %w", res.BookingID, reservation.ErrDuplicateID)
		}

		return reservation.Reservation{}, fmt.Errorf("insert booking %s: %w", res.BookingID, err)
	}

	if err := tx.Commit(); err != nil {
		return reservation.Reservation{}, fmt.Errorf("commit booking %s: %w", res.BookingID, err)
	}

	return res, nil
}

// SweepExpired deletes reservations dated before today. issued_ids is kept so
// swept booking IDs are never handed out again.
func (s *Store) SweepExpired(ctx context.Context, today schedule.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM reservations WHERE slot_date < ?`, today.String())
	if err != nil {
		return 0, fmt.Errorf("delete reservations before %s: %w", today, err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if removed > 0 {
		s.l.LogDebugf("Removed %d reservations dated before %s", removed, today)
	}

	return int(removed), nil
}

func (s *Store) List(ctx context.Context) ([]reservation.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT booking_id, slot_date, slot_time, name, phone, service_id, notes, created_at
		 FROM reservations ORDER BY slot_date, seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation

	for rows.Next() {
		var (
			res       reservation.Reservation
			date      string
			createdAt string
		)

		err := rows.Scan(&res.BookingID, &date, &res.Slot.Time, &res.Name, &res.Phone,
			&res.ServiceID, &res.Notes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}

		if res.Slot.Date, err = schedule.ParseDate(date); err != nil {
			return nil, fmt.Errorf("booking %s: %w", res.BookingID, err)
		}

		if res.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("booking %s created_at: %w", res.BookingID, err)
		}

		out = append(out, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}

	// Rows arrive by date then insertion; a stable sort by slot rank keeps
	// insertion order inside each slot.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if c := a.Slot.Date.Compare(b.Slot.Date); c != 0 {
			return c < 0
		}

		ra, rb := s.rank(a.Slot.Time), s.rank(b.Slot.Time)
		if ra != rb {
			return ra < rb
		}

		return a.Slot.Time < b.Slot.Time
	})

	return out, nil
}

func (s *Store) rank(label string) int {
	if s.slotOrder != nil {
		if idx, ok := s.slotOrder(label); ok {
			return idx
		}
	}

	return int(^uint(0) >> 1)
}

func isUniqueViolation(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
