package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
)

var (
	ErrBadHeader = errors.New("unexpected snapshot header")
	ErrBadRow    = errors.New("malformed snapshot row")
)

// Header is the persisted column order.
var Header = []string{"date", "time", "booking_id", "name", "phone", "service_id", "notes", "created_at"}

func Write(w io.Writer, rows []reservation.Reservation) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		record := []string{
			r.Slot.Date.String(),
			r.Slot.Time,
			r.BookingID,
			r.Name,
			r.Phone,
			r.ServiceID,
			r.Notes,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write booking %s: %w", r.BookingID, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}

	return nil
}

func Read(r io.Reader) ([]reservation.Reservation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if strings.Join(header, ",") != strings.Join(Header, ",") {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, header)
	}

	var out []reservation.Reservation

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		res, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		out = append(out, res)
	}

	return out, nil
}

func parseRecord(record []string) (reservation.Reservation, error) {
	date, err := schedule.ParseDate(record[0])
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("%w: date %q", ErrBadRow, record[0])
	}

	createdAt, err := time.Parse(time.RFC3339Nano, record[7])
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("%w: created_at %q", ErrBadRow, record[7])
	}

	if record[2] == "" {
		return reservation.Reservation{}, fmt.Errorf("%w: empty booking_id", ErrBadRow)
	}

	return reservation.Reservation{
		BookingID: record[2],
		Slot:      reservation.SlotKey{Date: date, Time: record[1]},
		Name:      record[3],
		Phone:     record[4],
		ServiceID: record[5],
		Notes:     record[6],
		CreatedAt: createdAt,
	}, nil
}

// LoadFile reads a snapshot; a missing file is an empty snapshot.
func LoadFile(path string) ([]reservation.Reservation, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	return rows, nil
}

// SaveFile replaces path atomically with a fresh snapshot.
func SaveFile(path string, rows []reservation.Reservation) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, rows); err != nil {
		return err
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync snapshot: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot %s: %w", path, err)
	}

	return nil
}
