package migration

import (
	"context"
	"fmt"

	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/snapshot"
)

type restorer interface {
	Restore(ctx context.Context, rows []reservation.Reservation) (reservation.RestoreResult, error)
}

type lister interface {
	Reservations(ctx context.Context) ([]reservation.Reservation, error)
}

// Up replays the snapshot at path into the engine. Rows that no longer fit
// (expired, full slot, reissued ID) are dropped and counted.
func Up(ctx context.Context, l *logger.Logger, engine restorer, path string) (reservation.RestoreResult, error) {
	rows, err := snapshot.LoadFile(path)
	if err != nil {
		return reservation.RestoreResult{}, fmt.Errorf("load snapshot: %w", err)
	}

	if len(rows) == 0 {
		l.LogInfo("Snapshot %s is empty, nothing to restore", path)

		return reservation.RestoreResult{}, nil
	}

	result, err := engine.Restore(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("restore snapshot rows: %w", err)
	}

	l.LogInfo("Snapshot %s restored: %d kept, %d expired, %d rejected, %d duplicate",
		path, result.Restored, result.Expired, result.Rejected, result.Duplicate)

	return result, nil
}

// Down writes every active reservation to path.
func Down(ctx context.Context, l *logger.Logger, engine lister, path string) error {
	rows, err := engine.Reservations(ctx)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}

	if err := snapshot.SaveFile(path, rows); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	l.LogDebugf("Snapshot %s written with %d reservations", path, len(rows))

	return nil
}
