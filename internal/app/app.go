package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/avstrong/slotreserve/internal/catalog"
	"github.com/avstrong/slotreserve/internal/config"
	"github.com/avstrong/slotreserve/internal/handoff"
	"github.com/avstrong/slotreserve/internal/idgen/random"
	"github.com/avstrong/slotreserve/internal/idgen/simple"
	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/migration"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
	"github.com/avstrong/slotreserve/internal/storage/memory"
	"github.com/avstrong/slotreserve/internal/storage/redis"
	"github.com/avstrong/slotreserve/internal/storage/sqlite"
	"github.com/avstrong/slotreserve/internal/sweep"
	"github.com/avstrong/slotreserve/internal/transport/web"
)

const shutdownTimeout = 4 * time.Second

var (
	ErrUnknownDriver      = errors.New("unknown storage driver")
	ErrUnknownIDGenerator = errors.New("unknown id generator")
)

type closeFunc func() error

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type lister interface {
	Reservations(ctx context.Context) ([]reservation.Reservation, error)
}

func openStore(
	ctx context.Context,
	l *logger.Logger,
	conf config.Config,
	policy *schedule.Policy,
) (reservation.Store, closeFunc, error) {
	switch conf.StorageDriver {
	case config.DriverMemory:
		store := memory.New(memory.Config{L: l, SlotOrder: policy.SlotIndex})

		return store, func() error { return nil }, nil
	case config.DriverSQLite:
		store, err := sqlite.New(ctx, sqlite.Config{L: l, Path: conf.SQLitePath, SlotOrder: policy.SlotIndex})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}

		return store, store.Close, nil
	case config.DriverRedis:
		client := redis.NewClient(redis.ClientConfig{
			Addr:     conf.RedisAddr,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
			PoolSize: 0,
		})

		store, err := redis.New(redis.Config{L: l, Client: client, Prefix: conf.RedisPrefix, SlotOrder: policy.SlotIndex})
		if err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}

		if err := store.Ping(ctx); err != nil {
			_ = store.Close()

			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}

		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%q: %w", conf.StorageDriver, ErrUnknownDriver)
	}
}

func newIDGenerator(conf config.Config) (idGenerator, error) {
	switch conf.IDGenerator {
	case config.GeneratorRandom:
		return random.New(), nil
	case config.GeneratorSimple:
		return simple.New(), nil
	default:
		return nil, fmt.Errorf("%q: %w", conf.IDGenerator, ErrUnknownIDGenerator)
	}
}

// resumeSequence moves a sequential generator past every stored booking ID.
func resumeSequence(ctx context.Context, gen idGenerator, engine lister) error {
	seq, ok := gen.(*simple.Generator)
	if !ok {
		return nil
	}

	rows, err := engine.Reservations(ctx)
	if err != nil {
		return fmt.Errorf("resume id sequence: %w", err)
	}

	for _, row := range rows {
		seq.Observe(row.BookingID)
	}

	return nil
}

func loadCatalog(conf config.Config) (*catalog.Catalog, error) {
	if conf.ServicesFile == "" {
		return catalog.Default(conf.CurrencySymbol), nil
	}

	services, err := catalog.LoadFile(conf.ServicesFile, conf.CurrencySymbol)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	return services, nil
}

//nolint:funlen,cyclop
func Run(l *logger.Logger) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	conf, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	l.SetDebug(conf.LogDebug)

	policy, err := schedule.NewPolicy(schedule.Config{
		Start:    conf.SlotStart,
		End:      conf.SlotEnd,
		Step:     conf.SlotStep,
		Location: conf.Location,
		Now:      time.Now,
	})
	if err != nil {
		return fmt.Errorf("build slot grid: %w", err)
	}

	services, err := loadCatalog(conf)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, l, conf, policy)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := closeStore(); closeErr != nil {
			l.LogErrorf("Failed to close %s store: %v", conf.StorageDriver, closeErr)
		}
	}()

	ids, err := newIDGenerator(conf)
	if err != nil {
		return err
	}

	engine, err := reservation.New(reservation.Config{
		L:                    l,
		Store:                store,
		Policy:               policy,
		Services:             services,
		IDGenerator:          ids,
		Capacity:             conf.SlotCapacity,
		MaxIDAttempts:        conf.IDMaxAttempts,
		PhoneDigits:          conf.PhoneDigits,
		MaxNotesLength:       conf.MaxNotesLength,
		IdempotencyCacheSize: conf.IdempotencyCacheSize,
		Now:                  time.Now,
	})
	if err != nil {
		return fmt.Errorf("init reservation engine: %w", err)
	}

	snapshotPath := conf.SnapshotPath
	if snapshotPath != "" && conf.StorageDriver != config.DriverMemory {
		l.LogWarnf("SNAPSHOT_PATH is ignored with the %s driver", conf.StorageDriver)

		snapshotPath = ""
	}

	if snapshotPath != "" {
		if _, err := migration.Up(ctx, l, engine, snapshotPath); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}

	if err := resumeSequence(ctx, ids, engine); err != nil {
		return err
	}

	sweepConf := sweep.Config{L: l, Engine: engine, Interval: conf.SweepInterval, Checkpoint: nil}
	if snapshotPath != "" {
		sweepConf.Checkpoint = func(ctx context.Context) error {
			return migration.Down(ctx, l, engine, snapshotPath)
		}
	}

	sweeper := sweep.New(sweepConf)
	sweeper.Start(ctx)

	webConf := web.Conf{
		L:                 l,
		ServerLogger:      log.Default(),
		Host:              conf.HTTPHost,
		Port:              conf.HTTPPort,
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		LivenessEndpoint:  "/liveness",
		MetricsEndpoint:   "/metrics",
		RetryAfter:        time.Second,
	}

	formatter := handoff.New(handoff.Config{
		Brand:       conf.BrandName,
		Phone:       conf.HandoffPhone,
		CountryCode: conf.HandoffCountryCode,
	})

	srv, err := web.New(ctx, webConf, engine, formatter)
	if err != nil {
		sweeper.Stop()

		return fmt.Errorf("init http server: %w", err)
	}

	stopped := make(chan struct{})

	//nolint:contextcheck
	go func() {
		defer close(stopped)

		<-ctx.Done()

		sweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v with %s storage...", conf.Addr(), conf.StorageDriver)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())
	}

	cancel()
	<-stopped

	if snapshotPath != "" {
		//nolint:contextcheck
		if err := migration.Down(context.Background(), l, engine, snapshotPath); err != nil {
			l.LogErrorf("Failed to write snapshot: %v", err)
		} else {
			l.LogInfo("Snapshot written to %s", snapshotPath)
		}
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}
