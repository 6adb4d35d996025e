package reservation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/slotreserve/internal/catalog"
	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/metrics"
	"github.com/avstrong/slotreserve/internal/schedule"
)

const (
	DefaultCapacity             = 2
	DefaultMaxIDAttempts        = 5
	DefaultPhoneDigits          = 10
	DefaultMaxNotesLength       = 500
	DefaultIdempotencyCacheSize = 1024

	idempotencyStripes = 64
	fingerprintSep     = "\x1f"
	tracerName         = "github.com/avstrong/slotreserve/internal/reservation"
)

// Submission outcomes recorded next to the rejection kinds.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeReplayed  = "replayed"
)

var ErrMisconfigured = errors.New("reservation engine misconfigured")

// Store keeps the active reservations. TryReserve is the only insert path and
// must re-check occupancy and booking ID uniqueness in the same critical
// section as the insert. It reports a full slot with *CapacityError and an
// already issued ID with ErrDuplicateID, mutating nothing in either case.
type Store interface {
	OccupancyOf(ctx context.Context, key SlotKey) (int, error)
	TryReserve(ctx context.Context, key SlotKey, capacity int, build func() Reservation) (Reservation, error)
	SweepExpired(ctx context.Context, today schedule.Date) (int, error)
	List(ctx context.Context) ([]Reservation, error)
}

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type slotPolicy interface {
	Today() schedule.Date
	IsValidDate(d schedule.Date) bool
	IsValidSlotTime(label string) bool
	Slots() []string
	Location() *time.Location
}

type serviceCatalog interface {
	Resolve(id string) (catalog.Service, bool)
	Display(price int64) string
	Services() []catalog.Service
}

type Config struct {
	L           *logger.Logger
	Store       Store
	Policy      slotPolicy
	Services    serviceCatalog
	IDGenerator idGenerator

	Capacity             int
	MaxIDAttempts        int
	PhoneDigits          int
	MaxNotesLength       int
	IdempotencyCacheSize int

	Now func() time.Time
}

type Engine struct {
	l           *logger.Logger
	store       Store
	policy      slotPolicy
	services    serviceCatalog
	idGenerator idGenerator
	tracer      trace.Tracer
	now         func() time.Time

	capacity       int
	maxIDAttempts  int
	phoneDigits    int
	maxNotesLength int

	replays  *lru.Cache[string, replay]
	keyLocks [idempotencyStripes]sync.Mutex
}

// replay is a confirmed booking remembered under its idempotency key, with the
// fingerprint of the request that created it.
type replay struct {
	fingerprint string
	booking     Booking
}

func New(conf Config) (*Engine, error) {
	if conf.Store == nil || conf.Policy == nil || conf.Services == nil || conf.IDGenerator == nil {
		return nil, fmt.Errorf("store, policy, services and id generator are required: %w", ErrMisconfigured)
	}

	if conf.Capacity < 0 || conf.MaxIDAttempts < 0 || conf.PhoneDigits < 0 || conf.MaxNotesLength < 0 {
		return nil, fmt.Errorf("negative limits in %+v: %w", conf, ErrMisconfigured)
	}

	l := conf.L
	if l == nil {
		l = logger.New(log.Default())
	}

	//nolint:exhaustruct
	e := &Engine{
		l:              l.Named("engine"),
		store:          conf.Store,
		policy:         conf.Policy,
		services:       conf.Services,
		idGenerator:    conf.IDGenerator,
		tracer:         otel.Tracer(tracerName),
		now:            conf.Now,
		capacity:       withDefault(conf.Capacity, DefaultCapacity),
		maxIDAttempts:  withDefault(conf.MaxIDAttempts, DefaultMaxIDAttempts),
		phoneDigits:    withDefault(conf.PhoneDigits, DefaultPhoneDigits),
		maxNotesLength: withDefault(conf.MaxNotesLength, DefaultMaxNotesLength),
	}

	if e.now == nil {
		e.now = time.Now
	}

	replays, err := lru.New[string, replay](withDefault(conf.IdempotencyCacheSize, DefaultIdempotencyCacheSize))
	if err != nil {
		return nil, fmt.Errorf("init idempotency cache: %w", err)
	}

	e.replays = replays

	return e, nil
}

func (e *Engine) Capacity() int {
	return e.capacity
}

// Submit validates the request and claims one unit of capacity for its slot.
// On success exactly one reservation is stored; every error path leaves the
// store untouched. Errors are *ValidationError, *CapacityError or
// *InternalError.
//
//nolint:funlen,cyclop // it's linear simple code
func (e *Engine) Submit(ctx context.Context, req Request) (booking Booking, err error) {
	started := time.Now()
	replayed := false

	ctx, span := e.tracer.Start(ctx, "reservation.submit", trace.WithAttributes(
		attribute.String("slot.date", req.Date),
		attribute.String("slot.time", req.Time),
		attribute.String("service.id", req.ServiceID),
	))

	defer func() {
		outcome := RejectionKind(err)
		switch {
		case outcome != "":
		case replayed:
			outcome = OutcomeReplayed
		default:
			outcome = OutcomeConfirmed
		}

		metrics.RecordSubmission(outcome, time.Since(started))
		span.SetAttributes(attribute.String("submit.outcome", outcome))

		if outcome == KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, outcome)
		}

		span.End()
	}()

	key, service, err := e.validate(req)
	if err != nil {
		return Booking{}, err
	}

	if idemKey, ok := IdempotencyKeyFromContext(ctx); ok {
		mu := e.lockFor(idemKey)
		mu.Lock()
		defer mu.Unlock()

		reqPrint := fingerprint(key, service, req)

		if prev, ok := e.replays.Get(idemKey); ok {
			if prev.fingerprint != reqPrint {
				inputErr := newValidationError()
				inputErr.addError("idempotency_key", "key was already used for a different request")

				return Booking{}, inputErr
			}

			replayed = true

			metrics.RecordIdempotentReplay()
			e.l.LogDebugf("Replaying booking %s for idempotency key %s", prev.booking.BookingID, idemKey)

			return prev.booking, nil
		}

		defer func() {
			if err == nil {
				e.replays.Add(idemKey, replay{fingerprint: reqPrint, booking: booking})
			}
		}()
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Booking{}, newInternalError("request cancelled", ctxErr)
	}

	for attempt := 1; attempt <= e.maxIDAttempts; attempt++ {
		id, genErr := e.idGenerator.GetID(ctx)
		if genErr != nil {
			return Booking{}, newInternalError("generate booking id", fmt.Errorf("%w: %w", ErrNextID, genErr))
		}

		res, reserveErr := e.store.TryReserve(ctx, key, e.capacity, func() Reservation {
			return Reservation{
				BookingID: id,
				Slot:      key,
				Name:      strings.TrimSpace(req.Name),
				Phone:     req.Phone,
				ServiceID: service.ID,
				Notes:     strings.TrimSpace(req.Notes),
				CreatedAt: e.now().UTC(),
			}
		})

		if reserveErr == nil {
			booking = e.newBooking(res, service)
			e.l.LogInfo("Booking %s confirmed for slot %s", booking.BookingID, key)

			return booking, nil
		}

		if errors.Is(reserveErr, ErrDuplicateID) {
			metrics.RecordIDCollision()
			e.l.LogWarnf("Booking id %s already issued, attempt %d of %d", id, attempt, e.maxIDAttempts)

			continue
		}

		if capErr := IsCapacityError(reserveErr); capErr != nil {
			e.l.LogDebugf("Slot %s rejected: %v", key, capErr)

			return Booking{}, capErr
		}

		return Booking{}, newInternalError("reserve slot", reserveErr)
	}

	return Booking{}, newInternalError("allocate booking id", ErrIDExhausted)
}

func (e *Engine) validate(req Request) (SlotKey, catalog.Service, error) {
	inputErr := newValidationError()

	if strings.TrimSpace(req.Name) == "" {
		inputErr.addError("name", "provide name")
	}

	if !e.validPhone(req.Phone) {
		inputErr.addError("phone", fmt.Sprintf("provide a %d digit phone number", e.phoneDigits))
	}

	service, ok := e.services.Resolve(req.ServiceID)

	switch {
	case req.ServiceID == "":
		inputErr.addError("service_id", "provide service_id")
	case !ok:
		inputErr.addError("service_id", fmt.Sprintf("unknown service %q", req.ServiceID))
	}

	var date schedule.Date

	if req.Date == "" {
		inputErr.addError("date", "provide date")
	} else if parsed, err := schedule.ParseDate(req.Date); err != nil {
		inputErr.addError("date", "date must be formatted as YYYY-MM-DD")
	} else if !e.policy.IsValidDate(parsed) {
		inputErr.addError("date", "date must not be in the past")
	} else {
		date = parsed
	}

	switch {
	case req.Time == "":
		inputErr.addError("time", "provide time")
	case !e.policy.IsValidSlotTime(req.Time):
		inputErr.addError("time", fmt.Sprintf("time %q is not an offered slot", req.Time))
	}

	if utf8.RuneCountInString(req.Notes) > e.maxNotesLength {
		inputErr.addError("notes", fmt.Sprintf("notes must be at most %d characters", e.maxNotesLength))
	}

	if inputErr.fieldsCount() > 0 {
		return SlotKey{}, catalog.Service{}, inputErr
	}

	return SlotKey{Date: date, Time: req.Time}, service, nil
}

// fingerprint identifies a validated request by everything that ends up in
// the stored reservation.
func fingerprint(key SlotKey, service catalog.Service, req Request) string {
	return strings.Join([]string{
		key.String(),
		strings.TrimSpace(req.Name),
		req.Phone,
		service.ID,
		strings.TrimSpace(req.Notes),
	}, fingerprintSep)
}

func (e *Engine) validPhone(phone string) bool {
	if len(phone) != e.phoneDigits {
		return false
	}

	for i := 0; i < len(phone); i++ {
		if phone[i] < '0' || phone[i] > '9' {
			return false
		}
	}

	return true
}

func (e *Engine) newBooking(res Reservation, service catalog.Service) Booking {
	return Booking{
		Reservation:  res,
		ServiceName:  service.Name,
		Price:        service.Price,
		DisplayPrice: e.services.Display(service.Price),
	}
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return &e.keyLocks[h.Sum32()%idempotencyStripes]
}

func (e *Engine) Occupancy(ctx context.Context, key SlotKey) (Occupancy, error) {
	count, err := e.store.OccupancyOf(ctx, key)
	if err != nil {
		return Occupancy{}, newInternalError("read occupancy", err)
	}

	return NewOccupancy(key, count, e.capacity), nil
}

// Availability returns the occupancy of every slot on the given day, in grid
// order.
func (e *Engine) Availability(ctx context.Context, date string) ([]Occupancy, error) {
	day, err := schedule.ParseDate(date)
	if err != nil {
		inputErr := newValidationError()
		inputErr.addError("date", "date must be formatted as YYYY-MM-DD")

		return nil, inputErr
	}

	slots := e.policy.Slots()
	out := make([]Occupancy, 0, len(slots))

	for _, label := range slots {
		occ, err := e.Occupancy(ctx, SlotKey{Date: day, Time: label})
		if err != nil {
			return nil, err
		}

		out = append(out, occ)
	}

	return out, nil
}

func (e *Engine) Today() schedule.Date {
	return e.policy.Today()
}

// Timezone names the location that decides which day is today.
func (e *Engine) Timezone() string {
	return e.policy.Location().String()
}

// Menu lists the bookable services in catalog order with display prices.
func (e *Engine) Menu() []MenuItem {
	services := e.services.Services()
	out := make([]MenuItem, 0, len(services))

	for _, s := range services {
		out = append(out, MenuItem{Service: s, DisplayPrice: e.services.Display(s.Price)})
	}

	return out
}

// Sweep drops every reservation dated before today.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	today := e.policy.Today()

	ctx, span := e.tracer.Start(ctx, "reservation.sweep", trace.WithAttributes(
		attribute.String("sweep.today", today.String()),
	))
	defer span.End()

	removed, err := e.store.SweepExpired(ctx, today)
	metrics.RecordSweep(removed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return 0, fmt.Errorf("sweep reservations before %s: %w", today, err)
	}

	span.SetAttributes(attribute.Int("sweep.removed", removed))

	if removed > 0 {
		e.l.LogInfo("Swept %d reservations dated before %s", removed, today)
	}

	return removed, nil
}

func (e *Engine) Reservations(ctx context.Context) ([]Reservation, error) {
	list, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	return list, nil
}

// Restore re-admits previously persisted reservations through the store's
// atomic insert. Rows dated before today, rows for unknown slot labels, rows
// that would overfill a slot and rows whose ID is already issued are skipped
// and counted.
func (e *Engine) Restore(ctx context.Context, rows []Reservation) (RestoreResult, error) {
	var result RestoreResult

	today := e.policy.Today()

	for _, row := range rows {
		if row.Slot.Date.Before(today) {
			result.Expired++

			continue
		}

		if !e.policy.IsValidSlotTime(row.Slot.Time) {
			result.Rejected++

			continue
		}

		_, err := e.store.TryReserve(ctx, row.Slot, e.capacity, func() Reservation { return row })

		switch {
		case err == nil:
			result.Restored++
		case errors.Is(err, ErrDuplicateID):
			result.Duplicate++
		case IsCapacityError(err) != nil:
			result.Rejected++
		default:
			return result, fmt.Errorf("restore booking %s: %w", row.BookingID, err)
		}
	}

	return result, nil
}

func withDefault(v, def int) int {
	if v == 0 {
		return def
	}

	return v
}
