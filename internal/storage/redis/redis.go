package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/avstrong/slotreserve/internal/logger"
	"github.com/avstrong/slotreserve/internal/reservation"
	"github.com/avstrong/slotreserve/internal/schedule"
	"github.com/avstrong/slotreserve/internal/storage"
)

const DefaultPrefix = "slotreserve"

// KEYS: slot list, issued id set, day index. ARGV: capacity, id, payload, day score.
var reserveScript = goredis.NewScript(`
local n = redis.call('LLEN', KEYS[1])
if n >= tonumber(ARGV[1]) then
	return {'capacity', n}
end
if redis.call('SISMEMBER', KEYS[2], ARGV[2]) == 1 then
	return {'duplicate', n}
end
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('RPUSH', KEYS[1], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[4], KEYS[1])
return {'ok', n + 1}
`)

// KEYS: day index. ARGV: exclusive upper score.
var sweepScript = goredis.NewScript(`
local keys = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local removed = 0
for _, k in ipairs(keys) do
	removed = removed + redis.call('LLEN', k)
	redis.call('DEL', k)
	redis.call('ZREM', KEYS[1], k)
end
return removed
`)

// KEYS: day index.
var listScript = goredis.NewScript(`
local out = {}
for _, k in ipairs(redis.call('ZRANGE', KEYS[1], 0, -1)) do
	for _, v in ipairs(redis.call('LRANGE', k, 0, -1)) do
		table.insert(out, v)
	end
end
return out
`)

type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

func NewClient(conf ClientConfig) *goredis.Client {
	//nolint:exhaustruct
	return goredis.NewClient(&goredis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
		PoolSize: conf.PoolSize,
	})
}

type Config struct {
	L      *logger.Logger
	Client *goredis.Client
	// Prefix namespaces every key; DefaultPrefix when empty.
	Prefix    string
	SlotOrder func(label string) (int, bool)
}

// Store keeps each slot as a Redis list of JSON reservations. Capacity,
// duplicate checks and inserts run inside one Lua script, so concurrent
// processes sharing the server see the same invariants as a single one.
type Store struct {
	client    *goredis.Client
	l         *logger.Logger
	prefix    string
	slotOrder func(label string) (int, bool)
}

func New(conf Config) (*Store, error) {
	if conf.Client == nil {
		return nil, fmt.Errorf("redis client is required: %w", reservation.ErrMisconfigured)
	}

	l := conf.L
	if l == nil {
		l = logger.New(log.New(io.Discard, "", 0))
	}

	prefix := conf.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Store{
		client:    conf.Client,
		l:         l.Named("redis"),
		prefix:    prefix,
		slotOrder: conf.SlotOrder,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}

	return nil
}

// Every key carries the prefix as a hash tag, so on Redis Cluster all of them
// live in one hash slot. The sweep and list scripts reach slot keys through
// the day index rather than KEYS and rely on that.
func (s *Store) key(parts ...string) string {
	return "{" + s.prefix + "}:" + strings.Join(parts, ":")
}

func (s *Store) slotKey(key reservation.SlotKey) string {
	return s.key("slot", key.Date.String()+"|"+key.Time)
}

func (s *Store) idsKey() string {
	return s.key("ids")
}

func (s *Store) daysKey() string {
	return s.key("days")
}

func dayScore(d schedule.Date) int {
	return d.Year*10000 + int(d.Month)*100 + d.Day //nolint:gomnd
}

func (s *Store) OccupancyOf(ctx context.Context, key reservation.SlotKey) (int, error) {
	n, err := s.client.LLen(ctx, s.slotKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("count slot %s: %w", key, err)
	}

	return int(n), nil
}

// TryReserve builds the reservation before the script runs; the script then
// re-checks capacity and the ID atomically, and rejects without writing.
func (s *Store) TryReserve(
	ctx context.Context,
	key reservation.SlotKey,
	capacity int,
	build func() reservation.Reservation,
) (reservation.Reservation, error) {
	if capacity < 1 {
		return reservation.Reservation{}, fmt.Errorf("capacity %d: %w", capacity, storage.ErrInvalidCapacity)
	}

	res := build()

	if err := storage.CheckBuilt(key, capacity, res); err != nil {
		return reservation.Reservation{}, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("encode booking %s: %w", res.BookingID, err)
	}

	reply, err := reserveScript.Run(ctx, s.client,
		[]string{s.slotKey(key), s.idsKey(), s.daysKey()},
		capacity, res.BookingID, payload, dayScore(key.Date),
	).Slice()
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("reserve slot %s: %w", key, err)
	}

	status, occupancy, err := parseReply(reply)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("reserve slot %s: %w", key, err)
	}

	switch status {
	case "ok":
		return res, nil
	case "capacity":
		return reservation.Reservation{}, reservation.NewCapacityError(key, occupancy, capacity)
	case "duplicate":
		return reservation.Reservation{}, fmt.Errorf("booking %s: %w", res.BookingID, reservation.ErrDuplicateID)
	default:
		return reservation.Reservation{}, fmt.Errorf("reserve slot %s: unexpected status %q", key, status)
	}
}

func parseReply(reply []any) (string, int, error) {
	//nolint:gomnd
	if len(reply) != 2 {
		return "", 0, fmt.Errorf("unexpected script reply %v", reply)
	}

	status, ok := reply[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("unexpected script status %v", reply[0])
	}

	n, ok := reply[1].(int64)
	if !ok {
		return "", 0, fmt.Errorf("unexpected script count %v", reply[1])
	}

	return status, int(n), nil
}

// SweepExpired drops whole slot lists dated before today. The issued ID set
// is never pruned.
func (s *Store) SweepExpired(ctx context.Context, today schedule.Date) (int, error) {
	removed, err := sweepScript.Run(ctx, s.client,
		[]string{s.daysKey()},
		"("+strconv.Itoa(dayScore(today)),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep reservations before %s: %w", today, err)
	}

	if removed > 0 {
		s.l.LogDebugf("Removed %d reservations dated before %s", removed, today)
	}

	return removed, nil
}

func (s *Store) List(ctx context.Context) ([]reservation.Reservation, error) {
	payloads, err := listScript.Run(ctx, s.client, []string{s.daysKey()}).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}

	out := make([]reservation.Reservation, 0, len(payloads))

	for _, p := range payloads {
		var res reservation.Reservation
		if err := json.Unmarshal([]byte(p), &res); err != nil {
			return nil, fmt.Errorf("decode reservation: %w", err)
		}

		out = append(out, res)
	}

	// Each slot list is already in insertion order.
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
