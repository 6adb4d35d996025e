package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"

	GeneratorRandom = "random"
	GeneratorSimple = "simple"

	DefaultEnvFile = ".env"
)

var (
	ErrMissing = errors.New("required environment variables are not set")
	ErrInvalid = errors.New("invalid environment variable values")
)

type Config struct {
	HTTPHost          string
	HTTPPort          string
	ReadHeaderTimeout time.Duration

	StorageDriver string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SlotCapacity int
	SlotStart    string
	SlotEnd      string
	SlotStep     time.Duration
	Location     *time.Location

	PhoneDigits          int
	IDGenerator          string
	IDMaxAttempts        int
	MaxNotesLength       int
	IdempotencyCacheSize int

	ServicesFile   string
	CurrencySymbol string

	BrandName          string
	HandoffPhone       string
	HandoffCountryCode string

	SnapshotPath  string
	SweepInterval time.Duration
	LogDebug      bool
}

func defaults() Config {
	return Config{
		HTTPHost:             "localhost",
		HTTPPort:             "8092",
		ReadHeaderTimeout:    20 * time.Second, //nolint:gomnd
		StorageDriver:        DriverMemory,
		SQLitePath:           "slotreserve.db",
		RedisAddr:            "",
		RedisPassword:        "",
		RedisDB:              0,
		RedisPrefix:          "slotreserve",
		SlotCapacity:         2, //nolint:gomnd
		SlotStart:            "09:00",
		SlotEnd:              "22:00",
		SlotStep:             30 * time.Minute, //nolint:gomnd
		Location:             time.Local,
		PhoneDigits:          10, //nolint:gomnd
		IDGenerator:          GeneratorRandom,
		IDMaxAttempts:        5,    //nolint:gomnd
		MaxNotesLength:       500,  //nolint:gomnd
		IdempotencyCacheSize: 1024, //nolint:gomnd
		ServicesFile:         "",
		CurrencySymbol:       "₹",
		BrandName:            "ProStyle",
		HandoffPhone:         "",
		HandoffCountryCode:   "91",
		SnapshotPath:         "",
		SweepInterval:        time.Minute,
		LogDebug:             false,
	}
}

// Load reads DefaultEnvFile when it exists and then the process environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	return LoadFile(DefaultEnvFile)
}

func LoadFile(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	return FromEnv()
}

//nolint:funlen,cyclop
func FromEnv() (Config, error) {
	cfg := defaults()
	p := parser{}

	p.str("HTTP_HOST", &cfg.HTTPHost)
	p.str("HTTP_PORT", &cfg.HTTPPort)
	p.duration("HTTP_READ_HEADER_TIMEOUT", &cfg.ReadHeaderTimeout)

	p.str("STORAGE_DRIVER", &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)

	switch cfg.StorageDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		p.invalid = append(p.invalid, "STORAGE_DRIVER")
	}

	p.str("SQLITE_PATH", &cfg.SQLitePath)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("REDIS_PASSWORD", &cfg.RedisPassword)
	p.nonNegative("REDIS_DB", &cfg.RedisDB)
	p.str("REDIS_PREFIX", &cfg.RedisPrefix)

	if cfg.StorageDriver == DriverRedis && cfg.RedisAddr == "" {
		p.missing = append(p.missing, "REDIS_ADDR")
	}

	p.positive("SLOT_CAPACITY", &cfg.SlotCapacity)
	p.str("SLOT_START", &cfg.SlotStart)
	p.str("SLOT_END", &cfg.SlotEnd)
	p.duration("SLOT_STEP", &cfg.SlotStep)

	if tz := lookup("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			p.invalid = append(p.invalid, "TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	p.positive("PHONE_DIGITS", &cfg.PhoneDigits)
	p.str("ID_GENERATOR", &cfg.IDGenerator)
	cfg.IDGenerator = strings.ToLower(cfg.IDGenerator)

	// Sequential IDs restart on every boot, so only the memory store can
	// reseed them from what it restored.
	switch {
	case cfg.IDGenerator == GeneratorRandom:
	case cfg.IDGenerator == GeneratorSimple && cfg.StorageDriver == DriverMemory:
	default:
		p.invalid = append(p.invalid, "ID_GENERATOR")
	}

	p.positive("ID_MAX_ATTEMPTS", &cfg.IDMaxAttempts)
	p.positive("MAX_NOTES_LENGTH", &cfg.MaxNotesLength)
	p.positive("IDEMPOTENCY_CACHE_SIZE", &cfg.IdempotencyCacheSize)

	p.str("SERVICES_FILE", &cfg.ServicesFile)
	p.str("CURRENCY_SYMBOL", &cfg.CurrencySymbol)

	p.str("BRAND_NAME", &cfg.BrandName)
	p.str("HANDOFF_PHONE", &cfg.HandoffPhone)
	p.str("HANDOFF_COUNTRY_CODE", &cfg.HandoffCountryCode)

	p.str("SNAPSHOT_PATH", &cfg.SnapshotPath)
	p.duration("SWEEP_INTERVAL", &cfg.SweepInterval)
	p.boolean("LOG_DEBUG", &cfg.LogDebug)

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrMissing, strings.Join(p.missing, ", "))
	}

	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(p.invalid, ", "))
	}

	return cfg, nil
}

func (c Config) Addr() string {
	return c.HTTPHost + ":" + c.HTTPPort
}

type parser struct {
	missing []string
	invalid []string
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (p *parser) str(key string, dst *string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func (p *parser) positive(key string, dst *int) {
	p.integer(key, dst, 1)
}

func (p *parser) nonNegative(key string, dst *int) {
	p.integer(key, dst, 0)
}

func (p *parser) integer(key string, dst *int, minimum int) {
	v := lookup(key)
	if v == "" {
		return
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		p.invalid = append(p.invalid, key)

		return
	}

	*dst = n
}

func (p *parser) duration(key string, dst *time.Duration) {
	v := lookup(key)
	if v == "" {
		return
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, key)

		return
	}

	*dst = d
}

func (p *parser) boolean(key string, dst *bool) {
	v := lookup(key)
	if v == "" {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.invalid = append(p.invalid, key)

		return
	}

	*dst = b
}
