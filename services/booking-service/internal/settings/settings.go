// Package settings assembles booking-service configuration from the environment.
package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/shopbook/libs/config"
	"github.com/md-rashed-zaman/shopbook/services/booking-service/internal/policy"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Settings struct {
	Calendar policy.Calendar
	// Services seeds the in-process catalog; empty means the catalog lives in Postgres.
	Services string

	StorageDriver  string
	DatabaseURL    string
	MigrateOnStart bool

	SlotStep       time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int

	JWTSecret    string
	JWKSURL      string
	TrustHeaders bool

	KafkaBrokers string
	RedisAddr    string
	RateLimit    int
	CORSOrigins  []string
}

func FromEnv() (Settings, error) {
	var s Settings
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cal, err := calendarFromEnv()
	collect(err)
	s.Calendar = cal
	s.Services = strings.TrimSpace(config.String("SHOP_SERVICES", ""))

	s.StorageDriver = strings.ToLower(config.String("STORAGE_DRIVER", DriverPostgres))
	switch s.StorageDriver {
	case DriverPostgres:
		s.DatabaseURL, err = config.RequiredString("DATABASE_URL")
		collect(err)
	case DriverMemory:
		if s.Services == "" {
			collect(errors.New("SHOP_SERVICES is required with STORAGE_DRIVER=memory"))
		}
	default:
		collect(fmt.Errorf("STORAGE_DRIVER must be %q or %q (got %q)", DriverPostgres, DriverMemory, s.StorageDriver))
	}
	s.MigrateOnStart = config.Bool("MIGRATE_ON_START", true)

	stepMinutes, err := config.Int("SLOT_STEP_MINUTES", 15)
	collect(err)
	if stepMinutes <= 0 {
		collect(fmt.Errorf("SLOT_STEP_MINUTES must be positive (got %d)", stepMinutes))
	}
	s.SlotStep = time.Duration(stepMinutes) * time.Minute
	s.SweepInterval, err = config.Duration("SWEEP_INTERVAL", 24*time.Hour)
	collect(err)
	s.SweepBatchSize, err = config.Int("SWEEP_BATCH_SIZE", 500)
	collect(err)

	s.JWTSecret = config.String("AUTH_JWT_SECRET", "")
	s.JWKSURL = config.String("AUTH_JWKS_URL", "")
	s.TrustHeaders = config.Bool("AUTH_TRUST_HEADERS", false)
	if s.JWTSecret == "" && s.JWKSURL == "" && !s.TrustHeaders {
		collect(errors.New("one of AUTH_JWT_SECRET, AUTH_JWKS_URL or AUTH_TRUST_HEADERS=true is required"))
	}

	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.RedisAddr = config.String("REDIS_ADDR", "")
	s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	for _, o := range strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			s.CORSOrigins = append(s.CORSOrigins, o)
		}
	}

	return s, errors.Join(errs...)
}

func calendarFromEnv() (policy.Calendar, error) {
	cal := policy.Default()

	tz := config.String("SHOP_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return cal, fmt.Errorf("SHOP_TIMEZONE: %w", err)
	}
	cal.Location = loc

	if raw := config.String("SHOP_OPEN_DAYS", ""); raw != "" {
		days, err := policy.ParseWeekdays(raw)
		if err != nil {
			return cal, fmt.Errorf("SHOP_OPEN_DAYS: %w", err)
		}
		cal.OpenDays = days
	}

	clocks := []struct {
		key string
		dst *policy.ClockTime
	}{
		{"SHOP_OPENING", &cal.Opening},
		{"SHOP_CLOSING", &cal.Closing},
		{"SHOP_BREAK_START", &cal.BreakStart},
		{"SHOP_BREAK_END", &cal.BreakEnd},
	}
	for _, c := range clocks {
		raw := config.String(c.key, "")
		if raw == "" {
			continue
		}
		v, err := policy.ParseClockTime(raw)
		if err != nil {
			return cal, fmt.Errorf("%s: %w", c.key, err)
		}
		*c.dst = v
	}

	if err := cal.Validate(); err != nil {
		return cal, err
	}
	return cal, nil
}
