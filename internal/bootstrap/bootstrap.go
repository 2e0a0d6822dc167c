// Package bootstrap turns a Config into connected backends and services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-coordination/internal/appointment"
	"github.com/hackgods/care-coordination/internal/config"
	"github.com/hackgods/care-coordination/internal/db"
	"github.com/hackgods/care-coordination/internal/kv"
	"github.com/hackgods/care-coordination/internal/lock"
	"github.com/hackgods/care-coordination/internal/notify"
	"github.com/hackgods/care-coordination/internal/pharmacy"
	redisclient "github.com/hackgods/care-coordination/internal/redis"
)

// RedisKeyPrefix namespaces the tables when the store is Redis.
const RedisKeyPrefix = "care:"

// NewLogger writes JSON to stdout, or console output in dev.
func NewLogger(cfg config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// Backends are the connected store and locker plus the raw clients behind them.
type Backends struct {
	Store  kv.Store
	Locker lock.Locker
	Pool   *pgxpool.Pool // nil unless STORE_BACKEND=postgres
	Redis  *redis.Client // nil unless Redis is configured

	closers []func() error
}

func Open(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Backends, error) {
	b := &Backends{}

	if cfg.NeedsRedis() {
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		b.Redis = rdb
		b.closers = append(b.closers, rdb.Close)
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
	}

	store, err := b.openStore(ctx, cfg, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = store
	b.closers = append(b.closers, store.Close)

	switch cfg.LockBackend {
	case config.LockRedis:
		b.Locker = redisclient.NewRedisLocker(b.Redis, cfg.LockTTL, cfg.LockWait)
	default:
		b.Locker = lock.NewLocal()
	}

	logger.Info().
		Str("store", cfg.StoreBackend).
		Str("lock", cfg.LockBackend).
		Msg("backends ready")
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (kv.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("sqlite directory: %w", err)
			}
		}
		store, err := kv.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return store, nil

	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		b.Pool = pool
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		store, err := kv.NewPostgres(pgCtx, pool)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		logger.Info().Msg("connected to Postgres")
		return store, nil

	case config.StoreRedis:
		return kv.NewRedis(b.Redis, RedisKeyPrefix), nil

	default:
		return kv.NewMemory(), nil
	}
}

// Close releases everything Open connected, newest first.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Services are the domain services sharing one store and locker.
type Services struct {
	Appointments  *appointment.Service
	Pharmacy      *pharmacy.Service
	Notifications *notify.Service
}

func NewServices(b *Backends, cfg config.Config, logger zerolog.Logger) *Services {
	feed := notify.NewService(b.Store, b.Locker,
		notify.WithLogger(logger.With().Str("component", "notify").Logger()))

	appts := appointment.NewService(
		appointment.NewKVRepository(b.Store),
		b.Locker,
		appointment.Config{
			HorizonDays: cfg.SlotHorizonDays,
			Times:       cfg.SlotTimes,
			DoctorIDs:   cfg.SlotProviderIDs,
			SeedOnEmpty: cfg.SeedOnEmpty,
		},
		appointment.WithNotifier(feed),
		appointment.WithLogger(logger.With().Str("component", "appointment").Logger()),
	)

	pharm := pharmacy.NewService(
		pharmacy.NewKVRepository(b.Store),
		b.Locker,
		pharmacy.Config{SeedOnEmpty: cfg.SeedOnEmpty},
		pharmacy.WithNotifier(feed),
		pharmacy.WithLogger(logger.With().Str("component", "pharmacy").Logger()),
	)

	return &Services{Appointments: appts, Pharmacy: pharm, Notifications: feed}
}

// Load hydrates every table before traffic is served.
func (s *Services) Load(ctx context.Context) error {
	if err := s.Appointments.Load(ctx); err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	if err := s.Pharmacy.Load(ctx); err != nil {
		return fmt.Errorf("load pharmacy: %w", err)
	}
	return nil
}
