// Пакет database: подключение к PostgreSQL через pgxpool,
// применение миграций (golang-migrate) и проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slymnaltan/frame-app/retention/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// applicationName: имя клиента в pg_stat_activity.
const applicationName = "frame-retention"

// Connect создаёт пул подключений к PostgreSQL и проверяет его ping'ом.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("разбор DSN PostgreSQL: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	// Воркеры очистки держат по соединению на пометку, плюс запросы API
	if floor := int32(cfg.CleanupWorkers + 2); poolCfg.MaxConns < floor {
		poolCfg.MaxConns = floor
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("создание пула PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// newMigrator создаёт golang-migrate поверх встроенных миграций.
func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("источник миграций: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("инициализация миграций: %w", err)
	}
	return m, nil
}

// Migrate доводит схему таблицы events до последней версии.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	m, err := newMigrator(cfg.DatabaseURL("pgx5"))
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Debug("Схема БД актуальна")
	case err != nil:
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("версия схемы: %w", verr)
	}
	if dirty {
		return fmt.Errorf("схема БД в состоянии dirty (версия %d)", version)
	}
	logger.Info("Миграции применены", slog.Uint64("version", uint64(version)))
	return nil
}

// Pinger: хранилище, доступность которого проверяется ping'ом.
// Реализуется *pgxpool.Pool и MongoDB-клиентом.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker: проверка готовности хранилища мероприятий для health endpoint.
type ReadinessChecker struct {
	name string
	db   Pinger
}

// NewReadinessChecker создаёт проверку готовности.
// name: имя хранилища в сообщениях (PostgreSQL, MongoDB).
func NewReadinessChecker(name string, db Pinger) *ReadinessChecker {
	return &ReadinessChecker{name: name, db: db}
}

// readyTimeout: ping не должен задерживать readiness probe.
const readyTimeout = 3 * time.Second

// CheckReady возвращает ("ok", "") или ("fail", причина).
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("%s недоступен: %v", c.name, err)
	}
	return "ok", c.name + " доступен"
}
