package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/slymnaltan/frame-app/retention/internal/api/handlers"
	"github.com/slymnaltan/frame-app/retention/internal/config"
	"github.com/slymnaltan/frame-app/retention/internal/database"
	"github.com/slymnaltan/frame-app/retention/internal/repository"
)

// eventStore: открытое хранилище мероприятий вместе с его проверками.
type eventStore struct {
	repo  repository.EventStore
	ready handlers.ReadinessChecker
	// sqlDB: *sql.DB поверх пула для dephealth (только PostgreSQL)
	sqlDB *sql.DB
	// pgURL: URL PostgreSQL для лейблов dephealth
	pgURL string
	close func()
}

// openEventStore открывает хранилище мероприятий по FA_EVENT_STORE.
func openEventStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*eventStore, error) {
	switch cfg.EventStore {
	case config.EventStorePostgres:
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		db := stdlib.OpenDBFromPool(pool)
		return &eventStore{
			repo:  repository.NewEventRepository(pool),
			ready: database.NewReadinessChecker("PostgreSQL", pool),
			sqlDB: db,
			pgURL: cfg.DatabaseURL("postgres"),
			close: func() {
				_ = db.Close()
				pool.Close()
			},
		}, nil

	case config.EventStoreMongo:
		repo, err := repository.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info("Подключение к MongoDB установлено",
			slog.String("database", cfg.MongoDatabase),
		)
		return &eventStore{
			repo:  repo,
			ready: database.NewReadinessChecker("MongoDB", repo),
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer cancel()
				_ = repo.Close(closeCtx)
			},
		}, nil

	case config.EventStoreMemory:
		logger.Warn("Хранилище мероприятий в памяти: данные не переживут перезапуск")
		repo := repository.NewMemoryEventRepository()
		return &eventStore{
			repo:  repo,
			ready: database.NewReadinessChecker("memory", repo),
			close: func() {},
		}, nil

	default:
		return nil, fmt.Errorf("неизвестное хранилище мероприятий: %q", cfg.EventStore)
	}
}
