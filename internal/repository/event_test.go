package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/slymnaltan/frame-app/retention/internal/config"
	"github.com/slymnaltan/frame-app/retention/internal/database"
	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// setupPostgres запускает PostgreSQL, применяет миграции и возвращает пул.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("frame_test"),
		postgres.WithUsername("frame"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, _ := container.Host(ctx)
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	cfg := &config.Config{
		DBHost: host, DBPort: port.Int(), DBName: "frame_test",
		DBUser: "frame", DBPassword: "test-password", DBSSLMode: "disable",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func pgEvent(slug string, expires time.Time) *model.Event {
	e := newEvent(uuid.NewString(), slug, expires.UTC().Truncate(time.Microsecond))
	e.RentalStart = e.RentalStart.UTC().Truncate(time.Microsecond)
	e.RentalEnd = e.RentalEnd.UTC().Truncate(time.Microsecond)
	return e
}

func TestEventRepository_Postgres(t *testing.T) {
	pool := setupPostgres(t)
	r := NewEventRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()

	old := pgEvent("old0000001", now.Add(-90*time.Minute))
	recent := pgEvent("recent0001", now.Add(-30*time.Minute))
	for _, e := range []*model.Event{old, recent} {
		if err := r.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	if err := r.Create(ctx, pgEvent("old0000001", now)); !errors.Is(err, ErrConflict) {
		t.Errorf("дубликат slug: ожидалась ErrConflict, получено %v", err)
	}

	got, err := r.GetBySlug(ctx, "old0000001")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got.ID != old.ID || !got.StorageExpiresAt.Equal(old.StorageExpiresAt) {
		t.Errorf("GetBySlug: %+v", got)
	}
	if _, err := r.GetByID(ctx, "не-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(не-uuid): ожидалась ErrNotFound, получено %v", err)
	}

	candidates, err := r.FindExpiredUncleaned(ctx, now.Add(-time.Hour), nil, 100)
	if err != nil {
		t.Fatalf("FindExpiredUncleaned: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ID != old.ID {
		t.Errorf("кандидаты: %+v", candidates)
	}

	if err := r.MarkFilesDeleted(ctx, old.ID); err != nil {
		t.Fatalf("MarkFilesDeleted: %v", err)
	}
	if err := r.MarkFilesDeleted(ctx, old.ID); !errors.Is(err, ErrAlreadyMarked) {
		t.Errorf("повтор: ожидалась ErrAlreadyMarked, получено %v", err)
	}
	if err := r.MarkFilesDeleted(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("неизвестный id: ожидалась ErrNotFound, получено %v", err)
	}

	marked, _ := r.GetByID(ctx, old.ID)
	if !marked.IsFilesDeleted || marked.FilesDeletedAt == nil {
		t.Errorf("отметка не сохранена: %+v", marked)
	}

	candidates, _ = r.FindExpiredUncleaned(ctx, now.Add(-time.Hour), nil, 100)
	if len(candidates) != 0 {
		t.Errorf("очищенное мероприятие не должно быть кандидатом: %+v", candidates)
	}
}

func TestEventRepository_Postgres_Pagination(t *testing.T) {
	pool := setupPostgres(t)
	r := NewEventRepository(pool)
	ctx := context.Background()
	now := time.Now().UTC()
	same := now.Add(-3 * time.Hour)

	// Два мероприятия с одинаковым сроком: порядок между ними задаёт id
	events := []*model.Event{
		pgEvent("page000001", same),
		pgEvent("page000002", same),
		pgEvent("page000003", now.Add(-2*time.Hour)),
	}
	for _, e := range events {
		if err := r.Create(ctx, e); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	seen := make(map[string]bool)
	var after *model.ExpiryCursor
	for page := 0; page < 5; page++ {
		got, err := r.FindExpiredUncleaned(ctx, now.Add(-time.Hour), after, 1)
		if err != nil {
			t.Fatalf("страница %d: %v", page, err)
		}
		if len(got) == 0 {
			break
		}
		if seen[got[0].ID] {
			t.Fatalf("страница %d повторяет %s", page, got[0].ID)
		}
		seen[got[0].ID] = true
		after = got[0].Cursor()
	}

	if len(seen) != len(events) {
		t.Errorf("обход страниц: получено %d из %d", len(seen), len(events))
	}
	if after == nil || after.ID != events[2].ID {
		t.Errorf("последним должно быть мероприятие с самым поздним сроком: %+v", after)
	}
}
