package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// EventRepository: мероприятия в PostgreSQL (таблица events).
type EventRepository struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий мероприятий.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, owner_id, name, description, event_date, venue,
	upload_slug, upload_url, storage_prefix, pricing_plan,
	rental_start, rental_end, storage_expires_at, retention_days,
	is_files_deleted, files_deleted_at, created_at, updated_at`

// Create создаёт мероприятие. Дубликат slug → ErrConflict.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, owner_id, name, description, event_date, venue,
			upload_slug, upload_url, storage_prefix, pricing_plan,
			rental_start, rental_end, storage_expires_at, retention_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		e.ID, e.OwnerID, e.Name, e.Description, e.EventDate, e.Venue,
		e.UploadSlug, e.UploadURL, e.StoragePrefix, e.PricingPlan,
		e.RentalStart, e.RentalEnd, e.StorageExpiresAt, e.RetentionDays,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: id или upload_slug уже существует", ErrConflict)
		}
		return fmt.Errorf("ошибка создания мероприятия: %w", err)
	}
	return nil
}

// GetByID возвращает мероприятие по UUID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// GetBySlug возвращает мероприятие по slug ссылки загрузки.
func (r *EventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return r.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE upload_slug = $1`, slug)
}

func (r *EventRepository) getOne(ctx context.Context, query string, arg string) (*model.Event, error) {
	e := &model.Event{}
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.Description, &e.EventDate, &e.Venue,
		&e.UploadSlug, &e.UploadURL, &e.StoragePrefix, &e.PricingPlan,
		&e.RentalStart, &e.RentalEnd, &e.StorageExpiresAt, &e.RetentionDays,
		&e.IsFilesDeleted, &e.FilesDeletedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	return e, nil
}

// FindExpiredUncleaned возвращает кандидатов на очистку:
// storage_expires_at < threshold, файлы не удалены, префикс задан.
// Порядок: (storage_expires_at, id); страница начинается строго после after.
func (r *EventRepository) FindExpiredUncleaned(ctx context.Context, threshold time.Time, after *model.ExpiryCursor, limit int) ([]model.ExpiredEvent, error) {
	query := `
		SELECT id, storage_prefix, storage_expires_at
		FROM events
		WHERE storage_expires_at < $1
			AND is_files_deleted = FALSE
			AND storage_prefix <> ''
			AND ($2::timestamptz IS NULL OR (storage_expires_at, id) > ($2::timestamptz, $3::uuid))
		ORDER BY storage_expires_at, id
		LIMIT $4`

	var afterAt *time.Time
	var afterID *string
	if after != nil {
		afterAt, afterID = &after.ExpiresAt, &after.ID
	}
	// LIMIT NULL: без ограничения
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := r.db.Query(ctx, query, threshold, afterAt, afterID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших мероприятий: %w", err)
	}
	defer rows.Close()

	var result []model.ExpiredEvent
	for rows.Next() {
		var e model.ExpiredEvent
		if err := rows.Scan(&e.ID, &e.StoragePrefix, &e.StorageExpiresAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования кандидата: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации кандидатов: %w", err)
	}
	return result, nil
}

// MarkFilesDeleted отмечает файлы мероприятия удалёнными одной условной записью.
// Неизвестный id → ErrNotFound, уже отмеченное → ErrAlreadyMarked.
func (r *EventRepository) MarkFilesDeleted(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE events
		SET is_files_deleted = TRUE, files_deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND is_files_deleted = FALSE`, id)
	if err != nil {
		if isInvalidText(err) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка отметки удаления файлов: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var deleted bool
	err = r.db.QueryRow(ctx, `SELECT is_files_deleted FROM events WHERE id = $1`, id).Scan(&deleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка проверки мероприятия: %w", err)
	}
	return ErrAlreadyMarked
}
