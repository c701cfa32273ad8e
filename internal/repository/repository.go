// Пакет repository: хранилища мероприятий (EventStore).
//
// Реализации: PostgreSQL (чистый SQL через pgx, без ORM), MongoDB
// (хранилище исходной системы) и in-memory для dev-режима и тестов.
// Все реализации соблюдают один контракт ошибок.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound: запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict: конфликт уникальности (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт: запись уже существует")
	// ErrAlreadyMarked: файлы мероприятия уже отмечены как удалённые другим запуском.
	ErrAlreadyMarked = errors.New("файлы мероприятия уже отмечены как удалённые")
)

// EventStore: контракт хранилища мероприятий.
//
// FindExpiredUncleaned возвращает мероприятия с storage_expires_at < threshold,
// неотмеченные и с непустым префиксом, по возрастанию (срок, id), строго после
// after (nil: с начала); limit <= 0: без ограничения.
// MarkFilesDeleted: условная запись false → true: повтор даёт ErrAlreadyMarked.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
	FindExpiredUncleaned(ctx context.Context, threshold time.Time, after *model.ExpiryCursor, limit int) ([]model.ExpiredEvent, error)
	MarkFilesDeleted(ctx context.Context, id string) error
}

var (
	_ EventStore = (*EventRepository)(nil)
	_ EventStore = (*MongoEventRepository)(nil)
	_ EventStore = (*MemoryEventRepository)(nil)
)

// DBTX: интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isInvalidText проверяет ошибку разбора значения (например, не-UUID в колонке UUID).
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "22P02" // invalid_text_representation
	}
	return false
}
