// Пакет model: доменные модели сервиса хранения фото/видео мероприятий.
// Event: агрегат мероприятия с окнами аренды и хранения,
// ExpiredEvent: кандидат на очистку для RetentionReaper.
package model

import (
	"path"
	"time"
)

// Event: мероприятие, для которого гости загружают файлы по QR-ссылке.
type Event struct {
	// ID: уникальный идентификатор мероприятия (UUID v4)
	ID string `json:"id" bson:"_id"`

	// OwnerID: идентификатор пользователя-организатора
	OwnerID string `json:"owner_id" bson:"owner"`

	// Name: название мероприятия
	Name string `json:"name" bson:"name"`

	// Description: описание (опционально)
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	// EventDate: дата проведения (опционально)
	EventDate *time.Time `json:"event_date,omitempty" bson:"eventDate,omitempty"`

	// Venue: место проведения (опционально)
	Venue string `json:"venue,omitempty" bson:"venue,omitempty"`

	// UploadSlug: короткий публичный код для ссылки загрузки
	UploadSlug string `json:"upload_slug" bson:"uploadSlug"`

	// UploadURL: полная ссылка загрузки, кодируется в QR
	UploadURL string `json:"upload_url" bson:"uploadUrl"`

	// StoragePrefix: префикс всех файлов мероприятия в хранилище.
	// Формат: events/{owner}/{slug}, всегда содержит вложенный сегмент.
	StoragePrefix string `json:"storage_prefix" bson:"storagePrefix"`

	// PricingPlan: идентификатор плана: {rentalTier}_{storageTier}
	PricingPlan string `json:"pricing_plan" bson:"pricingPlan"`

	// RentalStart: начало окна загрузки
	RentalStart time.Time `json:"rental_start" bson:"rentalStart"`

	// RentalEnd: после этого момента новые загрузки отклоняются
	RentalEnd time.Time `json:"rental_end" bson:"rentalEnd"`

	// StorageExpiresAt: после этого момента файлы подлежат удалению.
	// Всегда >= RentalEnd.
	StorageExpiresAt time.Time `json:"storage_expires_at" bson:"storageExpiresAt"`

	// RetentionDays: длительность окна хранения в днях
	RetentionDays int `json:"retention_days" bson:"retentionDays"`

	// IsFilesDeleted: файлы удалены из хранилища.
	// Переходит false → true ровно один раз, никогда не сбрасывается.
	IsFilesDeleted bool `json:"is_files_deleted" bson:"isFilesDeleted"`

	// FilesDeletedAt: момент отметки об удалении (nil пока не удалены)
	FilesDeletedAt *time.Time `json:"files_deleted_at,omitempty" bson:"filesDeletedAt,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" bson:"updatedAt"`
}

// IsRentalOpen возвращает true, если окно загрузки ещё открыто.
func (e *Event) IsRentalOpen(now time.Time) bool {
	return !now.After(e.RentalEnd)
}

// IsStorageExpired возвращает true, если окно хранения истекло
// с учётом буфера безопасности: expires_at < now - buffer.
func (e *Event) IsStorageExpired(now time.Time, buffer time.Duration) bool {
	return e.StorageExpiresAt.Before(now.Add(-buffer))
}

// ExpiredEvent: кандидат на очистку, минимальная проекция Event.
type ExpiredEvent struct {
	ID               string
	StoragePrefix    string
	StorageExpiresAt time.Time
}

// ExpiryCursor: позиция в порядке (storage_expires_at, id) для
// постраничного обхода кандидатов очистки.
type ExpiryCursor struct {
	ExpiresAt time.Time
	ID        string
}

// Cursor возвращает позицию кандидата для запроса следующей страницы.
func (e ExpiredEvent) Cursor() *ExpiryCursor {
	return &ExpiryCursor{ExpiresAt: e.StorageExpiresAt, ID: e.ID}
}

// After сообщает, лежит ли e строго после позиции c.
func (c *ExpiryCursor) After(e ExpiredEvent) bool {
	if c == nil {
		return true
	}
	if e.StorageExpiresAt.Equal(c.ExpiresAt) {
		return e.ID > c.ID
	}
	return e.StorageExpiresAt.After(c.ExpiresAt)
}

// StoragePrefixFor строит префикс хранения мероприятия.
// Пример: events/6564a1.../3f9c0a11be
func StoragePrefixFor(ownerID, slug string) string {
	return path.Join("events", ownerID, slug)
}
