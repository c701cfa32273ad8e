package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// MemoryEventRepository: потокобезопасное in-memory хранилище мероприятий.
// Не персистентное: dev-режим и тесты. Наружу отдаются только копии.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*model.Event // id → event
	slugs  map[string]string       // upload_slug → id
	now    func() time.Time
}

// NewMemoryEventRepository создаёт пустое хранилище.
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events: make(map[string]*model.Event),
		slugs:  make(map[string]string),
		now:    time.Now,
	}
}

// Create добавляет мероприятие. Дубликат id или slug → ErrConflict.
func (r *MemoryEventRepository) Create(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[e.ID]; ok {
		return ErrConflict
	}
	if _, ok := r.slugs[e.UploadSlug]; ok {
		return ErrConflict
	}

	now := r.now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	r.events[e.ID] = copyEvent(e)
	r.slugs[e.UploadSlug] = e.ID
	return nil
}

// GetByID возвращает копию мероприятия.
func (r *MemoryEventRepository) GetByID(_ context.Context, id string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

// GetBySlug возвращает копию мероприятия по slug.
func (r *MemoryEventRepository) GetBySlug(ctx context.Context, slug string) (*model.Event, error) {
	r.mu.RLock()
	id, ok := r.slugs[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// FindExpiredUncleaned возвращает кандидатов на очистку по возрастанию
// (срок, id), строго после after (nil: с начала).
func (r *MemoryEventRepository) FindExpiredUncleaned(_ context.Context, threshold time.Time, after *model.ExpiryCursor, limit int) ([]model.ExpiredEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []model.ExpiredEvent
	for _, e := range r.events {
		if e.IsFilesDeleted || e.StoragePrefix == "" || !e.StorageExpiresAt.Before(threshold) {
			continue
		}
		candidate := model.ExpiredEvent{
			ID:               e.ID,
			StoragePrefix:    e.StoragePrefix,
			StorageExpiresAt: e.StorageExpiresAt,
		}
		if !after.After(candidate) {
			continue
		}
		result = append(result, candidate)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StorageExpiresAt.Equal(result[j].StorageExpiresAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StorageExpiresAt.Before(result[j].StorageExpiresAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkFilesDeleted отмечает файлы удалёнными. Переход только false → true.
func (r *MemoryEventRepository) MarkFilesDeleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return ErrNotFound
	}
	if e.IsFilesDeleted {
		return ErrAlreadyMarked
	}

	now := r.now().UTC()
	e.IsFilesDeleted = true
	e.FilesDeletedAt = &now
	e.UpdatedAt = now
	return nil
}

// Ping всегда успешен.
func (r *MemoryEventRepository) Ping(context.Context) error {
	return nil
}

// Count возвращает количество мероприятий.
func (r *MemoryEventRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func copyEvent(e *model.Event) *model.Event {
	c := *e
	if e.EventDate != nil {
		d := *e.EventDate
		c.EventDate = &d
	}
	if e.FilesDeletedAt != nil {
		d := *e.FilesDeletedAt
		c.FilesDeletedAt = &d
	}
	return &c
}
