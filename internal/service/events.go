// events.go: создание мероприятия: план, окна, slug ссылки загрузки, префикс хранения.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
	"github.com/slymnaltan/frame-app/retention/internal/domain/plan"
	"github.com/slymnaltan/frame-app/retention/internal/domain/retention"
	"github.com/slymnaltan/frame-app/retention/internal/repository"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

const (
	// slugLength: длина slug ссылки загрузки (hex-символы)
	slugLength = 10
	// maxSlugAttempts: попыток подобрать уникальный slug
	maxSlugAttempts = 5
)

// ErrInvalidEvent: некорректные параметры мероприятия.
var ErrInvalidEvent = errors.New("некорректные параметры мероприятия")

// EventCreator: запись мероприятия в EventStore.
type EventCreator interface {
	Create(ctx context.Context, e *model.Event) error
}

// CreateEventParams: параметры нового мероприятия.
type CreateEventParams struct {
	OwnerID     string
	Name        string
	Description string
	EventDate   *time.Time
	Venue       string
	// PlanID: {rentalTier}_{storageTier}; неизвестные ступени заменяются бесплатными
	PlanID string
}

// EventService создаёт мероприятия.
type EventService struct {
	store         EventCreator
	catalog       *plan.Catalog
	calculator    *retention.Calculator
	uploadBaseURL string
	logger        *slog.Logger
	now           func() time.Time
	newSlug       func() string
}

// NewEventService создаёт сервис мероприятий.
func NewEventService(store EventCreator, catalog *plan.Catalog, calc *retention.Calculator, uploadBaseURL string, logger *slog.Logger) *EventService {
	return &EventService{
		store:         store,
		catalog:       catalog,
		calculator:    calc,
		uploadBaseURL: strings.TrimRight(uploadBaseURL, "/"),
		logger:        logger.With(slog.String("component", "events")),
		now:           time.Now,
		newSlug:       randomSlug,
	}
}

// Create вычисляет окна по плану и сохраняет мероприятие.
// При совпадении slug генерирует новый, не более maxSlugAttempts раз.
func (s *EventService) Create(ctx context.Context, p CreateEventParams) (*model.Event, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	p.Name = strings.TrimSpace(p.Name)
	if !validOwnerID(p.OwnerID) {
		return nil, fmt.Errorf("%w: некорректный владелец %q", ErrInvalidEvent, p.OwnerID)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: пустое название", ErrInvalidEvent)
	}

	pl := s.catalog.Resolve(p.PlanID)
	windows, err := s.calculator.Compute(pl, s.now())
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		slug := s.newSlug()
		prefix := model.StoragePrefixFor(p.OwnerID, slug)
		if err := checkStoragePrefix(prefix); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		e := &model.Event{
			ID:               id,
			OwnerID:          p.OwnerID,
			Name:             p.Name,
			Description:      p.Description,
			EventDate:        p.EventDate,
			Venue:            p.Venue,
			UploadSlug:       slug,
			UploadURL:        s.uploadBaseURL + "/" + slug,
			StoragePrefix:    prefix,
			PricingPlan:      pl.ID,
			RentalStart:      windows.RentalStart,
			RentalEnd:        windows.RentalEnd,
			StorageExpiresAt: windows.StorageExpiresAt,
			RetentionDays:    pl.StorageDays,
		}

		err := s.store.Create(ctx, e)
		if err == nil {
			s.logger.Info("Мероприятие создано",
				slog.String("event_id", e.ID),
				slog.String("plan", e.PricingPlan),
				slog.String("prefix", e.StoragePrefix),
				slog.Time("storage_expires_at", e.StorageExpiresAt),
			)
			return e, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("ошибка создания мероприятия: %w", err)
		}
		s.logger.Warn("Совпадение slug, повтор",
			slog.String("slug", slug),
			slog.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("%w: не удалось подобрать уникальный slug за %d попыток",
		repository.ErrConflict, maxSlugAttempts)
}

// randomSlug возвращает slugLength случайных hex-символов.
func randomSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:slugLength]
}

// validOwnerID: непустой id без разделителей пути и без сегментов "." и "..".
func validOwnerID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}

// checkStoragePrefix проверяет, что префикс имеет вид events/{owner}/{slug}
// и допускается к рекурсивному удалению при очистке.
func checkStoragePrefix(prefix string) error {
	if len(strings.Split(prefix, "/")) != 3 {
		return fmt.Errorf("префикс %q должен состоять из трёх сегментов", prefix)
	}
	normalized, err := storage.ValidateDeletePrefix(prefix)
	if err != nil {
		return err
	}
	if normalized != prefix {
		return fmt.Errorf("префикс %q не нормализован", prefix)
	}
	return nil
}
