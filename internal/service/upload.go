// upload.go: загрузка файла гостем по slug ссылки мероприятия.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
	"github.com/slymnaltan/frame-app/retention/internal/repository"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_uploads_total",
		Help: "Количество загрузок гостей по результату",
	}, []string{"result"})

	eventCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_upload_event_cache_lookups_total",
		Help: "Обращения к кэшу мероприятий загрузки",
	}, []string{"result"})
)

var (
	// ErrRentalEnded: окно загрузки мероприятия закрыто
	ErrRentalEnded = errors.New("окно загрузки мероприятия закрыто")
	// ErrFilesDeleted: файлы мероприятия удалены по истечении хранения
	ErrFilesDeleted = errors.New("файлы мероприятия удалены")
	// ErrFileTooLarge: файл больше допустимого размера
	ErrFileTooLarge = errors.New("файл слишком большой")
	// ErrEventNotFound: мероприятие не найдено
	ErrEventNotFound = errors.New("мероприятие не найдено")
)

// unsafeNameChars: всё, что не допускается в имени объекта.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// EventReader: чтение мероприятий из EventStore.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetBySlug(ctx context.Context, slug string) (*model.Event, error)
}

// ObjectWriter: запись объекта в хранилище (storage.Driver).
type ObjectWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*storage.Descriptor, error)
}

// UploadParams: параметры загрузки.
type UploadParams struct {
	Slug        string
	Filename    string
	ContentType string
	Body        io.Reader
	// Size: заявленный размер; -1, если неизвестен
	Size int64
}

// UploadService: приём файлов гостей.
type UploadService struct {
	events      EventReader
	driver      ObjectWriter
	cache       *expirable.LRU[string, *model.Event]
	maxFileSize int64
	logger      *slog.Logger
	now         func() time.Time
}

// NewUploadService создаёт сервис загрузки. cacheSize и cacheTTL задают
// кэш мероприятий по slug.
func NewUploadService(events EventReader, driver ObjectWriter, maxFileSize int64, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *UploadService {
	return &UploadService{
		events:      events,
		driver:      driver,
		cache:       expirable.NewLRU[string, *model.Event](cacheSize, nil, cacheTTL),
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "upload_service")),
		now:         time.Now,
	}
}

// Upload сохраняет файл под префиксом мероприятия.
// Ключ объекта: {prefix}/{unix-millis}-{safeName}.
func (s *UploadService) Upload(ctx context.Context, p UploadParams) (*storage.Descriptor, error) {
	desc, err := s.upload(ctx, p)
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrRentalEnded), errors.Is(err, ErrFilesDeleted):
		result = "closed"
	case errors.Is(err, ErrFileTooLarge):
		result = "too_large"
	case errors.Is(err, ErrEventNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	uploadsTotal.WithLabelValues(result).Inc()
	return desc, err
}

func (s *UploadService) upload(ctx context.Context, p UploadParams) (*storage.Descriptor, error) {
	e, err := s.lookup(ctx, p.Slug)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if e.IsFilesDeleted {
		return nil, ErrFilesDeleted
	}
	if !e.IsRentalOpen(now) {
		return nil, fmt.Errorf("%w: загрузка была доступна до %s", ErrRentalEnded, e.RentalEnd.Format(time.RFC3339))
	}
	if p.Size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d байт, максимум %d", ErrFileTooLarge, p.Size, s.maxFileSize)
	}

	key := e.StoragePrefix + "/" + fmt.Sprintf("%d-%s", now.UnixMilli(), SafeName(p.Filename))
	body := &maxSizeReader{r: p.Body, remaining: s.maxFileSize}

	desc, err := s.driver.Put(ctx, key, body, p.Size, detectContentType(p.ContentType))
	if err != nil {
		if body.exceeded {
			return nil, fmt.Errorf("%w: максимум %d байт", ErrFileTooLarge, s.maxFileSize)
		}
		s.logger.Error("Ошибка сохранения файла",
			slog.String("event_id", e.ID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.logger.Info("Файл загружен",
		slog.String("event_id", e.ID),
		slog.String("key", desc.Key),
		slog.String("backend", desc.Backend),
	)
	return desc, nil
}

// lookup возвращает мероприятие по slug через кэш.
func (s *UploadService) lookup(ctx context.Context, slug string) (*model.Event, error) {
	if e, ok := s.cache.Get(slug); ok {
		eventCacheLookups.WithLabelValues("hit").Inc()
		return e, nil
	}
	eventCacheLookups.WithLabelValues("miss").Inc()

	e, err := s.events.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	s.cache.Add(slug, e)
	return e, nil
}

// SafeName оставляет из имени файла только [A-Za-z0-9_.-], остальное заменяет на "_".
func SafeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "file"
	}
	return name
}

// detectContentType отбрасывает параметры; пустой тип → application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}

// maxSizeReader обрывает поток, превышающий remaining байт.
type maxSizeReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (m *maxSizeReader) Read(p []byte) (int, error) {
	if m.remaining < 0 {
		m.exceeded = true
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > m.remaining+1 {
		p = p[:m.remaining+1]
	}
	n, err := m.r.Read(p)
	m.remaining -= int64(n)
	if m.remaining < 0 {
		m.exceeded = true
		return n, ErrFileTooLarge
	}
	return n, err
}
