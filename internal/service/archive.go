// archive.go: выгрузка всех файлов мероприятия одним zip-архивом.
package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/repository"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// ErrNoContent: у мероприятия нет файлов.
var ErrNoContent = errors.New("у мероприятия нет файлов")

// ObjectReader: листинг и чтение объектов (storage.Driver).
type ObjectReader interface {
	List(ctx context.Context, prefix string) iter.Seq2[storage.ObjectInfo, error]
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// ArchiveService: zip-архив файлов мероприятия для организатора.
type ArchiveService struct {
	events EventReader
	driver ObjectReader
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiveService создаёт сервис архивов.
func NewArchiveService(events EventReader, driver ObjectReader, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		events: events,
		driver: driver,
		logger: logger.With(slog.String("component", "archive_service")),
		now:    time.Now,
	}
}

// Prepare проверяет мероприятие и собирает список объектов.
// Ошибки возвращаются до записи первого байта архива.
func (s *ArchiveService) Prepare(ctx context.Context, eventID string) (*Archive, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("ошибка получения мероприятия: %w", err)
	}
	if e.IsFilesDeleted {
		return nil, ErrFilesDeleted
	}

	var keys []string
	for obj, err := range s.driver.List(ctx, e.StoragePrefix) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, obj.Key)
	}
	if len(keys) == 0 {
		return nil, ErrNoContent
	}

	return &Archive{
		EventID: e.ID,
		Name:    e.UploadSlug + ".zip",
		prefix:  e.StoragePrefix,
		keys:    keys,
		svc:     s,
	}, nil
}

// Archive: подготовленный архив мероприятия.
type Archive struct {
	EventID string
	// Name: имя файла архива для Content-Disposition
	Name   string
	prefix string
	keys   []string
	svc    *ArchiveService
}

// Files возвращает количество файлов в архиве.
func (a *Archive) Files() int {
	return len(a.keys)
}

// Stream пишет zip-архив в w, сжимая объекты deflate.
func (a *Archive) Stream(ctx context.Context, w io.Writer) error {
	zw := zip.NewWriter(w)
	modified := a.svc.now()

	for _, key := range a.keys {
		if err := a.addObject(ctx, zw, key, modified); err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка завершения архива: %w", err)
	}

	a.svc.logger.Info("Архив мероприятия выгружен",
		slog.String("event_id", a.EventID),
		slog.Int("files", len(a.keys)),
	)
	return nil
}

func (a *Archive) addObject(ctx context.Context, zw *zip.Writer, key string, modified time.Time) error {
	obj, err := a.svc.driver.Get(ctx, key)
	if err != nil {
		// Объект мог быть удалён между листингом и чтением
		if errors.Is(err, storage.ErrNotFound) {
			a.svc.logger.Warn("Объект исчез при архивации",
				slog.String("event_id", a.EventID),
				slog.String("key", key),
			)
			return nil
		}
		return err
	}
	defer obj.Body.Close()

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     strings.TrimPrefix(key, a.prefix+"/"),
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("ошибка записи заголовка %s: %w", key, err)
	}
	if _, err := io.Copy(entry, obj.Body); err != nil {
		return fmt.Errorf("ошибка записи %s в архив: %w", key, err)
	}
	return nil
}

// Archive пишет архив мероприятия eventID в w.
func (s *ArchiveService) Archive(ctx context.Context, eventID string, w io.Writer) error {
	a, err := s.Prepare(ctx, eventID)
	if err != nil {
		return err
	}
	return a.Stream(ctx, w)
}
