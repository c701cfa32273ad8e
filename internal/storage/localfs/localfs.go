// Пакет localfs: backend хранилища на локальной файловой системе.
//
// Возможности урезаны: запись и чтение поддерживаются, листинг и пакетное
// удаление возвращают storage.ErrNotSupported. RetentionReaper поднимает
// по таким мероприятиям алерт о конфигурации.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// Store: файлы под корневой директорией.
type Store struct {
	// root: абсолютный путь корня (LOCAL_STORAGE_ROOT)
	root string
	// publicBase: базовый URL раздачи файлов, пустой → file:// путь
	publicBase string
}

// New создаёт Store. Создаёт корневую директорию, если её нет.
func New(root, publicBase string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный корень хранилища %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", abs, err)
	}
	return &Store{root: abs, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Name возвращает "local".
func (s *Store) Name() string { return "local" }

// Root возвращает абсолютный путь корня.
func (s *Store) Root() string { return s.root }

// Put записывает объект атомарно.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется, частично записанный объект не виден.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("ошибка создания директории: %w", err)
	}

	// Уникальное имя temp файла: параллельные записи одного ключа не мешают друг другу
	tmpPath := fullPath + "." + uuid.NewString()[:8] + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: body}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return s.url(key), nil
}

// Get открывает файл на чтение.
func (s *Store) Get(_ context.Context, key string) (*storage.Object, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}

	return &storage.Object{
		Body:        f,
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
		Size:        info.Size(),
	}, nil
}

// ListPage не поддерживается локальным backend'ом.
func (s *Store) ListPage(context.Context, string, string, int) ([]storage.ObjectInfo, string, error) {
	return nil, "", fmt.Errorf("%w: листинг в локальном хранилище", storage.ErrNotSupported)
}

// DeleteKeys не поддерживается локальным backend'ом.
func (s *Store) DeleteKeys(context.Context, []string) error {
	return fmt.Errorf("%w: пакетное удаление в локальном хранилище", storage.ErrNotSupported)
}

// resolve возвращает абсолютный путь ключа. Ключ не может выйти за корень.
func (s *Store) resolve(key string) (string, error) {
	if err := storage.ValidateKey(key); err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("%w: ключ %q вне корня хранилища", storage.ErrInvalidKey, key)
	}
	return fullPath, nil
}

func (s *Store) url(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return "file://" + filepath.ToSlash(filepath.Join(s.root, filepath.FromSlash(key)))
}

// ctxReader прерывает копирование при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
