package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

func TestPutGet(t *testing.T) {
	s, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	key := "events/o/s/1700000000000-photo.jpg"

	url, err := s.Put(ctx, key, strings.NewReader("hello"), 5, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, key) {
		t.Errorf("некорректный URL: %s", url)
	}

	obj, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if string(data) != "hello" {
		t.Errorf("содержимое: %q", data)
	}
	if obj.Size != 5 || obj.ContentType != "image/jpeg" {
		t.Errorf("метаданные: size=%d type=%q", obj.Size, obj.ContentType)
	}
}

func TestPut_Overwrite(t *testing.T) {
	s, _ := New(t.TempDir(), "https://cdn.example.com/")
	ctx := context.Background()

	if _, err := s.Put(ctx, "a/b.txt", strings.NewReader("one"), 3, ""); err != nil {
		t.Fatal(err)
	}
	url, err := s.Put(ctx, "a/b.txt", strings.NewReader("two!"), 4, "")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://cdn.example.com/a/b.txt" {
		t.Errorf("URL: %s", url)
	}

	data, err := os.ReadFile(filepath.Join(s.Root(), "a", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two!" {
		t.Errorf("содержимое после перезаписи: %q", data)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("обрыв соединения") }

// Ошибка записи не оставляет ни объекта, ни temp файлов.
func TestPut_FailureLeavesNothing(t *testing.T) {
	s, _ := New(t.TempDir(), "")

	if _, err := s.Put(context.Background(), "a/b.txt", failingReader{}, 10, ""); err == nil {
		t.Fatal("ожидалась ошибка")
	}

	entries, err := os.ReadDir(filepath.Join(s.Root(), "a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("остались файлы: %v", entries)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := New(t.TempDir(), "")

	_, err := s.Get(context.Background(), "missing/file.jpg")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestResolve_Escape(t *testing.T) {
	s, _ := New(t.TempDir(), "")

	for _, key := range []string{"../etc/passwd", "a/../../b", "/abs"} {
		if _, err := s.resolve(key); !errors.Is(err, storage.ErrInvalidKey) {
			t.Errorf("%q: ожидалась ErrInvalidKey, получено %v", key, err)
		}
	}
}

func TestListAndDeleteNotSupported(t *testing.T) {
	s, _ := New(t.TempDir(), "")
	ctx := context.Background()

	if _, _, err := s.ListPage(ctx, "events/o/s", "", 10); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("ListPage: ожидалась ErrNotSupported, получено %v", err)
	}
	if err := s.DeleteKeys(ctx, []string{"events/o/s/a"}); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("DeleteKeys: ожидалась ErrNotSupported, получено %v", err)
	}

	// Через Driver: DeletePrefix тоже NotSupported
	d := storage.New(s, storage.Options{})
	if _, err := d.DeletePrefix(ctx, "events/o/s"); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("DeletePrefix: ожидалась ErrNotSupported, получено %v", err)
	}
}
