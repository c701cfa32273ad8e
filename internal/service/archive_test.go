package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
	"github.com/slymnaltan/frame-app/retention/internal/repository"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
	"github.com/slymnaltan/frame-app/retention/internal/storage/localfs"
	"github.com/slymnaltan/frame-app/retention/internal/storage/storagetest"
)

func newArchiveEnv(t *testing.T, b storage.Backend) (*repository.MemoryEventRepository, *storage.Driver, *ArchiveService) {
	t.Helper()
	repo := repository.NewMemoryEventRepository()
	driver := storage.New(b, storage.Options{PageSize: 2})
	e := &model.Event{
		ID: "ev-1", OwnerID: "o", Name: "n", UploadSlug: "arch000001",
		StoragePrefix:    model.StoragePrefixFor("o", "arch000001"),
		RentalEnd:        time.Now().Add(time.Hour),
		StorageExpiresAt: time.Now().Add(2 * time.Hour),
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return repo, driver, NewArchiveService(repo, driver, discardLogger())
}

func TestArchive_Contents(t *testing.T) {
	b := storagetest.New()
	_, driver, svc := newArchiveEnv(t, b)
	ctx := context.Background()

	files := map[string]string{
		"1-a.jpg": "first photo",
		"2-b.mp4": strings.Repeat("video", 100),
		"3-c.png": "third",
	}
	for name, body := range files {
		if _, err := driver.Put(ctx, "events/o/arch000001/"+name, strings.NewReader(body), int64(len(body)), "image/jpeg"); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	// Соседнее мероприятие не попадает в архив
	b.Seed("events/o/arch0000012", 2)

	var buf bytes.Buffer
	if err := svc.Archive(ctx, "ev-1", &buf); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		if f.Method != zip.Deflate {
			t.Errorf("%s: метод сжатия %d", f.Name, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != files[f.Name] {
			t.Errorf("%s: содержимое не совпадает", f.Name)
		}
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "1-a.jpg,2-b.mp4,3-c.png" {
		t.Errorf("файлы архива: %v", names)
	}
}

func TestArchive_NoContent(t *testing.T) {
	_, _, svc := newArchiveEnv(t, storagetest.New())

	err := svc.Archive(context.Background(), "ev-1", io.Discard)
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("ожидалась ErrNoContent, получено %v", err)
	}
}

func TestArchive_FilesDeleted(t *testing.T) {
	b := storagetest.New()
	b.Seed("events/o/arch000001", 1)
	repo, _, svc := newArchiveEnv(t, b)
	_ = repo.MarkFilesDeleted(context.Background(), "ev-1")

	if _, err := svc.Prepare(context.Background(), "ev-1"); !errors.Is(err, ErrFilesDeleted) {
		t.Errorf("ожидалась ErrFilesDeleted, получено %v", err)
	}
}

func TestArchive_UnknownEvent(t *testing.T) {
	_, _, svc := newArchiveEnv(t, storagetest.New())

	if _, err := svc.Prepare(context.Background(), "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("ожидалась ErrEventNotFound, получено %v", err)
	}
}

// Локальный backend не умеет листинг: ошибка отдаётся как есть.
func TestArchive_LocalNotSupported(t *testing.T) {
	local, err := localfs.New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("localfs.New: %v", err)
	}
	_, _, svc := newArchiveEnv(t, local)

	if _, err := svc.Prepare(context.Background(), "ev-1"); !errors.Is(err, storage.ErrNotSupported) {
		t.Errorf("ожидалась ErrNotSupported, получено %v", err)
	}
}
