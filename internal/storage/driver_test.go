package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
	"github.com/slymnaltan/frame-app/retention/internal/storage/storagetest"
)

const prefix = "events/owner-1/abc123"

func newDriver(b storage.Backend) *storage.Driver {
	return storage.New(b, storage.Options{Timeout: 5 * time.Second})
}

func TestValidateDeletePrefix(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		want    string
		wantErr bool
	}{
		{"пустой", "", "", true},
		{"пробелы", "   ", "", true},
		{"корень", "/", "", true},
		{"слэши", "///", "", true},
		{"точка", ".", "", true},
		{"один сегмент", "events", "", true},
		{"один сегмент со слэшами", "/events/", "", true},
		{"родитель", "events/../x", "", true},
		{"пустой сегмент", "events//x", "", true},
		{"обратный слэш", "events\\x", "", true},
		{"норма", "events/o/s", "events/o/s", false},
		{"норма со слэшами", "/events/o/s/", "events/o/s", false},
		{"два сегмента", "events/o", "events/o", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storage.ValidateDeletePrefix(tt.prefix)
			if tt.wantErr {
				if !errors.Is(err, storage.ErrUnsafeDelete) {
					t.Fatalf("ожидалась ErrUnsafeDelete, получено %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("хотели %q, получили %q", tt.want, got)
			}
		})
	}
}

// Небезопасный префикс отклоняется до обращения к backend'у.
func TestDeletePrefix_UnsafeNeverReachesBackend(t *testing.T) {
	b := storagetest.New()
	b.Seed("events/x", 3)
	d := newDriver(b)

	for _, p := range []string{"", " ", "/", "events", "events/.."} {
		_, err := d.DeletePrefix(context.Background(), p)
		if !errors.Is(err, storage.ErrUnsafeDelete) {
			t.Errorf("%q: ожидалась ErrUnsafeDelete, получено %v", p, err)
		}
	}
	if b.ListCalls != 0 || b.DeleteCalls != 0 {
		t.Errorf("backend вызван: list=%d delete=%d", b.ListCalls, b.DeleteCalls)
	}
	if b.Count("events/x") != 3 {
		t.Error("объекты не должны удаляться")
	}
}

func TestDeletePrefix_EmptyPrefixNoDeleteCall(t *testing.T) {
	b := storagetest.New()
	d := newDriver(b)

	res, err := d.DeletePrefix(context.Background(), prefix)
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if res.DeletedCount != 0 {
		t.Errorf("DeletedCount: хотели 0, получили %d", res.DeletedCount)
	}
	if b.DeleteCalls != 0 {
		t.Errorf("удаление не должно вызываться, вызовов: %d", b.DeleteCalls)
	}
}

// Повторное удаление того же префикса: N, затем 0.
func TestDeletePrefix_Idempotent(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 7)
	b.Seed("events/owner-1/other", 2)
	d := newDriver(b)

	res, err := d.DeletePrefix(context.Background(), prefix)
	if err != nil {
		t.Fatalf("первый вызов: %v", err)
	}
	if res.DeletedCount != 7 {
		t.Errorf("первый вызов: хотели 7, получили %d", res.DeletedCount)
	}

	res, err = d.DeletePrefix(context.Background(), prefix)
	if err != nil {
		t.Fatalf("второй вызов: %v", err)
	}
	if res.DeletedCount != 0 {
		t.Errorf("второй вызов: хотели 0, получили %d", res.DeletedCount)
	}

	if b.Count("events/owner-1/other") != 2 {
		t.Error("соседний префикс не должен затрагиваться")
	}
}

// Префикс abc не должен задевать abc123.
func TestDeletePrefix_SiblingWithSharedStart(t *testing.T) {
	b := storagetest.New()
	b.Seed("events/o/abc", 1)
	b.Seed("events/o/abc123", 2)
	d := newDriver(b)

	res, err := d.DeletePrefix(context.Background(), "events/o/abc")
	if err != nil {
		t.Fatal(err)
	}
	if res.DeletedCount != 1 || b.Count("events/o/abc123") != 2 {
		t.Errorf("удалено %d, осталось у соседа %d", res.DeletedCount, b.Count("events/o/abc123"))
	}
}

func TestDeletePrefix_Batching(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 2500)
	d := newDriver(b)

	res, err := d.DeletePrefix(context.Background(), prefix)
	if err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if res.DeletedCount != 2500 {
		t.Errorf("DeletedCount: хотели 2500, получили %d", res.DeletedCount)
	}
	want := []int{1000, 1000, 500}
	if len(b.DeletedBatches) != len(want) {
		t.Fatalf("пакеты: хотели %v, получили %v", want, b.DeletedBatches)
	}
	for i := range want {
		if b.DeletedBatches[i] != want[i] {
			t.Errorf("пакет %d: хотели %d, получили %d", i, want[i], b.DeletedBatches[i])
		}
	}
	// 3 страницы по 1000
	if b.ListCalls != 3 {
		t.Errorf("ListCalls: хотели 3, получили %d", b.ListCalls)
	}
}

func TestDeletePrefix_BackendFailure(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 4)
	cause := errors.New("503 service unavailable")
	b.DeleteErr[prefix] = cause
	d := newDriver(b)

	res, err := d.DeletePrefix(context.Background(), prefix)
	if !errors.Is(err, storage.ErrDeleteFailure) {
		t.Fatalf("ожидалась ErrDeleteFailure, получено %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("причина должна сохраняться: %v", err)
	}
	var de *storage.DeleteError
	if !errors.As(err, &de) {
		t.Fatalf("ожидалась *DeleteError, получено %T", err)
	}
	if de.Attempted != 4 || de.Deleted != 0 || de.Prefix != prefix {
		t.Errorf("поля ошибки: %+v", de)
	}
	if res.DeletedCount != 0 {
		t.Errorf("частичный успех не должен возвращаться: %d", res.DeletedCount)
	}
}

func TestDeletePrefix_ListFailureIsDeleteFailure(t *testing.T) {
	b := storagetest.New()
	b.ListErr[prefix] = context.DeadlineExceeded
	d := newDriver(b)

	_, err := d.DeletePrefix(context.Background(), prefix)
	if !errors.Is(err, storage.ErrDeleteFailure) {
		t.Fatalf("ожидалась ErrDeleteFailure, получено %v", err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Error("таймаут не должен становиться NotFound")
	}
}

// Ключ вне префикса в листинге: ошибка программы, ничего не удаляется.
func TestDeletePrefix_ForeignKeyRejected(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 2)
	b.Foreign[prefix] = []string{"events/owner-2/zzz/file.jpg"}
	d := newDriver(b)

	_, err := d.DeletePrefix(context.Background(), prefix)
	if !errors.Is(err, storage.ErrUnsafeDelete) {
		t.Fatalf("ожидалась ErrUnsafeDelete, получено %v", err)
	}
	if b.DeleteCalls != 0 {
		t.Errorf("удаление не должно вызываться, вызовов: %d", b.DeleteCalls)
	}
}

type unsupportedBackend struct{ *storagetest.Backend }

func (unsupportedBackend) ListPage(context.Context, string, string, int) ([]storage.ObjectInfo, string, error) {
	return nil, "", storage.ErrNotSupported
}

func TestDeletePrefix_NotSupported(t *testing.T) {
	d := newDriver(unsupportedBackend{storagetest.New()})

	_, err := d.DeletePrefix(context.Background(), prefix)
	if !errors.Is(err, storage.ErrNotSupported) {
		t.Fatalf("ожидалась ErrNotSupported, получено %v", err)
	}
	var de *storage.DeleteError
	if errors.As(err, &de) {
		t.Error("NotSupported не должна оборачиваться в DeleteError")
	}
}

func TestPutGet(t *testing.T) {
	b := storagetest.New()
	d := newDriver(b)
	ctx := context.Background()

	desc, err := d.Put(ctx, prefix+"/a.jpg", strings.NewReader("first"), 5, "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if desc.Key != prefix+"/a.jpg" || desc.Backend != "memory" {
		t.Errorf("дескриптор: %+v", desc)
	}

	// Перезапись по ключу
	if _, err := d.Put(ctx, prefix+"/a.jpg", strings.NewReader("second"), 6, "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	obj, err := d.Get(ctx, prefix+"/a.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatal(err)
	}
	if err := obj.Body.Close(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("second")) {
		t.Errorf("содержимое: %q", data)
	}

	if _, err := d.Get(ctx, prefix+"/missing.jpg"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

func TestPut_InvalidKey(t *testing.T) {
	d := newDriver(storagetest.New())

	for _, key := range []string{"", "/abs", "dir/", "a/../b", "a//b"} {
		_, err := d.Put(context.Background(), key, strings.NewReader("x"), 1, "")
		if !errors.Is(err, storage.ErrInvalidKey) {
			t.Errorf("%q: ожидалась ErrInvalidKey, получено %v", key, err)
		}
	}
}

func TestList_Pagination(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 25)
	d := storage.New(b, storage.Options{PageSize: 10})

	n := 0
	for obj, err := range d.List(context.Background(), prefix) {
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if !strings.HasPrefix(obj.Key, prefix+"/") {
			t.Errorf("ключ вне префикса: %s", obj.Key)
		}
		n++
	}
	if n != 25 {
		t.Errorf("хотели 25 объектов, получили %d", n)
	}
	if b.ListCalls != 3 {
		t.Errorf("ListCalls: хотели 3, получили %d", b.ListCalls)
	}
}

func TestList_EarlyBreak(t *testing.T) {
	b := storagetest.New()
	b.Seed(prefix, 25)
	d := storage.New(b, storage.Options{PageSize: 10})

	for range d.List(context.Background(), prefix) {
		break
	}
	if b.ListCalls != 1 {
		t.Errorf("ListCalls: хотели 1, получили %d", b.ListCalls)
	}
}

func TestList_EmptyPrefixRejected(t *testing.T) {
	d := newDriver(storagetest.New())

	for _, err := range d.List(context.Background(), " / ") {
		if !errors.Is(err, storage.ErrInvalidKey) {
			t.Errorf("ожидалась ErrInvalidKey, получено %v", err)
		}
	}
}
