// Пакет storagetest: in-memory backend хранилища для тестов.
// Считает вызовы и позволяет внедрять ошибки по префиксу.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// Backend: потокобезопасный in-memory storage.Backend.
type Backend struct {
	mu      sync.Mutex
	objects map[string]stored

	// ListErr: ошибка листинга для префиксов из этого набора
	ListErr map[string]error
	// DeleteErr: ошибка удаления, если первый ключ пакета лежит под префиксом
	DeleteErr map[string]error
	// Foreign: лишние ключи, которые листинг вернёт для префикса
	Foreign map[string][]string

	ListCalls   int
	DeleteCalls int
	// DeletedBatches: размеры пакетов удаления по порядку
	DeletedBatches []int
}

type stored struct {
	data        []byte
	contentType string
}

// New создаёт пустой Backend.
func New() *Backend {
	return &Backend{
		objects:   make(map[string]stored),
		ListErr:   make(map[string]error),
		DeleteErr: make(map[string]error),
		Foreign:   make(map[string][]string),
	}
}

// Name возвращает "memory".
func (b *Backend) Name() string { return "memory" }

// Seed добавляет n объектов под prefix.
func (b *Backend) Seed(prefix string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range n {
		b.objects[prefix+"/file-"+strconv.Itoa(i)+".jpg"] = stored{data: []byte("x"), contentType: "image/jpeg"}
	}
}

// Count возвращает количество объектов под prefix.
func (b *Backend) Count(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for k := range b.objects {
		if strings.HasPrefix(k, prefix+"/") {
			n++
		}
	}
	return n
}

// Has проверяет наличие ключа.
func (b *Backend) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

// Put сохраняет объект.
func (b *Backend) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = stored{data: data, contentType: contentType}
	return "memory://" + key, nil
}

// Get возвращает объект или storage.ErrNotFound.
func (b *Backend) Get(_ context.Context, key string) (*storage.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

// ListPage возвращает отсортированные ключи под prefix, курсор: смещение.
func (b *Backend) ListPage(ctx context.Context, prefix, cursor string, limit int) ([]storage.ObjectInfo, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ListCalls++

	if err, ok := b.ListErr[prefix]; ok {
		return nil, "", err
	}

	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix+"/") {
			keys = append(keys, k)
		}
	}
	keys = append(keys, b.Foreign[prefix]...)
	sort.Strings(keys)

	offset := 0
	if cursor != "" {
		var err error
		if offset, err = strconv.Atoi(cursor); err != nil {
			return nil, "", err
		}
	}
	if offset >= len(keys) {
		return nil, "", nil
	}

	end := min(offset+limit, len(keys))
	items := make([]storage.ObjectInfo, 0, end-offset)
	for _, k := range keys[offset:end] {
		items = append(items, storage.ObjectInfo{Key: k, Size: int64(len(b.objects[k].data))})
	}

	next := ""
	if end < len(keys) {
		next = strconv.Itoa(end)
	}
	return items, next, nil
}

// DeleteKeys удаляет ключи пакетом.
func (b *Backend) DeleteKeys(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.DeleteCalls++

	for prefix, err := range b.DeleteErr {
		if len(keys) > 0 && strings.HasPrefix(keys[0], prefix+"/") {
			return err
		}
	}

	for _, k := range keys {
		delete(b.objects, k)
	}
	b.DeletedBatches = append(b.DeletedBatches, len(keys))
	return nil
}
