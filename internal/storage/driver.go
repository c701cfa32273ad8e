package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MaxPageSize: максимальный размер страницы листинга.
	MaxPageSize = 1000
	// MaxDeleteBatch: максимальное число ключей в одном пакетном удалении.
	MaxDeleteBatch = 1000
	// DefaultTimeout: таймаут одного вызова backend'а по умолчанию.
	DefaultTimeout = 30 * time.Second
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frame_storage_operations_total",
			Help: "Общее количество операций с хранилищем",
		},
		[]string{"backend", "operation", "result"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frame_storage_operation_duration_seconds",
			Help:    "Длительность операций с хранилищем в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Backend: примитивы конкретного хранилища.
//
// Контракт ListPage: prefix нормализован (без завершающего "/"), backend
// возвращает ПОЛНЫЕ ключи объектов под prefix + "/". Пустой next означает
// последнюю страницу. DeleteKeys принимает полные ключи.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (url string, err error)
	Get(ctx context.Context, key string) (*Object, error)
	ListPage(ctx context.Context, prefix, cursor string, limit int) (items []ObjectInfo, next string, err error)
	DeleteKeys(ctx context.Context, keys []string) error
}

// Descriptor: описание записанного объекта.
type Descriptor struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	Backend string `json:"backend"`
}

// Object: открытый для чтения объект. Вызывающий код обязан закрыть Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	// Size: размер в байтах, -1 если неизвестен
	Size int64
}

// ObjectInfo: элемент листинга.
type ObjectInfo struct {
	// Key: полный ключ объекта
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// DeleteResult: результат удаления префикса.
type DeleteResult struct {
	DeletedCount int `json:"deleted_count"`
}

// Options: параметры Driver.
type Options struct {
	// Timeout: таймаут одного вызова backend'а (0 → DefaultTimeout)
	Timeout time.Duration
	// PageSize: размер страницы листинга (0 или > MaxPageSize → MaxPageSize)
	PageSize int
	// DeleteBatch: размер пакета удаления (0 или > MaxDeleteBatch → MaxDeleteBatch)
	DeleteBatch int
}

// Driver: StorageDriver. Единственный тип хранилища, от которого зависит
// остальной сервис. Обеспечивает одинаковый контракт для всех backend'ов.
type Driver struct {
	backend  Backend
	timeout  time.Duration
	pageSize int
	batch    int
}

// New создаёт Driver поверх backend'а.
func New(backend Backend, opts Options) *Driver {
	d := &Driver{
		backend:  backend,
		timeout:  opts.Timeout,
		pageSize: opts.PageSize,
		batch:    opts.DeleteBatch,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.pageSize <= 0 || d.pageSize > MaxPageSize {
		d.pageSize = MaxPageSize
	}
	if d.batch <= 0 || d.batch > MaxDeleteBatch {
		d.batch = MaxDeleteBatch
	}
	return d
}

// Backend возвращает имя выбранного backend'а.
func (d *Driver) Backend() string {
	return d.backend.Name()
}

// Put записывает объект по ключу, перезаписывая существующий.
func (d *Driver) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*Descriptor, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	url, err := d.backend.Put(ctx, key, body, size, contentType)
	d.observe("put", start, err)
	if err != nil {
		return nil, classify(ErrWriteFailure, err)
	}

	return &Descriptor{Key: key, URL: url, Backend: d.backend.Name()}, nil
}

// Get открывает объект на чтение. Таймаут покрывает чтение тела
// и освобождается при Body.Close().
func (d *Driver) Get(ctx context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)

	start := time.Now()
	obj, err := d.backend.Get(ctx, key)
	d.observe("get", start, err)
	if err != nil {
		cancel()
		return nil, classify(ErrReadFailure, err)
	}

	obj.Body = &cancelOnClose{ReadCloser: obj.Body, cancel: cancel}
	return obj, nil
}

// List лениво перебирает объекты под prefix, постранично.
// При ошибке последний элемент последовательности несёт ошибку.
func (d *Driver) List(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error] {
	return func(yield func(ObjectInfo, error) bool) {
		dir, err := normalizeListPrefix(prefix)
		if err != nil {
			yield(ObjectInfo{}, err)
			return
		}

		cursor := ""
		for {
			items, next, err := d.listPage(ctx, dir, cursor)
			if err != nil {
				yield(ObjectInfo{}, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			if next == cursor {
				yield(ObjectInfo{}, fmt.Errorf("%w: backend вернул тот же курсор %q", ErrReadFailure, next))
				return
			}
			cursor = next
		}
	}
}

func (d *Driver) listPage(ctx context.Context, dir, cursor string) ([]ObjectInfo, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	items, next, err := d.backend.ListPage(ctx, dir, cursor, d.pageSize)
	d.observe("list", start, err)
	if err != nil {
		return nil, "", classify(ErrReadFailure, err)
	}
	return items, next, nil
}

// DeletePrefix рекурсивно удаляет все объекты под prefix.
//
// Префикс проверяется до любого обращения к backend'у. Пустой префикс
// в хранилище: успех с нулевым счётчиком без вызова удаления. Любая
// ошибка пакета → *DeleteError: частичный успех не выдаётся за полный.
func (d *Driver) DeletePrefix(ctx context.Context, prefix string) (DeleteResult, error) {
	dir, err := ValidateDeletePrefix(prefix)
	if err != nil {
		return DeleteResult{}, err
	}

	var keys []string
	for obj, err := range d.List(ctx, dir) {
		if err != nil {
			if errors.Is(err, ErrNotSupported) {
				return DeleteResult{}, err
			}
			return DeleteResult{}, &DeleteError{Prefix: dir, Err: err}
		}
		if !under(obj.Key, dir) {
			return DeleteResult{}, fmt.Errorf("%w: ключ %q вне префикса %q", ErrUnsafeDelete, obj.Key, dir)
		}
		keys = append(keys, obj.Key)
	}

	if len(keys) == 0 {
		return DeleteResult{}, nil
	}

	deleted := 0
	for start := 0; start < len(keys); start += d.batch {
		end := min(start+d.batch, len(keys))
		if err := d.deleteKeys(ctx, keys[start:end]); err != nil {
			if errors.Is(err, ErrNotSupported) {
				return DeleteResult{}, err
			}
			return DeleteResult{}, &DeleteError{
				Prefix:    dir,
				Attempted: len(keys),
				Deleted:   deleted,
				Err:       err,
			}
		}
		deleted = end
	}

	return DeleteResult{DeletedCount: deleted}, nil
}

func (d *Driver) deleteKeys(ctx context.Context, keys []string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.backend.DeleteKeys(ctx, keys)
	d.observe("delete", start, err)
	return classify(ErrDeleteFailure, err)
}

func (d *Driver) observe(op string, start time.Time, err error) {
	name := d.backend.Name()
	operationDuration.WithLabelValues(name, op).Observe(time.Since(start).Seconds())

	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrNotSupported):
		result = "not_supported"
	default:
		result = "error"
	}
	operationsTotal.WithLabelValues(name, op, result).Inc()
}

// cancelOnClose освобождает контекст вызова при закрытии тела.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
