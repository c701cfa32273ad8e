// Пакет supabase: backend managed object storage (Supabase Storage REST API).
//
// Формат запросов:
//
//	POST   {url}/storage/v1/object/{bucket}/{key}       загрузка (x-upsert: true)
//	GET    {url}/storage/v1/object/{bucket}/{key}       скачивание
//	POST   {url}/storage/v1/object/list/{bucket}        листинг (limit/offset)
//	DELETE {url}/storage/v1/object/{bucket}             удаление {"prefixes": [...]}
//
// Авторизация: service role key в заголовках Authorization и apikey.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// Config: параметры подключения.
type Config struct {
	URL        string
	ServiceKey string
	Bucket     string
	// Timeout: таймаут HTTP-клиента (0 → без таймаута, контекст вызова решает)
	Timeout time.Duration
}

// Store: Supabase Storage backend.
type Store struct {
	httpClient *http.Client
	baseURL    string
	key        string
	bucket     string
}

// New создаёт Store.
func New(cfg Config) *Store {
	return NewWithClient(&http.Client{
		Timeout:   cfg.Timeout,
		Transport: &http.Transport{MaxIdleConnsPerHost: 10},
	}, cfg)
}

// NewWithClient создаёт Store поверх готового HTTP-клиента.
func NewWithClient(client *http.Client, cfg Config) *Store {
	return &Store{
		httpClient: client,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		key:        cfg.ServiceKey,
		bucket:     cfg.Bucket,
	}
}

// Name возвращает "supabase".
func (s *Store) Name() string { return "supabase" }

// Endpoint возвращает базовый URL Storage API для проверки доступности.
func (s *Store) Endpoint() string {
	return s.baseURL + "/storage/v1"
}

// Put загружает объект с перезаписью.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	req, err := s.newRequest(ctx, http.MethodPost, s.objectPath(key), body)
	if err != nil {
		return "", err
	}
	if size >= 0 {
		req.ContentLength = size
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "", fmt.Errorf("загрузка %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", s.responseError(resp, "загрузка "+key)
	}
	return s.PublicURL(key), nil
}

// Get скачивает объект. Тело ответа передаётся вызывающему коду (streaming).
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.objectPath(key), http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return nil, fmt.Errorf("скачивание %s: %w", key, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, s.responseError(resp, "скачивание "+key)
	}

	return &storage.Object{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// listRequest: тело запроса листинга.
type listRequest struct {
	Prefix string   `json:"prefix"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
	SortBy sortSpec `json:"sortBy"`
}

type sortSpec struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// listEntry: элемент ответа листинга. Имя относительно prefix,
// у вложенных директорий id равен null.
type listEntry struct {
	Name     string  `json:"name"`
	ID       *string `json:"id"`
	Metadata *struct {
		Size int64 `json:"size"`
	} `json:"metadata"`
}

// maxFolderDepth: глубина обхода вложенных директорий под префиксом.
const maxFolderDepth = 8

// ListPage: одна страница листинга. Курсор: смещение. Возвращаются
// полные ключи prefix/name. API отдаёт один уровень, поэтому вложенные
// директории страницы обходятся целиком и их объекты входят в ту же страницу.
func (s *Store) ListPage(ctx context.Context, prefix, cursor string, limit int) ([]storage.ObjectInfo, string, error) {
	return s.listPage(ctx, prefix, cursor, limit, 0)
}

func (s *Store) listPage(ctx context.Context, prefix, cursor string, limit, depth int) ([]storage.ObjectInfo, string, error) {
	offset := 0
	if cursor != "" {
		var err error
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return nil, "", fmt.Errorf("некорректный курсор листинга %q", cursor)
		}
	}

	payload, err := json.Marshal(listRequest{
		Prefix: prefix,
		Limit:  limit,
		Offset: offset,
		SortBy: sortSpec{Column: "name", Order: "asc"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("сериализация запроса листинга: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, "/storage/v1/object/list/"+url.PathEscape(s.bucket), bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return nil, "", fmt.Errorf("листинг %s: %w", prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", s.responseError(resp, "листинг "+prefix)
	}

	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, "", fmt.Errorf("декодирование ответа листинга: %w", err)
	}

	items := make([]storage.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if e.ID == nil {
			nested, err := s.listFolder(ctx, prefix+"/"+e.Name, limit, depth+1)
			if err != nil {
				return nil, "", err
			}
			items = append(items, nested...)
			continue
		}
		info := storage.ObjectInfo{Key: prefix + "/" + e.Name}
		if e.Metadata != nil {
			info.Size = e.Metadata.Size
		}
		items = append(items, info)
	}

	next := ""
	if len(entries) == limit {
		next = strconv.Itoa(offset + len(entries))
	}
	return items, next, nil
}

// listFolder собирает все объекты вложенной директории.
func (s *Store) listFolder(ctx context.Context, folder string, limit, depth int) ([]storage.ObjectInfo, error) {
	if depth > maxFolderDepth {
		return nil, fmt.Errorf("листинг %s: вложенность директорий больше %d", folder, maxFolderDepth)
	}

	var all []storage.ObjectInfo
	cursor := ""
	for {
		items, next, err := s.listPage(ctx, folder, cursor, limit, depth)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" || next == cursor {
			return all, nil
		}
		cursor = next
	}
}

// DeleteKeys удаляет объекты по полным путям внутри bucket'а.
func (s *Store) DeleteKeys(ctx context.Context, keys []string) error {
	payload, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return fmt.Errorf("сериализация запроса удаления: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodDelete, "/storage/v1/object/"+url.PathEscape(s.bucket), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return fmt.Errorf("удаление %d объектов: %w", len(keys), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.responseError(resp, "удаление")
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// PublicURL возвращает публичный URL объекта.
func (s *Store) PublicURL(key string) string {
	return s.baseURL + "/storage/v1/object/public/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

func (s *Store) objectPath(key string) string {
	return "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

func (s *Store) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	return req, nil
}

// apiError: тело ошибки Storage API. statusCode приходит строкой.
type apiError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// responseError приводит неуспешный ответ к ошибке. 404 в статусе
// или в теле ответа → storage.ErrNotFound.
func (s *Store) responseError(resp *http.Response, op string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var body apiError
	_ = json.Unmarshal(data, &body)

	if resp.StatusCode == http.StatusNotFound || body.StatusCode == "404" {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, op)
	}

	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	return fmt.Errorf("%s: HTTP %d: %s", op, resp.StatusCode, msg)
}

// escapeKey экранирует сегменты ключа, сохраняя разделители "/".
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
