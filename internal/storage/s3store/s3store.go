// Пакет s3store: backend хранилища поверх S3-совместимого API (aws-sdk-go).
// Поддерживает собственный endpoint и path-style адресацию для MinIO и аналогов.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// Config: параметры подключения к S3.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint: собственный endpoint (пустой → AWS)
	Endpoint string
}

// Store: S3 backend.
type Store struct {
	client s3iface.S3API
	bucket string
	region string
	// endpoint: без завершающего "/", пустой для AWS
	endpoint string
}

// New создаёт Store с сессией AWS из статических ключей.
func New(cfg Config) (*Store, error) {
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("создание сессии AWS: %w", err)
	}

	return NewWithClient(s3.New(sess), cfg), nil
}

// NewWithClient создаёт Store поверх готового клиента.
func NewWithClient(client s3iface.S3API, cfg Config) *Store {
	return &Store{
		client:   client,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
	}
}

// Name возвращает "s3".
func (s *Store) Name() string { return "s3" }

// Endpoint возвращает URL API для проверки доступности.
func (s *Store) Endpoint() string {
	if s.endpoint != "" {
		return s.endpoint
	}
	return fmt.Sprintf("https://s3.%s.amazonaws.com", s.region)
}

// Put загружает объект одним запросом PutObject.
// Не-seekable тело буферизуется: SDK подписывает запрос по содержимому.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("чтение тела объекта: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   rs,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObjectWithContext(ctx, input); err != nil {
		return "", fmt.Errorf("s3 PutObject %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

// Get скачивает объект.
func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("s3 GetObject %s: %w", key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return &storage.Object{
		Body:        out.Body,
		ContentType: aws.StringValue(out.ContentType),
		Size:        size,
	}, nil
}

// ListPage: одна страница ListObjectsV2 под prefix + "/".
func (s *Store) ListPage(ctx context.Context, prefix, cursor string, limit int) ([]storage.ObjectInfo, string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix + "/"),
		MaxKeys: aws.Int64(int64(limit)),
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := s.client.ListObjectsV2WithContext(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("s3 ListObjectsV2 %s: %w", prefix, err)
	}

	items := make([]storage.ObjectInfo, 0, len(out.Contents))
	for _, obj := range out.Contents {
		items = append(items, storage.ObjectInfo{
			Key:  aws.StringValue(obj.Key),
			Size: aws.Int64Value(obj.Size),
		})
	}

	next := ""
	if aws.BoolValue(out.IsTruncated) {
		next = aws.StringValue(out.NextContinuationToken)
	}
	return items, next, nil
}

// DeleteKeys удаляет пакет ключей через DeleteObjects в режиме Quiet.
// Ошибка хотя бы одного ключа делает пакет неуспешным.
func (s *Store) DeleteKeys(ctx context.Context, keys []string) error {
	objects := make([]*s3.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &s3.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 DeleteObjects: %w", err)
	}

	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return fmt.Errorf("s3 DeleteObjects: не удалено %d из %d ключей, первый %s: %s %s",
			len(out.Errors), len(keys),
			aws.StringValue(first.Key), aws.StringValue(first.Code), aws.StringValue(first.Message))
	}
	return nil
}

func (s *Store) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

// isNotFound распознаёт отсутствие объекта: код NoSuchKey или HTTP 404.
func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
