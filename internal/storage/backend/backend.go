// Пакет backend: выбор backend'а хранилища при старте.
//
// Приоритет фиксирован: managed storage (Supabase) → S3 → локальная ФС.
// Частично настроенный backend пропускается с предупреждением в логе.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/slymnaltan/frame-app/retention/internal/config"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
	"github.com/slymnaltan/frame-app/retention/internal/storage/localfs"
	"github.com/slymnaltan/frame-app/retention/internal/storage/s3store"
	"github.com/slymnaltan/frame-app/retention/internal/storage/supabase"
)

// Selection: выбранный backend.
type Selection struct {
	Driver *storage.Driver
	// Endpoint: HTTP endpoint для проверки доступности (пустой для local)
	Endpoint string
}

// Open выбирает backend по конфигурации и создаёт Driver.
func Open(cfg *config.Config, logger *slog.Logger) (*Selection, error) {
	log := logger.With(slog.String("component", "storage_backend"))

	b, endpoint, err := pick(cfg, log)
	if err != nil {
		return nil, err
	}

	log.Info("Backend хранилища выбран",
		slog.String("backend", b.Name()),
		slog.Duration("timeout", cfg.StorageTimeout),
	)

	return &Selection{
		Driver: storage.New(b, storage.Options{
			Timeout:  cfg.StorageTimeout,
			PageSize: cfg.StoragePageSize,
		}),
		Endpoint: endpoint,
	}, nil
}

func pick(cfg *config.Config, log *slog.Logger) (storage.Backend, string, error) {
	switch {
	case cfg.Supabase.Complete():
		s := supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			ServiceKey: cfg.Supabase.ServiceKey,
			Bucket:     cfg.Supabase.Bucket,
		})
		return s, s.Endpoint(), nil
	case cfg.Supabase.Partial():
		log.Warn("Supabase настроен частично, backend пропущен",
			slog.Bool("url", cfg.Supabase.URL != ""),
			slog.Bool("service_key", cfg.Supabase.ServiceKey != ""),
			slog.Bool("bucket", cfg.Supabase.Bucket != ""),
		)
	}

	switch {
	case cfg.S3.Complete():
		s, err := s3store.New(s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Endpoint:        cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, "", fmt.Errorf("инициализация S3: %w", err)
		}
		return s, s.Endpoint(), nil
	case cfg.S3.Partial():
		log.Warn("S3 настроен частично, backend пропущен",
			slog.Bool("bucket", cfg.S3.Bucket != ""),
			slog.Bool("region", cfg.S3.Region != ""),
			slog.Bool("access_key", cfg.S3.AccessKeyID != ""),
			slog.Bool("secret_key", cfg.S3.SecretAccessKey != ""),
		)
	}

	s, err := localfs.New(cfg.LocalStorageRoot, cfg.LocalPublicURL)
	if err != nil {
		return nil, "", fmt.Errorf("инициализация локального хранилища: %w", err)
	}
	log.Warn("Используется локальное хранилище: очистка по сроку хранения не поддерживается",
		slog.String("root", s.Root()),
	)
	return s, "", nil
}
