// Пакет config: загрузка и валидация конфигурации сервиса хранения
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые реализации EventStore.
const (
	EventStorePostgres = "postgres"
	EventStoreMongo    = "mongo"
	EventStoreMemory   = "memory"
)

// SupabaseConfig: managed object storage.
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
}

// Complete возвращает true, если заданы все параметры.
func (c SupabaseConfig) Complete() bool {
	return c.URL != "" && c.ServiceKey != "" && c.Bucket != ""
}

// Partial возвращает true, если задана часть параметров.
func (c SupabaseConfig) Partial() bool {
	return !c.Complete() && (c.URL != "" || c.ServiceKey != "" || c.Bucket != "")
}

// S3Config: S3-совместимое хранилище.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint: собственный endpoint (MinIO и аналоги), пустой → AWS
	Endpoint string
}

// Complete возвращает true, если заданы все обязательные параметры.
func (c S3Config) Complete() bool {
	return c.Bucket != "" && c.Region != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Partial возвращает true, если задана часть параметров.
func (c S3Config) Partial() bool {
	return !c.Complete() && (c.Bucket != "" || c.AccessKeyID != "" || c.SecretAccessKey != "" || c.Endpoint != "")
}

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Идентификатор сервиса для topologymetrics (пусто: имя владельца пода из hostname)
	ServiceID string

	// Реализация EventStore: postgres, mongo, memory
	EventStore string

	// Параметры PostgreSQL (обязательны для postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Параметры MongoDB (обязательны для mongo)
	MongoURI      string
	MongoDatabase string

	// Backend'ы хранилища. Выбор по приоритету: Supabase → S3 → local
	Supabase         SupabaseConfig
	S3               S3Config
	LocalStorageRoot string
	// Базовый URL раздачи локальных файлов (опционально)
	LocalPublicURL string
	// Таймаут одного вызова хранилища
	StorageTimeout time.Duration
	// Размер страницы листинга (1..1000)
	StoragePageSize int

	// Cron-выражение ежедневной очистки; пустое: cron отключён (FA_CLEANUP_SCHEDULE=off)
	CleanupSchedule string
	// Буфер безопасности после storageExpiresAt
	CleanupSafetyBuffer time.Duration
	// Количество параллельных обработчиков мероприятий
	CleanupWorkers int
	// Максимум кандидатов за один запуск
	CleanupBatchLimit int
	// Запустить очистку сразу после старта
	CleanupRunOnStart bool
	// Временная зона расчёта окон и cron-расписания
	Timezone *time.Location

	// Путь к YAML-файлу тарифов (опционально)
	PlansFile string
	// Базовый URL страницы загрузки гостей
	UploadBaseURL string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Кэш мероприятий по slug для загрузки
	UploadCacheTTL  time.Duration
	UploadCacheSize int

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// FA_PORT: порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FA_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FA_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FA_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// FA_LOG_LEVEL: уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FA_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FA_LOG_LEVEL: %w", err)
	}

	// FA_LOG_FORMAT: формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FA_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FA_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.ServiceID = getEnvDefault("FA_SERVICE_ID", "")

	// FA_EVENT_STORE: реализация хранилища мероприятий (по умолчанию postgres)
	cfg.EventStore = getEnvDefault("FA_EVENT_STORE", EventStorePostgres)
	switch cfg.EventStore {
	case EventStorePostgres:
		if err := cfg.loadPostgres(); err != nil {
			return nil, err
		}
	case EventStoreMongo:
		if cfg.MongoURI, err = getEnvRequired("FA_MONGO_URI"); err != nil {
			return nil, err
		}
		cfg.MongoDatabase = getEnvDefault("FA_MONGO_DATABASE", "frame")
	case EventStoreMemory:
	default:
		return nil, fmt.Errorf("FA_EVENT_STORE: недопустимое значение %q, допустимые: postgres, mongo, memory", cfg.EventStore)
	}

	// Учётные данные backend'ов: имена переменных уже используются при развёртывании
	cfg.Supabase = SupabaseConfig{
		URL:        os.Getenv("SUPABASE_URL"),
		ServiceKey: getEnvFirst("SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_KEY"),
		Bucket:     os.Getenv("SUPABASE_BUCKET"),
	}
	cfg.S3 = S3Config{
		Bucket:          getEnvFirst("AWS_S3_BUCKET", "S3_BUCKET"),
		Region:          getEnvFirst("AWS_REGION", "S3_REGION"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Endpoint:        os.Getenv("S3_ENDPOINT"),
	}
	cfg.LocalStorageRoot = getEnvDefault("LOCAL_STORAGE_ROOT", "./uploads")
	cfg.LocalPublicURL = getEnvDefault("FA_LOCAL_PUBLIC_URL", "")

	// FA_STORAGE_TIMEOUT: таймаут вызова хранилища (по умолчанию 30s)
	cfg.StorageTimeout, err = getEnvDuration("FA_STORAGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FA_STORAGE_TIMEOUT: %w", err)
	}
	if cfg.StorageTimeout <= 0 {
		return nil, fmt.Errorf("FA_STORAGE_TIMEOUT: значение должно быть положительным")
	}

	// FA_STORAGE_PAGE_SIZE: размер страницы листинга (по умолчанию 1000)
	cfg.StoragePageSize, err = getEnvInt("FA_STORAGE_PAGE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("FA_STORAGE_PAGE_SIZE: %w", err)
	}
	if cfg.StoragePageSize < 1 || cfg.StoragePageSize > 1000 {
		return nil, fmt.Errorf("FA_STORAGE_PAGE_SIZE: значение %d вне допустимого диапазона 1-1000", cfg.StoragePageSize)
	}

	// FA_CLEANUP_SCHEDULE: cron-выражение, ежедневно в 04:00; off отключает cron
	cfg.CleanupSchedule = parseSchedule(getEnvDefault("FA_CLEANUP_SCHEDULE", "0 4 * * *"))

	// FA_CLEANUP_SAFETY_BUFFER: буфер после истечения хранения (по умолчанию 1h)
	cfg.CleanupSafetyBuffer, err = getEnvDuration("FA_CLEANUP_SAFETY_BUFFER", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FA_CLEANUP_SAFETY_BUFFER: %w", err)
	}
	if cfg.CleanupSafetyBuffer < 0 {
		return nil, fmt.Errorf("FA_CLEANUP_SAFETY_BUFFER: значение не может быть отрицательным")
	}

	// FA_CLEANUP_WORKERS: параллельность очистки (по умолчанию 4)
	cfg.CleanupWorkers, err = getEnvInt("FA_CLEANUP_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("FA_CLEANUP_WORKERS: %w", err)
	}
	if cfg.CleanupWorkers < 1 {
		return nil, fmt.Errorf("FA_CLEANUP_WORKERS: значение должно быть положительным")
	}

	// FA_CLEANUP_BATCH_LIMIT: кандидатов за запуск (по умолчанию 1000)
	cfg.CleanupBatchLimit, err = getEnvInt("FA_CLEANUP_BATCH_LIMIT", 1000)
	if err != nil {
		return nil, fmt.Errorf("FA_CLEANUP_BATCH_LIMIT: %w", err)
	}
	if cfg.CleanupBatchLimit < 1 {
		return nil, fmt.Errorf("FA_CLEANUP_BATCH_LIMIT: значение должно быть положительным")
	}

	cfg.CleanupRunOnStart, err = getEnvBool("FA_CLEANUP_RUN_ON_START", false)
	if err != nil {
		return nil, fmt.Errorf("FA_CLEANUP_RUN_ON_START: %w", err)
	}

	// FA_TIMEZONE: временная зона (по умолчанию UTC)
	tz := getEnvDefault("FA_TIMEZONE", "UTC")
	cfg.Timezone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("FA_TIMEZONE: неизвестная временная зона %q: %w", tz, err)
	}

	cfg.PlansFile = getEnvDefault("FA_PLANS_FILE", "")
	cfg.UploadBaseURL = strings.TrimRight(getEnvDefault("FA_UPLOAD_BASE_URL", "http://localhost:3000/upload"), "/")

	// FA_MAX_FILE_SIZE_MB: максимальный размер файла (по умолчанию 50 MB)
	maxMB, err := getEnvInt("FA_MAX_FILE_SIZE_MB", 50)
	if err != nil {
		return nil, fmt.Errorf("FA_MAX_FILE_SIZE_MB: %w", err)
	}
	if maxMB <= 0 {
		return nil, fmt.Errorf("FA_MAX_FILE_SIZE_MB: значение должно быть положительным")
	}
	cfg.MaxFileSize = int64(maxMB) << 20

	cfg.UploadCacheTTL, err = getEnvDuration("FA_UPLOAD_CACHE_TTL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FA_UPLOAD_CACHE_TTL: %w", err)
	}
	cfg.UploadCacheSize, err = getEnvInt("FA_UPLOAD_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("FA_UPLOAD_CACHE_SIZE: %w", err)
	}
	if cfg.UploadCacheSize < 1 {
		return nil, fmt.Errorf("FA_UPLOAD_CACHE_SIZE: значение должно быть положительным")
	}

	// FA_DEPHEALTH_CHECK_INTERVAL: интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FA_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("FA_DEPHEALTH_GROUP", "frame")

	// FA_SHUTDOWN_TIMEOUT: таймаут graceful shutdown (по умолчанию 10s)
	cfg.ShutdownTimeout, err = getEnvDuration("FA_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FA_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

func (cfg *Config) loadPostgres() error {
	var err error

	if cfg.DBHost, err = getEnvRequired("FA_DB_HOST"); err != nil {
		return err
	}
	if cfg.DBPort, err = getEnvInt("FA_DB_PORT", 5432); err != nil {
		return fmt.Errorf("FA_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("FA_DB_NAME"); err != nil {
		return err
	}
	if cfg.DBUser, err = getEnvRequired("FA_DB_USER"); err != nil {
		return err
	}
	if cfg.DBPassword, err = getEnvRequired("FA_DB_PASSWORD"); err != nil {
		return err
	}

	cfg.DBSSLMode = getEnvDefault("FA_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[cfg.DBSSLMode] {
		return fmt.Errorf("FA_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL для golang-migrate и dephealth.
func (c *Config) DatabaseURL(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// scheduleDisabled: значения FA_CLEANUP_SCHEDULE, отключающие запуск по cron.
var scheduleDisabled = map[string]bool{"off": true, "disabled": true, "none": true, "-": true}

// parseSchedule возвращает пустую строку для отключённого расписания.
func parseSchedule(val string) string {
	val = strings.TrimSpace(val)
	if scheduleDisabled[strings.ToLower(val)] {
		return ""
	}
	return val
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvFirst возвращает первое непустое значение из списка переменных.
func getEnvFirst(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает логическое значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
