// reaper.go: RetentionReaper: удаление файлов мероприятий с истёкшим сроком хранения.
//
// Один запуск:
//  1. Поиск кандидатов: storage_expires_at < now - буфер, файлы не удалены
//  2. Для каждого кандидата: удаление префикса → отметка isFilesDeleted
//
// Ошибка одного мероприятия не прерывает запуск: мероприятие остаётся
// кандидатом и повторяется в следующем запуске. Запуск неуспешен только
// при ошибке поиска кандидатов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/slymnaltan/frame-app/retention/internal/domain/cleanup"
	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
	"github.com/slymnaltan/frame-app/retention/internal/repository"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// Prometheus метрики очистки
var (
	cleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_cleanup_runs_total",
		Help: "Общее количество запусков очистки",
	}, []string{"result"})

	cleanupEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_cleanup_events_total",
		Help: "Количество обработанных мероприятий по исходу",
	}, []string{"outcome"})

	cleanupObjectsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_cleanup_objects_deleted_total",
		Help: "Количество объектов, удалённых очисткой",
	})

	cleanupAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_cleanup_alerts_total",
		Help: "Ошибки конфигурации, обнаруженные очисткой",
	}, []string{"kind"})

	cleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "frame_cleanup_duration_seconds",
		Help:    "Длительность запуска очистки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	})
)

// ExpiredEventStore: часть EventStore, нужная очистке.
type ExpiredEventStore interface {
	FindExpiredUncleaned(ctx context.Context, threshold time.Time, after *model.ExpiryCursor, limit int) ([]model.ExpiredEvent, error)
	MarkFilesDeleted(ctx context.Context, id string) error
}

// PrefixDeleter: рекурсивное удаление префикса хранилища (storage.Driver).
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (storage.DeleteResult, error)
}

// RunResult: результат одного запуска очистки.
type RunResult struct {
	Success        bool          `json:"success"`
	CleanedCount   int           `json:"cleaned_count"`
	FailedCount    int           `json:"failed_count"`
	SkippedCount   int           `json:"skipped_count"`
	CandidateCount int           `json:"candidate_count"`
	Phase          cleanup.Phase `json:"phase"`
	Message        string        `json:"message"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Duration       time.Duration `json:"duration_ns"`
	// Failures: мероприятия, оставшиеся неочищенными в этом запуске
	Failures []EventFailure `json:"failures,omitempty"`
}

// EventFailure: неудачная очистка одного мероприятия.
type EventFailure struct {
	EventID string `json:"event_id"`
	Prefix  string `json:"prefix"`
	// Stage: состояние, из которого автомат перешёл в failed
	Stage cleanup.State `json:"stage"`
	Error string        `json:"error"`
}

// newEventFailure собирает запись об ошибке из истории автомата.
func newEventFailure(ev model.ExpiredEvent, sm *cleanup.StateMachine) EventFailure {
	f := EventFailure{EventID: ev.ID, Prefix: ev.StoragePrefix, Stage: sm.Current()}
	if h := sm.History(); len(h) > 0 && h[len(h)-1].To == cleanup.StateFailed {
		f.Stage = h[len(h)-1].From
	}
	if err := sm.Err(); err != nil {
		f.Error = err.Error()
	}
	return f
}

// ReaperConfig: параметры очистки.
type ReaperConfig struct {
	// SafetyBuffer: отсрочка после storageExpiresAt
	SafetyBuffer time.Duration
	// Workers: количество параллельно обрабатываемых мероприятий
	Workers int
	// BatchLimit: размер страницы кандидатов; запуск обходит все страницы
	BatchLimit int
	// EventTimeout: таймаут удаления файлов одного мероприятия
	EventTimeout time.Duration
}

type outcome string

const (
	outcomeCleaned outcome = "cleaned"
	outcomeFailed  outcome = "failed"
	outcomeSkipped outcome = "skipped"
)

// Reaper: RetentionReaper.
type Reaper struct {
	store  ExpiredEventStore
	driver PrefixDeleter
	cfg    ReaperConfig
	logger *slog.Logger
	now    func() time.Time

	// claims: мероприятия, обрабатываемые сейчас любым запуском
	claimsMu sync.Mutex
	claims   map[string]struct{}

	resultMu   sync.RWMutex
	lastResult *RunResult

	// фоновые запуски Trigger
	bgMu     sync.Mutex
	bgWG     sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
	closed   bool
}

// NewReaper создаёт сервис очистки.
func NewReaper(store ExpiredEventStore, driver PrefixDeleter, cfg ReaperConfig, logger *slog.Logger) *Reaper {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.BatchLimit < 1 {
		cfg.BatchLimit = 1000
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = storage.DefaultTimeout
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Reaper{
		store:    store,
		driver:   driver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "reaper")),
		now:      time.Now,
		claims:   make(map[string]struct{}),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// RunOnce выполняет один запуск очистки. Потокобезопасен: параллельные
// запуски не обрабатывают одно мероприятие дважды.
func (r *Reaper) RunOnce(ctx context.Context) *RunResult {
	start := r.now().UTC()
	result := &RunResult{StartedAt: start, Phase: cleanup.PhaseScanning}
	threshold := start.Add(-r.cfg.SafetyBuffer)

	r.logger.Info("Очистка: поиск кандидатов",
		slog.Time("threshold", threshold),
	)

	var after *model.ExpiryCursor
	for page := 1; ; page++ {
		candidates, err := r.store.FindExpiredUncleaned(ctx, threshold, after, r.cfg.BatchLimit)
		if err != nil {
			result.Phase = cleanup.PhaseFailed
			result.Message = fmt.Sprintf("ошибка поиска кандидатов: %v", err)
			r.logger.Error("Очистка: ошибка поиска кандидатов",
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			return r.finish(result)
		}
		if len(candidates) == 0 {
			break
		}

		result.Phase = cleanup.PhaseProcessing
		result.CandidateCount += len(candidates)
		r.processPage(ctx, candidates, result)

		// Короткая страница: кандидатов после неё нет
		if len(candidates) < r.cfg.BatchLimit {
			break
		}
		after = candidates[len(candidates)-1].Cursor()

		if err := ctx.Err(); err != nil {
			result.Phase = cleanup.PhaseFailed
			result.Message = fmt.Sprintf("очистка прервана: %v", err)
			r.logger.Warn("Очистка прервана", slog.String("error", err.Error()))
			return r.finish(result)
		}
	}

	if result.CandidateCount == 0 {
		result.Success = true
		result.Phase = cleanup.PhaseNoCandidates
		result.Message = "нет мероприятий для очистки"
		return r.finish(result)
	}

	result.Success = true
	result.Phase = cleanup.PhaseDone
	result.Message = fmt.Sprintf("очищено %d, ошибок %d, пропущено %d из %d",
		result.CleanedCount, result.FailedCount, result.SkippedCount, result.CandidateCount)
	return r.finish(result)
}

// processPage обрабатывает страницу кандидатов не более чем Workers параллельно.
func (r *Reaper) processPage(ctx context.Context, candidates []model.ExpiredEvent, result *RunResult) {
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for _, ev := range candidates {
		g.Go(func() error {
			out, sm := r.processEvent(ctx, ev)

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeCleaned:
				result.CleanedCount++
			case outcomeFailed:
				result.FailedCount++
				result.Failures = append(result.Failures, newEventFailure(ev, sm))
			case outcomeSkipped:
				result.SkippedCount++
			}
			return nil
		})
	}
	_ = g.Wait()
}

// processEvent удаляет файлы одного мероприятия и сохраняет отметку.
// Возвращает исход и автомат мероприятия (nil, если оно занято другим запуском).
func (r *Reaper) processEvent(ctx context.Context, ev model.ExpiredEvent) (outcome, *cleanup.StateMachine) {
	log := r.logger.With(
		slog.String("event_id", ev.ID),
		slog.String("prefix", ev.StoragePrefix),
	)

	if !r.claim(ev.ID) {
		log.Debug("Очистка: мероприятие обрабатывается другим запуском")
		cleanupEventsTotal.WithLabelValues(string(outcomeSkipped)).Inc()
		return outcomeSkipped, nil
	}
	defer r.release(ev.ID)

	sm := cleanup.NewStateMachine(ev.ID)
	out := r.cleanEvent(ctx, ev, sm, log)
	if out == outcomeFailed {
		log.Warn("Очистка: мероприятие не очищено",
			slog.Any("history", sm.History()),
		)
	}
	cleanupEventsTotal.WithLabelValues(string(out)).Inc()
	return out, sm
}

func (r *Reaper) cleanEvent(ctx context.Context, ev model.ExpiredEvent, sm *cleanup.StateMachine, log *slog.Logger) outcome {
	if err := sm.TransitionTo(cleanup.StateDeleting); err != nil {
		log.Error("Очистка: недопустимый переход", slog.String("error", err.Error()))
		return outcomeFailed
	}

	deleteCtx, cancel := context.WithTimeout(ctx, r.cfg.EventTimeout)
	res, err := r.driver.DeletePrefix(deleteCtx, ev.StoragePrefix)
	cancel()
	if err != nil {
		if ferr := sm.Fail(err); ferr != nil {
			log.Error("Очистка: недопустимый переход", slog.String("error", ferr.Error()))
		}
		switch {
		case errors.Is(err, storage.ErrUnsafeDelete):
			cleanupAlertsTotal.WithLabelValues("unsafe_prefix").Inc()
			log.Error("Очистка: АЛЕРТ, небезопасный префикс отклонён",
				slog.String("error", err.Error()),
			)
		case errors.Is(err, storage.ErrNotSupported):
			cleanupAlertsTotal.WithLabelValues("not_supported").Inc()
			log.Error("Очистка: АЛЕРТ, backend хранилища не поддерживает удаление префикса",
				slog.String("error", err.Error()),
			)
		default:
			log.Error("Очистка: ошибка удаления файлов, повтор в следующем запуске",
				slog.String("error", err.Error()),
			)
		}
		return outcomeFailed
	}
	cleanupObjectsDeletedTotal.Add(float64(res.DeletedCount))

	if err := sm.TransitionTo(cleanup.StateMarking); err != nil {
		log.Error("Очистка: недопустимый переход", slog.String("error", err.Error()))
		return outcomeFailed
	}

	if err := r.store.MarkFilesDeleted(ctx, ev.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyMarked):
			log.Info("Очистка: мероприятие уже отмечено другим запуском")
			if terr := sm.TransitionTo(cleanup.StateDone); terr != nil {
				log.Error("Очистка: недопустимый переход", slog.String("error", terr.Error()))
			}
			return outcomeSkipped
		case errors.Is(err, repository.ErrNotFound):
			log.Warn("Очистка: мероприятие удалено до отметки")
			return outcomeSkipped
		}
		if ferr := sm.Fail(err); ferr != nil {
			log.Error("Очистка: недопустимый переход", slog.String("error", ferr.Error()))
		}
		log.Error("Очистка: файлы удалены, отметка не сохранена",
			slog.Int("deleted", res.DeletedCount),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}

	if err := sm.TransitionTo(cleanup.StateDone); err != nil {
		log.Error("Очистка: недопустимый переход", slog.String("error", err.Error()))
		return outcomeFailed
	}
	log.Info("Очистка: файлы мероприятия удалены",
		slog.Int("deleted", res.DeletedCount),
	)
	return outcomeCleaned
}

func (r *Reaper) claim(id string) bool {
	r.claimsMu.Lock()
	defer r.claimsMu.Unlock()
	if _, busy := r.claims[id]; busy {
		return false
	}
	r.claims[id] = struct{}{}
	return true
}

func (r *Reaper) release(id string) {
	r.claimsMu.Lock()
	delete(r.claims, id)
	r.claimsMu.Unlock()
}

// finish фиксирует результат, метрики и лог.
func (r *Reaper) finish(result *RunResult) *RunResult {
	result.CompletedAt = r.now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	label := "success"
	if !result.Success {
		label = "failure"
	}
	cleanupRunsTotal.WithLabelValues(label).Inc()
	cleanupDurationSeconds.Observe(result.Duration.Seconds())

	level := slog.LevelInfo
	if !result.Success {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "Очистка завершена",
		slog.Bool("success", result.Success),
		slog.String("phase", string(result.Phase)),
		slog.Int("candidates", result.CandidateCount),
		slog.Int("cleaned", result.CleanedCount),
		slog.Int("failed", result.FailedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Duration("duration", result.Duration),
	)

	stored := *result
	r.resultMu.Lock()
	r.lastResult = &stored
	r.resultMu.Unlock()

	return result
}

// LastResult возвращает копию результата последнего запуска (nil, если запусков не было).
func (r *Reaper) LastResult() *RunResult {
	r.resultMu.RLock()
	defer r.resultMu.RUnlock()
	if r.lastResult == nil {
		return nil
	}
	res := *r.lastResult
	res.Failures = append([]EventFailure(nil), r.lastResult.Failures...)
	return &res
}

// Trigger запускает очистку в фоне, не дожидаясь результата.
// Запуск не зависит от контекста вызывающего кода (HTTP-запроса).
// Возвращает false после Close.
func (r *Reaper) Trigger() bool {
	r.bgMu.Lock()
	defer r.bgMu.Unlock()
	if r.closed {
		return false
	}

	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		r.RunOnce(r.bgCtx)
	}()

	r.logger.Info("Очистка запущена вручную")
	return true
}

// Wait ожидает завершения фоновых запусков.
func (r *Reaper) Wait() {
	r.bgWG.Wait()
}

// Close запрещает новые фоновые запуски, прерывает текущие и ждёт их завершения.
func (r *Reaper) Close() {
	r.bgMu.Lock()
	r.closed = true
	r.bgMu.Unlock()

	r.bgCancel()
	r.bgWG.Wait()
}
