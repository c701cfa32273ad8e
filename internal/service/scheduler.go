// scheduler.go: запуск RetentionReaper по cron-расписанию.
// Расписание в стандартном 5-польном формате, в часовом поясе сервиса.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler запускает очистку по расписанию.
type Scheduler struct {
	reaper     *Reaper
	schedule   string
	runOnStart bool
	cron       *cron.Cron
	mu         sync.Mutex
	logger     *slog.Logger
	running    bool
	// cancelJobs прерывает плановый запуск, идущий в момент Stop
	cancelJobs context.CancelFunc
}

// NewScheduler создаёт планировщик. Пустое расписание отключает запуск по cron.
func NewScheduler(reaper *Reaper, schedule string, loc *time.Location, runOnStart bool, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		reaper:     reaper,
		schedule:   schedule,
		runOnStart: runOnStart,
		// Пока предыдущий запуск не завершён, следующий тик пропускается
		cron:   cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With(slog.String("component", "cleanup_scheduler")),
	}
}

// Start регистрирует задачу и запускает планировщик.
// Остановка: по отмене ctx или через Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if s.schedule == "" {
		s.logger.Info("Расписание очистки не задано, планировщик отключён")
		if s.runOnStart {
			s.reaper.Trigger()
		}
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("некорректное расписание очистки %q: %w", s.schedule, err)
	}
	jobCtx, cancelJobs := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.logger.Info("Плановый запуск очистки")
		s.reaper.RunOnce(jobCtx)
	}); err != nil {
		cancelJobs()
		return fmt.Errorf("ошибка регистрации задачи очистки: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.cancelJobs = cancelJobs

	s.logger.Info("Планировщик очистки запущен",
		slog.String("schedule", s.schedule),
		slog.Bool("run_on_start", s.runOnStart),
	)

	if s.runOnStart {
		s.reaper.Trigger()
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop останавливает планировщик. Текущий плановый запуск прерывается
// отменой контекста; Stop ждёт его выхода.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancelJobs()
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Планировщик очистки остановлен")
}

// IsRunning возвращает true, если планировщик запущен.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun возвращает время следующего планового запуска (nil, если нет задачи).
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
