package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "ежедневно в 4:00", schedule: "0 4 * * *", wantRunning: true},
		{name: "каждый час", schedule: "0 * * * *", wantRunning: true},
		{name: "пустое расписание", schedule: "", wantRunning: false},
		{name: "некорректное расписание", schedule: "каждый день", wantError: true},
		{name: "шесть полей", schedule: "0 0 4 * * *", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newReaperEnv()
			s := NewScheduler(env.reaper(nil, 1), tt.schedule, time.UTC, false, discardLogger())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start: ошибка %v, ожидалась ошибка: %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning: хотели %v, получили %v", tt.wantRunning, s.IsRunning())
			}

			if tt.wantRunning {
				next := s.NextRun()
				if next == nil {
					t.Fatal("NextRun: nil для запущенного планировщика")
				}
				if !next.After(time.Now()) {
					t.Errorf("NextRun в прошлом: %v", next)
				}
			}
			s.Stop()
		})
	}
}

// Следующий запуск вычисляется в часовом поясе сервиса.
func TestScheduler_NextRunInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Skipf("нет tzdata: %v", err)
	}

	env := newReaperEnv()
	s := NewScheduler(env.reaper(nil, 1), "0 4 * * *", loc, false, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	next := s.NextRun()
	if next == nil {
		t.Fatal("NextRun: nil")
	}
	local := next.In(loc)
	if local.Hour() != 4 || local.Minute() != 0 {
		t.Errorf("NextRun: хотели 04:00 по %s, получили %v", loc, local)
	}
}

func TestScheduler_StopOnContextCancel(t *testing.T) {
	env := newReaperEnv()
	s := NewScheduler(env.reaper(nil, 1), "0 4 * * *", time.UTC, false, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for s.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.IsRunning() {
		t.Error("планировщик должен остановиться после отмены контекста")
	}
}

func TestScheduler_RunOnStart(t *testing.T) {
	env := newReaperEnv()
	env.addEvent(t, "boot", 2*time.Hour, 2)
	r := env.reaper(nil, 1)

	s := NewScheduler(r, "0 4 * * *", time.UTC, true, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	r.Wait()

	last := r.LastResult()
	if last == nil || last.CleanedCount != 1 {
		t.Errorf("запуск при старте: %+v", last)
	}
}

// blockingDeleter держит удаление до отмены контекста.
type blockingDeleter struct {
	started chan struct{}
	once    sync.Once
}

func (d *blockingDeleter) DeletePrefix(ctx context.Context, _ string) (storage.DeleteResult, error) {
	d.once.Do(func() { close(d.started) })
	<-ctx.Done()
	return storage.DeleteResult{}, ctx.Err()
}

func TestScheduler_StopInterruptsRunningJob(t *testing.T) {
	env := newReaperEnv()
	ev := env.addEvent(t, "slow", 2*time.Hour, 2)

	d := &blockingDeleter{started: make(chan struct{})}
	r := NewReaper(env.repo, d, ReaperConfig{
		SafetyBuffer: time.Hour,
		Workers:      1,
		EventTimeout: time.Minute,
	}, discardLogger())
	r.now = func() time.Time { return env.now }

	s := NewScheduler(r, "@every 1s", time.UTC, false, discardLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-d.started:
	case <-time.After(5 * time.Second):
		s.Stop()
		t.Fatal("плановый запуск не начался")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		r.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop ждёт плановый запуск до таймаута удаления")
	}

	if env.isMarked(t, ev.ID) {
		t.Error("прерванное удаление не должно отмечать мероприятие")
	}
	if last := r.LastResult(); last == nil || last.FailedCount != 1 {
		t.Errorf("прерванный запуск: %+v", last)
	}
}
