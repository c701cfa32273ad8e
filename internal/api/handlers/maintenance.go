// maintenance.go: обработчики /api/v1/maintenance/cleanup.
// Ручной запуск очистки и результат последнего запуска.
package handlers

import (
	"net/http"

	apierrors "github.com/slymnaltan/frame-app/retention/internal/api/errors"
	"github.com/slymnaltan/frame-app/retention/internal/service"
)

// CleanupRunner: интерфейс запуска очистки.
// Позволяет тестировать handler без полного Reaper.
type CleanupRunner interface {
	// Trigger запускает очистку в фоне; false: запуск не принят
	Trigger() bool
	// LastResult возвращает результат последнего запуска (nil: запусков не было)
	LastResult() *service.RunResult
}

// MaintenanceHandler: обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	cleaner CleanupRunner
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(cleaner CleanupRunner) *MaintenanceHandler {
	return &MaintenanceHandler{cleaner: cleaner}
}

// TriggerCleanup обрабатывает POST /api/v1/maintenance/cleanup.
// Не ждёт завершения: результат доступен через GET.
func (h *MaintenanceHandler) TriggerCleanup(w http.ResponseWriter, _ *http.Request) {
	if !h.cleaner.Trigger() {
		apierrors.CleanupRejected(w, "Сервис останавливается, запуск очистки не принят")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// LastCleanup обрабатывает GET /api/v1/maintenance/cleanup.
func (h *MaintenanceHandler) LastCleanup(w http.ResponseWriter, _ *http.Request) {
	result := h.cleaner.LastResult()
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "never_run"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
