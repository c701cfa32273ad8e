// health.go: обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/config"
)

// statusFail: строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// ReadinessChecker: проверка готовности зависимости.
// Возвращает статус ("ok", "fail") и сообщение.
type ReadinessChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	store   ReadinessChecker
	backend string
}

// NewHealthHandler создаёт обработчик health endpoints.
// store: проверка хранилища мероприятий, backend: имя backend'а хранилища.
func NewHealthHandler(store ReadinessChecker, backend string) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		store:   store,
		backend: backend,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "frame-retention",
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет хранилище мероприятий; backend хранилища только сообщается.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	storeCheck := map[string]any{"status": "ok", "message": "Проверка не настроена"}
	if h.store != nil {
		status, message := h.store.CheckReady()
		storeCheck = map[string]any{"status": status, "message": message}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "frame-retention",
		"checks": map[string]any{
			"event_store": storeCheck,
			"storage": map[string]any{
				"status":  "ok",
				"backend": h.backend,
			},
		},
	})
}

// writeJSON пишет JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
