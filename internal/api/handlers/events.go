// events.go: HTTP handlers мероприятий: создание, загрузка гостем, архив.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/slymnaltan/frame-app/retention/internal/api/errors"
	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
	"github.com/slymnaltan/frame-app/retention/internal/service"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// EventCreator: создание мероприятия.
type EventCreator interface {
	Create(ctx context.Context, p service.CreateEventParams) (*model.Event, error)
}

// Uploader: загрузка файла гостем.
type Uploader interface {
	Upload(ctx context.Context, p service.UploadParams) (*storage.Descriptor, error)
}

// Archiver: подготовка архива мероприятия.
type Archiver interface {
	Prepare(ctx context.Context, eventID string) (*service.Archive, error)
}

// EventsHandler: обработчик endpoints мероприятий.
type EventsHandler struct {
	events   EventCreator
	uploader Uploader
	archiver Archiver
	// multipartMemory: объём multipart-формы в памяти, остальное во временных файлах
	multipartMemory int64
	logger          *slog.Logger
}

// NewEventsHandler создаёт обработчик мероприятий.
func NewEventsHandler(events EventCreator, uploader Uploader, archiver Archiver, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		events:          events,
		uploader:        uploader,
		archiver:        archiver,
		multipartMemory: 32 << 20,
		logger:          logger.With(slog.String("component", "events_handler")),
	}
}

// createEventRequest: тело POST /api/v1/events.
type createEventRequest struct {
	OwnerID     string     `json:"owner_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	EventDate   *time.Time `json:"event_date"`
	Venue       string     `json:"venue"`
	Plan        string     `json:"plan"`
}

// CreateEvent обрабатывает POST /api/v1/events.
func (h *EventsHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректное тело запроса: %s", err.Error()))
		return
	}

	e, err := h.events.Create(r.Context(), service.CreateEventParams{
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		EventDate:   req.EventDate,
		Venue:       req.Venue,
		PlanID:      req.Plan,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UploadFile обрабатывает POST /api/v1/uploads/{slug}.
// Multipart form: file (обязательно).
func (h *EventsHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := r.ParseMultipartForm(h.multipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	desc, err := h.uploader.Upload(r.Context(), service.UploadParams{
		Slug:        slug,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

// DownloadArchive обрабатывает GET /api/v1/events/{id}/archive.
// Ошибки до начала передачи отдаются в формате API; после начала
// передачи поток обрывается и ошибка только логируется.
func (h *EventsHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	archive, err := h.archiver.Prepare(r.Context(), eventID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archive.Name}))
	w.WriteHeader(http.StatusOK)

	if err := archive.Stream(r.Context(), w); err != nil {
		h.logger.Error("Ошибка передачи архива",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}
