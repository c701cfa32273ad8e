package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/slymnaltan/frame-app/retention/internal/api/errors"
	"github.com/slymnaltan/frame-app/retention/internal/service"
	"github.com/slymnaltan/frame-app/retention/internal/storage"
)

// writeServiceError переводит ошибку сервиса в ответ API.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		apierrors.NotFound(w, "Мероприятие не найдено")
	case errors.Is(err, service.ErrInvalidEvent):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrRentalEnded):
		apierrors.RentalEnded(w, "Загрузка файлов для мероприятия закрыта")
	case errors.Is(err, service.ErrFilesDeleted):
		apierrors.FilesDeleted(w, "Файлы мероприятия удалены по истечении срока хранения")
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrNoContent):
		apierrors.NoContent(w, "У мероприятия нет файлов")
	case errors.Is(err, storage.ErrNotSupported):
		apierrors.NotSupported(w, "Операция не поддерживается backend'ом хранилища")
	case errors.Is(err, storage.ErrInvalidKey):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, storage.ErrWriteFailure),
		errors.Is(err, storage.ErrReadFailure),
		errors.Is(err, storage.ErrDeleteFailure):
		logger.Error("Ошибка хранилища", slog.String("error", err.Error()))
		apierrors.StorageError(w, "Ошибка объектного хранилища")
	default:
		logger.Error("Внутренняя ошибка", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
