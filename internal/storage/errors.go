// Пакет storage: единый контракт хранилища файлов (StorageDriver)
// поверх взаимозаменяемых backend'ов: managed object storage (Supabase),
// S3-совместимое хранилище и локальная файловая система.
//
// Ошибки SDK конкретных backend'ов приводятся к таксономии этого пакета,
// поэтому вызывающий код (RetentionReaper, загрузка) не зависит от backend'а.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Таксономия ошибок хранилища.
var (
	// ErrUnsafeDelete: префикс может совпасть с корнем хранилища.
	// Ошибка программы или конфигурации, никогда не подавляется.
	ErrUnsafeDelete = errors.New("небезопасное удаление отклонено")
	// ErrNotFound: объект отсутствует (ожидаемая ошибка).
	ErrNotFound = errors.New("объект не найден")
	// ErrWriteFailure: ошибка записи (I/O, авторизация, таймаут), повторяемая.
	ErrWriteFailure = errors.New("ошибка записи в хранилище")
	// ErrReadFailure: ошибка чтения или листинга, повторяемая.
	ErrReadFailure = errors.New("ошибка чтения из хранилища")
	// ErrDeleteFailure: состояние удаления неизвестно, повторить позже.
	ErrDeleteFailure = errors.New("ошибка удаления из хранилища")
	// ErrNotSupported: backend не поддерживает операцию.
	ErrNotSupported = errors.New("операция не поддерживается backend'ом")
	// ErrInvalidKey: некорректный ключ или префикс.
	ErrInvalidKey = errors.New("некорректный ключ хранилища")
)

// DeleteError: ошибка удаления префикса. Соответствует ErrDeleteFailure.
// Вызывающий код обязан считать удаление незавершённым.
type DeleteError struct {
	Prefix string
	// Attempted: количество ключей, которые пытались удалить
	Attempted int
	// Deleted: количество ключей в пакетах, подтверждённых до ошибки
	Deleted int
	Err     error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("удаление префикса %s: попытка %d ключей, подтверждено %d: %v",
		e.Prefix, e.Attempted, e.Deleted, e.Err)
}

// Unwrap позволяет errors.Is находить и ErrDeleteFailure, и исходную причину.
func (e *DeleteError) Unwrap() []error {
	return []error{ErrDeleteFailure, e.Err}
}

// classify приводит ошибку backend'а к таксономии.
// Ошибки таксономии проходят без изменений, остальные оборачиваются
// в failure операции. Таймаут никогда не становится ErrNotFound.
func classify(failure, err error) error {
	if err == nil {
		return nil
	}
	if isTaxonomy(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: таймаут: %w", failure, err)
	}
	return fmt.Errorf("%w: %w", failure, err)
}

func isTaxonomy(err error) bool {
	for _, target := range []error{
		ErrUnsafeDelete, ErrNotFound, ErrWriteFailure, ErrReadFailure,
		ErrDeleteFailure, ErrNotSupported, ErrInvalidKey,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
