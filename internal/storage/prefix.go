package storage

import (
	"fmt"
	"strings"
)

// minDeleteSegments: минимальная глубина префикса удаления.
// events/{owner}/{slug} имеет глубину 3, но владелец целиком (events/{owner})
// тоже допускается: это уже не корень хранилища.
const minDeleteSegments = 2

// ValidateDeletePrefix проверяет префикс перед рекурсивным удалением
// и возвращает нормализованную форму без ведущего и завершающего "/".
//
// Отклоняются: пустая строка, строка из пробелов, "/", "." и любой
// префикс из одного сегмента, сегменты "." и "..", обратный слэш, NUL.
func ValidateDeletePrefix(prefix string) (string, error) {
	p := strings.TrimSpace(prefix)
	if p == "" {
		return "", fmt.Errorf("%w: пустой префикс", ErrUnsafeDelete)
	}
	if strings.ContainsAny(p, "\\\x00") {
		return "", fmt.Errorf("%w: недопустимые символы в префиксе %q", ErrUnsafeDelete, prefix)
	}

	trimmed := strings.Trim(p, "/")
	if trimmed == "" || trimmed == "." {
		return "", fmt.Errorf("%w: префикс %q указывает на корень хранилища", ErrUnsafeDelete, prefix)
	}

	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: некорректный сегмент в префиксе %q", ErrUnsafeDelete, prefix)
		}
	}
	if len(segments) < minDeleteSegments {
		return "", fmt.Errorf("%w: префикс %q слишком короткий", ErrUnsafeDelete, prefix)
	}

	return trimmed, nil
}

// normalizeListPrefix нормализует префикс листинга.
// В отличие от удаления, листинг одного сегмента допустим.
func normalizeListPrefix(prefix string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: префикс листинга обязателен", ErrInvalidKey)
	}
	if err := checkSegments(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ValidateKey проверяет ключ объекта: непустой, без ведущего и
// завершающего "/", без сегментов "." и "..".
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: пустой ключ", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: ключ %q не должен начинаться или заканчиваться на /", ErrInvalidKey, key)
	}
	return checkSegments(key)
}

func checkSegments(key string) error {
	if strings.ContainsAny(key, "\\\x00") {
		return fmt.Errorf("%w: недопустимые символы в %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: некорректный сегмент в %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// under возвращает true, если key лежит строго внутри dir.
func under(key, dir string) bool {
	return strings.HasPrefix(key, dir+"/") && len(key) > len(dir)+1
}
