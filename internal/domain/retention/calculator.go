// Пакет retention: вычисление окон аренды и хранения мероприятия.
//
// Сложение выполняется календарными днями (time.AddDate) в заданной
// временной зоне, а не кратными 24 часам: переходы на летнее время и
// границы месяцев сохраняют день и время на часах пользователя.
package retention

import (
	"fmt"
	"time"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

// Calculator: RetentionCalculator.
type Calculator struct {
	loc *time.Location
}

// New создаёт калькулятор для временной зоны loc (nil → UTC).
func New(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Compute возвращает окна мероприятия для плана, начиная с now:
//
//	RentalEnd        = now + plan.RentalDays
//	StorageExpiresAt = RentalEnd + plan.StorageDays
//
// Нулевые окна допустимы и означают немедленное истечение.
func (c *Calculator) Compute(plan model.Plan, now time.Time) (model.Windows, error) {
	if plan.RentalDays < 0 {
		return model.Windows{}, fmt.Errorf("план %s: отрицательная длительность аренды %d", plan.ID, plan.RentalDays)
	}
	if plan.StorageDays < 0 {
		return model.Windows{}, fmt.Errorf("план %s: отрицательная длительность хранения %d", plan.ID, plan.StorageDays)
	}

	start := now.In(c.loc)
	rentalEnd := AddDays(start, plan.RentalDays)
	storageExpiresAt := AddDays(rentalEnd, plan.StorageDays)

	return model.Windows{
		RentalStart:      start,
		RentalEnd:        rentalEnd,
		StorageExpiresAt: storageExpiresAt,
	}, nil
}

// AddDays прибавляет days календарных дней в зоне t.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}
