package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Money: денежная сумма в минимальных единицах (куруш, центы).
type Money int64

// String форматирует сумму с двумя знаками после точки: 4999 → "49.99".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// ParseMoney разбирает неотрицательную десятичную сумму: "49.99", "0", "10.5".
// Допускается не более двух знаков после точки.
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("пустая сумма")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("некорректная сумма %q: знак не допускается", s)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") {
		return 0, fmt.Errorf("некорректная сумма %q", s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("некорректная сумма %q: больше двух знаков после точки", s)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректная сумма %q: %w", s, err)
	}

	var f int64
	if frac != "" {
		for len(frac) < 2 {
			frac += "0"
		}
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("некорректная сумма %q: %w", s, err)
		}
	}

	return Money(w*100 + f), nil
}

// Tier: ступень тарифа аренды или хранения.
type Tier struct {
	ID    string
	Days  int
	Price Money
	Label string
}

// Plan: неизменяемое значение плана: окно аренды + окно хранения.
type Plan struct {
	// ID: {rentalTier}_{storageTier}, например "week_month"
	ID          string
	RentalDays  int
	StorageDays int
	// Price: суммарная стоимость аренды и хранения
	Price       Money
	Label       string
	RentalTier  string
	StorageTier string
}

// IsFree возвращает true для бесплатного плана.
func (p Plan) IsFree() bool {
	return p.Price == 0
}

// Windows: окна мероприятия, вычисленные RetentionCalculator.
type Windows struct {
	RentalStart      time.Time
	RentalEnd        time.Time
	StorageExpiresAt time.Time
}
