package plan

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/slymnaltan/frame-app/retention/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefault_Resolve(t *testing.T) {
	c := Default(testLogger())

	tests := []struct {
		name        string
		planID      string
		wantID      string
		wantRental  int
		wantStorage int
		wantPrice   model.Money
	}{
		{name: "составной план", planID: "week_month", wantID: "week_month", wantRental: 7, wantStorage: 30, wantPrice: 4999 + 7999},
		{name: "бесплатный план", planID: "free_free", wantID: "free_free", wantRental: 1, wantStorage: 3, wantPrice: 0},
		{name: "одна ступень для обоих окон", planID: "year", wantID: "year_year", wantRental: 365, wantStorage: 365, wantPrice: 119999 + 59999},
		{name: "пустой идентификатор", planID: "", wantID: "free_free", wantRental: 1, wantStorage: 3, wantPrice: 0},
		{name: "неизвестный план", planID: "standard", wantID: "free_free", wantRental: 1, wantStorage: 3, wantPrice: 0},
		{name: "неизвестная ступень хранения", planID: "week_forever", wantID: "week_free", wantRental: 7, wantStorage: 3, wantPrice: 4999},
		{name: "неизвестная ступень аренды", planID: "lifetime_twoWeeks", wantID: "free_twoWeeks", wantRental: 1, wantStorage: 14, wantPrice: 4999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := c.Resolve(tt.planID)
			if p.ID != tt.wantID {
				t.Errorf("ID: хотели %s, получили %s", tt.wantID, p.ID)
			}
			if p.RentalDays != tt.wantRental {
				t.Errorf("RentalDays: хотели %d, получили %d", tt.wantRental, p.RentalDays)
			}
			if p.StorageDays != tt.wantStorage {
				t.Errorf("StorageDays: хотели %d, получили %d", tt.wantStorage, p.StorageDays)
			}
			if p.Price != tt.wantPrice {
				t.Errorf("Price: хотели %s, получили %s", tt.wantPrice, p.Price)
			}
		})
	}
}

func TestDefault_IsFreeAndTotalPrice(t *testing.T) {
	c := Default(testLogger())

	if !c.IsFree("free_free") {
		t.Error("free_free должен быть бесплатным")
	}
	if !c.IsFree("unknown") {
		t.Error("неизвестный план должен разрешаться в бесплатный")
	}
	if c.IsFree("week_free") {
		t.Error("week_free не должен быть бесплатным")
	}
	if got := c.TotalPrice("month_month"); got.String() != "229.98" {
		t.Errorf("TotalPrice(month_month): хотели 229.98, получили %s", got)
	}
}

func TestDefault_TiersSorted(t *testing.T) {
	c := Default(testLogger())

	tiers := c.RentalTiers()
	if len(tiers) != 7 {
		t.Fatalf("ожидалось 7 ступеней аренды, получено %d", len(tiers))
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i-1].Days > tiers[i].Days {
			t.Errorf("ступени не отсортированы: %s(%d) > %s(%d)",
				tiers[i-1].ID, tiers[i-1].Days, tiers[i].ID, tiers[i].Days)
		}
	}
	if got := c.StorageTiers()[0].ID; got != FreeTier {
		t.Errorf("первая ступень хранения: хотели free, получили %s", got)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
rental:
  free: {days: 0, price: "0", label: "Demo"}
  gala: {days: 2, price: "19.90", label: "Gala"}
storage:
  free: {days: 0, price: "0"}
  long: {days: 60, price: "5"}
`)

	c, err := Parse(data, testLogger())
	if err != nil {
		t.Fatalf("Parse: неожиданная ошибка: %v", err)
	}

	p := c.Resolve("gala_long")
	if p.RentalDays != 2 || p.StorageDays != 60 {
		t.Errorf("дни: хотели 2/60, получили %d/%d", p.RentalDays, p.StorageDays)
	}
	if p.Price.String() != "24.90" {
		t.Errorf("цена: хотели 24.90, получили %s", p.Price)
	}

	// Нулевые окна допустимы
	free := c.DefaultPlan()
	if free.RentalDays != 0 || free.StorageDays != 0 {
		t.Errorf("бесплатный план: хотели 0/0, получили %d/%d", free.RentalDays, free.StorageDays)
	}
	if got := c.StorageTiers()[0].Label; got != "free" {
		t.Errorf("метка по умолчанию: хотели free, получили %s", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "нет free в rental", data: "rental:\n  week: {days: 7, price: \"1\"}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
		{name: "платный free", data: "rental:\n  free: {days: 1, price: \"1\"}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
		{name: "отрицательные дни", data: "rental:\n  free: {days: -1, price: \"0\"}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
		{name: "подчёркивание в ID", data: "rental:\n  free: {days: 1, price: \"0\"}\n  two_weeks: {days: 14, price: \"1\"}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
		{name: "некорректная цена", data: "rental:\n  free: {days: 1, price: \"0\"}\n  week: {days: 7, price: \"-5\"}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
		{name: "неизвестное поле", data: "rental:\n  free: {days: 1, price: \"0\", color: red}\nstorage:\n  free: {days: 1, price: \"0\"}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), testLogger()); err == nil {
				t.Error("ожидалась ошибка разбора каталога")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	data := "rental:\n  free: {days: 1, price: \"0\"}\nstorage:\n  free: {days: 3, price: \"0\"}\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}

	c, err := LoadFile(path, testLogger())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p := c.DefaultPlan(); p.StorageDays != 3 {
		t.Errorf("StorageDays: хотели 3, получили %d", p.StorageDays)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), testLogger()); err == nil {
		t.Error("ожидалась ошибка для отсутствующего файла")
	}
}
