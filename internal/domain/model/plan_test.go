package model

import (
	"testing"
	"time"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input   string
		want    Money
		wantErr bool
	}{
		{input: "0", want: 0},
		{input: "49.99", want: 4999},
		{input: "10.5", want: 1050},
		{input: "1199.99", want: 119999},
		{input: " 7 ", want: 700},
		{input: "", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "1.999", wantErr: true},
		{input: "1.", wantErr: true},
		{input: ".5", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMoney(%q): ожидалась ошибка, получено %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMoney(%q): неожиданная ошибка: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMoney(%q): хотели %d, получили %d", tt.input, tt.want, got)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	if got := Money(4999).String(); got != "49.99" {
		t.Errorf("хотели 49.99, получили %s", got)
	}
	if got := Money(0).String(); got != "0.00" {
		t.Errorf("хотели 0.00, получили %s", got)
	}
	if got := Money(105).String(); got != "1.05" {
		t.Errorf("хотели 1.05, получили %s", got)
	}
}

func TestEvent_Windows(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	e := &Event{
		RentalEnd:        now.Add(time.Hour),
		StorageExpiresAt: now.Add(-30 * time.Minute),
	}

	if !e.IsRentalOpen(now) {
		t.Error("окно аренды должно быть открыто")
	}
	if e.IsRentalOpen(now.Add(2 * time.Hour)) {
		t.Error("окно аренды должно быть закрыто")
	}

	// 30 минут назад < буфера в 1 час: ещё не истекло
	if e.IsStorageExpired(now, time.Hour) {
		t.Error("хранение не должно считаться истёкшим внутри буфера")
	}
	if !e.IsStorageExpired(now, 0) {
		t.Error("без буфера хранение должно считаться истёкшим")
	}
}

func TestStoragePrefixFor(t *testing.T) {
	if got := StoragePrefixFor("u1", "abc123"); got != "events/u1/abc123" {
		t.Errorf("хотели events/u1/abc123, получили %s", got)
	}
}
