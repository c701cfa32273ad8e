// Тесты функции parseOwnerName: извлечение имени владельца пода из hostname.
package main

import "testing"

func TestParseOwnerName(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		want     string
	}{
		{
			name:     "Deployment - frame-retention",
			hostname: "frame-retention-7d8f9b6c4f-x2k9z",
			want:     "frame-retention",
		},
		{
			name:     "Deployment - имя с цифровым сегментом",
			hostname: "frame-retention-eu-01-5fbcd8d7b9-k4m2j",
			want:     "frame-retention-eu-01",
		},
		{
			name:     "StatefulSet - ordinal 0",
			hostname: "frame-cleaner-0",
			want:     "frame-cleaner",
		},
		{
			name:     "StatefulSet - ordinal 42",
			hostname: "frame-cleaner-42",
			want:     "frame-cleaner",
		},
		{
			name:     "Fallback - простое имя",
			hostname: "frame-api",
			want:     "frame-api",
		},
		{
			name:     "Fallback - localhost",
			hostname: "localhost",
			want:     "localhost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseOwnerName(tt.hostname)
			if got != tt.want {
				t.Errorf("parseOwnerName(%q) = %q, want %q", tt.hostname, got, tt.want)
			}
		})
	}
}

func TestServiceID_Configured(t *testing.T) {
	if got := serviceID("frame-retention-eu"); got != "frame-retention-eu" {
		t.Errorf("serviceID: %q", got)
	}
}
