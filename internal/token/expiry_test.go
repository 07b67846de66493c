package token

import (
	"testing"
	"time"
)

func TestParseExpiry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  time.Duration
	}{
		{"seconds", "30s", 30 * time.Second},
		{"minutes", "15m", 15 * time.Minute},
		{"hours", "2h", 2 * time.Hour},
		{"days", "7d", 7 * 24 * time.Hour},
		{"empty falls back", "", DefaultExpiry},
		{"garbage falls back", "garbage", DefaultExpiry},
		{"missing unit falls back", "15", DefaultExpiry},
		{"unknown unit falls back", "3w", DefaultExpiry},
		{"zero falls back", "0m", DefaultExpiry},
		{"negative falls back", "-5m", DefaultExpiry},
		{"trailing junk falls back", "15m0s", DefaultExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ParseExpiry(tt.input); got != tt.want {
				t.Fatalf("ParseExpiry(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCalculateExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if got := CalculateExpiry("15m", now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("15m: got %v", got)
	}
	if got := CalculateExpiry("2h", now); !got.Equal(now.Add(2 * time.Hour)) {
		t.Fatalf("2h: got %v", got)
	}
	if got := CalculateExpiry("garbage", now); !got.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("garbage: got %v", got)
	}
}
