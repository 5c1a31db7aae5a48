package webhooks

import (
	"testing"
	"time"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: 30 * time.Second, Max: 15 * time.Minute}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{5, 8 * time.Minute},
		{6, 15 * time.Minute},
		{60, 15 * time.Minute},
	}

	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
