package checkpoint

import (
	"testing"
	"time"
)

func TestEffectiveSince(t *testing.T) {
	cursor := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window time.Duration
		want   time.Time
	}{
		{"ten minute window", 10 * time.Minute, cursor.Add(-10 * time.Minute)},
		{"zero window", 0, cursor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveSince(cursor, tt.window); !got.Equal(tt.want) {
				t.Fatalf("EffectiveSince = %v, want %v", got, tt.want)
			}
		})
	}
}
